// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"errors"
	"fmt"
	"strings"
)

// BibleCharacter is the fixed identity of the main character.
type BibleCharacter struct {
	Name            string   `json:"name" validate:"required"`
	Outfit          string   `json:"outfit" validate:"required"`
	AppearanceRules []string `json:"appearance_rules" validate:"required"`
}

// BibleStyle holds the visual style rules.
type BibleStyle struct {
	Type  string   `json:"type" validate:"required"`
	Rules []string `json:"rules" validate:"required"`
}

// SeriesBible is the continuity contract. It is produced once per job and
// every later stage is constrained to the values it enumerates.
type SeriesBible struct {
	Character     BibleCharacter `json:"character" validate:"required"`
	Style         BibleStyle     `json:"style" validate:"required"`
	Locations     []string       `json:"locations" validate:"required,min=1"`
	Props         []string       `json:"props" validate:"required"`
	MotionLibrary []string       `json:"motion_library" validate:"required"`
	CameraStyles  []string       `json:"camera_styles" validate:"required,min=1"`
}

// CharacterDescription renders the character for the image prompt designer.
func (b *SeriesBible) CharacterDescription() string {
	return fmt.Sprintf("Name: %s. Outfit: %s. Appearance: %s.",
		b.Character.Name, b.Character.Outfit, strings.Join(b.Character.AppearanceRules, ", "))
}

// AllowsLocation reports whether location is enumerated by the bible.
func (b *SeriesBible) AllowsLocation(location string) bool {
	return contains(b.Locations, location)
}

// AllowsCamera reports whether camera is enumerated by the bible.
func (b *SeriesBible) AllowsCamera(camera string) bool {
	return contains(b.CameraStyles, camera)
}

// CheckLayout reports every layout value the bible does not enumerate.
func (b *SeriesBible) CheckLayout(l *SceneLayout) error {
	var errs []error
	if !b.AllowsLocation(l.Location) {
		errs = append(errs, fmt.Errorf("location %q is not in the bible", l.Location))
	}
	if !b.AllowsCamera(l.Camera) {
		errs = append(errs, fmt.Errorf("camera %q is not in the bible", l.Camera))
	}
	return errors.Join(errs...)
}

// CheckManifest reports manifest items placed in locations the bible does
// not enumerate.
func (b *SeriesBible) CheckManifest(m *SceneManifest) error {
	var errs []error
	for _, item := range m.Scenes {
		if !b.AllowsLocation(item.Location) {
			errs = append(errs, fmt.Errorf("scene %d: location %q is not in the bible", item.SceneID, item.Location))
		}
	}
	return errors.Join(errs...)
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}
