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

package commands

import (
	goctx "context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// Renderer defaults.
const (
	DefaultSceneSeconds = 5
	PlaceholderColor    = "red"
	defaultBackground   = "0x808080"
	stderrTail          = 400
)

// locationColors are the backgrounds used when no image exists for a location.
var locationColors = map[string]string{
	"home":   "0xFFDAB9",
	"street": "0x87CEEB",
	"office": "0xD3D3D3",
}

// FFMpegRenderer renders a scene as a still background, an optional
// character overlay and the dialogue line. Every clip uses the same
// encoding profile so that the assembler can concatenate with stream copy.
//
// Logic Flow:
//  1. Pick the background: <assets>/backgrounds/<location>.png, else a color.
//  2. Pick the character: the job asset, else <assets>/character/main_character.png.
//  3. Encode with the dialogue drawn as text.
//  4. On failure retry without text, then fall back to a solid placeholder.
type FFMpegRenderer struct {
	commandPath     string
	assetsDir       string
	width           int
	height          int
	fps             int
	preset          string
	characterHeight int
	fontFile        string
}

// NewFFMpegRenderer is the constructor for the FFMpegRenderer.
//
// Inputs:
//   - render: The uniform encoding profile.
//   - assetsDir: The directory holding shared backgrounds and the fallback character.
//
// Outputs:
//   - *FFMpegRenderer: The renderer.
func NewFFMpegRenderer(render cloud.Render, assetsDir string) *FFMpegRenderer {
	r := &FFMpegRenderer{
		commandPath:     render.FFmpegPath,
		assetsDir:       assetsDir,
		width:           render.Width,
		height:          render.Height,
		fps:             render.FPS,
		preset:          render.Preset,
		characterHeight: render.CharacterHeight,
		fontFile:        render.FontFile,
	}
	if r.commandPath == "" {
		r.commandPath = "ffmpeg"
	}
	if r.width <= 0 || r.height <= 0 {
		r.width, r.height = 1280, 720
	}
	if r.fps <= 0 {
		r.fps = 24
	}
	if r.preset == "" {
		r.preset = "ultrafast"
	}
	if r.characterHeight <= 0 {
		r.characterHeight = r.height * 2 / 3
	}
	return r
}

// Render writes the clip of scene to outPath.
func (r *FFMpegRenderer) Render(ctx goctx.Context, scene model.SceneLayout, characterPath, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	duration := scene.Duration
	if duration <= 0 {
		duration = DefaultSceneSeconds
	}

	textFile := ""
	if line := strings.TrimSpace(scene.Dialogue); line != "" {
		textFile = outPath + ".txt"
		if err := os.WriteFile(textFile, []byte(line), 0o644); err != nil {
			textFile = ""
		} else {
			defer os.Remove(textFile)
		}
	}

	background := r.background(scene.Location)
	character := r.character(characterPath)
	err := r.run(ctx, r.sceneArgs(background, character, textFile, duration, outPath))
	if err != nil && textFile != "" {
		slog.Warn("scene render with text failed, retrying without text", "scene_id", scene.SceneID, "error", err)
		err = r.run(ctx, r.sceneArgs(background, character, "", duration, outPath))
	}
	if err == nil {
		return nil
	}

	slog.Warn("scene render failed, writing placeholder", "scene_id", scene.SceneID, "error", err)
	if perr := r.run(ctx, r.placeholderArgs(duration, outPath)); perr != nil {
		return fmt.Errorf("placeholder render failed: %w", perr)
	}
	return nil
}

// background returns either an image path or a lavfi color.
func (r *FFMpegRenderer) background(location string) backgroundSource {
	key := strings.ToLower(strings.TrimSpace(location))
	if key != "" {
		image := filepath.Join(r.assetsDir, "backgrounds", key+".png")
		if services.FileExists(image) {
			return backgroundSource{image: image}
		}
	}
	color, ok := locationColors[key]
	if !ok {
		color = defaultBackground
	}
	return backgroundSource{color: color}
}

func (r *FFMpegRenderer) character(characterPath string) string {
	if characterPath != "" && services.FileExists(characterPath) {
		return characterPath
	}
	fallback := filepath.Join(r.assetsDir, "character", "main_character.png")
	if services.FileExists(fallback) {
		return fallback
	}
	return ""
}

type backgroundSource struct {
	image string
	color string
}

func (r *FFMpegRenderer) size() string {
	return fmt.Sprintf("%dx%d", r.width, r.height)
}

func (r *FFMpegRenderer) sceneArgs(bg backgroundSource, character, textFile string, duration int, outPath string) []string {
	seconds := fmt.Sprint(duration)
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	if bg.image != "" {
		args = append(args, "-loop", "1", "-t", seconds, "-i", bg.image)
	} else {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=%s:d=%s:r=%d", bg.color, r.size(), seconds, r.fps))
	}
	if character != "" {
		args = append(args, "-loop", "1", "-t", seconds, "-i", character)
	}

	filters := []string{fmt.Sprintf("[0:v]scale=%d:%d,setsar=1[bg]", r.width, r.height)}
	last := "bg"
	if character != "" {
		filters = append(filters,
			fmt.Sprintf("[1:v]scale=-2:%d[ch]", r.characterHeight),
			"[bg][ch]overlay=(W-w)/2:H-h[scene]")
		last = "scene"
	}
	if textFile != "" {
		font := ""
		if r.fontFile != "" {
			font = fmt.Sprintf("fontfile='%s':", r.fontFile)
		}
		filters = append(filters, fmt.Sprintf(
			"[%s]drawtext=%stextfile='%s':expansion=none:fontcolor=white:fontsize=40:box=1:boxcolor=black@0.6:boxborderw=12:x=(w-text_w)/2:y=h-th-60[text]",
			last, font, textFile))
		last = "text"
	}

	args = append(args, "-filter_complex", strings.Join(filters, ";"), "-map", "["+last+"]", "-t", seconds)
	return append(args, r.encodeArgs(outPath)...)
}

func (r *FFMpegRenderer) placeholderArgs(duration int, outPath string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=%s:d=%d:r=%d", PlaceholderColor, r.size(), duration, r.fps),
		"-t", fmt.Sprint(duration)}
	return append(args, r.encodeArgs(outPath)...)
}

// encodeArgs is the profile shared by every clip.
func (r *FFMpegRenderer) encodeArgs(outPath string) []string {
	return []string{
		"-r", fmt.Sprint(r.fps),
		"-c:v", "libx264",
		"-preset", r.preset,
		"-pix_fmt", "yuv420p",
		"-an",
		outPath,
	}
}

func (r *FFMpegRenderer) run(ctx goctx.Context, args []string) error {
	return runFFMpeg(ctx, r.commandPath, args)
}

// FFMpegAssembler concatenates clips with the concat demuxer.
type FFMpegAssembler struct {
	commandPath string
}

func NewFFMpegAssembler(commandPath string) *FFMpegAssembler {
	if commandPath == "" {
		commandPath = "ffmpeg"
	}
	return &FFMpegAssembler{commandPath: commandPath}
}

// Concat stream-copies the clips listed in listPath into outPath.
func (a *FFMpegAssembler) Concat(ctx goctx.Context, listPath, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return runFFMpeg(ctx, a.commandPath, []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	})
}

func runFFMpeg(ctx goctx.Context, commandPath string, args []string) error {
	cmd := exec.CommandContext(ctx, commandPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := strings.TrimSpace(string(out))
		if len(tail) > stderrTail {
			tail = tail[len(tail)-stderrTail:]
		}
		return fmt.Errorf("error running ffmpeg: %w: %s", err, tail)
	}
	return nil
}
