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
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// VideoAssembler concatenates clips listed in a concat manifest into one
// file without re-encoding.
type VideoAssembler interface {
	Concat(ctx goctx.Context, listPath, outPath string) error
}

// VideoAssembly is the join of the render fan-out. Clip names are
// zero-padded scene ids, so sorting the paths orders the scenes.
type VideoAssembly struct {
	cor.BaseCommand
	assembler VideoAssembler
}

func NewVideoAssembly(name string, assembler VideoAssembler) *VideoAssembly {
	out := &VideoAssembly{BaseCommand: *cor.NewBaseCommand(name), assembler: assembler}
	out.InputParamName = ParamClips
	out.OutputParamName = ParamFinalVideo
	return out
}

func (c *VideoAssembly) IsExecutable(context cor.Context) bool {
	return has(context, ParamClips, ParamFiles)
}

func (c *VideoAssembly) Execute(context cor.Context) {
	results, _ := value[[]cor.Result[string]](context, ParamClips)
	files, _ := value[services.JobFiles](context, ParamFiles)

	for _, r := range cor.Failed(results) {
		slog.Warn("clip excluded from assembly", "job_id", files.ID(), "error", r.Err)
	}
	clips := ExistingClips(cor.Succeeded(results))
	if len(clips) == 0 {
		c.Fail(context, errors.New("no scene clip to assemble"))
		return
	}
	if err := WriteConcatList(files.ConcatList(), clips); err != nil {
		c.Fail(context, err)
		return
	}
	if err := c.assembler.Concat(context.GetContext(), files.ConcatList(), files.FinalVideo()); err != nil {
		c.Fail(context, fmt.Errorf("video assembly failed: %w", err))
		return
	}
	if !services.FileExists(files.FinalVideo()) {
		c.Fail(context, errors.New("video assembly produced no file"))
		return
	}

	slog.Info("final video assembled", "job_id", files.ID(), "clips", len(clips), "path", files.FinalVideo())
	c.Succeed(context)
	context.Add(c.GetOutputParam(), files.FinalVideo())
}

// ExistingClips returns the absolute paths of the clips present on disk,
// sorted lexicographically.
func ExistingClips(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !services.FileExists(p) {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// WriteConcatList writes an ffmpeg concat demuxer manifest.
func WriteConcatList(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(clip, "'", `'\''`))
	}
	return services.WriteFileAtomic(path, []byte(b.String()))
}
