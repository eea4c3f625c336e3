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

// Package services holds the job store, the dispatchers that hand queued
// jobs to workers, and the download service.
package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrVideoNotReady = errors.New("video not ready")
)

// QueuedMessage is the message of a job without a status record.
const QueuedMessage = "Job queued"

// JobFiles names every file of one job directory.
type JobFiles struct {
	Dir string
}

// ID is the job id, the base name of the job directory.
func (f JobFiles) ID() string { return filepath.Base(f.Dir) }

func (f JobFiles) Input() string           { return filepath.Join(f.Dir, "input.json") }
func (f JobFiles) Story() string           { return filepath.Join(f.Dir, "story.txt") }
func (f JobFiles) CharacterPrompt() string { return filepath.Join(f.Dir, "character_prompt.txt") }
func (f JobFiles) Script() string          { return filepath.Join(f.Dir, "script.txt") }
func (f JobFiles) Bible() string           { return filepath.Join(f.Dir, "bible.json") }
func (f JobFiles) Manifest() string        { return filepath.Join(f.Dir, "scene_manifest.json") }
func (f JobFiles) DebugReport() string     { return filepath.Join(f.Dir, "debug_report.json") }
func (f JobFiles) EditorPlan() string      { return filepath.Join(f.Dir, "editor_plan.json") }
func (f JobFiles) Status() string          { return filepath.Join(f.Dir, "status.json") }
func (f JobFiles) AssetsDir() string       { return filepath.Join(f.Dir, "assets") }
func (f JobFiles) Character() string       { return filepath.Join(f.Dir, "assets", "character.png") }
func (f JobFiles) ScenesDir() string       { return filepath.Join(f.Dir, "scenes") }
func (f JobFiles) FinalDir() string        { return filepath.Join(f.Dir, "final") }
func (f JobFiles) ConcatList() string      { return filepath.Join(f.Dir, "final", "list.txt") }
func (f JobFiles) FinalVideo() string      { return filepath.Join(f.Dir, "final", "final.mp4") }

// Layout is the layout file of a scene.
func (f JobFiles) Layout(sceneID int) string {
	return filepath.Join(f.ScenesDir(), model.SceneKey(sceneID)+".json")
}

// Clip is the rendered clip of a scene.
func (f JobFiles) Clip(sceneID int) string {
	return filepath.Join(f.ScenesDir(), model.SceneKey(sceneID)+".mp4")
}

// JobStore keeps every job in its own directory under Root. It is the only
// persistence layer of the service.
type JobStore struct {
	Root string
}

// NewJobStore creates the root directory when needed.
func NewJobStore(root string) (*JobStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs directory %s: %w", abs, err)
	}
	return &JobStore{Root: abs}, nil
}

// Files returns the file layout of jobID. Ids that are not UUIDs are
// rejected so a caller cannot escape Root.
func (s *JobStore) Files(jobID string) (JobFiles, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return JobFiles{}, fmt.Errorf("%w: invalid id %q", ErrJobNotFound, jobID)
	}
	return JobFiles{Dir: filepath.Join(s.Root, jobID)}, nil
}

// Exists reports whether the job directory is present.
func (s *JobStore) Exists(jobID string) bool {
	files, err := s.Files(jobID)
	if err != nil {
		return false
	}
	info, err := os.Stat(files.Dir)
	return err == nil && info.IsDir()
}

// List returns the ids of every job under Root, sorted.
func (s *JobStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, err := uuid.Parse(e.Name()); err == nil && e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Kind tells the workflow of a job from its inputs: story jobs have an
// input file, character jobs only a prompt.
func (s *JobStore) Kind(jobID string) (model.JobKind, error) {
	if !s.Exists(jobID) {
		return "", ErrJobNotFound
	}
	files, _ := s.Files(jobID)
	if FileExists(files.Input()) {
		return model.JobKindStory, nil
	}
	return model.JobKindCharacter, nil
}

// Create lays out a new story job: its directories, the linked character
// asset when one is referenced, the inputs and the queued status.
func (s *JobStore) Create(req model.JobRequest) (string, error) {
	req.ApplyDefaults()
	jobID := uuid.NewString()
	files := JobFiles{Dir: filepath.Join(s.Root, jobID)}

	for _, dir := range []string{files.ScenesDir(), files.FinalDir(), files.AssetsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create job directory: %w", err)
		}
	}

	if req.CharacterJobID != "" {
		s.LinkCharacter(req.CharacterJobID, jobID)
	}

	if err := WriteJSONFile(files.Input(), req); err != nil {
		return "", err
	}
	if err := WriteFileAtomic(files.Story(), []byte(req.Story)); err != nil {
		return "", err
	}
	if err := s.WriteStatus(model.NewStatusRecord(jobID, model.StatusQueued, 0, QueuedMessage)); err != nil {
		return "", err
	}
	return jobID, nil
}

// CreateCharacter lays out a character-only job.
func (s *JobStore) CreateCharacter(req model.CharacterRequest) (string, error) {
	req.ApplyDefaults()
	jobID := uuid.NewString()
	files := JobFiles{Dir: filepath.Join(s.Root, jobID)}

	if err := os.MkdirAll(files.AssetsDir(), 0o755); err != nil {
		return "", fmt.Errorf("create job directory: %w", err)
	}
	if err := WriteFileAtomic(files.CharacterPrompt(), []byte(req.Prompt)); err != nil {
		return "", err
	}
	if err := s.WriteStatus(model.NewStatusRecord(jobID, model.StatusQueued, 0, QueuedMessage)); err != nil {
		return "", err
	}
	return jobID, nil
}

// LinkCharacter copies the character asset of sourceJobID into targetJobID.
// The copy is skipped when the target already has an asset, and a missing
// source is logged and ignored. It reports whether the target holds an
// asset afterwards.
func (s *JobStore) LinkCharacter(sourceJobID, targetJobID string) bool {
	target, err := s.Files(targetJobID)
	if err != nil {
		return false
	}
	if FileExists(target.Character()) {
		return true
	}
	source, err := s.Files(sourceJobID)
	if err != nil || !FileExists(source.Character()) {
		slog.Warn("linked character job has no asset", "job_id", targetJobID, "character_job_id", sourceJobID)
		return false
	}
	if err := CopyFile(source.Character(), target.Character()); err != nil {
		slog.Warn("unable to copy linked character", "job_id", targetJobID, "character_job_id", sourceJobID, "error", err)
		return false
	}
	slog.Info("copied character asset", "job_id", targetJobID, "character_job_id", sourceJobID)
	return true
}

// ReadInput returns the stored submission of a story job.
func (s *JobStore) ReadInput(jobID string) (model.JobRequest, error) {
	var req model.JobRequest
	files, err := s.Files(jobID)
	if err != nil {
		return req, err
	}
	if err := ReadJSONFile(files.Input(), &req); err != nil {
		return req, err
	}
	req.ApplyDefaults()
	return req, nil
}

// ReadCharacterPrompt returns the stored prompt of a character job.
func (s *JobStore) ReadCharacterPrompt(jobID string) (string, error) {
	files, err := s.Files(jobID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(files.CharacterPrompt())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteStatus replaces the status record of a job. The write is refused when
// it would move the job backwards, so a job marked failed stays failed even
// when tasks that were already in flight report later.
func (s *JobStore) WriteStatus(record model.StatusRecord) error {
	files, err := s.Files(record.JobID)
	if err != nil {
		return err
	}
	lock := flock.New(files.Status() + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock status of %s: %w", record.JobID, err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	current, err := s.readStatusFile(files)
	if err != nil {
		return err
	}
	if err := model.ValidateTransition(current, record); err != nil {
		return err
	}
	return WriteJSONFile(files.Status(), record)
}

func (s *JobStore) readStatusFile(files JobFiles) (*model.StatusRecord, error) {
	var record model.StatusRecord
	if err := ReadJSONFile(files.Status(), &record); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ReadStatus returns the status record of a job, or the queued placeholder
// when no record was written yet.
func (s *JobStore) ReadStatus(jobID string) (model.StatusRecord, error) {
	if !s.Exists(jobID) {
		return model.StatusRecord{}, ErrJobNotFound
	}
	files, _ := s.Files(jobID)
	record, err := s.readStatusFile(files)
	if err != nil {
		return model.StatusRecord{}, err
	}
	if record == nil {
		return model.StatusRecord{JobID: jobID, Status: model.StatusQueued, Message: QueuedMessage}, nil
	}
	return *record, nil
}

// Status returns the status record enriched with the artifacts written so far.
func (s *JobStore) Status(jobID string) (model.JobStatus, error) {
	record, err := s.ReadStatus(jobID)
	if err != nil {
		return model.JobStatus{}, err
	}
	out := model.JobStatus{StatusRecord: record}
	artifacts := s.Artifacts(jobID)
	if !artifacts.IsEmpty() {
		out.Artifacts = artifacts
	}
	return out, nil
}

// Artifacts decodes the script, bible and character image of a job. Files
// that are missing or unreadable are left out.
func (s *JobStore) Artifacts(jobID string) *model.Artifacts {
	files, err := s.Files(jobID)
	if err != nil {
		return nil
	}
	artifacts := &model.Artifacts{}
	if data, err := os.ReadFile(files.Script()); err == nil {
		artifacts.Script = string(data)
	}
	var bible model.SeriesBible
	if err := ReadJSONFile(files.Bible(), &bible); err == nil {
		artifacts.Bible = &bible
	}
	if data, err := os.ReadFile(files.Character()); err == nil && len(data) > 0 {
		artifacts.CharacterImage = DataURI(data)
	}
	return artifacts
}

// DataURI embeds data as a base64 data URI typed from its content.
func DataURI(data []byte) string {
	mime := "image/png"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		mime = kind.MIME.Value
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}

// FinalVideo returns the path of the assembled video.
func (s *JobStore) FinalVideo(jobID string) (string, error) {
	files, err := s.Files(jobID)
	if err != nil {
		return "", ErrVideoNotReady
	}
	if !FileExists(files.FinalVideo()) {
		return "", ErrVideoNotReady
	}
	return files.FinalVideo(), nil
}
