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

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-story-video/internal/api"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
	"github.com/jaycherian/gcp-go-story-video/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []model.JobTask
	err   error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task model.JobTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

func newServer(t *testing.T, dispatcher services.Dispatcher) (*gin.Engine, *services.JobStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := services.NewJobStore(t.TempDir())
	require.NoError(t, err)
	return api.NewRouter(&api.Handlers{Store: store, Dispatcher: dispatcher}, "story-video-test"), store
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateQueuesJob(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	r, store := newServer(t, dispatcher)

	for _, path := range []string{"/generate", "/api/v1/generate"} {
		w := do(r, http.MethodPost, path, model.JobRequest{Story: "A robot finds a flower.", DurationSeconds: 30})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp model.JobResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, model.StatusQueued, resp.Status)

		status, err := store.ReadStatus(resp.JobID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusQueued, status.Status)
		assert.Equal(t, 0, status.ProgressCurrent)
	}
	require.Len(t, dispatcher.tasks, 2)
	assert.Equal(t, model.JobKindStory, dispatcher.tasks[0].Kind)
}

func TestGenerateRejectsEmptyStory(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	r, _ := newServer(t, dispatcher)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/generate", map[string]any{"duration_seconds": 30}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/generate", model.JobRequest{Story: "   "}).Code)
	assert.Empty(t, dispatcher.tasks)
}

func TestGenerateReportsDispatchFailure(t *testing.T) {
	r, store := newServer(t, &recordingDispatcher{err: errors.New("queue full")})
	w := do(r, http.MethodPost, "/generate", model.JobRequest{Story: "A robot finds a flower."})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	entries, err := os.ReadDir(store.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	status, err := store.ReadStatus(entries[0].Name())
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status.Status)
	assert.Contains(t, status.Message, "queue full")
}

func TestGenerateCharacter(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	r, store := newServer(t, dispatcher)

	w := do(r, http.MethodPost, "/generate_character", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp model.JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	prompt, err := store.ReadCharacterPrompt(resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCharacterPrompt, prompt)
	require.Len(t, dispatcher.tasks, 1)
	assert.Equal(t, model.JobKindCharacter, dispatcher.tasks[0].Kind)
}

func TestStatus(t *testing.T) {
	r, store := newServer(t, &recordingDispatcher{})

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/status/unknown", nil).Code)

	jobID, err := store.Create(model.JobRequest{Story: "A robot finds a flower."})
	require.NoError(t, err)
	files, _ := store.Files(jobID)
	require.NoError(t, os.WriteFile(files.Script(), []byte(testutil.Script), 0o644))
	require.NoError(t, services.WriteJSONFile(files.Bible(), model.ExampleBible()))
	require.NoError(t, os.WriteFile(files.Character(), testutil.PNG(t, 4, 4), 0o644))
	require.NoError(t, store.WriteStatus(model.NewStatusRecord(jobID, model.StatusPlanning, 35, model.CheckpointDirector.Message)))

	w := do(r, http.MethodGet, "/api/v1/status/"+jobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status model.JobStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, model.StatusPlanning, status.Status)
	assert.Equal(t, 35, status.ProgressCurrent)
	assert.Equal(t, 100, status.ProgressTotal)
	require.NotNil(t, status.Artifacts)
	assert.Equal(t, testutil.Script, status.Artifacts.Script)
	assert.Equal(t, model.ExampleBible().Character.Name, status.Artifacts.Bible.Character.Name)
	assert.Contains(t, status.Artifacts.CharacterImage, "data:image/png;base64,")
}

func TestDownload(t *testing.T) {
	r, store := newServer(t, &recordingDispatcher{})
	jobID, err := store.Create(model.JobRequest{Story: "A robot finds a flower."})
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/download/"+jobID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Video not ready")

	files, _ := store.Files(jobID)
	require.NoError(t, os.WriteFile(files.FinalVideo(), []byte("not really a video"), 0o644))
	w = do(r, http.MethodGet, "/download/"+jobID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "cartoon_"+jobID+".mp4")
	assert.Equal(t, "not really a video", w.Body.String())
}

func TestDownloadURLWithoutPublishing(t *testing.T) {
	r, _ := newServer(t, &recordingDispatcher{})
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/download/j1/url", nil).Code)
}

func TestHealth(t *testing.T) {
	r, _ := newServer(t, &recordingDispatcher{})
	w := do(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "running")
}
