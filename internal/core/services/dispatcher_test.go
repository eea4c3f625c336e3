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

package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
	"github.com/zeebo/assert"
)

type recordingRunner struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordingRunner) Run(_ context.Context, task model.JobTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, task.JobID)
	if task.JobID == "bad" {
		return errors.New("boom")
	}
	return nil
}

func TestLocalDispatcherRunsEveryTask(t *testing.T) {
	runner := &recordingRunner{}
	dispatcher := services.NewLocalDispatcher(runner, 3, 2)
	dispatcher.Start(context.Background())

	ids := []string{"a", "b", "bad", "c", "d"}
	for _, id := range ids {
		assert.NoError(t, dispatcher.Dispatch(context.Background(), model.JobTask{JobID: id, Kind: model.JobKindStory}))
	}
	dispatcher.Stop()

	sort.Strings(runner.jobs)
	assert.DeepEqual(t, runner.jobs, []string{"a", "b", "bad", "c", "d"})

	err := dispatcher.Dispatch(context.Background(), model.JobTask{JobID: "late"})
	assert.That(t, errors.Is(err, services.ErrDispatcherClosed))
}

func TestTraceRoundTrip(t *testing.T) {
	task := model.JobTask{JobID: "a"}
	// Without an active span nothing is injected.
	services.InjectTrace(context.Background(), &task)
	assert.Equal(t, len(task.Trace), 0)
	assert.NotNil(t, services.ExtractTrace(context.Background(), task))
}
