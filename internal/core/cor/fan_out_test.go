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

package cor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// joinRecorder is a command that records how many fan-out tasks had reported at
// the moment it ran.
type joinRecorder struct {
	cor.BaseCommand
	reported *atomic.Int64
	seen     int64
	runs     int
}

func (j *joinRecorder) IsExecutable(context cor.Context) bool { return true }

func (j *joinRecorder) Execute(context cor.Context) {
	j.runs++
	j.seen = j.reported.Load()
}

func TestFanOutDispatchesOneTaskPerItemAndJoinsAfterAll(t *testing.T) {
	const n = 7
	var dispatched, reported atomic.Int64

	fan := cor.NewFanOut[int, int]("layouts", 3, func(ctx context.Context, index int, item int) (int, error) {
		dispatched.Add(1)
		// uneven durations so the tasks finish out of order
		time.Sleep(time.Duration(n-index) * time.Millisecond)
		reported.Add(1)
		return item * 10, nil
	})
	fan.InputParamName = "items"
	fan.OutputParamName = "results"

	recorder := &joinRecorder{BaseCommand: *cor.NewBaseCommand("join"), reported: &reported}

	chain := cor.NewBaseChain("graph")
	chain.AddCommand(fan).AddCommand(recorder)

	items := make([]int, n)
	for i := range items {
		items[i] = i + 1
	}
	chCtx := cor.NewContext(context.Background())
	chCtx.Add("items", items)

	chain.Execute(chCtx)

	require.False(t, chCtx.HasErrors())
	assert.Equal(t, int64(n), dispatched.Load())
	assert.Equal(t, 1, recorder.runs)
	assert.Equal(t, int64(n), recorder.seen, "join ran before every task reported")

	results := chCtx.Get("results").([]cor.Result[int])
	require.Len(t, results, n)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, (i+1)*10, r.Value)
	}
}

func TestFanOutReportsFailuresWithoutFailingTheNode(t *testing.T) {
	fan := cor.NewFanOut[string, string]("renders", 2, func(ctx context.Context, index int, item string) (string, error) {
		if item == "bad" {
			return "", errors.New("boom")
		}
		if item == "panic" {
			panic("unexpected")
		}
		return item, nil
	})
	fan.InputParamName = "items"

	chCtx := cor.NewContext(context.Background())
	chCtx.Add("items", []string{"a", "bad", "b", "panic"})

	assert.True(t, fan.IsExecutable(chCtx))
	fan.Execute(chCtx)

	assert.False(t, chCtx.HasErrors())
	results := chCtx.Get(cor.CtxOut).([]cor.Result[string])
	assert.Equal(t, []string{"a", "b"}, cor.Succeeded(results))
	failed := cor.Failed(results)
	require.Len(t, failed, 2)
	assert.Equal(t, 1, failed[0].Index)
	assert.Equal(t, 3, failed[1].Index)
	assert.Contains(t, failed[1].Err.Error(), "panicked")
}

func TestFanOutWithNoItems(t *testing.T) {
	fan := cor.NewFanOut[int, int]("empty", 4, func(ctx context.Context, index int, item int) (int, error) {
		t.Fatal("task must not run")
		return 0, nil
	})
	chCtx := cor.NewContext(context.Background())
	chCtx.Add(cor.CtxIn, []int{})
	fan.Execute(chCtx)

	assert.Empty(t, chCtx.Get(cor.CtxOut).([]cor.Result[int]))
}

func TestFanOutNotExecutableWithWrongInput(t *testing.T) {
	fan := cor.NewFanOut[int, int]("typed", 1, func(ctx context.Context, index int, item int) (int, error) {
		return item, nil
	})
	chCtx := cor.NewContext(context.Background())
	chCtx.Add(cor.CtxIn, []string{"x"})
	assert.False(t, fan.IsExecutable(chCtx))
}
