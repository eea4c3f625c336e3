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

package cor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Task processes one item of a fan-out group. index is the item's position
// in the input slice.
type Task[T, R any] func(ctx context.Context, index int, item T) (R, error)

// Result is what a single fan-out task reported.
type Result[R any] struct {
	Index int
	Value R
	Err   error
}

// FanOut is the fan-out node of the task graph. It reads a []T from its input
// key, dispatches one Task per item to a bounded worker pool and blocks until
// every task has reported. The ordered []Result[R] is written to the output key.
//
// Execute returning is the barrier: whatever command follows a FanOut in a
// chain runs only after all of the group's tasks finished, successfully or not.
type FanOut[T, R any] struct {
	BaseCommand
	workers int
	task    Task[T, R]
}

// NewFanOut creates a fan-out node.
//
// Inputs:
//   - name: Node name, also the prefix of each task span.
//   - workers: Pool size. Values below 1 mean one worker.
//   - task: The per-item work.
func NewFanOut[T, R any](name string, workers int, task Task[T, R]) *FanOut[T, R] {
	return &FanOut[T, R]{BaseCommand: *NewBaseCommand(name), workers: workers, task: task}
}

func (f *FanOut[T, R]) IsExecutable(context Context) bool {
	if context == nil || context.GetContext() == nil {
		return false
	}
	_, ok := context.Get(f.GetInputParam()).([]T)
	return ok
}

func (f *FanOut[T, R]) Execute(context Context) {
	items := context.Get(f.GetInputParam()).([]T)
	results := RunFanOut(context.GetContext(), f.Tracer, f.GetName(), f.workers, items, f.task)

	// Task failures stay in the results; the join that follows decides.
	if len(Failed(results)) == 0 {
		f.Succeed(context)
	}

	context.Add(f.GetOutputParam(), results)
	context.Add(CtxOut, results)
}

// RunFanOut executes task over items with a pool of workers and returns the
// results ordered by index. It returns only after every task has reported.
// A panicking task is reported as an error rather than tearing down the pool.
func RunFanOut[T, R any](
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	workers int,
	items []T,
	task Task[T, R]) []Result[R] {
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	type job struct {
		index int
		item  T
	}
	jobs := make(chan job, len(items))
	results := make(chan Result[R], len(items))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- runTask(ctx, tracer, name, j.index, j.item, task)
			}
		}()
	}

	for i, item := range items {
		jobs <- job{index: i, item: item}
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]Result[R], 0, len(items))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func runTask[T, R any](ctx context.Context, tracer trace.Tracer, name string, index int, item T, task Task[T, R]) (res Result[R]) {
	taskCtx, span := tracer.Start(ctx, fmt.Sprintf("%s_task_%d", name, index))
	span.SetAttributes(attribute.Int("index", index))
	defer span.End()

	res.Index = index
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("task %d panicked: %v", index, p)
			span.SetStatus(codes.Error, res.Err.Error())
		}
	}()

	res.Value, res.Err = task(taskCtx, index, item)
	if res.Err != nil {
		span.SetStatus(codes.Error, res.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "task completed")
	}
	return res
}

// Succeeded returns the values of the tasks that did not fail, in index order.
func Succeeded[R any](results []Result[R]) []R {
	out := make([]R, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}

// Failed returns the results whose task reported an error.
func Failed[R any](results []Result[R]) []Result[R] {
	out := make([]Result[R], 0)
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
