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

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// ErrDispatcherClosed is returned by Dispatch after Stop.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Dispatcher hands a queued job to a worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, task model.JobTask) error
}

// TaskRunner executes one job task to completion.
type TaskRunner interface {
	Run(ctx context.Context, task model.JobTask) error
}

// InjectTrace stores the span context of ctx in the task.
func InjectTrace(ctx context.Context, task *model.JobTask) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 {
		task.Trace = carrier
	}
}

// ExtractTrace returns ctx carrying the span context stored in the task.
func ExtractTrace(ctx context.Context, task model.JobTask) context.Context {
	if len(task.Trace) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(task.Trace))
}

// LocalDispatcher runs tasks on an in-process pool of workers.
type LocalDispatcher struct {
	runner  TaskRunner
	workers int
	queue   chan model.JobTask

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalDispatcher creates a pool of workers reading from a queue of
// queueSize tasks.
func NewLocalDispatcher(runner TaskRunner, workers, queueSize int) *LocalDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	return &LocalDispatcher{
		runner:  runner,
		workers: workers,
		queue:   make(chan model.JobTask, queueSize),
	}
}

// Start launches the workers. Tasks run with ctx, so cancelling it stops
// the generation calls of running jobs at their next check.
func (d *LocalDispatcher) Start(ctx context.Context) {
	slog.Info("starting local dispatcher", "workers", d.workers)
	for w := 0; w < d.workers; w++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			for task := range d.queue {
				taskCtx := ExtractTrace(ctx, task)
				if err := d.runner.Run(taskCtx, task); err != nil {
					slog.Error("job failed", "job_id", task.JobID, "kind", task.Kind, "worker", worker, "error", err)
				}
			}
		}(w)
	}
}

// Dispatch enqueues task, blocking while the queue is full.
func (d *LocalDispatcher) Dispatch(ctx context.Context, task model.JobTask) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	InjectTrace(ctx, &task)
	select {
	case d.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new tasks and waits for queued and running tasks to finish.
func (d *LocalDispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// PubSubDispatcher publishes tasks to a topic read by cloud.PubSubListener.
type PubSubDispatcher struct {
	topic *pubsub.Topic
}

// NewPubSubDispatcher publishes to topicID.
func NewPubSubDispatcher(client *pubsub.Client, topicID string) *PubSubDispatcher {
	return &PubSubDispatcher{topic: client.Topic(topicID)}
}

// Dispatch publishes task and waits for the server to accept it.
func (d *PubSubDispatcher) Dispatch(ctx context.Context, task model.JobTask) error {
	InjectTrace(ctx, &task)
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	result := d.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_id": task.JobID, "kind": string(task.Kind)},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish job %s: %w", task.JobID, err)
	}
	slog.Info("job task published", "job_id", task.JobID, "message_id", id)
	return nil
}

// Stop flushes pending messages.
func (d *PubSubDispatcher) Stop() {
	d.topic.Stop()
}
