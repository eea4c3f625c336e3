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

// Package cor (Chain of Responsibility) provides the building blocks used to
// describe a job's task graph. A graph is made of three node kinds:
//
//   - a Command, the atomic unit of work;
//   - a Chain, which runs its commands in strict order (the sequential node);
//   - a FanOut, which runs one task per input item concurrently and only returns
//     once every task has reported (the fan-out node with its barrier join).
//
// All nodes share a single Context, the property bag that carries the job's
// intermediate values and errors from one node to the next.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the default keys used to pipe the primary value of one
// command into the next one inside a BaseChain.
const (
	CtxIn  = "__IN__"
	CtxOut = "__OUT__"
)

// Context is the shared state of one workflow execution.
type Context interface {
	// SetContext replaces the Go context (cancellation, trace span).
	SetContext(ctx context.Context)
	// GetContext returns the Go context of the node currently executing.
	GetContext() context.Context

	// Add stores a value and returns the Context for chaining.
	Add(key string, value any) Context
	// Get returns the value stored under key, or nil.
	Get(key string) any
	// Remove deletes the value stored under key.
	Remove(key string)

	// AddError records a failure, keyed by the name of the failing command.
	AddError(key string, err error)
	// GetErrors returns every recorded failure.
	GetErrors() map[string]error
	// HasErrors reports whether any failure was recorded.
	HasErrors() bool

	// AddTempFile registers a scratch file that Close removes.
	AddTempFile(file string)
	// GetTempFiles lists the registered scratch files.
	GetTempFiles() []string
	// Close removes scratch files. Callers defer it at the start of a workflow.
	Close()
}

// Executable is anything with an Execute step.
type Executable interface {
	Execute(context Context)
}

// Command is one node of the task graph.
type Command interface {
	Executable

	// GetName returns the name used for spans, counters and error keys.
	GetName() string
	// GetInputParam returns the Context key holding the primary input.
	GetInputParam() string
	// GetOutputParam returns the Context key receiving the primary output.
	GetOutputParam() string
	// IsExecutable is the precondition checked before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is a sequential node. A Chain is itself a Command so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure controls whether commands after a failed one still run.
	ContinueOnFailure(bool) Chain
	// AddCommand appends a command to the execution order.
	AddCommand(command Command) Chain
}
