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
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// BaseChain is the sequential node of the task graph.
//
// Logic Flow:
//  1. A span named "<chain>_execute" wraps the whole run.
//  2. Each command gets a child span. If an earlier command recorded an error
//     and the chain does not continue on failure, the loop stops there.
//  3. A command whose IsExecutable precondition fails is not run; the chain
//     records it as a failure so no later stage runs on missing input.
//  4. After each command the value under CtxOut is moved to CtxIn so the next
//     command receives it.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool
	commands          []Command
}

// NewBaseChain creates an empty chain.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Commands returns the commands in execution order.
func (c *BaseChain) Commands() []Command {
	return c.commands
}

// IsExecutable only needs a live Go context; chains take their inputs from
// whatever the first command expects.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	for _, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			break
		}
		if err := outerCtx.Err(); err != nil {
			c.Fail(chCtx, fmt.Errorf("%s cancelled before %s: %w", c.GetName(), command.GetName(), err))
			break
		}

		commandCtx, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		chCtx.SetContext(commandCtx)
		if command.IsExecutable(chCtx) {
			command.Execute(chCtx)
		} else {
			c.Fail(chCtx, fmt.Errorf("command not executable: %s", command.GetName()))
		}
		chCtx.SetContext(outerCtx)

		if chCtx.HasErrors() {
			commandSpan.SetStatus(codes.Error, "error during or after command execution")
		} else {
			commandSpan.SetStatus(codes.Ok, "command completed successfully")
		}
		commandSpan.End()

		out := chCtx.Get(CtxOut)
		chCtx.Remove(CtxIn)
		if out != nil {
			chCtx.Add(CtxIn, out)
		}
		chCtx.Remove(CtxOut)
	}

	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
		return
	}
	c.Succeed(chCtx)
	chainSpan.SetStatus(codes.Ok, "chain completed successfully")
}
