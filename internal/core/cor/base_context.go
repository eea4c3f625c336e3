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
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// BaseContext is the default Context. It is safe for concurrent use so that a
// FanOut task may record diagnostics while siblings are still running.
type BaseContext struct {
	mu        sync.RWMutex
	data      map[string]any
	errors    map[string]error
	tempFiles []string
	context   context.Context
}

// NewBaseContext returns an empty Context with no Go context attached.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]any),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
	}
}

// NewContext is a shorthand for NewBaseContext followed by SetContext.
func NewContext(ctx context.Context) Context {
	c := NewBaseContext()
	c.SetContext(ctx)
	return c
}

func (c *BaseContext) SetContext(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context = ctx
}

func (c *BaseContext) GetContext() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.context
}

func (c *BaseContext) Close() {
	for _, file := range c.GetTempFiles() {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove temporary file", "file", file, "error", err)
		}
	}
}

func (c *BaseContext) Add(key string, value any) Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return c
}

func (c *BaseContext) Get(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *BaseContext) AddTempFile(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tempFiles = append(c.tempFiles, file)
}

func (c *BaseContext) GetTempFiles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.tempFiles))
	copy(out, c.tempFiles)
	return out
}

func (c *BaseContext) AddError(key string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]error, len(c.errors))
	for k, v := range c.errors {
		out[k] = v
	}
	return out
}

func (c *BaseContext) HasErrors() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.errors) > 0
}

// JoinErrors folds every recorded error into one, ordered by command name so
// the resulting message is stable.
func JoinErrors(context Context) error {
	errs := context.GetErrors()
	if len(errs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	joined := make([]error, 0, len(keys))
	for _, k := range keys {
		joined = append(joined, errs[k])
	}
	return errors.Join(joined...)
}
