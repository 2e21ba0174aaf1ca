// Copyright 2025 The Relay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package action implements the built-in step actions: checkout,
// artifact exchange, cloud credential login, and test report
// publishing, plus the shell runner for run steps.
package action

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relayci/relay/pkg/errors"
	"github.com/relayci/relay/pkg/pipeline"
)

// Registry maps uses names to action implementations.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]pipeline.Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]pipeline.Action)}
}

// DefaultRegistry creates a registry with all built-in actions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, a := range []pipeline.Action{
		&Checkout{},
		&ArtifactUpload{},
		&ArtifactDownload{},
		&CloudLogin{},
		&ReportPublish{},
	} {
		// Built-in names never collide.
		_ = r.Register(a)
	}
	return r
}

// Register adds an action. Duplicate names are rejected.
func (r *Registry) Register(a pipeline.Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action already registered: %s", name)
	}
	r.actions[name] = a
	return nil
}

// Get returns the action registered under name.
func (r *Registry) Get(name string) (pipeline.Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "action", ID: name}
	}
	return a, nil
}

// Names returns registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known returns the registered names as a lookup set for definition
// validation.
func (r *Registry) Known() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	known := make(map[string]bool, len(r.actions))
	for name := range r.actions {
		known[name] = true
	}
	return known
}
