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

package history

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/relayci/relay/pkg/errors"
	"github.com/relayci/relay/pkg/pipeline"
)

// MemoryStore keeps runs in memory. Used in tests and with
// --no-history.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*pipeline.Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*pipeline.Run)}
}

// Record implements Store.
func (s *MemoryStore) Record(_ context.Context, run *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if run, ok := s.runs[id]; ok {
		return run, nil
	}

	var match *pipeline.Run
	for runID, run := range s.runs {
		if strings.HasPrefix(runID, id) {
			if match != nil {
				return nil, &errors.ValidationError{
					Field:   "id",
					Message: "run ID prefix is ambiguous: " + id,
				}
			}
			match = run
		}
	}
	if match == nil {
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	}
	return match, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.runs))
	for _, run := range s.runs {
		entries = append(entries, Entry{
			ID:         run.ID,
			Pipeline:   run.Pipeline,
			Label:      run.Label,
			Status:     string(run.Status),
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartedAt.After(entries[j].StartedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
