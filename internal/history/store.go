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

// Package history records completed runs for relay history.
package history

import (
	"context"
	"time"

	"github.com/relayci/relay/pkg/pipeline"
)

// Entry is a run summary as listed by relay history.
type Entry struct {
	ID         string    `json:"id"`
	Pipeline   string    `json:"pipeline"`
	Label      string    `json:"label,omitempty"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store persists completed runs.
type Store interface {
	// Record persists a finished run.
	Record(ctx context.Context, run *pipeline.Run) error

	// Get returns the full run record by ID. Prefix matches are
	// accepted when unambiguous.
	Get(ctx context.Context, id string) (*pipeline.Run, error)

	// List returns the most recent entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Close releases the store.
	Close() error
}
