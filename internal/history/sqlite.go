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
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relayci/relay/pkg/errors"
	"github.com/relayci/relay/pkg/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	pipeline    TEXT NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	detail      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// SQLiteStore persists runs in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the history database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// sqlite handles one writer; more connections just contend.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record implements Store.
func (s *SQLiteStore) Record(ctx context.Context, run *pipeline.Run) error {
	detail, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, pipeline, label, status, started_at, finished_at, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Pipeline, run.Label, string(run.Status),
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), string(detail))
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// Get implements Store. IDs may be abbreviated to a unique prefix.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*pipeline.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT detail FROM runs WHERE id = ? OR id LIKE ? LIMIT 2`,
		id, id+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []string
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(details) {
	case 0:
		return nil, &errors.NotFoundError{Resource: "run", ID: id}
	case 1:
		var run pipeline.Run
		if err := json.Unmarshal([]byte(details[0]), &run); err != nil {
			return nil, fmt.Errorf("decoding run %s: %w", id, err)
		}
		return &run, nil
	default:
		return nil, fmt.Errorf("run ID prefix %q is ambiguous", id)
	}
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline, label, status, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		if err := rows.Scan(&e.ID, &e.Pipeline, &e.Label, &e.Status, &started, &finished); err != nil {
			return nil, err
		}
		e.StartedAt = time.UnixMilli(started)
		e.FinishedAt = time.UnixMilli(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
