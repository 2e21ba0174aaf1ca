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

package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestValidateFileAccepts(t *testing.T) {
	path := writePipeline(t, `
name: ci
jobs:
  build:
    steps:
      - uses: checkout
      - run: make build
      - uses: artifact/upload
        with:
          name: wheel
          path: dist/*.whl
  test:
    needs: build
    if: always()
    strategy:
      fail-fast: false
      matrix:
        python: ["3.9", "3.11"]
    steps:
      - uses: artifact/download
        with:
          name: wheel
      - run: make test
        if: success()
`)
	assert.NoError(t, validateFile(path))
}

func TestValidateFileRejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "unknown needs reference",
			yaml: `
name: ci
jobs:
  test:
    needs: build
    steps:
      - run: make test
`,
			wantErr: "build",
		},
		{
			name: "dependency cycle",
			yaml: `
name: ci
jobs:
  a:
    needs: b
    steps:
      - run: "true"
  b:
    needs: a
    steps:
      - run: "true"
`,
			wantErr: "cycle",
		},
		{
			name: "unknown action",
			yaml: `
name: ci
jobs:
  build:
    steps:
      - uses: teleport/quantum
`,
			wantErr: "teleport/quantum",
		},
		{
			name: "step with run and uses",
			yaml: `
name: ci
jobs:
  build:
    steps:
      - run: make
        uses: checkout
`,
			wantErr: "cannot have both",
		},
		{
			name: "bad job condition syntax",
			yaml: `
name: ci
jobs:
  build:
    if: "always( and"
    steps:
      - run: make
`,
			wantErr: "job build",
		},
		{
			name: "bad step condition syntax",
			yaml: `
name: ci
jobs:
  build:
    steps:
      - id: compile
        run: make
        if: "failure( ||"
`,
			wantErr: "step compile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePipeline(t, tt.yaml)
			err := validateFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateFileMissing(t *testing.T) {
	assert.Error(t, validateFile(filepath.Join(t.TempDir(), "nope.yaml")))
}
