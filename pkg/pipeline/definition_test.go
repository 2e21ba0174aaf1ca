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

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerrors "github.com/relayci/relay/pkg/errors"
)

func TestParseDefinition(t *testing.T) {
	data := []byte(`
name: sdk-ci
on:
  dispatch:
    inputs:
      filepath:
        type: string
        description: file or directory to test
env:
  IS_IN_CI_PIPELINE: "true"
jobs:
  build:
    steps:
      - uses: checkout
      - run: python ./setup.py
        working-directory: scripts
      - uses: artifact/upload
        with:
          name: wheel
          path: dist/*.whl
  sdk_cli_tests:
    needs: build
    strategy:
      fail-fast: false
      matrix:
        os: [ubuntu-latest]
        python: ["3.9", "3.10", "3.11"]
    steps:
      - uses: checkout
      - uses: artifact/download
        with:
          name: wheel
      - run: pip install dist/*.whl
      - id: tests
        run: python scripts/run_tests.py -p src -t tests
  report:
    needs: [sdk_cli_tests]
    if: always()
    steps:
      - uses: artifact/download
        with:
          name: wheel
      - uses: report/publish
        with:
          pattern: "**/test-results*.xml"
`)

	p, err := ParseDefinition(data)
	require.NoError(t, err)

	assert.Equal(t, "sdk-ci", p.Name)
	assert.Len(t, p.Jobs, 3)
	assert.Equal(t, "true", p.Env["IS_IN_CI_PIPELINE"])

	require.NotNil(t, p.On)
	require.NotNil(t, p.On.Dispatch)
	assert.Contains(t, p.On.Dispatch.Inputs, "filepath")

	build := p.Jobs["build"]
	require.NotNil(t, build)
	assert.Equal(t, "build", build.Name)
	assert.Equal(t, "scripts", build.Steps[1].WorkingDirectory)

	tests := p.Jobs["sdk_cli_tests"]
	require.NotNil(t, tests)
	assert.Equal(t, []string{"build"}, []string(tests.Needs))
	require.NotNil(t, tests.Strategy)
	assert.False(t, tests.Strategy.FailFastEnabled())
	assert.Len(t, tests.Strategy.Matrix.Expand(), 3)

	report := p.Jobs["report"]
	require.NotNil(t, report)
	assert.Equal(t, "always()", report.If)
}

func TestParseDefinitionAutoStepIDs(t *testing.T) {
	data := []byte(`
name: ids
jobs:
  build:
    steps:
      - uses: checkout
      - run: make build
      - run: make test
      - id: upload
        uses: artifact/upload
        with:
          name: out
          path: out/**
      - uses: artifact/upload
        with:
          name: logs
          path: logs/**
`)

	p, err := ParseDefinition(data)
	require.NoError(t, err)

	steps := p.Jobs["build"].Steps
	ids := make([]string, 0, len(steps))
	for _, s := range steps {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"checkout_1", "run_1", "run_2", "upload", "artifact_upload_1"}, ids)
}

func TestParseDefinitionNeedsScalar(t *testing.T) {
	data := []byte(`
name: scalar-needs
jobs:
  a:
    steps:
      - run: "true"
  b:
    needs: a
    steps:
      - run: "true"
  c:
    needs: [a, b]
    steps:
      - run: "true"
`)

	p, err := ParseDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, []string(p.Jobs["b"].Needs))
	assert.Equal(t, []string{"a", "b"}, []string(p.Jobs["c"].Needs))
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing pipeline name",
			yaml: `
jobs:
  a:
    steps:
      - run: "true"
`,
			want: "pipeline name is required",
		},
		{
			name: "no jobs",
			yaml: `
name: empty
jobs: {}
`,
			want: "at least one job",
		},
		{
			name: "undefined needs reference",
			yaml: `
name: bad-needs
jobs:
  a:
    needs: missing
    steps:
      - run: "true"
`,
			want: "needs undefined job",
		},
		{
			name: "self reference",
			yaml: `
name: self
jobs:
  a:
    needs: a
    steps:
      - run: "true"
`,
			want: "cannot need itself",
		},
		{
			name: "dependency cycle",
			yaml: `
name: cycle
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
			want: "cycle",
		},
		{
			name: "step with run and uses",
			yaml: `
name: both
jobs:
  a:
    steps:
      - run: "true"
        uses: checkout
`,
			want: "cannot have both",
		},
		{
			name: "step with neither run nor uses",
			yaml: `
name: neither
jobs:
  a:
    steps:
      - name: nothing
`,
			want: "requires either",
		},
		{
			name: "duplicate step ids",
			yaml: `
name: dupes
jobs:
  a:
    steps:
      - id: x
        run: "true"
      - id: x
        run: "false"
`,
			want: "duplicate step",
		},
		{
			name: "download without producer",
			yaml: `
name: orphan-download
jobs:
  a:
    steps:
      - uses: artifact/download
        with:
          name: wheel
`,
			want: "wheel",
		},
		{
			name: "download from non-dependency",
			yaml: `
name: sibling-download
jobs:
  a:
    steps:
      - uses: artifact/upload
        with:
          name: wheel
          path: dist/**
  b:
    steps:
      - uses: artifact/download
        with:
          name: wheel
`,
			want: "wheel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDefinition([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateArtifactFlowThroughChain(t *testing.T) {
	// A downloads from a transitive producer, not just a direct need.
	data := []byte(`
name: chain
jobs:
  build:
    steps:
      - uses: artifact/upload
        with:
          name: wheel
          path: dist/**
  test:
    needs: build
    steps:
      - run: "true"
  report:
    needs: test
    steps:
      - uses: artifact/download
        with:
          name: wheel
`)

	_, err := ParseDefinition(data)
	assert.NoError(t, err)
}

func TestValidateActions(t *testing.T) {
	data := []byte(`
name: actions
jobs:
  a:
    steps:
      - uses: checkout
      - uses: cloud/login
        with:
          credentials: ${{ secrets.AZURE_CREDENTIALS }}
`)

	p, err := ParseDefinition(data)
	require.NoError(t, err)

	err = ValidateActions(p, map[string]bool{"checkout": true})
	require.Error(t, err)
	var verr *relayerrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "cloud/login")

	err = ValidateActions(p, map[string]bool{"checkout": true, "cloud/login": true})
	assert.NoError(t, err)
}

func TestFailFastEnabled(t *testing.T) {
	f := false
	tr := true

	assert.True(t, (*Strategy)(nil).FailFastEnabled())
	assert.True(t, (&Strategy{}).FailFastEnabled())
	assert.True(t, (&Strategy{FailFast: &tr}).FailFastEnabled())
	assert.False(t, (&Strategy{FailFast: &f}).FailFastEnabled())
}
