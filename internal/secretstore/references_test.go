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

package secretstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayci/relay/pkg/pipeline"
)

const referencingPipeline = `
name: ci
env:
  TOKEN: ${{ secrets.GLOBAL_TOKEN }}
jobs:
  test:
    if: secrets.GATE != ''
    env:
      API_KEY: ${{ secrets.API_KEY }}
    steps:
      - run: deploy --cred "${{ secrets.AZURE_CREDENTIALS }}"
      - uses: cloud/login
        with:
          credentials: ${{ secrets.AZURE_CREDENTIALS }}
        env:
          EXTRA: ${{ secrets.STEP_SECRET }}
`

func TestReferencesFindsAllLocations(t *testing.T) {
	p, err := pipeline.ParseDefinition([]byte(referencingPipeline))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"API_KEY",
		"AZURE_CREDENTIALS",
		"GATE",
		"GLOBAL_TOKEN",
		"STEP_SECRET",
	}, References(p))
}

func TestReferencesNone(t *testing.T) {
	p, err := pipeline.ParseDefinition([]byte(`
name: plain
jobs:
  build:
    steps:
      - run: make build
`))
	require.NoError(t, err)
	assert.Empty(t, References(p))
}
