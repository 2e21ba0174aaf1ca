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

package tracing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabledWithoutPath(t *testing.T) {
	t.Setenv(EnvTracingPath, "")

	provider, err := Setup("", "test")
	require.NoError(t, err)

	// The no-op provider still hands out usable tracers.
	tracer := provider.Tracer("relay")
	_, span := tracer.Start(context.Background(), "noop")
	span.End()

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestSetupWritesSpansToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl")

	provider, err := Setup(path, "test")
	require.NoError(t, err)

	_, span := provider.Tracer("relay").Start(context.Background(), "pipeline.run")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "pipeline.run"))
}

func TestSetupEnvFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env-trace.jsonl")
	t.Setenv(EnvTracingPath, path)

	provider, err := Setup("", "test")
	require.NoError(t, err)

	_, span := provider.Tracer("relay").Start(context.Background(), "job.build")
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestSetupBadPath(t *testing.T) {
	_, err := Setup(filepath.Join(t.TempDir(), "missing", "trace.jsonl"), "test")
	assert.Error(t, err)
}
