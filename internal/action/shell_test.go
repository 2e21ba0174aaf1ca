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

package action

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayci/relay/pkg/pipeline"
)

func TestShellRunnerCapturesOutput(t *testing.T) {
	runner := NewShellRunner()

	result, err := runner.Run(context.Background(), pipeline.CommandSpec{
		Command: "echo out; echo err >&2",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "out", result.Stdout)
	assert.Equal(t, "err", result.Stderr)
}

func TestShellRunnerNonZeroExit(t *testing.T) {
	runner := NewShellRunner()

	result, err := runner.Run(context.Background(), pipeline.CommandSpec{
		Command: "echo failing; exit 3",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "failing", result.Stdout)
}

func TestShellRunnerEnvAndDir(t *testing.T) {
	runner := NewShellRunner()
	dir := t.TempDir()

	result, err := runner.Run(context.Background(), pipeline.CommandSpec{
		Command: "echo $GREETING; pwd",
		Dir:     dir,
		Env:     []string{"PATH=/usr/bin:/bin", "GREETING=hello"},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "hello")
	assert.Contains(t, result.Stdout, dir)
}

func TestShellRunnerContextCancel(t *testing.T) {
	runner := NewShellRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := runner.Run(ctx, pipeline.CommandSpec{Command: "sleep 10"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShellSelection(t *testing.T) {
	if runtime.GOOS == "windows" {
		assert.Equal(t, "cmd", NewShellRunner().Shell)
	} else {
		assert.Equal(t, "sh", NewShellRunner().Shell)
	}

	assert.Equal(t, []string{"sh", "-c", "echo hi"}, shellArgs("sh", "echo hi"))
	assert.Equal(t, []string{"bash", "-c", "echo hi"}, shellArgs("bash", "echo hi"))
	assert.Equal(t, []string{"cmd", "/C", "echo hi"}, shellArgs("cmd", "echo hi"))
	assert.Equal(t,
		[]string{`C:\Windows\system32\cmd.exe`, "/C", "echo hi"},
		shellArgs(`C:\Windows\system32\cmd.exe`, "echo hi"))
}

func TestTailBufferKeepsTrailingBytes(t *testing.T) {
	buf := newTailBuffer(8)
	buf.Write([]byte(strings.Repeat("a", 8)))
	buf.Write([]byte("bcde"))

	got := buf.String()
	assert.LessOrEqual(t, len(got), 8)
	assert.True(t, strings.HasSuffix(got, "bcde"))
}
