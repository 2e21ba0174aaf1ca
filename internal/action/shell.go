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
	"os/exec"
	"runtime"
	"strings"

	"github.com/relayci/relay/pkg/pipeline"
)

// DefaultMaxOutput bounds the captured trailing output per stream.
const DefaultMaxOutput = 16 * 1024

// ShellRunner executes run steps through the system shell.
type ShellRunner struct {
	// Shell is the shell binary (default "sh", "cmd" on Windows)
	Shell string

	// MaxOutput bounds the trailing stdout/stderr bytes kept per step
	MaxOutput int
}

// NewShellRunner creates a runner using the platform shell.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{Shell: defaultShell(), MaxOutput: DefaultMaxOutput}
}

func defaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd"
	}
	return "sh"
}

// shellArgs builds the argv that runs command through shell: cmd gets
// /C, everything else the POSIX -c.
func shellArgs(shell, command string) []string {
	if isCmdShell(shell) {
		return []string{shell, "/C", command}
	}
	return []string{shell, "-c", command}
}

func isCmdShell(shell string) bool {
	base := shell
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(strings.ToLower(base), ".exe") == "cmd"
}

// Run executes the command and captures its trailing output. A non-zero
// exit code is reported through the result, not the error; the error
// covers spawn failures and context cancellation.
func (r *ShellRunner) Run(ctx context.Context, spec pipeline.CommandSpec) (*pipeline.CommandResult, error) {
	shell := r.Shell
	if shell == "" {
		shell = defaultShell()
	}
	max := r.MaxOutput
	if max <= 0 {
		max = DefaultMaxOutput
	}

	argv := shellArgs(shell, spec.Command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	stdout := newTailBuffer(max)
	stderr := newTailBuffer(max)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	result := &pipeline.CommandResult{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, err
	}

	return result, nil
}

// tailBuffer keeps the trailing max bytes written to it. Long test runs
// produce megabytes of output; only the tail is useful in results.
type tailBuffer struct {
	max  int
	data []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if len(b.data) > b.max {
		b.data = b.data[len(b.data)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.data)
}
