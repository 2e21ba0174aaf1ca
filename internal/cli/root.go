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

// Package cli wires the relay command tree.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/relayci/relay/internal/commands/history"
	"github.com/relayci/relay/internal/commands/plan"
	"github.com/relayci/relay/internal/commands/run"
	"github.com/relayci/relay/internal/commands/secrets"
	"github.com/relayci/relay/internal/commands/shared"
	"github.com/relayci/relay/internal/commands/validate"
	"github.com/relayci/relay/internal/commands/version"
)

// NewRootCommand creates the relay root command with all subcommands
// and global flags attached.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Run CI pipelines locally",
		Long: `Relay executes CI pipeline definitions on your machine: a DAG of
jobs, matrix fan-out, conditional steps, artifacts between jobs, and
test report publishing, without waiting on a hosted runner.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if shared.GetVerbose() {
				os.Setenv("RELAY_LOG_LEVEL", "debug")
			}
		},
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress progress output")
	root.PersistentFlags().BoolVar(json, "json", false, "Emit machine-readable JSON output")
	root.PersistentFlags().StringVar(config, "config", "", "Path to the relay config file")

	root.AddCommand(run.NewRunCommand())
	root.AddCommand(validate.NewValidateCommand())
	root.AddCommand(plan.NewPlanCommand())
	root.AddCommand(history.NewHistoryCommand())
	root.AddCommand(secrets.NewSecretsCommand())
	root.AddCommand(version.NewVersionCommand())

	return root
}

// Execute runs the root command with a context cancelled on SIGINT and
// SIGTERM, so an interrupted run cancels in-flight jobs cleanly.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// SetVersion records the build information for the version command.
func SetVersion(v, commit, buildDate string) {
	shared.SetVersion(v, commit, buildDate)
}

// HandleExitError prints err and exits with its mapped exit code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
