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

// Package history implements relay history: list and inspect past
// runs from the local run database.
package history

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/relayci/relay/internal/commands/shared"
	"github.com/relayci/relay/internal/config"
	"github.com/relayci/relay/internal/history"
	"github.com/relayci/relay/internal/jq"
	"github.com/relayci/relay/pkg/pipeline"
)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs",
	}
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return shared.NewRunFailedError("listing runs", err)
			}

			if shared.GetJSON() {
				type response struct {
					shared.JSONResponse
					Runs []history.Entry `json:"runs"`
				}
				return shared.EmitJSON(response{
					JSONResponse: shared.NewJSONResponse("history list", true),
					Runs:         entries,
				})
			}

			if len(entries) == 0 {
				cmd.Println("No runs recorded.")
				return nil
			}
			for _, e := range entries {
				label := e.Label
				if label != "" {
					label = " " + shared.Muted.Render("["+label+"]")
				}
				cmd.Printf("%s  %s  %-24s%s  %s\n",
					shared.StatusSymbol(pipeline.Status(e.Status)),
					shortID(e.ID),
					e.Pipeline,
					label,
					shared.Muted.Render(e.StartedAt.Format("2006-01-02 15:04:05")))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	return cmd
}

func newShowCommand() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run in full",
		Long: `Print the full record of a run. Run IDs may be abbreviated to a
unique prefix. With --query, a jq expression is evaluated against the
run document, e.g.:

  relay history show 3f2a --query '.jobs.sdk_cli_tests.cells[].status'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return shared.NewRunFailedError("loading run", err)
			}

			if query != "" {
				compiled, err := jq.Compile(query)
				if err != nil {
					return shared.NewRunFailedError("bad --query", err)
				}
				result, err := compiled.Run(cmd.Context(), run)
				if err != nil {
					return shared.NewRunFailedError("evaluating --query", err)
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(result)
			}

			if shared.GetJSON() {
				type response struct {
					shared.JSONResponse
					Run *pipeline.Run `json:"run"`
				}
				return shared.EmitJSON(response{
					JSONResponse: shared.NewJSONResponse("history show", true),
					Run:          run,
				})
			}

			printRun(cmd, run)
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "jq expression to evaluate against the run")
	return cmd
}

func printRun(cmd *cobra.Command, run *pipeline.Run) {
	cmd.Println(shared.Header.Render("Run " + run.ID))
	cmd.Printf("  pipeline: %s\n", run.Pipeline)
	if run.Label != "" {
		cmd.Printf("  label:    %s\n", run.Label)
	}
	cmd.Printf("  status:   %s\n", shared.RenderRunStatus(run.Status))
	cmd.Printf("  started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  duration: %s\n", run.Duration().Round(10_000_000))

	for _, id := range sortedJobIDs(run) {
		job := run.Jobs[id]
		cmd.Printf("\n  %s %s\n", shared.StatusSymbol(job.Status), id)
		for _, cell := range job.Cells {
			name := cell.Cell.DisplayName()
			if name == "" {
				name = "default"
			}
			cmd.Printf("      %s %s\n", shared.StatusSymbol(cell.Status), name)
			for _, step := range cell.Steps {
				detail := ""
				if step.Error != "" {
					detail = "  " + shared.StatusError.Render(step.Error)
				}
				cmd.Printf("          %s %s%s\n", shared.StatusSymbol(step.Status), step.StepID, detail)
			}
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sortedJobIDs(run *pipeline.Run) []string {
	ids := make([]string, 0, len(run.Jobs))
	for id := range run.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func openStore() (history.Store, error) {
	path, err := config.HistoryDBPath()
	if err != nil {
		return nil, shared.NewRunFailedError("locating history database", err)
	}
	store, err := history.OpenSQLite(path)
	if err != nil {
		return nil, shared.NewRunFailedError("opening history database", err)
	}
	return store, nil
}
