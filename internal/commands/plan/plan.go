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

// Package plan implements relay plan: show the execution waves a
// pipeline would run, with matrix expansion counts, without executing
// anything.
package plan

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relayci/relay/internal/commands/shared"
	"github.com/relayci/relay/pkg/pipeline"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <pipeline.yaml>",
		Short: "Show the execution plan for a pipeline",
		Long: `Print the jobs a pipeline would run, grouped into dependency
waves, with per-job matrix expansion. Nothing is executed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args[0])
		},
	}
}

// jobPlan is one job in the JSON plan output.
type jobPlan struct {
	ID    string   `json:"id"`
	Needs []string `json:"needs,omitempty"`
	Cells []string `json:"cells"`
}

func runPlan(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return shared.NewInvalidPipelineError("reading pipeline", err)
	}
	p, err := pipeline.ParseDefinition(data)
	if err != nil {
		return shared.NewInvalidPipelineError("invalid pipeline", err)
	}

	layers, err := pipeline.Layers(p.Jobs)
	if err != nil {
		return shared.NewInvalidPipelineError("invalid pipeline", err)
	}

	if shared.GetJSON() {
		type response struct {
			shared.JSONResponse
			Pipeline string      `json:"pipeline"`
			Waves    [][]jobPlan `json:"waves"`
		}
		resp := response{
			JSONResponse: shared.NewJSONResponse("plan", true),
			Pipeline:     p.Name,
		}
		for _, layer := range layers {
			wave := make([]jobPlan, 0, len(layer))
			for _, id := range layer {
				wave = append(wave, jobPlan{
					ID:    id,
					Needs: []string(p.Jobs[id].Needs),
					Cells: cellKeys(p.Jobs[id]),
				})
			}
			resp.Waves = append(resp.Waves, wave)
		}
		return shared.EmitJSON(resp)
	}

	cmd.Print(Render(p, layers))
	return nil
}

// Render formats an execution plan for terminal output. Shared with
// relay run --dry-run.
func Render(p *pipeline.Pipeline, layers [][]string) string {
	var b strings.Builder
	b.WriteString(shared.Header.Render("Plan: "+p.Name) + "\n")

	totalCells := 0
	for i, layer := range layers {
		b.WriteString(fmt.Sprintf("\n%s\n", shared.Bold.Render(fmt.Sprintf("Wave %d", i+1))))
		for _, id := range layer {
			job := p.Jobs[id]
			cells := jobCells(job)
			totalCells += len(cells)

			line := "  " + id
			if len(job.Needs) > 0 {
				line += shared.Muted.Render("  needs: " + strings.Join([]string(job.Needs), ", "))
			}
			b.WriteString(line + "\n")

			if len(cells) > 1 || (len(cells) == 1 && len(cells[0]) > 0) {
				for _, cell := range cells {
					b.WriteString(shared.Muted.Render("      "+cell.DisplayName()) + "\n")
				}
			}
		}
	}

	b.WriteString(fmt.Sprintf("\n%d jobs, %d cells\n", len(p.Jobs), totalCells))
	return b.String()
}

func jobCells(job *pipeline.Job) []pipeline.Cell {
	if job.Strategy != nil {
		return job.Strategy.Matrix.Expand()
	}
	return (*pipeline.Matrix)(nil).Expand()
}

func cellKeys(job *pipeline.Job) []string {
	cells := jobCells(job)
	keys := make([]string, 0, len(cells))
	for _, cell := range cells {
		keys = append(keys, cell.Key())
	}
	return keys
}
