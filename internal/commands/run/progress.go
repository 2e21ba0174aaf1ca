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

package run

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relayci/relay/internal/commands/shared"
	"github.com/relayci/relay/internal/log"
	"github.com/relayci/relay/pkg/pipeline"
)

// attachProgress prints per-job progress lines as execution events
// arrive. Secret values are masked before anything reaches the
// terminal.
func attachProgress(emitter *pipeline.EventEmitter, secrets map[string]string) {
	emitter.On(func(ev pipeline.Event) {
		switch ev.Type {
		case pipeline.EventJobStarted:
			fmt.Printf("%s %s\n", shared.StatusInfo.Render("▸"), ev.JobID)
		case pipeline.EventCellFinished:
			label := ev.JobID
			if ev.Cell != "" {
				label += " " + shared.Muted.Render("("+ev.Cell+")")
			}
			line := fmt.Sprintf("%s %s %s", shared.StatusSymbol(ev.Status), label,
				shared.Muted.Render(ev.Duration.Round(timeRounding).String()))
			if ev.Error != "" && ev.Status == pipeline.StatusFailed {
				line += "\n    " + shared.StatusError.Render(mask(ev.Error, secrets))
			}
			fmt.Println(line)
		case pipeline.EventJobFinished:
			if ev.Status == pipeline.StatusSkipped {
				fmt.Printf("%s %s %s\n", shared.StatusSymbol(ev.Status), ev.JobID,
					shared.Muted.Render("skipped"))
			}
		}
	})
}

const timeRounding = 10_000_000 // 10ms

// printSummary renders the final per-job result table.
func printSummary(run *pipeline.Run) {
	fmt.Println()
	fmt.Println(shared.Header.Render("Run " + run.ID))

	ids := make([]string, 0, len(run.Jobs))
	for id := range run.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		job := run.Jobs[id]
		line := fmt.Sprintf("  %s %-24s %s", shared.StatusSymbol(job.Status), id,
			shared.RenderRunStatus(job.Status))
		if len(job.Cells) > 1 {
			line += shared.Muted.Render(fmt.Sprintf("  %d cells", len(job.Cells)))
		}
		fmt.Println(line)
	}

	fmt.Printf("\n%s in %s\n", shared.RenderRunStatus(run.Status),
		run.Duration().Round(timeRounding))
}

// mask replaces secret values with *** in s.
func mask(s string, secrets map[string]string) string {
	for _, value := range secrets {
		if value != "" {
			s = strings.ReplaceAll(s, value, log.SanitizeSecret(value))
		}
	}
	return s
}
