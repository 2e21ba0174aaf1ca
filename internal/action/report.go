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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/relayci/relay/internal/report"
	"github.com/relayci/relay/pkg/pipeline"
)

// ReportPublish aggregates JUnit XML files from the workspace into a
// single summary. Test jobs upload their result files as artifacts; a
// trailing always() job downloads them and publishes the merged report.
type ReportPublish struct{}

// Name implements pipeline.Action.
func (r *ReportPublish) Name() string { return "report/publish" }

// Execute collects files matching with["pattern"] (default
// "**/*.xml"), merges them, and writes test-summary.json to the
// workspace. Set with["strict"] to "true" to fail the step when any
// case failed.
func (r *ReportPublish) Execute(ctx context.Context, actx *pipeline.ActionContext, with map[string]string) (map[string]string, error) {
	pattern := with["pattern"]
	if pattern == "" {
		pattern = "**/*.xml"
	}

	matches, err := doublestar.Glob(os.DirFS(actx.Workspace), pattern)
	if err != nil {
		return nil, fmt.Errorf("report/publish: bad pattern %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("report/publish: no files match %q", pattern)
	}

	var suites []report.Suite
	for _, match := range matches {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		parsed, err := report.ParseFile(filepath.Join(actx.Workspace, match))
		if err != nil {
			return nil, fmt.Errorf("report/publish: %w", err)
		}
		suites = append(suites, parsed...)
	}

	summary := report.Merge(suites)

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report/publish: encoding summary: %w", err)
	}
	summaryPath := filepath.Join(actx.Workspace, "test-summary.json")
	if err := os.WriteFile(summaryPath, data, 0644); err != nil {
		return nil, fmt.Errorf("report/publish: writing summary: %w", err)
	}

	fmt.Fprint(os.Stdout, report.Render(summary))

	actx.Logger.Info("published test report",
		"files", len(matches),
		"tests", summary.Tests,
		"failures", summary.Failures,
		"errors", summary.Errors,
		"skipped", summary.Skipped)

	if with["strict"] == "true" && summary.Failed() {
		return nil, fmt.Errorf("report/publish: %d failures, %d errors", summary.Failures, summary.Errors)
	}

	return map[string]string{
		"summary":  summaryPath,
		"tests":    strconv.Itoa(summary.Tests),
		"failures": strconv.Itoa(summary.Failures),
		"errors":   strconv.Itoa(summary.Errors),
		"skipped":  strconv.Itoa(summary.Skipped),
	}, nil
}
