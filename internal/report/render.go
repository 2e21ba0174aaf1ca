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

package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// Render formats a summary for terminal output.
func Render(s *Summary) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Test Results"))
	b.WriteString("\n")

	for _, suite := range s.Suites {
		marker := passStyle.Render("✓")
		if suite.Failures > 0 || suite.Errors > 0 {
			marker = failStyle.Render("✗")
		} else if suite.Tests == suite.Skipped && suite.Tests > 0 {
			marker = skipStyle.Render("-")
		}
		b.WriteString(fmt.Sprintf("  %s %-40s %4d tests, %d failed, %d errors, %d skipped (%.1fs)\n",
			marker, suite.Name, suite.Tests, suite.Failures, suite.Errors, suite.Skipped, suite.Time))
	}

	b.WriteString("\n")
	totals := fmt.Sprintf("%d tests: %d passed, %d failed, %d errors, %d skipped in %.1fs",
		s.Tests, s.Passed, s.Failures, s.Errors, s.Skipped, s.Time)
	if s.Failed() {
		b.WriteString(failStyle.Render(totals))
	} else {
		b.WriteString(passStyle.Render(totals))
	}
	b.WriteString("\n")

	if failed := s.FailedCases(); len(failed) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Failures"))
		b.WriteString("\n")
		for _, c := range failed {
			name := c.Name
			if c.ClassName != "" {
				name = c.ClassName + "::" + c.Name
			}
			b.WriteString("  " + failStyle.Render("✗") + " " + name + "\n")
			if c.Message != "" {
				b.WriteString(skipStyle.Render(indent(firstLines(c.Message, 4), "      ")))
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
