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

package shared

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/relayci/relay/pkg/pipeline"
)

// CLI style colors using lipgloss
var (
	// StatusOK styles success indicators
	StatusOK = lipgloss.NewStyle().Foreground(lipgloss.Color("42")) // green

	// StatusWarn styles warning indicators
	StatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange

	// StatusError styles error indicators
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red

	// StatusInfo styles informational text
	StatusInfo = lipgloss.NewStyle().Foreground(lipgloss.Color("39")) // blue

	// Muted styles secondary text
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Bold styles emphasized text
	Bold = lipgloss.NewStyle().Bold(true)

	// Header styles section headers
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// Symbols for status indicators
const (
	SymbolOK      = "✓"
	SymbolWarn    = "⚠"
	SymbolError   = "✗"
	SymbolInfo    = "•"
	SymbolSkipped = "-"
)

// RenderOK renders a success message with a green checkmark.
func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

// RenderWarn renders a warning message.
func RenderWarn(msg string) string {
	return StatusWarn.Render(SymbolWarn) + " " + msg
}

// RenderError renders an error message with a red X.
func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// RenderRunStatus renders an execution status in its color.
func RenderRunStatus(status pipeline.Status) string {
	switch status {
	case pipeline.StatusSuccess:
		return StatusOK.Render(string(status))
	case pipeline.StatusFailed:
		return StatusError.Render(string(status))
	case pipeline.StatusCancelled:
		return StatusWarn.Render(string(status))
	case pipeline.StatusSkipped:
		return Muted.Render(string(status))
	default:
		return string(status)
	}
}

// StatusSymbol returns the symbol for an execution status.
func StatusSymbol(status pipeline.Status) string {
	switch status {
	case pipeline.StatusSuccess:
		return StatusOK.Render(SymbolOK)
	case pipeline.StatusFailed:
		return StatusError.Render(SymbolError)
	case pipeline.StatusCancelled:
		return StatusWarn.Render(SymbolWarn)
	case pipeline.StatusSkipped:
		return Muted.Render(SymbolSkipped)
	default:
		return SymbolInfo
	}
}
