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
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/relayci/relay/internal/commands/shared"
	"github.com/relayci/relay/pkg/pipeline"
)

// resolveInputs builds the trigger input map: --input-file values, then
// --input flags, then declared defaults. Missing required inputs are
// prompted for when interactive, otherwise the run fails.
func resolveInputs(p *pipeline.Pipeline, opts *options) (map[string]string, error) {
	values := map[string]string{}

	if opts.inputFile != "" {
		fromFile, err := loadInputFile(opts.inputFile)
		if err != nil {
			return nil, shared.NewMissingInputError("loading input file", err)
		}
		for k, v := range fromFile {
			values[k] = v
		}
	}

	for _, raw := range opts.inputs {
		name, value, ok := strings.Cut(raw, "=")
		if !ok || name == "" {
			return nil, shared.NewMissingInputError(
				fmt.Sprintf("invalid --input %q, expected name=value", raw), nil)
		}
		values[name] = value
	}

	specs := declaredInputs(p)
	if specs == nil {
		return values, nil
	}

	// Reject inputs the pipeline does not declare; a typoed input name
	// silently ignored is worse than an error.
	for name := range values {
		if _, ok := specs[name]; !ok {
			return nil, shared.NewMissingInputError(
				fmt.Sprintf("pipeline does not declare input %q", name), nil)
		}
	}

	var missing []string
	for name, spec := range specs {
		if _, ok := values[name]; ok {
			continue
		}
		if spec.Default != nil {
			values[name] = *spec.Default
			continue
		}
		if spec.Required {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	if len(missing) > 0 {
		if !interactiveAllowed(opts.noInteractive) {
			return nil, shared.NewMissingInputNonInteractiveError(
				"missing required inputs: "+strings.Join(missing, ", "), nil)
		}
		if err := promptForInputs(specs, missing, values); err != nil {
			return nil, shared.NewMissingInputError("prompting for inputs", err)
		}
	}

	for name, value := range values {
		if err := checkInputType(specs[name], name, value); err != nil {
			return nil, shared.NewMissingInputError("invalid input", err)
		}
	}

	return values, nil
}

// declaredInputs returns the dispatch input specs, or nil when the
// pipeline declares no dispatch trigger (any inputs pass through).
func declaredInputs(p *pipeline.Pipeline) map[string]pipeline.InputSpec {
	if p.On == nil || p.On.Dispatch == nil {
		return nil
	}
	return p.On.Dispatch.Inputs
}

// interactiveAllowed reports whether prompting is acceptable: not
// explicitly disabled, not in CI, and stdin is a terminal.
func interactiveAllowed(noInteractive bool) bool {
	if noInteractive {
		return false
	}
	if os.Getenv("CI") != "" || os.Getenv("RELAY_NO_INTERACTIVE") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptForInputs collects missing input values through a form.
func promptForInputs(specs map[string]pipeline.InputSpec, missing []string, values map[string]string) error {
	fields := make([]huh.Field, 0, len(missing))
	collected := make([]*string, len(missing))

	for i, name := range missing {
		spec := specs[name]
		value := new(string)
		collected[i] = value

		input := huh.NewInput().
			Title(name).
			Value(value)
		if spec.Description != "" {
			input = input.Description(spec.Description)
		}
		if spec.Type != "" && spec.Type != "string" {
			name, spec := name, spec
			input = input.Validate(func(s string) error {
				return checkInputType(spec, name, s)
			})
		}
		fields = append(fields, input)
	}

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		return err
	}

	for i, name := range missing {
		values[name] = *collected[i]
	}
	return nil
}

// checkInputType validates a value against its declared input type.
func checkInputType(spec pipeline.InputSpec, name, value string) error {
	switch spec.Type {
	case "", "string":
		return nil
	case "boolean":
		if value != "true" && value != "false" {
			return fmt.Errorf("input %s must be true or false, got %q", name, value)
		}
	case "number":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("input %s must be a number, got %q", name, value)
		}
	}
	return nil
}

// loadInputFile reads a flat JSON object of input values. Non-string
// values are stringified.
func loadInputFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			values[k] = val
		case bool:
			values[k] = strconv.FormatBool(val)
		case float64:
			values[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("%s: input %s must be a scalar", path, k)
		}
	}
	return values, nil
}
