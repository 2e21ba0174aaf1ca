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

// Package validate implements relay validate: structural and semantic
// pipeline checks without execution.
package validate

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relayci/relay/internal/action"
	"github.com/relayci/relay/internal/commands/shared"
	relayerrors "github.com/relayci/relay/pkg/errors"
	"github.com/relayci/relay/pkg/pipeline"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Validate a pipeline definition",
		Long: `Check a pipeline definition without running it: YAML structure,
job and step identifiers, needs references and DAG acyclicity, matrix
strategies, condition expression syntax, action names, and artifact
producer/consumer flow.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, path string) error {
	err := validateFile(path)

	if shared.GetJSON() {
		if err == nil {
			return shared.EmitJSON(shared.NewJSONResponse("validate", true))
		}
		jsonErr := shared.JSONError{Code: "invalid_pipeline", Message: err.Error()}
		var verr *relayerrors.ValidationError
		if errors.As(err, &verr) {
			jsonErr.Field = verr.Field
			jsonErr.Suggestion = verr.Suggestion
		}
		if emitErr := shared.EmitJSONError("validate", []shared.JSONError{jsonErr}); emitErr != nil {
			return emitErr
		}
		return shared.NewInvalidPipelineError("invalid pipeline", err)
	}

	if err != nil {
		return shared.NewInvalidPipelineError("invalid pipeline", err)
	}
	cmd.Println(shared.RenderOK(fmt.Sprintf("%s is valid", path)))
	return nil
}

// validateFile runs all definition checks, including the expression
// syntax pass ParseDefinition does not do.
func validateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := pipeline.ParseDefinition(data)
	if err != nil {
		return err
	}

	if err := pipeline.ValidateActions(p, action.DefaultRegistry().Known()); err != nil {
		return err
	}

	evaluator := pipeline.NewEvaluator()
	for _, id := range p.JobIDs() {
		job := p.Jobs[id]
		if job.If != "" {
			if err := evaluator.CheckSyntax(job.If); err != nil {
				return fmt.Errorf("job %s: %w", id, err)
			}
		}
		for _, step := range job.Steps {
			if step.If != "" {
				if err := evaluator.CheckSyntax(step.If); err != nil {
					return fmt.Errorf("job %s step %s: %w", id, step.ID, err)
				}
			}
		}
	}
	return nil
}
