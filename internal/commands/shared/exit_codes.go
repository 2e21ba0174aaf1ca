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
	"errors"
	"fmt"
	"os"

	relayerrors "github.com/relayci/relay/pkg/errors"
)

// Exit codes for relay commands.
const (
	ExitSuccess                    = 0
	ExitRunFailed                  = 1
	ExitInvalidPipeline            = 2
	ExitMissingInput               = 3
	ExitSecretError                = 4
	ExitMissingInputNonInteractive = 70 // EX_SOFTWARE from sysexits.h
)

// ExitError carries an exit code through the command layer.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewRunFailedError creates an error for pipeline execution failures.
func NewRunFailedError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitRunFailed, Message: msg, Cause: cause}
}

// NewInvalidPipelineError creates an error for invalid definitions.
func NewInvalidPipelineError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidPipeline, Message: msg, Cause: cause}
}

// NewMissingInputError creates an error for missing required inputs.
func NewMissingInputError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitMissingInput, Message: msg, Cause: cause}
}

// NewSecretError creates an error for secret resolution failures.
func NewSecretError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitSecretError, Message: msg, Cause: cause}
}

// NewMissingInputNonInteractiveError creates an error for required
// inputs that cannot be prompted for.
func NewMissingInputNonInteractiveError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitMissingInputNonInteractive, Message: msg, Cause: cause}
}

// HandleExitError prints the error and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())
	printSuggestion(err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(ExitRunFailed)
}

// printSuggestion surfaces the fix hint a validation error carries.
func printSuggestion(err error) {
	var verr *relayerrors.ValidationError
	if errors.As(err, &verr) && verr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", verr.Suggestion)
	}
}
