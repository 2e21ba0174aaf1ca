package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "with field",
			err:  &ValidationError{Field: "needs", Message: "unknown job: deploy"},
			want: "validation failed on needs: unknown job: deploy",
		},
		{
			name: "without field",
			err:  &ValidationError{Message: "pipeline must have at least one job"},
			want: "validation failed: pipeline must have at least one job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotFoundError_Error(t *testing.T) {
	err := &NotFoundError{Resource: "artifact", ID: "wheel"}
	if got := err.Error(); got != "artifact not found: wheel" {
		t.Errorf("Error() = %q", got)
	}
}

func TestExecError_Error(t *testing.T) {
	err := &ExecError{Step: "run_tests", ExitCode: 2, Stderr: "assertion failed"}
	if got := err.Error(); !strings.Contains(got, "exit code 2") || !strings.Contains(got, "assertion failed") {
		t.Errorf("Error() = %q", got)
	}
}

func TestExecError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ExecError{Step: "build", ExitCode: 1, Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find cause through Unwrap")
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	cause := errors.New("no such file")
	err := &ConfigError{Key: "config", Reason: "cannot read file", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find cause through Unwrap")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	cause := errors.New("boom")
	wrapped := Wrap(cause, "doing work")
	if wrapped.Error() != "doing work: boom" {
		t.Errorf("Wrap() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("wrapped error should match cause")
	}
}

func TestWrapf(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrapf(cause, "loading %s", "pipeline.yaml")
	if wrapped.Error() != "loading pipeline.yaml: boom" {
		t.Errorf("Wrapf() = %q", wrapped.Error())
	}
}
