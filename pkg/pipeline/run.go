package pipeline

import (
	"time"
)

// Status represents the execution status of a run, job, cell, or step.
type Status string

const (
	// StatusPending indicates execution has not started yet.
	StatusPending Status = "pending"
	// StatusRunning indicates execution is in progress.
	StatusRunning Status = "running"
	// StatusSuccess indicates execution completed successfully.
	StatusSuccess Status = "success"
	// StatusFailed indicates execution failed.
	StatusFailed Status = "failed"
	// StatusSkipped indicates execution was skipped by a condition,
	// a failed dependency, or an unsatisfiable runs-on label.
	StatusSkipped Status = "skipped"
	// StatusCancelled indicates execution was cancelled.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// StepResult is the outcome of a single step within a cell.
type StepResult struct {
	// StepID is the ID of the executed step
	StepID string `json:"step_id"`

	// Status is the final step status
	Status Status `json:"status"`

	// ExitCode is the process exit code for run steps (0 otherwise)
	ExitCode int `json:"exit_code,omitempty"`

	// Output holds action outputs or trailing command output
	Output map[string]string `json:"output,omitempty"`

	// Error is the failure message, if any
	Error string `json:"error,omitempty"`

	// StartedAt is when step execution began
	StartedAt time.Time `json:"started_at"`

	// Duration is the time taken to execute the step
	Duration time.Duration `json:"duration"`
}

// CellResult is the outcome of one matrix cell of a job.
type CellResult struct {
	// JobID is the owning job
	JobID string `json:"job_id"`

	// Cell holds the matrix variables of this cell (empty without a matrix)
	Cell Cell `json:"cell,omitempty"`

	// Status is the final cell status
	Status Status `json:"status"`

	// Steps holds per-step results in execution order
	Steps []*StepResult `json:"steps,omitempty"`

	// Error is the failure message, if any
	Error string `json:"error,omitempty"`

	// StartedAt is when cell execution began
	StartedAt time.Time `json:"started_at"`

	// Duration is the time taken to execute the cell
	Duration time.Duration `json:"duration"`
}

// JobResult aggregates the outcomes of a job's cells.
type JobResult struct {
	// JobID is the job identifier
	JobID string `json:"job_id"`

	// Status is the aggregate status: failed if any cell failed,
	// cancelled if any cell was cancelled, otherwise success (a fully
	// skipped job is skipped)
	Status Status `json:"status"`

	// Cells holds per-cell results in expansion order
	Cells []*CellResult `json:"cells,omitempty"`

	// StartedAt is when the first cell started
	StartedAt time.Time `json:"started_at"`

	// Duration covers first cell start to last cell finish
	Duration time.Duration `json:"duration"`
}

// Aggregate computes the job status from its cell statuses.
func (j *JobResult) Aggregate() {
	if len(j.Cells) == 0 {
		j.Status = StatusSkipped
		return
	}
	status := StatusSuccess
	allSkipped := true
	for _, cell := range j.Cells {
		if cell.Status != StatusSkipped {
			allSkipped = false
		}
		switch cell.Status {
		case StatusFailed:
			status = StatusFailed
		case StatusCancelled:
			if status != StatusFailed {
				status = StatusCancelled
			}
		}
	}
	if allSkipped {
		status = StatusSkipped
	}
	j.Status = status
}

// Run is the record of one pipeline execution.
type Run struct {
	// ID uniquely identifies the run
	ID string `json:"id"`

	// Pipeline is the pipeline name
	Pipeline string `json:"pipeline"`

	// Label is the optional free-text run identifier from the trigger
	// (the dispatch "id" input, when declared)
	Label string `json:"label,omitempty"`

	// Inputs holds the trigger input values used
	Inputs map[string]string `json:"inputs,omitempty"`

	// Status is the final run status
	Status Status `json:"status"`

	// Jobs holds per-job results keyed by job ID
	Jobs map[string]*JobResult `json:"jobs"`

	// StartedAt is when the run began
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the total run duration.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Finalize computes the run status from job results: failed if any job
// failed, cancelled if any was cancelled (and none failed), success
// otherwise.
func (r *Run) Finalize() {
	status := StatusSuccess
	for _, job := range r.Jobs {
		switch job.Status {
		case StatusFailed:
			status = StatusFailed
		case StatusCancelled:
			if status != StatusFailed {
				status = StatusCancelled
			}
		}
	}
	r.Status = status
	r.FinishedAt = time.Now()
}

// NeedResults projects job results into the needs context visible to
// condition expressions.
func (r *Run) NeedResults(needs []string) map[string]NeedResult {
	out := make(map[string]NeedResult, len(needs))
	for _, id := range needs {
		if job, ok := r.Jobs[id]; ok {
			out[id] = NeedResult{Result: string(job.Status)}
		}
	}
	return out
}
