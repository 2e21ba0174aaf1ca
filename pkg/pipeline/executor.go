package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/relayci/relay/pkg/errors"
)

// DefaultMaxParallel is the default number of concurrently executing
// matrix cells across all jobs.
const DefaultMaxParallel = 4

// DefaultStepTimeout is the default per-step timeout.
const DefaultStepTimeout = 30 * time.Minute

// CommandSpec describes a shell command to execute.
type CommandSpec struct {
	// Command is the shell command line
	Command string

	// Dir is the working directory
	Dir string

	// Env is the full environment in KEY=VALUE form
	Env []string
}

// CommandResult is the outcome of a shell command.
type CommandResult struct {
	// ExitCode is the process exit code
	ExitCode int

	// Stdout is the trailing captured standard output
	Stdout string

	// Stderr is the trailing captured standard error
	Stderr string
}

// CommandRunner executes shell commands for run steps.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (*CommandResult, error)
}

// Action is a built-in uses step implementation.
type Action interface {
	// Name returns the action identifier (e.g., "artifact/upload")
	Name() string

	// Execute runs the action. The with map is already interpolated.
	Execute(ctx context.Context, actx *ActionContext, with map[string]string) (map[string]string, error)
}

// ActionRegistry resolves uses references to actions.
type ActionRegistry interface {
	Get(name string) (Action, error)
}

// ArtifactStore exchanges named blobs between jobs of a run.
// Artifact names are unique within a run; saving a name twice is an error.
type ArtifactStore interface {
	// Save archives the files under dir matching patterns (minus ignore
	// globs) as the named artifact. Returns the archived byte count.
	Save(ctx context.Context, name, dir string, patterns, ignore []string) (int64, error)

	// Extract unpacks the named artifact into dir.
	Extract(ctx context.Context, name, dir string) error

	// List returns the names of all stored artifacts.
	List(ctx context.Context) ([]string, error)
}

// ArtifactStoreFactory creates the artifact store for a run, rooted at
// the run's working directory.
type ArtifactStoreFactory func(runDir string) (ArtifactStore, error)

// ActionContext carries per-cell execution state into actions.
type ActionContext struct {
	// RunID identifies the current run
	RunID string

	// JobID identifies the current job
	JobID string

	// Cell holds the current matrix variables
	Cell Cell

	// Workspace is the cell's ephemeral working directory
	Workspace string

	// SourceDir is the pipeline's source tree (for checkout)
	SourceDir string

	// Env is the merged environment visible to the step
	Env map[string]string

	// Artifacts is the run's artifact store
	Artifacts ArtifactStore

	// Logger carries run/job context fields
	Logger *slog.Logger

	// ExportEnv makes a variable visible to subsequent steps in the cell
	ExportEnv func(key, value string)
}

// Executor evaluates a pipeline's job DAG. Jobs become runnable when
// all their needs have finished; runnable matrix cells fan out in
// parallel bounded by the engine-wide limit and per-job max-parallel.
type Executor struct {
	registry    ActionRegistry
	runner      CommandRunner
	artifacts   ArtifactStoreFactory
	secrets     map[string]string
	evaluator   *Evaluator
	emitter     *EventEmitter
	logger      *slog.Logger
	tracer      trace.Tracer
	maxParallel int
	stepTimeout time.Duration
	runnerLabel string
	keepWork    bool
	workRoot    string
	sourceDir   string
}

// NewExecutor creates an executor with default settings. The registry
// and runner are required; everything else has a usable default.
func NewExecutor(registry ActionRegistry, runner CommandRunner) *Executor {
	return &Executor{
		registry:    registry,
		runner:      runner,
		evaluator:   NewEvaluator(),
		emitter:     NewEventEmitter(),
		logger:      slog.Default(),
		tracer:      noop.NewTracerProvider().Tracer("relay"),
		maxParallel: DefaultMaxParallel,
		stepTimeout: DefaultStepTimeout,
	}
}

// WithLogger sets the logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// WithTracer sets the OpenTelemetry tracer for run/job/step spans.
func (e *Executor) WithTracer(tracer trace.Tracer) *Executor {
	e.tracer = tracer
	return e
}

// WithArtifactStore sets the artifact store factory.
func (e *Executor) WithArtifactStore(factory ArtifactStoreFactory) *Executor {
	e.artifacts = factory
	return e
}

// WithSecrets sets the resolved secrets visible to expressions.
func (e *Executor) WithSecrets(secrets map[string]string) *Executor {
	e.secrets = secrets
	return e
}

// WithMaxParallel limits concurrently executing cells across all jobs.
func (e *Executor) WithMaxParallel(max int) *Executor {
	if max > 0 {
		e.maxParallel = max
	}
	return e
}

// WithStepTimeout sets the default per-step timeout.
func (e *Executor) WithStepTimeout(timeout time.Duration) *Executor {
	if timeout > 0 {
		e.stepTimeout = timeout
	}
	return e
}

// WithRunnerLabel sets the runs-on label this engine satisfies.
func (e *Executor) WithRunnerLabel(label string) *Executor {
	e.runnerLabel = label
	return e
}

// WithWorkRoot sets the base directory for run workspaces.
// Defaults to a fresh temp directory per run.
func (e *Executor) WithWorkRoot(dir string) *Executor {
	e.workRoot = dir
	return e
}

// WithSourceDir sets the pipeline source tree used by checkout.
func (e *Executor) WithSourceDir(dir string) *Executor {
	e.sourceDir = dir
	return e
}

// WithKeepWorkspaces disables workspace cleanup after the run.
func (e *Executor) WithKeepWorkspaces(keep bool) *Executor {
	e.keepWork = keep
	return e
}

// Events returns the emitter so callers can attach listeners
// (progress printer, metrics, history recorder).
func (e *Executor) Events() *EventEmitter {
	return e.emitter
}

// Execute runs the pipeline to completion and returns the run record.
// The returned error covers engine failures only; test or build
// failures surface as StatusFailed in the run record.
func (e *Executor) Execute(ctx context.Context, p *Pipeline, inputs map[string]string) (*Run, error) {
	order, err := TopoSort(p.Jobs)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.NewString(),
		Pipeline:  p.Name,
		Label:     inputs["id"],
		Inputs:    inputs,
		Status:    StatusRunning,
		Jobs:      make(map[string]*JobResult, len(p.Jobs)),
		StartedAt: time.Now(),
	}

	runDir := e.workRoot
	if runDir == "" {
		runDir, err = os.MkdirTemp("", "relay-run-")
		if err != nil {
			return nil, errors.Wrap(err, "creating run directory")
		}
	} else {
		runDir = filepath.Join(runDir, run.ID)
		if err := os.MkdirAll(runDir, 0700); err != nil {
			return nil, errors.Wrap(err, "creating run directory")
		}
	}
	if !e.keepWork {
		defer os.RemoveAll(runDir)
	}

	var store ArtifactStore
	if e.artifacts != nil {
		store, err = e.artifacts(runDir)
		if err != nil {
			return nil, errors.Wrap(err, "creating artifact store")
		}
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("pipeline.name", p.Name),
		attribute.String("run.id", run.ID),
	))
	defer span.End()

	e.emitter.Emit(Event{Type: EventRunStarted, RunID: run.ID})
	logger := e.logger.With(slog.String("run_id", run.ID), slog.String("pipeline", p.Name))
	logger.Info("run started", slog.Int("jobs", len(p.Jobs)))

	// Dependency-driven scheduling: one goroutine per job, each waiting
	// on its needs' done channels. A global semaphore bounds concurrent
	// cells across jobs.
	var mu sync.Mutex
	done := make(map[string]chan struct{}, len(order))
	for _, id := range order {
		done[id] = make(chan struct{})
	}
	sem := make(chan struct{}, e.maxParallel)

	var wg sync.WaitGroup
	for _, id := range order {
		id := id
		job := p.Jobs[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[id])

			cancelled := false
			for _, need := range job.Needs {
				select {
				case <-done[need]:
				case <-ctx.Done():
					cancelled = true
				}
				if cancelled {
					break
				}
			}

			// Snapshot the needs results under the lock: the needed entries
			// exist once their done channels closed, but sibling goroutines
			// are still writing other keys of run.Jobs.
			mu.Lock()
			needResults := run.NeedResults(job.Needs)
			mu.Unlock()

			result := e.runJob(ctx, p, job, id, run, runDir, store, sem, cancelled, needResults, logger)

			mu.Lock()
			run.Jobs[id] = result
			mu.Unlock()

			e.emitter.Emit(Event{
				Type:     EventJobFinished,
				RunID:    run.ID,
				JobID:    id,
				Status:   result.Status,
				Duration: result.Duration,
			})
		}()
	}
	wg.Wait()

	run.Finalize()
	if run.Status == StatusSuccess {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, string(run.Status))
	}
	e.emitter.Emit(Event{Type: EventRunFinished, RunID: run.ID, Status: run.Status, Duration: run.Duration()})
	logger.Info("run finished",
		slog.String("status", string(run.Status)),
		slog.Int64("duration_ms", run.Duration().Milliseconds()))

	return run, nil
}

// runJob decides whether a job runs (runs-on label, needs outcomes, if
// condition) and executes its matrix cells.
func (e *Executor) runJob(ctx context.Context, p *Pipeline, job *Job, jobID string, run *Run, runDir string, store ArtifactStore, sem chan struct{}, cancelled bool, needResults map[string]NeedResult, logger *slog.Logger) *JobResult {
	result := &JobResult{JobID: jobID, StartedAt: time.Now()}
	jobLogger := logger.With(slog.String("job_id", jobID))

	depsFailed, depsSkipped := false, false
	for _, res := range needResults {
		switch Status(res.Result) {
		case StatusFailed, StatusCancelled:
			depsFailed = true
		case StatusSkipped:
			depsSkipped = true
		}
	}

	if cancelled {
		result.Status = StatusCancelled
		return result
	}

	// runs-on label check: a local engine cannot provide foreign
	// operating systems, so non-matching jobs are skipped, not failed.
	if job.RunsOn != "" && e.runnerLabel != "" && !labelMatches(job.RunsOn, e.runnerLabel) {
		jobLogger.Warn("skipping job: runs-on label not satisfied",
			slog.String("runs_on", job.RunsOn),
			slog.String("runner_label", e.runnerLabel))
		result.Status = StatusSkipped
		return result
	}

	jobEnv := mergeEnv(p.Env, job.Env)
	evalCtx := &EvalContext{
		Env:         jobEnv,
		Inputs:      run.Inputs,
		Secrets:     e.secrets,
		Needs:       needResults,
		DepsFailed:  depsFailed,
		DepsSkipped: depsSkipped,
		Cancelled:   ctx.Err() != nil,
	}

	shouldRun, err := e.evaluator.EvaluateBool(job.If, evalCtx)
	if err != nil {
		result.Status = StatusFailed
		result.Cells = []*CellResult{{JobID: jobID, Status: StatusFailed, Error: err.Error(), StartedAt: time.Now()}}
		return result
	}
	if !shouldRun {
		jobLogger.Debug("skipping job: condition not met", slog.String("if", job.If))
		result.Status = StatusSkipped
		return result
	}

	e.emitter.Emit(Event{Type: EventJobStarted, RunID: run.ID, JobID: jobID})

	var matrix *Matrix
	if job.Strategy != nil {
		matrix = job.Strategy.Matrix
	}
	cells := matrix.Expand()
	result.Cells = make([]*CellResult, len(cells))

	// fail-fast cancels sibling cells of this job only; other jobs
	// keep running.
	jobCtx := ctx
	var failFastCancel context.CancelFunc
	if job.Strategy.FailFastEnabled() {
		jobCtx, failFastCancel = context.WithCancel(ctx)
		defer failFastCancel()
	}

	g := &errgroup.Group{}
	if job.Strategy != nil && job.Strategy.MaxParallel > 0 {
		g.SetLimit(job.Strategy.MaxParallel)
	}

	for i, cell := range cells {
		i, cell := i, cell
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-jobCtx.Done():
				result.Cells[i] = &CellResult{JobID: jobID, Cell: cell, Status: StatusCancelled, StartedAt: time.Now()}
				return nil
			}

			cellResult := e.runCell(jobCtx, job, jobID, cell, jobEnv, run, runDir, store, needResults, jobLogger)
			result.Cells[i] = cellResult

			if cellResult.Status == StatusFailed && failFastCancel != nil {
				failFastCancel()
			}

			e.emitter.Emit(Event{
				Type:     EventCellFinished,
				RunID:    run.ID,
				JobID:    jobID,
				Cell:     cell.Key(),
				Status:   cellResult.Status,
				Error:    cellResult.Error,
				Duration: cellResult.Duration,
			})
			return nil
		})
	}
	_ = g.Wait()

	result.Aggregate()
	result.Duration = time.Since(result.StartedAt)
	return result
}

// runCell executes all steps of one matrix cell in an ephemeral
// workspace directory.
func (e *Executor) runCell(ctx context.Context, job *Job, jobID string, cell Cell, jobEnv map[string]string, run *Run, runDir string, store ArtifactStore, needs map[string]NeedResult, logger *slog.Logger) *CellResult {
	result := &CellResult{
		JobID:     jobID,
		Cell:      cell,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
	}()

	cellLogger := logger
	if key := cell.Key(); key != "" {
		cellLogger = logger.With(slog.String("cell", key))
	}

	workspace := filepath.Join(runDir, "workspaces", jobID, cellSlug(cell))
	if err := os.MkdirAll(workspace, 0700); err != nil {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("creating workspace: %v", err)
		return result
	}

	ctx, span := e.tracer.Start(ctx, "pipeline.job",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.cell", cell.Key()),
		))
	defer span.End()

	// Cell environment: engine < pipeline < job env, matrix variables
	// exported as MATRIX_<AXIS>. Steps layer their own env on top, and
	// actions can export variables to subsequent steps.
	cellEnv := mergeEnv(runEnvDefaults(run, jobID, cell, workspace), jobEnv)
	for axis, value := range cell {
		cellEnv["MATRIX_"+strings.ToUpper(axis)] = value
	}

	priorFailed := false
	for _, step := range job.Steps {
		stepResult := e.runStep(ctx, step, jobID, cell, run, workspace, store, cellEnv, needs, priorFailed, cellLogger)
		result.Steps = append(result.Steps, stepResult)

		e.emitter.Emit(Event{
			Type:     EventStepFinished,
			RunID:    run.ID,
			JobID:    jobID,
			Cell:     cell.Key(),
			StepID:   step.ID,
			Status:   stepResult.Status,
			Error:    stepResult.Error,
			Duration: stepResult.Duration,
		})

		if stepResult.Status == StatusFailed && !step.ContinueOnError {
			priorFailed = true
			result.Error = stepResult.Error
		}
		if stepResult.Status == StatusCancelled {
			result.Status = StatusCancelled
			return result
		}
	}

	if priorFailed {
		result.Status = StatusFailed
		span.SetStatus(codes.Error, result.Error)
	} else {
		result.Status = StatusSuccess
		span.SetStatus(codes.Ok, "")
	}
	return result
}

// runStep evaluates a step's condition and executes it.
func (e *Executor) runStep(ctx context.Context, step *Step, jobID string, cell Cell, run *Run, workspace string, store ArtifactStore, cellEnv map[string]string, needs map[string]NeedResult, priorFailed bool, logger *slog.Logger) *StepResult {
	stepResult := &StepResult{
		StepID:    step.ID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	defer func() {
		stepResult.Duration = time.Since(stepResult.StartedAt)
	}()

	// Step-level status functions see this cell only: success() means no
	// earlier step in the cell failed, regardless of upstream jobs. Needs
	// results stay visible for interpolation.
	stepEnv := mergeEnv(cellEnv, step.Env)
	evalCtx := &EvalContext{
		Env:         stepEnv,
		Inputs:      run.Inputs,
		Matrix:      cell,
		Secrets:     e.secrets,
		Needs:       needs,
		PriorFailed: priorFailed,
		Cancelled:   ctx.Err() != nil,
	}

	shouldRun, err := e.evaluator.EvaluateBool(step.If, evalCtx)
	if err != nil {
		stepResult.Status = StatusFailed
		stepResult.Error = err.Error()
		return stepResult
	}
	if !shouldRun {
		// A cell cancelled mid-run marks its remaining default-condition
		// steps cancelled rather than skipped; always()/cancelled() steps
		// still execute.
		if ctx.Err() != nil {
			stepResult.Status = StatusCancelled
		} else {
			stepResult.Status = StatusSkipped
		}
		return stepResult
	}

	// Interpolate env values, then the command or action parameters,
	// against the interpolated environment.
	renderedEnv, err := e.evaluator.InterpolateMap(stepEnv, evalCtx)
	if err != nil {
		stepResult.Status = StatusFailed
		stepResult.Error = err.Error()
		return stepResult
	}
	evalCtx.Env = renderedEnv

	timeout := e.stepTimeout
	if step.Timeout > 0 {
		timeout = time.Duration(step.Timeout) * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stepCtx, span := e.tracer.Start(stepCtx, "pipeline.step",
		trace.WithAttributes(attribute.String("step.id", step.ID)))
	defer span.End()

	var execErr error
	if step.Run != "" {
		execErr = e.execRunStep(stepCtx, step, evalCtx, workspace, renderedEnv, stepResult, logger)
	} else {
		execErr = e.execUsesStep(stepCtx, step, evalCtx, jobID, cell, run, workspace, store, renderedEnv, cellEnv, stepResult, logger)
	}

	if execErr != nil {
		stepResult.Status = StatusFailed
		stepResult.Error = execErr.Error()
		switch {
		case stepCtx.Err() == context.DeadlineExceeded:
			stepResult.Error = fmt.Sprintf("step timed out after %s", timeout)
		case ctx.Err() != nil:
			// Interrupted by run cancellation or a fail-fast sibling,
			// not a failure of the step itself.
			stepResult.Status = StatusCancelled
		}
		span.SetStatus(codes.Error, stepResult.Error)
		return stepResult
	}

	stepResult.Status = StatusSuccess
	span.SetStatus(codes.Ok, "")
	return stepResult
}

// execRunStep executes a shell command step.
func (e *Executor) execRunStep(ctx context.Context, step *Step, evalCtx *EvalContext, workspace string, env map[string]string, stepResult *StepResult, logger *slog.Logger) error {
	command, err := e.evaluator.Interpolate(step.Run, evalCtx)
	if err != nil {
		return err
	}

	dir := workspace
	if step.WorkingDirectory != "" {
		dir = filepath.Join(workspace, step.WorkingDirectory)
	}

	logger.Debug("running command", slog.String("step_id", step.ID))

	result, err := e.runner.Run(ctx, CommandSpec{
		Command: command,
		Dir:     dir,
		Env:     flattenEnv(env),
	})
	if result != nil {
		stepResult.ExitCode = result.ExitCode
		stepResult.Output = map[string]string{}
		if result.Stdout != "" {
			stepResult.Output["stdout"] = result.Stdout
		}
		if result.Stderr != "" {
			stepResult.Output["stderr"] = result.Stderr
		}
	}
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &errors.ExecError{Step: step.ID, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	return nil
}

// execUsesStep executes a built-in action step.
func (e *Executor) execUsesStep(ctx context.Context, step *Step, evalCtx *EvalContext, jobID string, cell Cell, run *Run, workspace string, store ArtifactStore, env, cellEnv map[string]string, stepResult *StepResult, logger *slog.Logger) error {
	if e.registry == nil {
		return fmt.Errorf("no action registry configured")
	}

	action, err := e.registry.Get(step.Uses)
	if err != nil {
		return err
	}

	with, err := e.evaluator.InterpolateMap(step.With, evalCtx)
	if err != nil {
		return err
	}

	actx := &ActionContext{
		RunID:     run.ID,
		JobID:     jobID,
		Cell:      cell,
		Workspace: workspace,
		SourceDir: e.sourceDir,
		Env:       env,
		Artifacts: store,
		Logger:    logger.With(slog.String("step_id", step.ID)),
		ExportEnv: func(key, value string) {
			cellEnv[key] = value
		},
	}

	outputs, err := action.Execute(ctx, actx, with)
	if err != nil {
		return err
	}
	stepResult.Output = outputs
	return nil
}

// runEnvDefaults builds the engine-provided environment for a cell.
func runEnvDefaults(run *Run, jobID string, cell Cell, workspace string) map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	env["RELAY_RUN_ID"] = run.ID
	env["RELAY_JOB_ID"] = jobID
	env["RELAY_WORKSPACE"] = workspace
	if key := cell.Key(); key != "" {
		env["RELAY_CELL"] = key
	}
	return env
}

// mergeEnv layers overlay over base, returning a new map.
func mergeEnv(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// flattenEnv renders an environment map in KEY=VALUE form.
func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// labelMatches reports whether the engine's runner label satisfies a
// job's runs-on requirement.
func labelMatches(runsOn, label string) bool {
	return strings.EqualFold(runsOn, label)
}

var slugPattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// cellSlug renders a cell key as a filesystem-safe directory name.
func cellSlug(cell Cell) string {
	key := cell.Key()
	if key == "" {
		return "default"
	}
	return slugPattern.ReplaceAllString(key, "-")
}
