// Package pipeline provides CI pipeline orchestration primitives.
//
// Pipeline definitions follow a declarative YAML format: a set of named jobs
// forming a dependency DAG via needs, optional matrix strategies that fan a
// job out into parallel cells, and steps that either run shell commands or
// invoke built-in actions (artifact exchange, cloud login, report publishing).
// The executor evaluates the DAG locally, one ephemeral workspace per cell.
package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relayci/relay/pkg/errors"
)

// Pipeline represents a YAML-based pipeline definition.
// It declares the trigger surface, shared environment, and the job DAG
// that the executor evaluates.
type Pipeline struct {
	// Name is the pipeline identifier
	Name string `yaml:"name" json:"name"`

	// On declares how this pipeline can be invoked
	On *TriggerConfig `yaml:"on,omitempty" json:"on,omitempty"`

	// Env is the pipeline-level environment, inherited by every job
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Jobs are the units of work, keyed by job ID
	Jobs map[string]*Job `yaml:"jobs" json:"jobs"`
}

// TriggerConfig declares the invocation surface of a pipeline.
type TriggerConfig struct {
	// Dispatch enables manual invocation with optional typed inputs
	Dispatch *DispatchTrigger `yaml:"dispatch,omitempty" json:"dispatch,omitempty"`

	// Call enables invocation from another pipeline or programmatically
	Call *CallTrigger `yaml:"call,omitempty" json:"call,omitempty"`
}

// DispatchTrigger describes manual invocation inputs.
type DispatchTrigger struct {
	// Inputs declares the accepted input parameters, keyed by name
	Inputs map[string]InputSpec `yaml:"inputs,omitempty" json:"inputs,omitempty"`
}

// CallTrigger describes invocation from another pipeline.
// Inputs are shared with the dispatch surface.
type CallTrigger struct {
	Inputs map[string]InputSpec `yaml:"inputs,omitempty" json:"inputs,omitempty"`
}

// InputSpec describes a single trigger input parameter.
type InputSpec struct {
	// Type is the input data type (string, boolean, number)
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Description explains what this input is for
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Default provides a fallback value; inputs without a default and
	// with required true must be supplied at dispatch time
	Default *string `yaml:"default,omitempty" json:"default,omitempty"`

	// Required marks the input as mandatory
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`
}

// Job is an isolated unit of work in a pipeline. Jobs with a matrix
// strategy fan out into one cell per matrix combination; cells of the
// same job share the job definition but nothing else.
type Job struct {
	// Name is a human-readable job name (optional, defaults to the job ID)
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// RunsOn is the runner label this job requires (e.g., "linux").
	// Jobs whose label the engine cannot satisfy are skipped with a warning.
	RunsOn string `yaml:"runs-on,omitempty" json:"runs-on,omitempty"`

	// Needs lists job IDs that must finish before this job starts.
	// Accepts a single string or a list in YAML.
	Needs StringList `yaml:"needs,omitempty" json:"needs,omitempty"`

	// If is a condition expression controlling whether the job runs.
	// Defaults to success(): run only when all needs succeeded.
	If string `yaml:"if,omitempty" json:"if,omitempty"`

	// Env is the job-level environment, merged over the pipeline env
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Strategy configures matrix fan-out and failure isolation
	Strategy *Strategy `yaml:"strategy,omitempty" json:"strategy,omitempty"`

	// Steps are executed sequentially within each cell
	Steps []*Step `yaml:"steps" json:"steps"`
}

// Strategy configures matrix fan-out for a job.
type Strategy struct {
	// FailFast cancels sibling cells of the same job on the first cell
	// failure. Defaults to true; test matrices typically set false so
	// independent cells finish despite one cell's failure.
	FailFast *bool `yaml:"fail-fast,omitempty" json:"fail-fast,omitempty"`

	// MaxParallel limits concurrently running cells of this job.
	// Zero means the engine-wide limit applies alone.
	MaxParallel int `yaml:"max-parallel,omitempty" json:"max-parallel,omitempty"`

	// Matrix declares the axes whose cross-product forms the cells
	Matrix *Matrix `yaml:"matrix,omitempty" json:"matrix,omitempty"`
}

// FailFastEnabled reports the effective fail-fast setting.
func (s *Strategy) FailFastEnabled() bool {
	if s == nil || s.FailFast == nil {
		return true
	}
	return *s.FailFast
}

// Step is a single entry in a job's step list. Exactly one of Run or
// Uses must be set: Run executes a shell command, Uses invokes a
// registered built-in action.
type Step struct {
	// ID is the step identifier, unique within the job (auto-generated
	// from the action or command when omitted)
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// Name is a human-readable step name (optional)
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// If is a condition expression controlling whether the step runs.
	// Defaults to success(): run only when no earlier step failed.
	If string `yaml:"if,omitempty" json:"if,omitempty"`

	// Run is a shell command to execute
	Run string `yaml:"run,omitempty" json:"run,omitempty"`

	// Uses names a built-in action (e.g., "artifact/upload")
	Uses string `yaml:"uses,omitempty" json:"uses,omitempty"`

	// With supplies the action's parameters
	With map[string]string `yaml:"with,omitempty" json:"with,omitempty"`

	// Env is the step-level environment, merged over the job env
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// WorkingDirectory runs the command in a subdirectory of the workspace
	WorkingDirectory string `yaml:"working-directory,omitempty" json:"working-directory,omitempty"`

	// ContinueOnError records a failure without failing the cell
	ContinueOnError bool `yaml:"continue-on-error,omitempty" json:"continue-on-error,omitempty"`

	// Timeout is the maximum execution time for this step in seconds
	// (zero means the engine default applies)
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// hasExplicitID tracks whether the ID was set in YAML, so
	// auto-generation can skip it
	hasExplicitID bool
}

// StringList accepts either a single YAML string or a sequence of strings.
// Used for needs, artifact path lists, and similar fields.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*l = StringList(items)
		return nil
	default:
		return fmt.Errorf("expected string or list of strings, got %s", value.Tag)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler for Step so that explicit
// IDs can be distinguished from auto-generated ones.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	type plainStep Step
	if err := value.Decode((*plainStep)(s)); err != nil {
		return err
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "id" {
			s.hasExplicitID = true
			break
		}
	}
	return nil
}

// ParseDefinition parses a pipeline definition from YAML bytes.
func ParseDefinition(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline definition: %w", err)
	}

	p.applyDefaults()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline definition: %w", err)
	}

	return &p, nil
}

// applyDefaults fills derived fields: step IDs and job display names.
func (p *Pipeline) applyDefaults() {
	for id, job := range p.Jobs {
		if job == nil {
			continue
		}
		if job.Name == "" {
			job.Name = id
		}
		autoGenerateStepIDs(job.Steps)
	}
}

// autoGenerateStepIDs generates IDs for steps without explicit IDs.
// Two passes: collect explicit IDs first, then assign counters per base
// name, skipping numbers that would collide.
//
// Auto-ID format: {base}_{N} where base is the slashless action name
// ("artifact_upload") or "run" for shell steps.
func autoGenerateStepIDs(steps []*Step) {
	explicit := make(map[string]bool)
	for _, step := range steps {
		if step.hasExplicitID {
			explicit[step.ID] = true
		}
	}

	counters := make(map[string]int)
	for _, step := range steps {
		if step.hasExplicitID {
			continue
		}

		base := "run"
		if step.Uses != "" {
			base = strings.ReplaceAll(step.Uses, "/", "_")
		}

		n := counters[base] + 1
		candidate := fmt.Sprintf("%s_%d", base, n)
		for explicit[candidate] {
			n++
			candidate = fmt.Sprintf("%s_%d", base, n)
		}

		step.ID = candidate
		counters[base] = n
		explicit[candidate] = true
	}
}

// JobIDs returns job IDs in deterministic (sorted) order.
func (p *Pipeline) JobIDs() []string {
	ids := make([]string, 0, len(p.Jobs))
	for id := range p.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks if the pipeline definition is valid.
// It enforces the structural properties the executor relies on: unique
// step IDs, resolvable needs references, an acyclic job DAG, well-formed
// matrix strategies, and a consistent artifact producer/consumer graph.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return &errors.ValidationError{
			Field:      "name",
			Message:    "pipeline name is required",
			Suggestion: "add a descriptive name for the pipeline",
		}
	}

	if len(p.Jobs) == 0 {
		return &errors.ValidationError{
			Field:      "jobs",
			Message:    "pipeline must have at least one job",
			Suggestion: "add at least one job to the jobs map",
		}
	}

	for _, id := range p.JobIDs() {
		job := p.Jobs[id]
		if job == nil {
			return &errors.ValidationError{
				Field:      "jobs",
				Message:    fmt.Sprintf("job %s has no body", id),
				Suggestion: "define steps for the job or remove it",
			}
		}

		for _, need := range job.Needs {
			if _, ok := p.Jobs[need]; !ok {
				return &errors.ValidationError{
					Field:      "needs",
					Message:    fmt.Sprintf("job %s needs undefined job: %s", id, need),
					Suggestion: "reference an existing job ID in needs",
				}
			}
			if need == id {
				return &errors.ValidationError{
					Field:      "needs",
					Message:    fmt.Sprintf("job %s cannot need itself", id),
					Suggestion: "remove the self-reference from needs",
				}
			}
		}

		if err := job.Validate(); err != nil {
			return fmt.Errorf("invalid job %s: %w", id, err)
		}
	}

	// The DAG must be acyclic; TopoSort reports the cycle members.
	if _, err := TopoSort(p.Jobs); err != nil {
		return err
	}

	if err := p.validateArtifactFlow(); err != nil {
		return err
	}

	// Trigger inputs
	if p.On != nil {
		for _, trig := range []*DispatchTrigger{p.On.Dispatch, (*DispatchTrigger)(p.On.Call)} {
			if trig == nil {
				continue
			}
			for name, spec := range trig.Inputs {
				if err := spec.Validate(); err != nil {
					return fmt.Errorf("invalid input %s: %w", name, err)
				}
			}
		}
	}

	return nil
}

// Validate checks if the input specification is valid.
func (i *InputSpec) Validate() error {
	if i.Type == "" {
		return nil // type defaults to string
	}
	validTypes := map[string]bool{
		"string":  true,
		"boolean": true,
		"number":  true,
	}
	if !validTypes[i.Type] {
		return fmt.Errorf("invalid input type: %s (must be string, boolean, or number)", i.Type)
	}
	return nil
}

// Validate checks if the job definition is valid.
func (j *Job) Validate() error {
	if len(j.Steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "job must have at least one step",
			Suggestion: "add a run or uses step",
		}
	}

	stepIDs := make(map[string]bool)
	for i, step := range j.Steps {
		if step == nil {
			return fmt.Errorf("step %d is empty", i)
		}
		if err := step.Validate(); err != nil {
			return fmt.Errorf("invalid step %s: %w", step.ID, err)
		}
		if stepIDs[step.ID] {
			return &errors.ValidationError{
				Field:      "id",
				Message:    fmt.Sprintf("duplicate step ID: %s", step.ID),
				Suggestion: "ensure each step has a unique ID within the job",
			}
		}
		stepIDs[step.ID] = true
	}

	if j.Strategy != nil {
		if err := j.Strategy.Validate(); err != nil {
			return fmt.Errorf("invalid strategy: %w", err)
		}
	}

	return nil
}

// Validate checks if the step definition is valid.
func (s *Step) Validate() error {
	hasRun := s.Run != ""
	hasUses := s.Uses != ""

	if !hasRun && !hasUses {
		return fmt.Errorf("step requires either 'run' or 'uses'")
	}
	if hasRun && hasUses {
		return fmt.Errorf("step cannot have both 'run' and 'uses'")
	}
	if len(s.With) > 0 && !hasUses {
		return fmt.Errorf("'with' is only valid on uses steps")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

// Validate checks if the strategy is valid.
func (s *Strategy) Validate() error {
	if s.MaxParallel < 0 {
		return fmt.Errorf("max-parallel must be non-negative")
	}
	if s.Matrix != nil {
		if err := s.Matrix.Validate(); err != nil {
			return fmt.Errorf("invalid matrix: %w", err)
		}
	}
	return nil
}

// Built-in action names accepted for uses steps. The CLI layer keeps
// this in sync with the action registry; validation here catches typos
// without importing the registry.
var builtinActionNames = map[string]bool{
	"checkout":          true,
	"artifact/upload":   true,
	"artifact/download": true,
	"cloud/login":       true,
	"report/publish":    true,
}

// KnownAction reports whether name is a registered built-in action.
func KnownAction(name string) bool {
	return builtinActionNames[name]
}

// validateArtifactFlow checks that every artifact/download names an
// artifact produced by an artifact/upload in a job reachable through
// needs. Names containing template expressions are skipped; they can
// only be checked at run time.
func (p *Pipeline) validateArtifactFlow() error {
	uploads := make(map[string][]string) // artifact name -> producing job IDs
	for _, id := range p.JobIDs() {
		for _, step := range p.Jobs[id].Steps {
			if step.Uses != "artifact/upload" {
				continue
			}
			name := step.With["name"]
			if name == "" || strings.Contains(name, "${{") {
				continue
			}
			uploads[name] = append(uploads[name], id)
		}
	}

	for _, id := range p.JobIDs() {
		job := p.Jobs[id]
		upstream := ReachableFrom(p.Jobs, id)
		for _, step := range job.Steps {
			if step.Uses != "artifact/download" {
				continue
			}
			name := step.With["name"]
			if name == "" {
				return &errors.ValidationError{
					Field:      "with.name",
					Message:    fmt.Sprintf("job %s: artifact/download requires a name", id),
					Suggestion: "set with.name to the artifact to download",
				}
			}
			if strings.Contains(name, "${{") {
				continue
			}
			producers, ok := uploads[name]
			if !ok {
				return &errors.ValidationError{
					Field:      "with.name",
					Message:    fmt.Sprintf("job %s downloads artifact %q that no job uploads", id, name),
					Suggestion: "add an artifact/upload step with that name, or fix the name",
				}
			}
			reachable := false
			for _, producer := range producers {
				if upstream[producer] {
					reachable = true
					break
				}
			}
			if !reachable {
				return &errors.ValidationError{
					Field:      "needs",
					Message:    fmt.Sprintf("job %s downloads artifact %q but does not depend on its producer", id, name),
					Suggestion: fmt.Sprintf("add %s to the needs of %s", strings.Join(producers, " or "), id),
				}
			}
		}
	}

	return nil
}

// ValidateActions checks that every uses step names a known action.
// known may be nil, in which case the built-in set applies.
func ValidateActions(p *Pipeline, known map[string]bool) error {
	if known == nil {
		known = builtinActionNames
	}
	for _, id := range p.JobIDs() {
		for _, step := range p.Jobs[id].Steps {
			if step.Uses == "" {
				continue
			}
			if !known[step.Uses] {
				return &errors.ValidationError{
					Field:      "uses",
					Message:    fmt.Sprintf("job %s step %s uses unknown action: %s", id, step.ID, step.Uses),
					Suggestion: "use one of the registered built-in actions",
				}
			}
		}
	}
	return nil
}
