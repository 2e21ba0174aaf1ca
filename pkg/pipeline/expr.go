package pipeline

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/relayci/relay/pkg/errors"
)

// EvalContext carries the values visible to if-conditions and ${{ }}
// interpolation: the merged environment, trigger inputs, the current
// matrix cell, declared secret names, and upstream job results.
type EvalContext struct {
	// Env is the merged environment visible to the step or job
	Env map[string]string

	// Inputs holds the trigger input values
	Inputs map[string]string

	// Matrix holds the current cell's variables (empty outside matrix jobs)
	Matrix map[string]string

	// Secrets holds resolved secret values by name; values must be
	// masked before they reach logs or rendered output
	Secrets map[string]string

	// Needs maps upstream job IDs to their results
	Needs map[string]NeedResult

	// DepsFailed is true when any upstream dependency failed
	DepsFailed bool

	// DepsSkipped is true when any upstream dependency was skipped
	DepsSkipped bool

	// PriorFailed is true when an earlier step in the same cell failed
	// (step-level conditions only)
	PriorFailed bool

	// Cancelled is true when the run has been cancelled
	Cancelled bool
}

// NeedResult is the outcome of an upstream job visible via needs.<id>.result.
type NeedResult struct {
	// Result is the job's final status string: success, failed, skipped, cancelled
	Result string `json:"result"`
}

// env builds the expr-lang environment map for this context.
func (c *EvalContext) env() map[string]interface{} {
	needs := make(map[string]interface{}, len(c.Needs))
	for id, res := range c.Needs {
		needs[id] = map[string]interface{}{"result": res.Result}
	}

	failed := c.DepsFailed || c.PriorFailed

	return map[string]interface{}{
		"env":     orEmpty(c.Env),
		"inputs":  orEmpty(c.Inputs),
		"matrix":  orEmpty(c.Matrix),
		"needs":   needs,
		"secrets": orEmpty(c.Secrets),
		// Status functions follow hosted-CI semantics: success() is
		// true when nothing upstream failed, failure() when something
		// did, always() unconditionally, cancelled() on run cancellation.
		"always":    func() bool { return true },
		"success":   func() bool { return !failed && !c.Cancelled && !c.DepsSkipped },
		"failure":   func() bool { return failed },
		"cancelled": func() bool { return c.Cancelled },
	}
}

// Evaluator evaluates condition expressions against an EvalContext.
// It caches compiled programs for repeated evaluations; matrix jobs
// evaluate the same condition once per cell.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new expression evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// EvaluateBool evaluates a condition expression, returning its boolean
// result. The empty expression defaults to success().
func (e *Evaluator) EvaluateBool(expression string, ctx *EvalContext) (bool, error) {
	if expression == "" {
		expression = "success()"
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, &errors.ExpressionError{
			Expression: expression,
			Message:    "compile failed",
			Cause:      err,
		}
	}

	result, err := expr.Run(program, ctx.env())
	if err != nil {
		return false, &errors.ExpressionError{
			Expression: expression,
			Message:    "evaluation failed",
			Cause:      err,
		}
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, &errors.ExpressionError{
			Expression: expression,
			Message:    fmt.Sprintf("condition must return boolean, got %T (%v)", result, result),
		}
	}

	return boolResult, nil
}

// EvaluateValue evaluates an interpolation expression and returns the
// raw result. Used by ${{ }} templating; non-boolean results are allowed.
func (e *Evaluator) EvaluateValue(expression string, ctx *EvalContext) (interface{}, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, &errors.ExpressionError{
			Expression: expression,
			Message:    "compile failed",
			Cause:      err,
		}
	}

	result, err := expr.Run(program, ctx.env())
	if err != nil {
		return nil, &errors.ExpressionError{
			Expression: expression,
			Message:    "evaluation failed",
			Cause:      err,
		}
	}
	return result, nil
}

// CheckSyntax compiles an expression without evaluating it.
// Used by validate to reject malformed conditions at definition time.
func (e *Evaluator) CheckSyntax(expression string) error {
	_, err := e.compile(expression)
	if err != nil {
		return &errors.ExpressionError{
			Expression: expression,
			Message:    "compile failed",
			Cause:      err,
		}
	}
	return nil
}

// compile compiles an expression and caches the result.
func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
