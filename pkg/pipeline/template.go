package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// templatePattern matches ${{ expression }} placeholders.
var templatePattern = regexp.MustCompile(`\$\{\{([^}]*)\}\}`)

// Interpolate replaces every ${{ expression }} in s with the stringified
// result of evaluating the expression against ctx. Strings without
// placeholders are returned unchanged.
func (e *Evaluator) Interpolate(s string, ctx *EvalContext) (string, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}

	var firstErr error
	result := templatePattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		inner := strings.TrimSpace(templatePattern.FindStringSubmatch(match)[1])
		if inner == "" {
			return ""
		}
		value, err := e.EvaluateValue(inner, ctx)
		if err != nil {
			firstErr = err
			return match
		}
		return stringify(value)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// InterpolateMap interpolates every value of m, returning a new map.
// Keys are not interpolated.
func (e *Evaluator) InterpolateMap(m map[string]string, ctx *EvalContext) (map[string]string, error) {
	if len(m) == 0 {
		return m, nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		rendered, err := e.Interpolate(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", k, err)
		}
		out[k] = rendered
	}
	return out, nil
}

// stringify renders an expression result for substitution into a string.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		// Render integral floats without the trailing .0
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
