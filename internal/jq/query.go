// Package jq evaluates jq expressions against run records for the
// history --query flag.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultTimeout bounds a single query evaluation.
const DefaultTimeout = 1 * time.Second

// Query is a compiled jq expression.
type Query struct {
	code    *gojq.Code
	timeout time.Duration
}

// Compile parses and compiles a jq expression.
func Compile(expression string) (*Query, error) {
	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	return &Query{code: code, timeout: DefaultTimeout}, nil
}

// Run evaluates the query against value, which is first normalized
// through JSON so struct records query like plain documents. A single
// result is returned bare; multiple results come back as an array.
func (q *Query) Run(ctx context.Context, value interface{}) (interface{}, error) {
	normalized, err := normalize(value)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	var results []interface{}
	iter := q.code.RunWithContext(ctx, normalized)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// normalize round-trips value through JSON into the generic types gojq
// operates on.
func normalize(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding query input: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding query input: %w", err)
	}
	return out, nil
}
