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

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerrors "github.com/relayci/relay/pkg/errors"
)

func TestEvaluateBoolStatusFunctions(t *testing.T) {
	tests := []struct {
		name string
		expr string
		ctx  *EvalContext
		want bool
	}{
		{
			name: "empty defaults to success",
			expr: "",
			ctx:  &EvalContext{},
			want: true,
		},
		{
			name: "empty fails after dependency failure",
			expr: "",
			ctx:  &EvalContext{DepsFailed: true},
			want: false,
		},
		{
			name: "empty fails after skipped dependency",
			expr: "",
			ctx:  &EvalContext{DepsSkipped: true},
			want: false,
		},
		{
			name: "always after failure",
			expr: "always()",
			ctx:  &EvalContext{DepsFailed: true},
			want: true,
		},
		{
			name: "always on cancellation",
			expr: "always()",
			ctx:  &EvalContext{Cancelled: true},
			want: true,
		},
		{
			name: "failure without failure",
			expr: "failure()",
			ctx:  &EvalContext{},
			want: false,
		},
		{
			name: "failure after prior step failed",
			expr: "failure()",
			ctx:  &EvalContext{PriorFailed: true},
			want: true,
		},
		{
			name: "cancelled",
			expr: "cancelled()",
			ctx:  &EvalContext{Cancelled: true},
			want: true,
		},
		{
			name: "success on cancellation",
			expr: "success()",
			ctx:  &EvalContext{Cancelled: true},
			want: false,
		},
	}

	evaluator := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.EvaluateBool(tt.expr, tt.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateBoolContextAccess(t *testing.T) {
	evaluator := NewEvaluator()
	ctx := &EvalContext{
		Env:    map[string]string{"PROMPT_FLOW_TEST_MODE": "replay"},
		Inputs: map[string]string{"filepath": "src/promptflow"},
		Matrix: map[string]string{"os": "ubuntu-latest", "python": "3.9"},
		Needs: map[string]NeedResult{
			"build": {Result: "success"},
			"tests": {Result: "failed"},
		},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`env.PROMPT_FLOW_TEST_MODE == "replay"`, true},
		{`inputs.filepath != ""`, true},
		{`matrix.os == "ubuntu-latest" && matrix.python == "3.9"`, true},
		{`needs.build.result == "success"`, true},
		{`needs.tests.result == "failed"`, true},
		{`always() && needs.tests.result != "skipped"`, true},
		{`matrix.os == "windows-latest"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evaluator.EvaluateBool(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluateBoolUndefinedLookups(t *testing.T) {
	// Undefined variables resolve to nil instead of failing; conditions
	// can probe optional context without guards.
	evaluator := NewEvaluator()
	got, err := evaluator.EvaluateBool(`env.UNSET == nil`, &EvalContext{})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateBoolNonBoolean(t *testing.T) {
	evaluator := NewEvaluator()
	_, err := evaluator.EvaluateBool(`"a string"`, &EvalContext{})
	require.Error(t, err)

	var exprErr *relayerrors.ExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Contains(t, exprErr.Message, "boolean")
}

func TestEvaluateBoolCompileError(t *testing.T) {
	evaluator := NewEvaluator()
	_, err := evaluator.EvaluateBool(`env.X ==`, &EvalContext{})
	require.Error(t, err)

	var exprErr *relayerrors.ExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "env.X ==", exprErr.Expression)
}

func TestEvaluateValue(t *testing.T) {
	evaluator := NewEvaluator()
	ctx := &EvalContext{
		Secrets: map[string]string{"AZURE_CREDENTIALS": "shhh"},
		Inputs:  map[string]string{"id": "nightly-42"},
	}

	v, err := evaluator.EvaluateValue(`secrets.AZURE_CREDENTIALS`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "shhh", v)

	v, err = evaluator.EvaluateValue(`inputs.id`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "nightly-42", v)
}

func TestCheckSyntax(t *testing.T) {
	evaluator := NewEvaluator()
	assert.NoError(t, evaluator.CheckSyntax(`always() || needs.build.result == "success"`))
	assert.Error(t, evaluator.CheckSyntax(`always(`))
}

func TestEvaluatorCachesPrograms(t *testing.T) {
	evaluator := NewEvaluator()
	ctx := &EvalContext{Matrix: map[string]string{"python": "3.9"}}

	for i := 0; i < 100; i++ {
		got, err := evaluator.EvaluateBool(`matrix.python == "3.9"`, ctx)
		require.NoError(t, err)
		assert.True(t, got)
	}
	assert.Len(t, evaluator.cache, 1)
}
