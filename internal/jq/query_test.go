package jq

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileErrors(t *testing.T) {
	_, err := Compile(".jobs | {")
	assert.ErrorContains(t, err, "invalid query")
}

func TestRunSingleResult(t *testing.T) {
	q, err := Compile(".status")
	require.NoError(t, err)

	out, err := q.Run(context.Background(), map[string]interface{}{"status": "failed"})
	require.NoError(t, err)
	assert.Equal(t, "failed", out)
}

func TestRunMultipleResults(t *testing.T) {
	q, err := Compile(".jobs[].status")
	require.NoError(t, err)

	out, err := q.Run(context.Background(), map[string]interface{}{
		"jobs": []interface{}{
			map[string]interface{}{"status": "success"},
			map[string]interface{}{"status": "failed"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"success", "failed"}, out)
}

func TestRunNoResults(t *testing.T) {
	q, err := Compile(".jobs[]?")
	require.NoError(t, err)

	out, err := q.Run(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRunNormalizesStructs(t *testing.T) {
	type record struct {
		Pipeline string `json:"pipeline"`
		Tests    int    `json:"tests"`
	}

	q, err := Compile("{name: .pipeline, n: .tests}")
	require.NoError(t, err)

	out, err := q.Run(context.Background(), record{Pipeline: "sdk-ci", Tests: 42})
	require.NoError(t, err)

	// Number representation varies between int and float64; compare as JSON.
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"sdk-ci","n":42}`, string(data))
}

func TestRunQueryError(t *testing.T) {
	q, err := Compile(".foo + 1")
	require.NoError(t, err)

	_, err = q.Run(context.Background(), map[string]interface{}{"foo": "not a number"})
	assert.ErrorContains(t, err, "query failed")
}
