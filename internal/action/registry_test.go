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

package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerrors "github.com/relayci/relay/pkg/errors"
	"github.com/relayci/relay/pkg/pipeline"
)

type stubAction struct{ name string }

func (s *stubAction) Name() string { return s.name }
func (s *stubAction) Execute(ctx context.Context, actx *pipeline.ActionContext, with map[string]string) (map[string]string, error) {
	return nil, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubAction{name: "custom/thing"}))

	a, err := r.Get("custom/thing")
	require.NoError(t, err)
	assert.Equal(t, "custom/thing", a.Name())

	err = r.Register(&stubAction{name: "custom/thing"})
	assert.ErrorContains(t, err, "already registered")
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	var nferr *relayerrors.NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, "action", nferr.Resource)
}

func TestDefaultRegistryBuiltins(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{
		"artifact/download",
		"artifact/upload",
		"checkout",
		"cloud/login",
		"report/publish",
	}, r.Names())

	known := r.Known()
	assert.True(t, known["checkout"])
	assert.False(t, known["does-not-exist"])
}
