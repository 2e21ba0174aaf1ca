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

package secretstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	relayerrors "github.com/relayci/relay/pkg/errors"
)

func TestResolveEnvironmentWins(t *testing.T) {
	keyring.MockInit()
	r := NewResolver()

	require.NoError(t, r.Set("AZURE_CREDENTIALS", "from-keychain"))
	t.Setenv("AZURE_CREDENTIALS", "from-env")

	value, err := r.Resolve("AZURE_CREDENTIALS")
	require.NoError(t, err)
	assert.Equal(t, "from-env", value)
}

func TestResolveFallsBackToKeychain(t *testing.T) {
	keyring.MockInit()
	r := NewResolver()

	require.NoError(t, r.Set("DEPLOY_TOKEN", "tok-123"))

	value, err := r.Resolve("DEPLOY_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", value)
}

func TestResolveMissing(t *testing.T) {
	keyring.MockInit()
	r := NewResolver()

	_, err := r.Resolve("NO_SUCH_SECRET")
	var nferr *relayerrors.NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, "secret", nferr.Resource)
	assert.Equal(t, "NO_SUCH_SECRET", nferr.ID)
}

func TestResolveAllFailsOnAnyMiss(t *testing.T) {
	keyring.MockInit()
	r := NewResolver()

	require.NoError(t, r.Set("PRESENT", "yes"))

	_, err := r.ResolveAll([]string{"PRESENT", "ABSENT"})
	require.Error(t, err)

	values, err := r.ResolveAll([]string{"PRESENT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PRESENT": "yes"}, values)
}

func TestSetDeleteList(t *testing.T) {
	keyring.MockInit()
	r := NewResolver()

	names, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, r.Set("B_SECRET", "b"))
	require.NoError(t, r.Set("A_SECRET", "a"))

	names, err = r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"A_SECRET", "B_SECRET"}, names)

	require.NoError(t, r.Delete("B_SECRET"))

	names, err = r.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"A_SECRET"}, names)

	err = r.Delete("B_SECRET")
	var nferr *relayerrors.NotFoundError
	assert.ErrorAs(t, err, &nferr)
}

func TestSetRejectsReservedNames(t *testing.T) {
	keyring.MockInit()
	r := NewResolver()

	assert.Error(t, r.Set("", "x"))
	assert.Error(t, r.Set(indexKey, "x"))
}
