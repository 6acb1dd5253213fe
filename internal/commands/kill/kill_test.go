// Copyright 2025 Tom Barlow
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

package kill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leashd/leash/internal/session"
)

func openStoreWithSessions(t *testing.T, ids ...string) *session.Store {
	t.Helper()

	store, err := session.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	machineID, err := session.MachineID(t.TempDir())
	require.NoError(t, err)

	for _, id := range ids {
		handle, err := store.CreateOrGetSession(ctx, machineID, id, session.Metadata{State: session.StateRunning})
		require.NoError(t, err)
		t.Cleanup(func() { handle.Close(ctx) })
	}
	return store
}

func TestResolveSessionExactMatch(t *testing.T) {
	store := openStoreWithSessions(t, "aaaa1111-exact", "bbbb2222-other")

	rec, err := resolveSession(context.Background(), store, "aaaa1111-exact")
	require.NoError(t, err)
	assert.Equal(t, "aaaa1111-exact", rec.ID)
}

func TestResolveSessionPrefix(t *testing.T) {
	store := openStoreWithSessions(t, "aaaa1111-one", "bbbb2222-two")

	rec, err := resolveSession(context.Background(), store, "bbbb")
	require.NoError(t, err)
	assert.Equal(t, "bbbb2222-two", rec.ID)
}

func TestResolveSessionAmbiguousPrefix(t *testing.T) {
	store := openStoreWithSessions(t, "cccc-one-3333", "cccc-two-4444")

	_, err := resolveSession(context.Background(), store, "cccc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestResolveSessionNoMatch(t *testing.T) {
	store := openStoreWithSessions(t, "dddd4444-one")

	_, err := resolveSession(context.Background(), store, "zzzz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session matches")
}
