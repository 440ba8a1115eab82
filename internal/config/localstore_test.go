package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalConfigStore_SetUsernameTracksPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.yaml")

	store, err := OpenLocalConfigStore(path)
	require.NoError(t, err)
	require.Equal(t, "", store.Username())

	for _, name := range []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace"} {
		require.NoError(t, store.SetUsername(name))
	}
	require.Equal(t, "grace", store.Username())

	reopened, err := OpenLocalConfigStore(path)
	require.NoError(t, err)
	require.Equal(t, "grace", reopened.Username())
	require.Len(t, reopened.doc.PreviousUsernames, maxPreviousUsernames)
	require.Equal(t, []string{"bob", "carol", "dave", "erin", "frank"}, reopened.doc.PreviousUsernames)
}

func TestLocalConfigStore_LinkOverridesResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.yaml")
	store, err := OpenLocalConfigStore(path)
	require.NoError(t, err)

	require.NoError(t, store.LinkModuleSource("shared-lib", "/local/shared-lib"))

	got, ok := store.ResolveLink("shared-lib")
	require.True(t, ok)
	require.Equal(t, "/local/shared-lib", got)

	_, ok = store.ResolveLink("unknown")
	require.False(t, ok)
}

func TestLocalConfigStore_UnknownKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.yaml")
	writeFile(t, path, "username: alice\nbogusKey: true\n")

	_, err := OpenLocalConfigStore(path)
	require.Error(t, err)
}
