package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func initRepoWithFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	sig := &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(0, 0)}
	_, err = wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	return dir
}

func TestCollaborator_TreeInfo_CleanRepoIsNotDirty(t *testing.T) {
	dir := initRepoWithFiles(t, map[string]string{"a.txt": "a", "b.txt": "b"})

	c := New(t.TempDir())
	info, err := c.TreeInfo(context.Background(), dir)
	require.NoError(t, err)
	require.NotEmpty(t, info.Hash)
	require.False(t, info.Dirty)
}

func TestCollaborator_TreeInfo_StableRegardlessOfFileWriteOrder(t *testing.T) {
	dirA := initRepoWithFiles(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	dirB := initRepoWithFiles(t, map[string]string{"b.txt": "b", "a.txt": "a"})

	c := New(t.TempDir())
	infoA, err := c.TreeInfo(context.Background(), dirA)
	require.NoError(t, err)
	infoB, err := c.TreeInfo(context.Background(), dirB)
	require.NoError(t, err)

	require.Equal(t, infoA.Hash, infoB.Hash)
}

func TestCollaborator_TreeInfo_DetectsUncommittedChange(t *testing.T) {
	dir := initRepoWithFiles(t, map[string]string{"a.txt": "a"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed"), 0o644))

	c := New(t.TempDir())
	info, err := c.TreeInfo(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, info.Dirty)
}

func TestCollaborator_TreeInfo_ContentChangeAltersHash(t *testing.T) {
	dir1 := initRepoWithFiles(t, map[string]string{"a.txt": "one"})
	dir2 := initRepoWithFiles(t, map[string]string{"a.txt": "two"})

	c := New(t.TempDir())
	info1, err := c.TreeInfo(context.Background(), dir1)
	require.NoError(t, err)
	info2, err := c.TreeInfo(context.Background(), dir2)
	require.NoError(t, err)

	require.NotEqual(t, info1.Hash, info2.Hash)
}
