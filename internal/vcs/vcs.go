package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"grove/internal/config"
	"grove/internal/version"
	"grove/pkg/logging"
)

// Collaborator implements config.RemoteSourceResolver and
// version.TreeSource on top of go-git.
type Collaborator struct {
	// CacheDir is where remote sources are checked out, one directory per
	// source name.
	CacheDir string
}

var _ config.RemoteSourceResolver = (*Collaborator)(nil)
var _ version.TreeSource = (*Collaborator)(nil)

// New returns a Collaborator that checks out remote sources under cacheDir.
func New(cacheDir string) *Collaborator {
	return &Collaborator{CacheDir: cacheDir}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

func (c *Collaborator) destinationFor(sourceName string) string {
	safe := unsafeNameChars.ReplaceAllString(sourceName, "_")
	return filepath.Join(c.CacheDir, safe)
}

// EnsureRemoteSource clones ref.RepositoryURL into the collaborator's cache
// directory if absent, otherwise fetches, then checks out ref.Ref (a branch,
// tag, or commit) if given. It returns the local checkout path.
func (c *Collaborator) EnsureRemoteSource(ctx context.Context, ref config.SourceRef) (string, error) {
	dest := c.destinationFor(ref.Name)

	repo, err := git.PlainOpen(dest)
	if err != nil {
		logging.Debug("VCS", "cloning %s into %s", ref.RepositoryURL, dest)
		repo, err = git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: ref.RepositoryURL})
		if err != nil {
			return "", fmt.Errorf("vcs: clone %s: %w", ref.RepositoryURL, err)
		}
	} else {
		logging.Debug("VCS", "fetching updates for %s", ref.Name)
		err := repo.FetchContext(ctx, &git.FetchOptions{})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return "", fmt.Errorf("vcs: fetch %s: %w", ref.Name, err)
		}
	}

	if ref.Ref != "" {
		if err := checkout(repo, ref.Ref); err != nil {
			return "", fmt.Errorf("vcs: checkout %s@%s: %w", ref.Name, ref.Ref, err)
		}
	}

	return dest, nil
}

func checkout(repo *git.Repository, ref string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewTagReferenceName(ref),
	}
	for _, candidate := range candidates {
		if err := wt.Checkout(&git.CheckoutOptions{Branch: candidate, Force: true}); err == nil {
			return nil
		}
	}

	hash := plumbing.NewHash(ref)
	return wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true})
}

// TreeInfo computes modulePath's content digest from the subtree at
// modulePath in its owning repository's HEAD tree (stable across
// reorderings: files are hashed by path+blob-hash pair, sorted by path), and
// reports whether the worktree has uncommitted changes.
func (c *Collaborator) TreeInfo(ctx context.Context, modulePath string) (version.TreeInfo, error) {
	repo, err := git.PlainOpenWithOptions(modulePath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return c.fallbackTreeInfo(modulePath)
	}

	head, err := repo.Head()
	if err != nil {
		return version.TreeInfo{}, fmt.Errorf("vcs: resolve HEAD for %s: %w", modulePath, err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return version.TreeInfo{}, fmt.Errorf("vcs: resolve commit for %s: %w", modulePath, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return version.TreeInfo{}, fmt.Errorf("vcs: resolve tree for %s: %w", modulePath, err)
	}
	if wt, err := repo.Worktree(); err == nil {
		rel, err := filepath.Rel(wt.Filesystem.Root(), modulePath)
		if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			sub, err := tree.Tree(filepath.ToSlash(rel))
			if err != nil {
				return c.fallbackTreeInfo(modulePath)
			}
			tree = sub
		}
	}

	hash, err := hashTree(tree)
	if err != nil {
		return version.TreeInfo{}, err
	}

	dirty := false
	var dirtyTimestamp time.Time
	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil && !status.IsClean() {
			dirty = true
			dirtyTimestamp = time.Now()
		}
	}

	return version.TreeInfo{Hash: hash, Dirty: dirty, DirtyTimestamp: dirtyTimestamp}, nil
}

// fallbackTreeInfo handles modules that live outside any git repository
// (e.g. generated scratch directories in tests), or in a directory the HEAD
// tree does not contain, by hashing the directory's
// file listing directly rather than failing the whole resolution.
func (c *Collaborator) fallbackTreeInfo(modulePath string) (version.TreeInfo, error) {
	entries, err := os.ReadDir(modulePath)
	if err != nil {
		return version.TreeInfo{}, fmt.Errorf("vcs: %s is not a git repository and cannot be listed: %w", modulePath, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return version.TreeInfo{Hash: hashStrings(names), Dirty: false}, nil
}
