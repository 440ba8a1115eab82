package vcs

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/object"
)

type treeEntry struct {
	path string
	hash string
}

// hashTree digests tree's tracked files as sorted (path, blob-hash) pairs,
// so the result is stable regardless of the order git.Tree.Files() yields
// entries in.
func hashTree(tree *object.Tree) (string, error) {
	var entries []treeEntry
	err := tree.Files().ForEach(func(f *object.File) error {
		entries = append(entries, treeEntry{path: f.Name, hash: f.Hash.String()})
		return nil
	})
	if err != nil {
		return "", err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.path))
		h.Write([]byte{0})
		h.Write([]byte(e.hash))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashStrings(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, n := range sorted {
		h.Write([]byte(n))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
