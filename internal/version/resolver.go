package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"grove/internal/config"
	"grove/pkg/logging"
)

// TreeSource computes a module's content digest and dirty state. It is
// implemented by internal/vcs.
type TreeSource interface {
	TreeInfo(ctx context.Context, modulePath string) (TreeInfo, error)
}

// ModuleLookup resolves a module key to its declaration, used to walk build
// dependencies recursively.
type ModuleLookup func(key string) (config.Module, bool)

type cacheEntry struct {
	version      ModuleVersion
	pathPrefixes []string
}

// Resolver computes ModuleVersions and memoises them per
// (module key, sorted direct-dependency-name list).
type Resolver struct {
	source TreeSource

	mu    sync.Mutex
	cache map[string]*cacheEntry
}

// NewResolver returns a Resolver backed by source.
func NewResolver(source TreeSource) *Resolver {
	return &Resolver{source: source, cache: make(map[string]*cacheEntry)}
}

// Resolve computes moduleKey's ModuleVersion, recursively resolving its
// build dependencies via lookup, and memoises the result.
func (r *Resolver) Resolve(ctx context.Context, lookup ModuleLookup, moduleKey string) (ModuleVersion, error) {
	mv, _, err := r.resolve(ctx, lookup, moduleKey, make(map[string]bool))
	return mv, err
}

// resolve returns the module's version plus the full set of path prefixes
// (its own path and every dependency's, transitively) that contributed to
// it, so Invalidate can match a changed path without re-walking the graph.
func (r *Resolver) resolve(ctx context.Context, lookup ModuleLookup, moduleKey string, visiting map[string]bool) (ModuleVersion, []string, error) {
	m, ok := lookup(moduleKey)
	if !ok {
		return ModuleVersion{}, nil, fmt.Errorf("version: unknown module %q", moduleKey)
	}

	depNames := make([]string, 0, len(m.Build.Dependencies))
	for _, d := range m.Build.Dependencies {
		depNames = append(depNames, d.Name)
	}
	sort.Strings(depNames)
	cacheKey := moduleKey + "|" + strings.Join(depNames, ",")

	r.mu.Lock()
	if entry, ok := r.cache[cacheKey]; ok {
		r.mu.Unlock()
		return entry.version, entry.pathPrefixes, nil
	}
	r.mu.Unlock()

	if visiting[moduleKey] {
		return ModuleVersion{}, nil, fmt.Errorf("version: circular build dependency at %q", moduleKey)
	}
	visiting[moduleKey] = true
	defer delete(visiting, moduleKey)

	info, err := r.source.TreeInfo(ctx, m.Path)
	if err != nil {
		return ModuleVersion{}, nil, fmt.Errorf("version: tree info for %q: %w", moduleKey, err)
	}

	depVersions := make(map[string]string, len(depNames))
	pathPrefixes := []string{m.Path}
	dirtyTimestamp := time.Time{}
	if info.Dirty {
		dirtyTimestamp = info.DirtyTimestamp
	}

	for _, depName := range depNames {
		depVersion, depPrefixes, err := r.resolve(ctx, lookup, depName, visiting)
		if err != nil {
			return ModuleVersion{}, nil, err
		}
		depVersions[depName] = depVersion.VersionString
		pathPrefixes = append(pathPrefixes, depPrefixes...)
		if depVersion.DirtyTimestamp.After(dirtyTimestamp) {
			dirtyTimestamp = depVersion.DirtyTimestamp
		}
	}

	digestInput := info.Hash
	for _, depName := range depNames {
		digestInput += "\x00" + depName + "=" + depVersions[depName]
	}
	sum := sha256.Sum256([]byte(digestInput))

	mv := ModuleVersion{
		VersionString:      hex.EncodeToString(sum[:]),
		DirtyTimestamp:     dirtyTimestamp,
		DependencyVersions: depVersions,
		TreeHash:           info.Hash,
	}

	r.mu.Lock()
	r.cache[cacheKey] = &cacheEntry{version: mv, pathPrefixes: pathPrefixes}
	r.mu.Unlock()

	logging.Debug("VersionResolver", "resolved %s to %s", moduleKey, mv.VersionString)
	return mv, pathPrefixes, nil
}

// Invalidate drops every cached entry whose recorded path set intersects
// any of the given path prefixes.
func (r *Resolver) Invalidate(pathPrefixes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, entry := range r.cache {
		if intersects(entry.pathPrefixes, pathPrefixes) {
			delete(r.cache, key)
		}
	}
}

func intersects(entryPrefixes, changed []string) bool {
	for _, e := range entryPrefixes {
		for _, c := range changed {
			if strings.HasPrefix(e, c) || strings.HasPrefix(c, e) {
				return true
			}
		}
	}
	return false
}
