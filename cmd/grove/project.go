package main

import (
	"context"
	"fmt"
	"path/filepath"

	"grove/internal/config"
	"grove/internal/graph"
	"grove/internal/vcs"
	"grove/internal/version"
)

// loadedProject bundles everything the graph/run subcommands need after
// scanning and resolving a project tree.
type loadedProject struct {
	project  config.Project
	modules  []config.Module
	graph    *graph.Graph
	resolver *version.Resolver
	vcs      *vcs.Collaborator
}

// loadProject scans root, builds its ConfigGraph, and wires up a
// VersionResolver backed by the VCS collaborator, ready for either
// inspection (`grove graph`) or scheduling (`grove run`).
func loadProject(ctx context.Context, root string) (*loadedProject, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	store, err := config.OpenLocalConfigStore(filepath.Join(abs, ".grove", "local.yaml"))
	if err != nil {
		return nil, err
	}

	collab := vcs.New(filepath.Join(abs, ".grove", "sources"))
	loader := config.NewLoader(collab, store)

	project, modules, err := loader.Load(ctx, abs)
	if err != nil {
		return nil, err
	}

	modules, err = resolveProjectTemplates(project, modules)
	if err != nil {
		return nil, err
	}

	g, err := graph.New(modules)
	if err != nil {
		return nil, err
	}

	return &loadedProject{
		project:  project,
		modules:  modules,
		graph:    g,
		resolver: version.NewResolver(collab),
		vcs:      collab,
	}, nil
}

// moduleLookup adapts lp.modules into a version.ModuleLookup keyed by
// Module.Key().
func (lp *loadedProject) moduleLookup() version.ModuleLookup {
	byKey := make(map[string]config.Module, len(lp.modules))
	for _, m := range lp.modules {
		byKey[m.Key()] = m
	}
	return func(key string) (config.Module, bool) {
		m, ok := byKey[key]
		return m, ok
	}
}
