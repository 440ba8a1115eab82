package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoader_FlatAndNestedStylesAreEquivalent(t *testing.T) {
	flatRoot := t.TempDir()
	writeFile(t, filepath.Join(flatRoot, configFileName), `
kind: Project
name: demo
---
kind: Module
type: container
name: api
build:
  command: make build
`)

	nestedRoot := t.TempDir()
	writeFile(t, filepath.Join(nestedRoot, configFileName), `
project:
  name: demo
---
module:
  type: container
  name: api
  build:
    command: make build
`)

	loader := NewLoader(nil, nil)

	flatProject, flatModules, err := loader.Load(context.Background(), flatRoot)
	require.NoError(t, err)

	nestedProject, nestedModules, err := loader.Load(context.Background(), nestedRoot)
	require.NoError(t, err)

	require.Equal(t, flatProject.Name, nestedProject.Name)
	require.Len(t, flatModules, 1)
	require.Len(t, nestedModules, 1)
	require.Equal(t, flatModules[0].Key(), nestedModules[0].Key())
	require.Equal(t, flatModules[0].Build.Command, nestedModules[0].Build.Command)
}

func TestLoader_DuplicateModuleNameIsConfigError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, configFileName), `
kind: Project
name: demo
`)
	writeFile(t, filepath.Join(root, "a", configFileName), `
kind: Module
type: container
name: api
`)
	writeFile(t, filepath.Join(root, "b", configFileName), `
kind: Module
type: container
name: api
`)

	loader := NewLoader(nil, nil)
	_, _, err := loader.Load(context.Background(), root)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoader_MultipleProjectDeclarationsIsConfigError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, configFileName), `
kind: Project
name: demo
`)
	writeFile(t, filepath.Join(root, "nested", configFileName), `
kind: Project
name: other
`)

	loader := NewLoader(nil, nil)
	_, _, err := loader.Load(context.Background(), root)
	require.Error(t, err)
}

func TestLoader_IgnorePatternsSkipSubtree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, configFileName), `
kind: Project
name: demo
`)
	writeFile(t, filepath.Join(root, ignoreFileName), "vendor/\n")
	writeFile(t, filepath.Join(root, "vendor", configFileName), `
kind: Module
type: container
name: should-not-be-seen
`)
	writeFile(t, filepath.Join(root, "app", configFileName), `
kind: Module
type: container
name: api
`)

	loader := NewLoader(nil, nil)
	_, modules, err := loader.Load(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	require.Equal(t, "api", modules[0].Name)
}

func TestLoader_UnknownKindIsConfigError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, configFileName), `
kind: Project
name: demo
---
kind: Bogus
name: x
`)

	loader := NewLoader(nil, nil)
	_, _, err := loader.Load(context.Background(), root)
	require.Error(t, err)
}
