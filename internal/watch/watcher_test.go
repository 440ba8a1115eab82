package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"grove/internal/config"
	"grove/internal/graph"
	"grove/internal/version"
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeSource) TreeInfo(ctx context.Context, modulePath string) (version.TreeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[modulePath]++
	return version.TreeInfo{Hash: "hash-" + modulePath}, nil
}

func (f *fakeSource) callCount(modulePath string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[modulePath]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWatcher_FileChangeInvalidatesAndRedrives(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	source := &fakeSource{calls: map[string]int{}}
	resolver := version.NewResolver(source)
	modules := map[string]config.Module{
		"container.api": {Type: "container", Name: "api", Path: dir},
	}
	lookup := func(key string) (config.Module, bool) {
		m, ok := modules[key]
		return m, ok
	}

	_, err := resolver.Resolve(context.Background(), lookup, "container.api")
	require.NoError(t, err)
	require.Equal(t, 1, source.callCount(dir))

	var redriven [][]string
	var mu sync.Mutex
	redrive := func(changed []string) error {
		mu.Lock()
		redriven = append(redriven, changed)
		mu.Unlock()
		return nil
	}

	w := New(resolver, nil, redrive, 30*time.Millisecond)
	require.NoError(t, w.Start([]Target{{ModuleKey: "container.api", Path: dir}}))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main // changed"), 0o644))

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(redriven) > 0
	})

	mu.Lock()
	require.Equal(t, [][]string{{"container.api"}}, redriven)
	mu.Unlock()

	_, err = resolver.Resolve(context.Background(), lookup, "container.api")
	require.NoError(t, err)
	require.Equal(t, 2, source.callCount(dir))
}

func TestWatcher_DependantFanOutUsesGraph(t *testing.T) {
	dir := t.TempDir()

	shared := config.Module{
		Type: "container", Name: "shared", Path: dir,
		Build: config.Build{Command: "make"},
	}
	api := config.Module{
		Type: "container", Name: "api", Path: dir,
		Build: config.Build{Command: "make", Dependencies: []config.BuildDependency{{Name: "container.shared"}}},
	}
	g, err := graph.New([]config.Module{shared, api})
	require.NoError(t, err)

	var mu sync.Mutex
	var redriven []string
	redrive := func(changed []string) error {
		mu.Lock()
		redriven = changed
		mu.Unlock()
		return nil
	}

	source := &fakeSource{calls: map[string]int{}}
	resolver := version.NewResolver(source)
	w := New(resolver, g, redrive, 30*time.Millisecond)
	require.NoError(t, w.Start([]Target{{ModuleKey: "container.shared", Path: dir}}))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "touched.txt"), []byte("x"), 0o644))

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return redriven != nil
	})

	mu.Lock()
	defer mu.Unlock()
	require.ElementsMatch(t, []string{"container.shared", "container.api"}, redriven)
}

func TestWatcher_ProjectWideTargetRedrivesOnAnyChange(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var calls int
	redrive := func(changed []string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}

	source := &fakeSource{calls: map[string]int{}}
	resolver := version.NewResolver(source)
	w := New(resolver, nil, redrive, 30*time.Millisecond)
	require.NoError(t, w.Start([]Target{{ModuleKey: "", Path: dir}}))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "project.yaml"), []byte("name: x"), 0o644))

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	})
}

func TestWatcher_StopIsIdempotentAndHaltsDelivery(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{calls: map[string]int{}}
	resolver := version.NewResolver(source)

	var mu sync.Mutex
	var calls int
	redrive := func(changed []string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}

	w := New(resolver, nil, redrive, 10*time.Millisecond)
	require.NoError(t, w.Start([]Target{{ModuleKey: "container.api", Path: dir}}))
	w.Stop()
	w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "after-stop.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, calls)
}
