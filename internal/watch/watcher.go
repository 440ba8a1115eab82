package watch

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"grove/internal/graph"
	"grove/internal/version"
	"grove/pkg/logging"
)

// DefaultDebounce is the quiet window the watcher waits for after the last
// detected change before invalidating caches and redriving, absorbing the
// burst of events a single save or checkout typically produces.
const DefaultDebounce = 300 * time.Millisecond

// Target names one directory the watcher should track recursively.
// ModuleKey is empty for the project's own config root: changes there
// affect every module, not one in particular.
type Target struct {
	ModuleKey string
	Path      string
}

// Redriver is called once per debounced batch of changes with the set of
// module keys (changed modules plus their transitive dependants) that
// should be rebuilt. A change under the project-wide target (ModuleKey "")
// adds no keys of its own: when only project config changed, changed is
// empty. A non-nil error is logged; it does not stop the watcher.
type Redriver func(changed []string) error

// Watcher detects changes under a set of Targets and drives VersionResolver
// invalidation plus a caller-supplied Redriver.
type Watcher struct {
	resolver *version.Resolver
	graph    *graph.Graph
	redrive  Redriver
	debounce time.Duration

	mu        sync.Mutex
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool
	targets   []Target

	pendingMu sync.Mutex
	pending   map[string]bool // changed module keys, "" for project-wide
	debounceT *time.Timer
}

// New returns a Watcher that invalidates resolver's cache and calls redrive
// when a watched path changes. graph is used to compute dependants of a
// changed module via graph.WithDependantModules; it may be nil if the
// caller only needs invalidation without dependant fan-out. debounce of
// zero uses DefaultDebounce.
func New(resolver *version.Resolver, g *graph.Graph, redrive Redriver, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		resolver: resolver,
		graph:    g,
		redrive:  redrive,
		debounce: debounce,
		pending:  make(map[string]bool),
	}
}

// Start begins watching targets. Each target's directory tree is added
// recursively; directories created later under an existing target are
// picked up as they appear.
func (w *Watcher) Start(targets []Target) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	sorted := append([]Target(nil), targets...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Path) > len(sorted[j].Path) })

	for _, t := range sorted {
		if err := addRecursive(fsWatcher, t.Path); err != nil {
			fsWatcher.Close()
			return err
		}
	}

	w.fsWatcher = fsWatcher
	w.targets = sorted
	w.stopCh = make(chan struct{})
	w.running = true

	eventsCh := fsWatcher.Events
	errorsCh := fsWatcher.Errors
	go w.processEvents(eventsCh, errorsCh)

	logging.Info("Watcher", "watching %d targets", len(sorted))
	return nil
}

// Stop halts watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
}

func addRecursive(fsWatcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return fsWatcher.Add(path)
	})
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("Watcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	target, ok := w.matchTarget(ev.Name)
	if !ok {
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			fsWatcher := w.fsWatcher
			w.mu.Unlock()
			if fsWatcher != nil {
				if err := addRecursive(fsWatcher, ev.Name); err != nil {
					logging.Warn("Watcher", "failed to watch new directory %s: %v", ev.Name, err)
				}
			}
		}
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("Watcher", "change detected under %s (%s)", target.Path, ev.Name)

	w.pendingMu.Lock()
	w.pending[target.ModuleKey] = true
	w.pendingMu.Unlock()

	w.scheduleFire()
}

// matchTarget returns the target whose tree contains path, preferring the
// longest (most specific) match — targets is kept sorted longest-first.
func (w *Watcher) matchTarget(path string) (Target, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range w.targets {
		if path == t.Path || strings.HasPrefix(path, t.Path+string(filepath.Separator)) {
			return t, true
		}
	}
	return Target{}, false
}

func (w *Watcher) scheduleFire() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if w.debounceT != nil {
		w.debounceT.Stop()
	}
	w.debounceT = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.pendingMu.Lock()
	changedKeys := make([]string, 0, len(w.pending))
	projectWide := false
	for k := range w.pending {
		if k == "" {
			projectWide = true
			continue
		}
		changedKeys = append(changedKeys, k)
	}
	w.pending = make(map[string]bool)
	w.pendingMu.Unlock()

	w.mu.Lock()
	paths := make([]string, 0, len(changedKeys)+1)
	for _, t := range w.targets {
		if t.ModuleKey == "" && projectWide {
			paths = append(paths, t.Path)
			continue
		}
		for _, k := range changedKeys {
			if t.ModuleKey == k {
				paths = append(paths, t.Path)
				break
			}
		}
	}
	running := w.running
	w.mu.Unlock()

	if !running {
		return
	}

	if w.resolver != nil && len(paths) > 0 {
		w.resolver.Invalidate(paths...)
	}

	affected := changedKeys
	if w.graph != nil && len(changedKeys) > 0 {
		affected = w.graph.WithDependantModules(changedKeys)
	}
	if projectWide {
		logging.Info("Watcher", "project config changed")
	}

	if w.redrive == nil {
		return
	}
	if err := w.redrive(affected); err != nil {
		logging.Error("Watcher", err, "redrive failed")
	}
}
