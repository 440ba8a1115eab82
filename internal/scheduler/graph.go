package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"grove/internal/events"
)

const unlimited = 1 << 30

// Options configures a Graph.
type Options struct {
	// Bus receives lifecycle events. A fresh, unobserved Bus is created if
	// nil.
	Bus *events.Bus

	// GlobalConcurrencyLimit caps how many tasks may be in progress across
	// the whole graph at once. Zero or negative means unlimited.
	GlobalConcurrencyLimit int

	// MaxCacheSize bounds the result cache (see cache.go). Zero or
	// negative uses defaultMaxCacheSize.
	MaxCacheSize int
}

// Graph is the TaskGraph: it accepts tasks via AddTask, resolves their
// dependencies, and runs them to completion respecting de-duplication,
// caching, concurrency ceilings, and cancellation cascades.
//
// All bookkeeping below is only ever touched from the command-loop
// goroutine started by New; external callers only ever send closures
// through commands and wait for them to run, so none of it needs a mutex.
type Graph struct {
	ctx context.Context
	bus *events.Bus

	globalLimit int
	cache       *resultCache

	index               map[string]*node
	inProgressSet       map[string]bool
	typeInProgress      map[string]int
	taskDependencyCache map[string][]string
	resultsByKey        map[string]TaskResult
	completed           []TaskResult

	// lastByBaseKey holds, for each BaseKey ever added, the Key of the
	// most-recently-added node with that BaseKey; entries are not removed
	// when that node leaves index. addOne chains a newly-added node behind
	// it (waiting on it only while it is still in index) so that tasks
	// sharing a BaseKey always run in FIFO order, never concurrently,
	// regardless of how many distinct Keys are in flight for it at once.
	lastByBaseKey map[string]string

	processingActive bool
	idleClosed       bool
	idleCh           chan struct{}

	commands chan func()
	wg       sync.WaitGroup
}

// New starts a Graph's command loop. ctx is passed to every task's
// Process call; cancelling it is the caller's mechanism for aborting
// in-flight task bodies (the graph itself never cancels tasks except via
// the dependency-failure cascade).
func New(ctx context.Context, opts Options) *Graph {
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	limit := opts.GlobalConcurrencyLimit
	if limit <= 0 {
		limit = unlimited
	}

	g := &Graph{
		ctx:                 ctx,
		bus:                 bus,
		globalLimit:         limit,
		cache:               newResultCache(opts.MaxCacheSize),
		index:               make(map[string]*node),
		inProgressSet:       make(map[string]bool),
		typeInProgress:      make(map[string]int),
		taskDependencyCache: make(map[string][]string),
		resultsByKey:        make(map[string]TaskResult),
		lastByBaseKey:       make(map[string]string),
		idleClosed:          true,
		idleCh:              make(chan struct{}),
		commands:            make(chan func(), 64),
	}
	close(g.idleCh)
	go g.loop()
	return g
}

// Bus returns the event bus this graph publishes to.
func (g *Graph) Bus() *events.Bus { return g.bus }

func (g *Graph) loop() {
	for cmd := range g.commands {
		cmd()
	}
}

// Close stops the command loop. The caller must ensure the graph is idle
// (via Wait) first — closing while task bodies are still in flight will
// panic the next time one of them reports back.
func (g *Graph) Close() {
	close(g.commands)
}

func (g *Graph) withLoop(fn func()) {
	done := make(chan struct{})
	g.commands <- func() {
		fn()
		close(done)
	}
	<-done
}

// AddTask submits tasks for scheduling. parent, if non-nil, is the task
// whose Process body is calling back into the graph to enqueue more work;
// it is used solely to exempt same-type re-entrant submissions from that
// type's concurrency ceiling.
func (g *Graph) AddTask(tasks []Task, parent Task) error {
	parentType := ""
	if parent != nil {
		parentType = parent.Type()
	}

	errCh := make(chan error, 1)
	g.commands <- func() {
		var firstErr error
		for _, t := range tasks {
			if err := g.addOne(t, parentType); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		g.runLoop()
		errCh <- firstErr
	}
	return <-errCh
}

// Results returns every terminal TaskResult recorded so far, in the order
// they completed.
func (g *Graph) Results() []TaskResult {
	var out []TaskResult
	g.withLoop(func() {
		out = append(out, g.completed...)
	})
	return out
}

// Wait blocks until the graph has no pending or in-progress tasks, or ctx
// is done.
func (g *Graph) Wait(ctx context.Context) error {
	var idle bool
	var ch chan struct{}
	g.withLoop(func() {
		idle = g.idleClosed
		ch = g.idleCh
	})
	if idle {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate drops key from the result cache, forcing the next non-force
// AddTask for it to re-run.
func (g *Graph) Invalidate(key string) {
	g.withLoop(func() {
		g.cache.invalidate(key)
	})
}

func (g *Graph) ensureActive() {
	if g.idleClosed {
		g.idleCh = make(chan struct{})
		g.idleClosed = false
	}
}

// addOne implements the "adding a task" algorithm: de-duplication against
// an already-indexed node of the same Key, cache short-circuiting, and
// same-BaseKey serialization against an in-flight predecessor.
func (g *Graph) addOne(task Task, parentType string) error {
	key := task.Key()
	baseKey := task.BaseKey()

	if _, exists := g.index[key]; exists {
		return nil
	}

	if !task.Force() {
		if cached, ok := g.cache.get(key); ok {
			g.bus.Emit(events.Event{Type: events.TaskComplete, Key: key, Payload: cached})
			return nil
		}
	}

	predecessorKey := g.lastByBaseKey[baseKey]

	deps, err := task.Dependencies()
	if err != nil {
		return err
	}

	depKeys := make([]string, 0, len(deps)+1)
	if predecessorKey != "" {
		depKeys = append(depKeys, predecessorKey)
	}
	for _, d := range deps {
		if err := g.addOne(d, ""); err != nil {
			return err
		}
		depKeys = append(depKeys, d.Key())
	}
	g.taskDependencyCache[key] = depKeys

	remaining := make(map[string]bool, len(depKeys))
	for _, dk := range depKeys {
		if dn, ok := g.index[dk]; ok {
			remaining[dk] = true
			dn.dependants[key] = true
		}
	}

	n := &node{
		task:        task,
		id:          uuid.NewString(),
		baseKey:     baseKey,
		key:         key,
		description: task.Description(),
		parentType:  parentType,
		dependsOn:   depKeys,
		remaining:   remaining,
		dependants:  make(map[string]bool),
	}
	g.index[key] = n
	g.lastByBaseKey[baseKey] = key
	g.ensureActive()
	g.bus.Emit(events.Event{Type: events.TaskPending, Key: key})
	return nil
}

// runLoop implements the processing loop: it starts every ready root task
// that fits under the global and per-type concurrency ceilings, and emits
// the graph-wide processing/complete events on entering and leaving an
// active window.
func (g *Graph) runLoop() {
	if len(g.index) == 0 {
		if !g.idleClosed {
			close(g.idleCh)
			g.idleClosed = true
		}
		if g.processingActive {
			g.processingActive = false
			g.bus.Emit(events.Event{Type: events.TaskGraphComplete, Payload: time.Now()})
		}
		return
	}

	if !g.processingActive {
		g.processingActive = true
		g.bus.Emit(events.Event{Type: events.TaskGraphProcessing, Payload: time.Now()})
	}

	keys := make([]string, 0, len(g.index))
	for k := range g.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		n := g.index[k]
		if !n.isRoot() {
			continue
		}
		if len(g.inProgressSet) >= g.globalLimit {
			break
		}
		if limit := n.task.ConcurrencyLimit(); limit > 0 && n.parentType != n.task.Type() {
			if g.typeInProgress[n.task.Type()] >= limit {
				continue
			}
		}
		g.startNode(n)
	}
}

func (g *Graph) startNode(n *node) {
	n.inProgress = true
	n.startedAt = time.Now()
	g.inProgressSet[n.key] = true
	g.typeInProgress[n.task.Type()]++

	g.bus.Emit(events.Event{Type: events.TaskProcessing, Key: n.key, Payload: n.startedAt})

	depResults := make(map[string]TaskResult, len(n.dependsOn))
	for _, dk := range n.dependsOn {
		if r, ok := g.resultsByKey[dk]; ok {
			depResults[dk] = r
		}
	}

	task := n.task
	key := n.key
	ctx := g.ctx

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		output, err := runProcess(ctx, task, depResults)
		g.commands <- func() {
			if err != nil {
				g.onTaskFailed(key, err)
			} else {
				g.onTaskDone(key, output)
			}
			g.runLoop()
		}
	}()
}

func runProcess(ctx context.Context, task Task, depResults map[string]TaskResult) (out map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Process(ctx, depResults)
}

func (g *Graph) onTaskDone(key string, output map[string]interface{}) {
	n, ok := g.index[key]
	if !ok {
		return
	}

	result := TaskResult{
		Type:              n.task.Type(),
		BaseKey:           n.baseKey,
		Key:               key,
		ID:                n.id,
		Description:       n.description,
		StartedAt:         n.startedAt,
		CompletedAt:       time.Now(),
		Output:            output,
		DependencyResults: depSnapshot(n, g.resultsByKey),
	}
	g.resultsByKey[key] = result
	g.cache.put(result)
	g.completed = append(g.completed, result)

	dependants := sortedKeys(n.dependants)
	delete(g.index, key)
	delete(g.inProgressSet, key)
	g.typeInProgress[n.task.Type()]--

	for _, dependantKey := range dependants {
		if dn, ok := g.index[dependantKey]; ok {
			delete(dn.remaining, key)
		}
	}

	g.bus.Emit(events.Event{Type: events.TaskComplete, Key: key, Payload: result})
}

func (g *Graph) onTaskFailed(key string, taskErr error) {
	n, ok := g.index[key]
	if !ok {
		return
	}

	result := TaskResult{
		Type:              n.task.Type(),
		BaseKey:           n.baseKey,
		Key:               key,
		ID:                n.id,
		Description:       n.description,
		StartedAt:         n.startedAt,
		CompletedAt:       time.Now(),
		Err:               taskErr,
		DependencyResults: depSnapshot(n, g.resultsByKey),
	}
	g.resultsByKey[key] = result
	g.completed = append(g.completed, result)

	dependants := sortedKeys(n.dependants)
	delete(g.index, key)
	delete(g.inProgressSet, key)
	g.typeInProgress[n.task.Type()]--

	g.bus.Emit(events.Event{Type: events.TaskError, Key: key, Payload: &TaskError{Result: result, Err: taskErr}})
	g.cancelDependants(key, dependants)
}

// cancelDependants removes every transitive dependant of failedKey from the
// graph without invoking its Process body, recording each as a terminal
// failure wrapping the original cause.
func (g *Graph) cancelDependants(failedKey string, direct []string) {
	seen := make(map[string]bool)
	queue := append([]string{}, direct...)

	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if seen[k] {
			continue
		}
		seen[k] = true

		n, ok := g.index[k]
		if !ok {
			continue
		}

		result := TaskResult{
			Type:        n.task.Type(),
			BaseKey:     n.baseKey,
			Key:         k,
			ID:          n.id,
			Description: n.description,
			CompletedAt: time.Now(),
			Err:         &cancelledError{FailedKey: failedKey},
		}
		g.resultsByKey[k] = result
		g.completed = append(g.completed, result)

		more := sortedKeys(n.dependants)
		delete(g.index, k)
		delete(g.inProgressSet, k)

		g.bus.Emit(events.Event{Type: events.TaskError, Key: k, Payload: &TaskError{Result: result, Err: result.Err}})
		queue = append(queue, more...)
	}
}

func depSnapshot(n *node, resultsByKey map[string]TaskResult) map[string]TaskResult {
	if len(n.dependsOn) == 0 {
		return nil
	}
	out := make(map[string]TaskResult, len(n.dependsOn))
	for _, dk := range n.dependsOn {
		if r, ok := resultsByKey[dk]; ok {
			out[dk] = r
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
