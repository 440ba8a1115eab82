package scheduler

import (
	"context"
	"time"

	"grove/internal/version"
)

// Task is one unit of schedulable work: a module build, a service start, a
// test run, or any other action the command layer wants ordered against its
// dependencies and de-duplicated against identical in-flight work.
//
// BaseKey and Key must be stable for the lifetime of the graph: BaseKey
// identifies the task's identity regardless of parameters ("build.api"),
// Key additionally encodes its parameters ("build.api.a1b2c3d4"). Two tasks
// sharing a BaseKey are treated as variants of the same underlying work and
// never run concurrently; two tasks sharing a Key are treated as the exact
// same request and are coalesced into one.
type Task interface {
	// Type names the task's kind, e.g. "build", "deploy", "test".
	Type() string

	// BaseKey identifies this task's work regardless of parameters.
	BaseKey() string

	// Key identifies this exact task, parameters included.
	Key() string

	// Description is a short human-readable label used in TaskResult and
	// logging; it never affects scheduling.
	Description() string

	// Version is the resolved module version this task operates against.
	Version() version.ModuleVersion

	// Force reports whether a cached result for Key must be ignored and
	// the task re-run regardless.
	Force() bool

	// ConcurrencyLimit caps how many tasks of this Type may run at once
	// graph-wide. Zero or negative means unlimited.
	ConcurrencyLimit() int

	// Dependencies returns the tasks this task depends on. It must be
	// deterministic for a given Key: called once per add, its result is
	// cached under Key for the lifetime of the graph.
	Dependencies() ([]Task, error)

	// Process executes the task body, given the completed results of its
	// dependencies keyed by their Key. It runs on its own goroutine, outside
	// the graph's command loop, so it may call AddTask (passing itself as
	// parent) to enqueue more work.
	Process(ctx context.Context, dependencyResults map[string]TaskResult) (map[string]interface{}, error)
}

// TaskResult is the terminal record of one task's execution, whether it
// completed or failed.
type TaskResult struct {
	Type        string
	BaseKey     string
	Key         string
	ID          string
	Description string

	StartedAt   time.Time
	CompletedAt time.Time

	Output map[string]interface{}
	Err    error

	DependencyResults map[string]TaskResult
}

// Failed reports whether this result represents a failed or cancelled task.
func (r TaskResult) Failed() bool { return r.Err != nil }
