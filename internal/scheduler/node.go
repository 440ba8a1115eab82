package scheduler

import "time"

// node is the scheduler-internal wrapper around a submitted Task: TaskNode
// from the task graph's point of view. It is only ever touched from the
// Graph's command loop goroutine.
type node struct {
	task Task

	id          string
	baseKey     string
	key         string
	description string

	// parentType is the Type() of the task that enqueued this node via
	// AddTask, or "" if it was added as a top-level request. It is never
	// set for nodes discovered transitively through Dependencies() — only
	// for the tasks literally passed to AddTask — since it exists solely
	// to let a task re-enqueue more of its own type without deadlocking
	// against its own concurrency ceiling.
	parentType string

	// dependsOn is the full, original set of dependency keys this node
	// was added with. It never shrinks; remaining tracks what's still
	// outstanding.
	dependsOn []string
	remaining map[string]bool

	dependants map[string]bool

	inProgress bool
	startedAt  time.Time
}

func (n *node) isRoot() bool {
	return !n.inProgress && len(n.remaining) == 0
}
