// Package scheduler implements the TaskGraph: the execution engine that
// turns a set of requested tasks (builds, service starts, tests, ad-hoc
// commands) into a dependency-ordered run, de-duplicating identical work,
// caching completed results, throttling per-type concurrency, and
// cascading cancellation when a dependency fails.
//
// A Graph owns a single internal command loop — the only goroutine that
// ever reads or mutates its bookkeeping (index, in-progress set, result
// cache). Task bodies run concurrently on their own goroutines; each
// reports back to the loop via a command rather than touching Graph state
// directly, so the bookkeeping never needs a lock.
package scheduler
