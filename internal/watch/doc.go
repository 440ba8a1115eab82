// Package watch implements the Watcher hook: it watches the project's
// config directories and each module's tracked source tree for changes,
// debounces bursts of filesystem events into a single redrive, invalidates
// the affected VersionResolver cache entries, and calls an injected
// Redriver with the set of modules the change (and its dependants) touch.
//
// The policy of what a redrive actually does — re-resolve the config graph,
// re-derive a task list, re-submit it to the scheduler — belongs to the
// caller; this package only detects change and names what it affects.
package watch
