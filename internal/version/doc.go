// Package version computes and memoises ModuleVersion: a module's content
// digest combined with the digests of its build-time dependencies. Results
// are cached per (module name, sorted dependency name list) key, and the
// cache can be invalidated by path prefix when the watcher observes a
// tracked file change.
package version
