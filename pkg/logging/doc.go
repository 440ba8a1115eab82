// Package logging provides the structured, subsystem-tagged logging used
// across grove's execution core.
//
// Every component (ConfigLoader, TemplateEngine, ConfigGraph, VersionResolver,
// ProviderRegistry, ActionDispatcher, TaskGraph, EventBus, Watcher) logs
// through this package rather than writing directly to stdout/stderr, tagging
// each entry with the subsystem that produced it:
//
//	logging.Info("TaskGraph", "scheduled %d root tasks", len(roots))
//	logging.Error("ConfigLoader", err, "failed to parse %s", path)
//
// Output is built on log/slog; InitForCLI wires a text handler at a given
// minimum level to an io.Writer. Call it once at process start.
package logging
