// Package provider implements the ProviderRegistry: named plugin factories
// are loaded, their declared config merged and validated, and their
// handlers installed into a dispatch table keyed by (action type, module
// type, provider name). internal/action builds on this table to expose
// typed entry points for each named action.
package provider
