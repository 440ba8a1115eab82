// Package action implements the ActionDispatcher: typed entry points for
// plugin, module, service, and task actions, built on top of the dispatch
// table internal/provider's Registry populates. Inputs and outputs are
// schema-validated where the resolved provider declared an ActionSchema for
// the action, and validation failures report the first failing field's
// fully-qualified path.
package action
