// Package config implements ConfigLoader: it reads a project's declarative
// YAML documents — one Project declaration and any number of Module
// declarations, in either flat (kind-discriminated) or nested (project:/
// module: scoped) style — into typed records, honouring VCS-style ignore
// patterns and requesting remote checkouts for sources declared with a
// repositoryUrl.
//
// It also implements LocalConfigStore, the per-project on-disk document that
// holds user identity and local source-link overrides.
package config
