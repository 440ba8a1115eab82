package version

import "time"

// ModuleVersion is a module's resolved, deterministic version identity.
type ModuleVersion struct {
	// VersionString is the digest of the module's own tree hash combined
	// with its sorted dependency versions.
	VersionString string

	// DirtyTimestamp is the latest uncommitted-change time across the
	// module and its dependencies, or the zero Time if nothing is dirty.
	DirtyTimestamp time.Time

	// DependencyVersions maps each direct build dependency's module key to
	// its resolved VersionString.
	DependencyVersions map[string]string

	// TreeHash is the module's own content digest, before dependencies are
	// folded in.
	TreeHash string
}

// TreeInfo is what the VCS collaborator reports for a single module's
// working tree.
type TreeInfo struct {
	Hash           string
	Dirty          bool
	DirtyTimestamp time.Time
}
