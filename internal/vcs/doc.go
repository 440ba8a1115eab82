// Package vcs is the VCS collaborator: it ensures remote sources declared
// in project configuration are checked out locally (go-git clone/fetch/
// checkout), and computes a module's tree digest for the version resolver
// by hashing its tracked files via the repository's worktree status and
// HEAD tree, stable across directory-entry reordering.
package vcs
