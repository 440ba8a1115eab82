package config

import (
	"strings"

	gitignore "github.com/monochromegane/go-gitignore"
)

// patternMatcher adapts go-gitignore's pattern matching (the same semantics
// as a .gitignore file) to ignoreMatcher.
type patternMatcher struct {
	matcher gitignore.IgnoreMatcher
}

func newGitignoreMatcher(patterns []string) ignoreMatcher {
	if len(patterns) == 0 {
		return noopMatcher{}
	}
	return &patternMatcher{
		matcher: gitignore.NewGitIgnoreFromReader("", strings.NewReader(strings.Join(patterns, "\n"))),
	}
}

func (pm *patternMatcher) matches(relPath string, isDir bool) bool {
	return pm.matcher.Match(relPath, isDir)
}
