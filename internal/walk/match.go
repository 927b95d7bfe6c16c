package walk

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// Matcher selects tracked files by their base name.
type Matcher struct {
	g glob.Glob
}

// NewMatcher compiles a glob such as "*.txt".
func NewMatcher(pattern string) (Matcher, error) {
	g, err := glob.Compile(pattern, '/', filepath.Separator)
	if err != nil {
		return Matcher{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return Matcher{g: g}, nil
}

// MustMatcher is NewMatcher for static patterns.
func MustMatcher(pattern string) Matcher {
	m, err := NewMatcher(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether the base name of path matches. A zero Matcher
// matches everything.
func (m Matcher) Match(path string) bool {
	if m.g == nil {
		return true
	}
	return m.g.Match(filepath.Base(path))
}
