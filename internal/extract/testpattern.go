package extract

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// TestConfig is the configurable predicate set deciding which functions
// count as tests for the tests relationship. Conventions differ per
// ecosystem, so all three predicate families are open to configuration;
// a zero TestConfig disables test detection entirely.
type TestConfig struct {
	NamePrefixes []string // function name starts with
	NameSuffixes []string // function name ends with
	PathGlobs    []string // doublestar globs matched against the container path
}

// DefaultTestConfig covers the stock conventions of the registered
// languages.
func DefaultTestConfig() TestConfig {
	return TestConfig{
		NamePrefixes: []string{"test_", "Test"},
		NameSuffixes: []string{"_test", "Test"},
		PathGlobs: []string{
			"**/test_*.py",
			"**/*_test.py",
			"**/*_test.go",
			"**/*.test.js",
			"**/*.test.ts",
			"**/*.spec.js",
			"**/*.spec.ts",
			"**/tests/**",
			"**/test/**",
		},
	}
}

// Enabled reports whether any predicate is configured.
func (c TestConfig) Enabled() bool {
	return len(c.NamePrefixes) > 0 || len(c.NameSuffixes) > 0 || len(c.PathGlobs) > 0
}

// Matches reports whether a function with the given name in the given
// container path is a test. Name predicates and path globs are OR-ed:
// matching either convention is enough.
func (c TestConfig) Matches(name, path string) bool {
	for _, prefix := range c.NamePrefixes {
		if name != prefix && strings.HasPrefix(name, prefix) {
			return true
		}
	}
	for _, suffix := range c.NameSuffixes {
		if name != suffix && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	normalized := filepath.ToSlash(path)
	for _, glob := range c.PathGlobs {
		if ok, err := doublestar.Match(glob, normalized); err == nil && ok {
			return true
		}
	}
	return false
}
