package exclude

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides which relative paths are skipped during local enumeration.
type Matcher struct {
	patterns []string
}

// DefaultPatterns is the ignore set applied on top of user patterns.
func DefaultPatterns() []string {
	return []string{
		".git/",
		".DS_Store",
		"._*",
		"node_modules/",
		"*.tmp",
		"*.partial",
		".env",
		".env.*",
		"*.key",
		"*.pem",
	}
}

// New builds a matcher from user patterns merged with the defaults.
func New(patterns []string) *Matcher {
	merged := append([]string{}, DefaultPatterns()...)
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		merged = append(merged, p)
	}
	return &Matcher{patterns: merged}
}

// IsExcluded reports whether relPath matches any pattern. Patterns ending in
// "/" exclude a directory and everything beneath it; other patterns are
// doublestar globs matched against the full relative path and its base name.
func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	base := relPath
	if idx := strings.LastIndex(relPath, "/"); idx >= 0 {
		base = relPath[idx+1:]
	}

	for _, p := range m.patterns {
		if strings.HasSuffix(p, "/") {
			dirPattern := strings.TrimSuffix(p, "/")
			if relPath == dirPattern || strings.HasPrefix(relPath, dirPattern+"/") {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, base); ok {
			return true
		}
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
	}
	return false
}
