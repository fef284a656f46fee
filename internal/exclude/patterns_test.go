package exclude

import "testing"

func TestIsExcluded(t *testing.T) {
	matcher := New([]string{"*.bak", "secrets/", "docs/**/draft-*"})

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		// Defaults
		{".git", true, true},
		{".git/config", false, true},
		{".DS_Store", false, true},
		{"sub/.DS_Store", false, true},
		{"node_modules/pkg/index.js", false, true},
		{"scratch.tmp", false, true},
		{"download.partial", false, true},
		{".env", false, true},
		{".env.production", false, true},
		{"certs/server.key", false, true},
		{"._resource", false, true},

		// User patterns
		{"old.bak", false, true},
		{"sub/old.bak", false, true},
		{"secrets", true, true},
		{"secrets/token.txt", false, true},
		{"docs/2026/draft-plan.md", false, true},

		// Kept
		{"main.go", false, false},
		{"docs/final.md", false, false},
		{"environment.txt", false, false},
		{"gitignore", false, false},
		{"tmp-notes.txt", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := matcher.IsExcluded(tt.path, tt.isDir); got != tt.want {
				t.Errorf("IsExcluded(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestNilMatcherExcludesNothing(t *testing.T) {
	var matcher *Matcher
	if matcher.IsExcluded(".git/config", false) {
		t.Error("nil matcher must not exclude")
	}
}

func TestNewSkipsBlankPatterns(t *testing.T) {
	matcher := New([]string{"", "  ", "*.log"})
	if !matcher.IsExcluded("app.log", false) {
		t.Error("expected *.log to match")
	}
	if matcher.IsExcluded("app.txt", false) {
		t.Error("blank patterns must not match everything")
	}
}
