package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against trailing path segments; false = basename only
}

// IgnoreMatcher filters file-list entries and walked files.
// Patterns without '/' match the basename only. Patterns with '/' match the
// whole path or any trailing run of its segments, so "build/*.o" matches
// both "build/main.o" and "/src/app/build/main.o".
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether path should be ignored.
func (m *IgnoreMatcher) Match(path string) bool {
	if len(m.patterns) == 0 || path == "" {
		return false
	}

	normalized := filepath.ToSlash(path)
	basename := filepath.Base(path)

	for _, p := range m.patterns {
		if !p.matchPath {
			if ok, err := filepath.Match(p.pattern, basename); err == nil && ok {
				return true
			}
			continue
		}
		if matchTrailing(p.pattern, normalized) {
			return true
		}
	}
	return false
}

// matchTrailing tries pattern against path and each suffix of path that
// starts at a segment boundary. Bad patterns never match.
func matchTrailing(pattern, path string) bool {
	candidate := path
	for {
		ok, err := filepath.Match(pattern, candidate)
		if err != nil {
			return false
		}
		if ok {
			return true
		}
		i := strings.Index(candidate, "/")
		if i < 0 {
			return false
		}
		candidate = candidate[i+1:]
	}
}

// ParseIgnoreFile reads one pattern per line from path.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
