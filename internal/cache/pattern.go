package cache

import (
	"regexp"
	"strings"
	"sync"
)

// patternMatcher classifies a key-matching pattern the way the teacher's
// invalidation/patterns.go PatternMatcher does: exact, prefix (`foo*`),
// suffix (`*foo`), contains (`*foo*`), or regex (`re:...`), with a cached
// compiled regexp for the regex case.
type patternMatcher struct {
	mu    sync.Mutex
	regex map[string]*regexp.Regexp
}

func newPatternMatcher() *patternMatcher {
	return &patternMatcher{regex: make(map[string]*regexp.Regexp)}
}

func (m *patternMatcher) matches(pattern, key string) bool {
	switch {
	case strings.HasPrefix(pattern, "re:"):
		return m.matchesRegex(pattern[len("re:"):], key)
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		return strings.Contains(key, pattern[1:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(key, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(key, pattern[:len(pattern)-1])
	default:
		return pattern == key
	}
}

func (m *patternMatcher) matchesRegex(expr, key string) bool {
	m.mu.Lock()
	re, ok := m.regex[expr]
	if !ok {
		var err error
		re, err = regexp.Compile(expr)
		if err != nil {
			m.mu.Unlock()
			return false
		}
		m.regex[expr] = re
	}
	m.mu.Unlock()
	return re.MatchString(key)
}

// InvalidatePattern removes every tier-1 key matching pattern and returns
// the count removed. A maintenance hook, not required by any single
// ApiClient operation.
func (s *Store) InvalidatePattern(pattern string) int {
	if s.matcher == nil {
		s.matcher = newPatternMatcher()
	}

	s.mu.Lock()
	var toDelete []string
	for key := range s.tier1 {
		if s.matcher.matches(pattern, key) {
			toDelete = append(toDelete, key)
		}
	}
	for _, key := range toDelete {
		delete(s.tier1, key)
	}
	s.mu.Unlock()

	for _, key := range toDelete {
		if s.dir != "" {
			s.Delete(key)
		}
	}
	return len(toDelete)
}
