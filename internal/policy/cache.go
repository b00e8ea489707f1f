package policy

import (
	"log/slog"
	"regexp"
	"sync"
)

// PatternCache keeps compiled label patterns per policy subject. An entry is
// recompiled only when the policy version changes.
type PatternCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	version  int64
	compiled []*regexp.Regexp
}

func NewPatternCache() *PatternCache {
	return &PatternCache{
		entries: make(map[string]cacheEntry),
	}
}

func (c *PatternCache) Get(scope Scope, subject string, version int64, patterns []string) []*regexp.Regexp {
	key := string(scope) + ":" + subject

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && e.version == version {
		return e.compiled
	}

	compiled := compileAll(patterns)

	c.mu.Lock()
	if cur, ok := c.entries[key]; !ok || cur.version <= version {
		c.entries[key] = cacheEntry{version: version, compiled: compiled}
	}
	c.mu.Unlock()

	return compiled
}

func (c *PatternCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// compileAll anchors every pattern so it must match the whole label.
// Patterns that fail to compile are skipped; admin validation rejects them
// before they are stored.
func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := compileAnchored(p)
		if err != nil {
			slog.Warn("Skipping invalid label pattern", "pattern", p, "error", err)
			continue
		}
		out = append(out, re)
	}
	return out
}

func compileAnchored(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")$")
}
