package match

import (
	"regexp"
	"strings"
	"sync"

	"grokflow/guardrails/pkg/store"
)

// RegexCache holds compiled case-insensitive patterns. Patterns that fail to
// compile are cached too and match as literal substrings. It is safe for
// concurrent use.
type RegexCache struct {
	mu      sync.RWMutex
	entries map[string]*compiledPattern
}

type compiledPattern struct {
	re      *regexp.Regexp
	literal string // folded pattern text, used when re is nil
	err     error
}

// NewRegexCache creates an empty cache.
func NewRegexCache() *RegexCache {
	return &RegexCache{entries: make(map[string]*compiledPattern)}
}

// get returns the compiled form of pattern and whether it was already cached.
func (c *RegexCache) get(pattern string) (*compiledPattern, bool) {
	c.mu.RLock()
	p, ok := c.entries[pattern]
	c.mu.RUnlock()
	if ok {
		return p, true
	}

	p = &compiledPattern{}
	p.re, p.err = regexp.Compile("(?i)" + pattern)
	if p.err != nil {
		p.re = nil
		p.literal = store.Fold(pattern)
	}

	c.mu.Lock()
	if existing, ok := c.entries[pattern]; ok {
		p = existing
	} else {
		c.entries[pattern] = p
	}
	c.mu.Unlock()
	return p, false
}

// Compile returns the compile error for pattern, if any, caching the result.
func (c *RegexCache) Compile(pattern string) error {
	p, _ := c.get(pattern)
	return p.err
}

// Len returns the number of cached patterns.
func (c *RegexCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Reset drops every cached pattern.
func (c *RegexCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*compiledPattern)
}

// match reports whether p matches query. folded is store.Fold(query).
func (p *compiledPattern) match(query, folded string) bool {
	if p.re != nil {
		return p.re.MatchString(query)
	}
	return p.literal != "" && strings.Contains(folded, p.literal)
}
