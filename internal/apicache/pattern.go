package apicache

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Pattern matches cache keys for bulk invalidation.
// A pattern without glob metacharacters is a plain substring match,
// otherwise it is a glob over the whole key ("*" spans any characters).
type Pattern struct {
	raw  string
	glob glob.Glob
}

// CompilePattern parses a pattern
func CompilePattern(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, fmt.Errorf("empty invalidation pattern")
	}
	if !strings.ContainsAny(raw, "*?[{\\") {
		return Pattern{raw: raw}, nil
	}

	g, err := glob.Compile(raw)
	if err != nil {
		return Pattern{}, fmt.Errorf("invalid invalidation pattern %q: %w", raw, err)
	}
	return Pattern{raw: raw, glob: g}, nil
}

// MustCompilePattern is CompilePattern for route declarations; it panics on a
// malformed pattern.
func MustCompilePattern(raw string) Pattern {
	p, err := CompilePattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether key is selected by the pattern
func (p Pattern) Match(key string) bool {
	if p.glob != nil {
		return p.glob.Match(key)
	}
	return p.raw != "" && strings.Contains(key, p.raw)
}

func (p Pattern) String() string {
	return p.raw
}
