// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lobby Contributors

// Package origin matches request origins against an allowlist of glob
// patterns such as "https://*.example.com" or "http://localhost:*".
//
// Patterns use '.' as the separator, so "*" matches a single host label
// and "**" matches any number of them.
package origin

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Policy is a compiled origin allowlist. The zero value and a policy built
// from no patterns allow nothing; callers decide what an empty list means
// via Empty.
type Policy struct {
	patterns []compiledPattern
}

// Compile builds a policy from patterns. Blank patterns are ignored.
func Compile(patterns []string) (*Policy, error) {
	p := &Policy{}
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(strings.ToLower(pattern), '.')
		if err != nil {
			return nil, oops.In("origin").
				Code("INVALID_ORIGIN_PATTERN").
				With("pattern", pattern).
				Wrap(err)
		}
		p.patterns = append(p.patterns, compiledPattern{pattern: pattern, glob: g})
	}
	return p, nil
}

// Empty reports whether the policy has no patterns.
func (p *Policy) Empty() bool {
	return p == nil || len(p.patterns) == 0
}

// Allows reports whether origin matches any pattern. Matching ignores case
// and a trailing slash.
func (p *Policy) Allows(origin string) bool {
	if p == nil || origin == "" {
		return false
	}
	origin = strings.ToLower(strings.TrimSuffix(origin, "/"))
	for _, cp := range p.patterns {
		if cp.glob.Match(origin) {
			return true
		}
	}
	return false
}

// Patterns returns the source patterns in order.
func (p *Policy) Patterns() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.patterns))
	for i, cp := range p.patterns {
		out[i] = cp.pattern
	}
	return out
}
