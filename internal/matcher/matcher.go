// Package matcher decides whether a single rule fires for a single token.
// Matching is pure string containment; there is no regex and no normalization
// at this level (surface forms are normalized once at the load boundary).
package matcher

import (
	"strings"

	"glyphscore/domain/rules"
)

// Match reports whether rule fires for token in section. The empty section is
// the unknown section. A non-match is a normal outcome, never an error.
func Match(token, section string, rule *rules.Rule) bool {
	if !rule.Gated(section) {
		return false
	}
	return MatchPattern(token, rule)
}

// MatchPattern applies only the pattern half of a rule, ignoring section gating
func MatchPattern(token string, rule *rules.Rule) bool {
	switch rule.Kind {
	case rules.KindPrefix:
		return strings.HasPrefix(token, rule.Pattern)
	case rules.KindSuffix:
		return strings.HasSuffix(token, rule.Pattern)
	case rules.KindChargram:
		return strings.Contains(token, rule.Pattern)
	case rules.KindPair:
		return matchPair(token, rule.Head, rule.Tail)
	default:
		return false
	}
}

// matchPair locates the first occurrence of head and then requires tail to
// start at or after the byte immediately following that occurrence.
// An empty head or tail places no constraint on that half.
func matchPair(token, head, tail string) bool {
	i := strings.Index(token, head)
	if i < 0 {
		return false
	}
	return strings.Contains(token[i+len(head):], tail)
}
