package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"glyphscore/domain/core"

	"golang.org/x/text/unicode/norm"
)

// Kind identifies how a rule pattern is matched against a token
type Kind string

const (
	KindPrefix   Kind = "prefix"
	KindSuffix   Kind = "suffix"
	KindChargram Kind = "chargram"
	KindPair     Kind = "pair"
)

// ParseKind validates a raw kind string
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPrefix, KindSuffix, KindChargram, KindPair:
		return k, nil
	default:
		return "", core.NewConfigError("kind", fmt.Sprintf("unknown rule kind %q", s))
	}
}

// Side is the direction a rule votes for
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ParseSide validates a raw predicted-side string
func ParseSide(s string) (Side, error) {
	switch side := Side(strings.ToLower(strings.TrimSpace(s))); side {
	case SideLeft, SideRight:
		return side, nil
	default:
		return "", core.NewConfigError("pred_side", fmt.Sprintf("unknown side %q", s))
	}
}

// PairSeparator splits the two halves of a pair pattern
const PairSeparator = "|"

// RuleSpec is the raw, unvalidated form of a rule as it arrives from a loader
type RuleSpec struct {
	ID             string             `yaml:"id,omitempty"`
	Kind           string             `yaml:"kind"`
	Pattern        string             `yaml:"pattern"`
	PredictedSide  string             `yaml:"pred_side"`
	Weight         float64            `yaml:"base_weight"`
	AllowSections  []string           `yaml:"allow_sections,omitempty"`
	DenySections   []string           `yaml:"deny_sections,omitempty"`
	SectionWeights map[string]float64 `yaml:"section_weights,omitempty"`
}

// Rule is a weighted, optionally section-gated pattern that votes for a side.
// A Rule is read-only once constructed by NewRule.
type Rule struct {
	ID            core.RuleID
	Kind          Kind
	Pattern       string
	Head          string // pair rules only
	Tail          string // pair rules only
	PredictedSide Side
	Weight        float64

	allow          map[string]struct{}
	deny           map[string]struct{}
	sectionWeights map[string]float64
}

// NewRule validates a spec and builds an immutable rule. Patterns and section
// names are NFC-normalized, matching how corpora are loaded.
func NewRule(spec RuleSpec) (Rule, error) {
	kind, err := ParseKind(spec.Kind)
	if err != nil {
		return Rule{}, err
	}
	side, err := ParseSide(spec.PredictedSide)
	if err != nil {
		return Rule{}, err
	}
	if spec.Weight < 0 {
		return Rule{}, core.NewConfigError("base_weight", fmt.Sprintf("weight must be >= 0, got %v", spec.Weight))
	}

	pattern := norm.NFC.String(spec.Pattern)
	r := Rule{
		ID:            core.RuleID(strings.TrimSpace(spec.ID)),
		Kind:          kind,
		Pattern:       pattern,
		PredictedSide: side,
		Weight:        spec.Weight,
		allow:         toSet(spec.AllowSections),
		deny:          toSet(spec.DenySections),
	}

	if kind == KindPair {
		head, tail, ok := strings.Cut(pattern, PairSeparator)
		if !ok {
			return Rule{}, core.NewConfigError("pattern", fmt.Sprintf("pair pattern %q lacks %q separator", spec.Pattern, PairSeparator))
		}
		r.Head, r.Tail = head, tail
	} else if pattern == "" {
		return Rule{}, core.NewConfigError("pattern", fmt.Sprintf("%s rule requires a pattern", kind))
	}

	if len(spec.SectionWeights) > 0 {
		r.sectionWeights = make(map[string]float64, len(spec.SectionWeights))
		for section, m := range spec.SectionWeights {
			if m < 0 {
				return Rule{}, core.NewConfigError("section_weight_"+section, fmt.Sprintf("multiplier must be >= 0, got %v", m))
			}
			r.sectionWeights[norm.NFC.String(section)] = m
		}
	}

	return r, nil
}

// Gated reports whether the rule may fire for the given section.
// The empty section stands for an unknown section.
func (r Rule) Gated(section string) bool {
	if section != "" {
		if _, denied := r.deny[section]; denied {
			return false
		}
	}
	if len(r.allow) == 0 {
		return true
	}
	if section == "" {
		return false
	}
	_, ok := r.allow[section]
	return ok
}

// EffectiveWeight returns the base weight scaled by the section multiplier, if any
func (r Rule) EffectiveWeight(section string) float64 {
	if m, ok := r.sectionWeights[section]; ok {
		return r.Weight * m
	}
	return r.Weight
}

// AllowSections returns the allow list in sorted order
func (r Rule) AllowSections() []string { return sortedKeys(r.allow) }

// DenySections returns the deny list in sorted order
func (r Rule) DenySections() []string { return sortedKeys(r.deny) }

// SectionMultiplier returns the multiplier configured for a section
func (r Rule) SectionMultiplier(section string) (float64, bool) {
	m, ok := r.sectionWeights[section]
	return m, ok
}

// Canonical returns a stable textual encoding used for fingerprinting
func (r Rule) Canonical() string {
	var b strings.Builder
	b.WriteString(string(r.Kind))
	b.WriteByte('\t')
	b.WriteString(r.Pattern)
	b.WriteByte('\t')
	b.WriteString(string(r.PredictedSide))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatFloat(r.Weight, 'g', -1, 64))
	b.WriteByte('\t')
	b.WriteString(strings.Join(r.AllowSections(), ","))
	b.WriteByte('\t')
	b.WriteString(strings.Join(r.DenySections(), ","))
	for _, section := range sortedKeys(r.sectionWeights) {
		b.WriteString("\t" + section + "=" + strconv.FormatFloat(r.sectionWeights[section], 'g', -1, 64))
	}
	return b.String()
}

// RuleSet is a finite collection of rules loaded once per batch run and
// shared read-only between scoring calls
type RuleSet struct {
	name  string
	rules []Rule
	hash  core.RuleSetHash
}

// NewRuleSet assigns missing rule IDs, rejects duplicates and fingerprints the set
func NewRuleSet(name string, rules []Rule) (*RuleSet, error) {
	owned := make([]Rule, len(rules))
	copy(owned, rules)

	seen := make(map[core.RuleID]bool, len(owned))
	canonical := make([]string, 0, len(owned))
	for i := range owned {
		if owned[i].ID == "" {
			owned[i].ID = core.RuleID(fmt.Sprintf("r%04d", i+1))
		}
		if seen[owned[i].ID] {
			return nil, core.NewConfigError("id", fmt.Sprintf("duplicate rule id %q", owned[i].ID))
		}
		seen[owned[i].ID] = true
		canonical = append(canonical, owned[i].Canonical())
	}

	return &RuleSet{
		name:  name,
		rules: owned,
		hash:  core.RuleSetHash(core.ComputeUnorderedHash(canonical)),
	}, nil
}

// Name returns the rule set label
func (rs *RuleSet) Name() string { return rs.name }

// Len returns the number of rules
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Rules returns the rules; the returned slice is a copy of the set's slice header
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Each calls fn with a pointer into the set for every rule. fn must not
// modify the rule.
func (rs *RuleSet) Each(fn func(r *Rule)) {
	for i := range rs.rules {
		fn(&rs.rules[i])
	}
}

// Hash returns an order-insensitive fingerprint of the rule contents
func (rs *RuleSet) Hash() core.RuleSetHash { return rs.hash }

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = norm.NFC.String(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
