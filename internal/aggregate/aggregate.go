// Package aggregate rolls per-occurrence verdicts up into structural vectors
// keyed by a caller-chosen grouping (token type, folio, section, family, ...).
package aggregate

import (
	"fmt"
	"strings"

	"glyphscore/domain/core"
	"glyphscore/domain/features"
	"glyphscore/domain/tokens"
)

// KeyedVerdict pairs a verdict with the grouping key it aggregates under
type KeyedVerdict struct {
	Key     string
	Verdict tokens.TokenVerdict
}

type accumulator struct {
	count                     int
	left, right, unknown, tie int
	sumLeft, sumRight         float64
	sumHits, sumAxis          float64
}

func (a *accumulator) add(v tokens.TokenVerdict) {
	a.count++
	switch v.PredictedSide {
	case tokens.VerdictLeft:
		a.left++
	case tokens.VerdictRight:
		a.right++
	case tokens.VerdictUnknown:
		a.unknown++
	case tokens.VerdictTie:
		a.tie++
	}
	a.sumLeft += v.LeftScore
	a.sumRight += v.RightScore
	a.sumHits += float64(v.RuleHitCount)
	a.sumAxis += v.AxisDiff()
}

func (a *accumulator) vector(key string) features.StructuralVector {
	n := float64(a.count)
	return features.StructuralVector{
		Key:            key,
		Count:          a.count,
		LeftFrac:       float64(a.left) / n,
		RightFrac:      float64(a.right) / n,
		UnknownFrac:    float64(a.unknown) / n,
		TieFrac:        float64(a.tie) / n,
		MeanLeftScore:  a.sumLeft / n,
		MeanRightScore: a.sumRight / n,
		MeanRuleHits:   a.sumHits / n,
		MeanAxisDiff:   a.sumAxis / n,
	}
}

// Aggregate groups verdicts by key. All fractions share the group count as
// denominator; ties feed no fraction. The returned order lists keys by first
// appearance. Sums accumulate in input order, so identical input yields
// bit-identical vectors.
func Aggregate(verdicts []KeyedVerdict) (map[string]features.StructuralVector, []string) {
	accs := make(map[string]*accumulator)
	var order []string
	for _, kv := range verdicts {
		acc, ok := accs[kv.Key]
		if !ok {
			acc = &accumulator{}
			accs[kv.Key] = acc
			order = append(order, kv.Key)
		}
		acc.add(kv.Verdict)
	}

	out := make(map[string]features.StructuralVector, len(accs))
	for _, key := range order {
		out[key] = accs[key].vector(key)
	}
	return out, order
}

// KeyFunc derives a grouping key from one occurrence
type KeyFunc func(o tokens.Occurrence) string

// Grouping names accepted by KeyFuncFor
const (
	GroupByType    = "type"
	GroupByFolio   = "folio"
	GroupBySection = "section"
	GroupByLine    = "line"
)

// UnknownSectionKey groups occurrences without a section
const UnknownSectionKey = "(unknown)"

// KeyFuncFor resolves a named grouping against a corpus. Folio and line
// groupings require the corpus to carry those columns.
func KeyFuncFor(groupBy string, corpus *tokens.Corpus) (KeyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(groupBy)) {
	case GroupByType, "":
		return func(o tokens.Occurrence) string { return o.SurfaceForm }, nil
	case GroupBySection:
		return func(o tokens.Occurrence) string {
			if o.Section == "" {
				return UnknownSectionKey
			}
			return o.Section
		}, nil
	case GroupByFolio:
		if !corpus.HasFolio {
			return nil, core.NewMissingColumnError(corpus.Name, "folio")
		}
		return func(o tokens.Occurrence) string { return o.Folio }, nil
	case GroupByLine:
		if !corpus.HasFolio || !corpus.HasLine {
			col := "line"
			if !corpus.HasFolio {
				col = "folio"
			}
			return nil, core.NewMissingColumnError(corpus.Name, col)
		}
		return func(o tokens.Occurrence) string { return o.Folio + "." + o.Line }, nil
	default:
		return nil, core.NewConfigError("group_by", fmt.Sprintf("unknown grouping %q", groupBy))
	}
}

// FamilyKey groups types through a caller-supplied family map. Types absent
// from the map fall into fallback, or are dropped when fallback is empty.
func FamilyKey(families map[string]string, fallback string) KeyFunc {
	return func(o tokens.Occurrence) string {
		if f, ok := families[o.SurfaceForm]; ok {
			return f
		}
		return fallback
	}
}

// Keyed zips occurrences with their verdicts under key. Occurrences whose key
// is empty are skipped.
func Keyed(occurrences []tokens.Occurrence, verdicts []tokens.TokenVerdict, key KeyFunc) ([]KeyedVerdict, error) {
	if len(occurrences) != len(verdicts) {
		return nil, core.NewConfigError("verdicts", fmt.Sprintf("%d verdicts for %d occurrences", len(verdicts), len(occurrences)))
	}
	out := make([]KeyedVerdict, 0, len(occurrences))
	for i, o := range occurrences {
		k := key(o)
		if k == "" {
			continue
		}
		out = append(out, KeyedVerdict{Key: k, Verdict: verdicts[i]})
	}
	return out, nil
}

// Vectors returns the vectors in the given key order
func Vectors(table map[string]features.StructuralVector, order []string) []features.StructuralVector {
	out := make([]features.StructuralVector, 0, len(order))
	for _, k := range order {
		if v, ok := table[k]; ok {
			out = append(out, v)
		}
	}
	return out
}
