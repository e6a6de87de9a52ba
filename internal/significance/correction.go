package significance

import (
	"math"

	"glyphscore/domain/stats"
	"glyphscore/domain/verdict"
)

// Bonferroni corrects one raw p-value for a family of n simultaneous tests
func Bonferroni(p float64, n int) float64 {
	if n < 1 {
		n = 1
	}
	return math.Min(1.0, p*float64(n))
}

// Family is a set of simultaneous tests corrected together. Unrelated
// families are never corrected against each other.
type Family struct {
	Name    string
	names   []string
	results []*stats.NullModelResult
}

// NewFamily creates an empty test family
func NewFamily(name string) *Family {
	return &Family{Name: name}
}

// Add registers a test result under a member name
func (f *Family) Add(name string, res *stats.NullModelResult) {
	f.names = append(f.names, name)
	f.results = append(f.results, res)
}

// Len returns the number of tests in the family
func (f *Family) Len() int { return len(f.results) }

// Correct sets every member's corrected p-value and returns the family in
// insertion order
func (f *Family) Correct() []FamilyMember {
	out := make([]FamilyMember, len(f.results))
	for i, res := range f.results {
		p := Bonferroni(res.PValue, len(f.results))
		res.CorrectedPValue = &p
		out[i] = FamilyMember{Name: f.names[i], Result: res}
	}
	return out
}

// FamilyMember is one corrected result of a family
type FamilyMember struct {
	Name   string
	Result *stats.NullModelResult
}

// Summarize builds a result row, classified by the corrected p-value when one
// was assigned
func Summarize(family, name, method string, res *stats.NullModelResult, effect *float64, th verdict.Thresholds) stats.TestRecord {
	return stats.NewTestRecord(family, name, method, res, effect, th.Classify(res.Corrected(), effect))
}
