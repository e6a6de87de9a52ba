package tokens

import (
	"fmt"

	"glyphscore/domain/core"
)

// Occurrence is one token occurrence in the corpus. Its type is its surface form.
// Section, Folio and Line are empty when unknown.
type Occurrence struct {
	SurfaceForm    string `json:"surface_form" db:"surface_form"`
	Section        string `json:"section,omitempty" db:"section"`
	Folio          string `json:"folio,omitempty" db:"folio"`
	Line           string `json:"line,omitempty" db:"line"`
	PositionInLine int    `json:"position_in_line" db:"position_in_line"`
}

// Corpus is the fully loaded, read-only set of occurrences for a batch run
type Corpus struct {
	Name        string
	Occurrences []Occurrence
	// HasFolio and HasLine record whether the source carried those columns
	HasFolio bool
	HasLine  bool
}

// Len returns the number of occurrences
func (c *Corpus) Len() int { return len(c.Occurrences) }

// Hash fingerprints the corpus in occurrence order
func (c *Corpus) Hash() core.CorpusHash {
	records := make([]string, len(c.Occurrences))
	for i, o := range c.Occurrences {
		records[i] = fmt.Sprintf("%s\t%s\t%s\t%s\t%d", o.SurfaceForm, o.Section, o.Folio, o.Line, o.PositionInLine)
	}
	return core.CorpusHash(core.ComputeOrderedHash(records))
}

// Sections returns the distinct known sections in first-seen order
func (c *Corpus) Sections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range c.Occurrences {
		if o.Section == "" || seen[o.Section] {
			continue
		}
		seen[o.Section] = true
		out = append(out, o.Section)
	}
	return out
}

// Verdict is the discrete outcome of scoring one occurrence
type Verdict string

const (
	VerdictLeft    Verdict = "left"
	VerdictRight   Verdict = "right"
	VerdictTie     Verdict = "tie"
	VerdictUnknown Verdict = "unknown"
)

// TokenVerdict is the derived, ephemeral result of scoring one occurrence
type TokenVerdict struct {
	LeftScore     float64 `json:"left_score"`
	RightScore    float64 `json:"right_score"`
	PredictedSide Verdict `json:"predicted_side"`
	RuleHitCount  int     `json:"rule_hit_count"`
}

// AxisDiff is the signed continuous signal left - right
func (v TokenVerdict) AxisDiff() float64 {
	return v.LeftScore - v.RightScore
}
