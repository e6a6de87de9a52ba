package features

import (
	"fmt"
	"sort"

	"glyphscore/domain/core"
)

// Feature names addressable by the clusterer
const (
	FeatureCount          = "count"
	FeatureLeftFrac       = "left_frac"
	FeatureRightFrac      = "right_frac"
	FeatureUnknownFrac    = "unknown_frac"
	FeatureMeanLeftScore  = "mean_left_score"
	FeatureMeanRightScore = "mean_right_score"
	FeatureMeanRuleHits   = "mean_rule_hits"
	FeatureMeanAxisDiff   = "mean_axis_diff"
)

// DefaultFeatures is the conventional clustering feature order
var DefaultFeatures = []string{
	FeatureLeftFrac,
	FeatureRightFrac,
	FeatureUnknownFrac,
	FeatureMeanAxisDiff,
	FeatureMeanRuleHits,
}

// StructuralVector summarizes the verdicts aggregated under one key.
// All fractions share Count as denominator; ties count toward no fraction,
// so the three fractions sum to less than 1 when ties exist.
type StructuralVector struct {
	Key            string  `json:"key" db:"item_key"`
	Count          int     `json:"count" db:"count"`
	LeftFrac       float64 `json:"left_frac" db:"left_frac"`
	RightFrac      float64 `json:"right_frac" db:"right_frac"`
	UnknownFrac    float64 `json:"unknown_frac" db:"unknown_frac"`
	TieFrac        float64 `json:"tie_frac" db:"tie_frac"`
	MeanLeftScore  float64 `json:"mean_left_score" db:"mean_left_score"`
	MeanRightScore float64 `json:"mean_right_score" db:"mean_right_score"`
	MeanRuleHits   float64 `json:"mean_rule_hits" db:"mean_rule_hits"`
	MeanAxisDiff   float64 `json:"mean_axis_diff" db:"mean_axis_diff"`
}

// Feature resolves a named feature value
func (v StructuralVector) Feature(name string) (float64, error) {
	switch name {
	case FeatureCount:
		return float64(v.Count), nil
	case FeatureLeftFrac:
		return v.LeftFrac, nil
	case FeatureRightFrac:
		return v.RightFrac, nil
	case FeatureUnknownFrac:
		return v.UnknownFrac, nil
	case FeatureMeanLeftScore:
		return v.MeanLeftScore, nil
	case FeatureMeanRightScore:
		return v.MeanRightScore, nil
	case FeatureMeanRuleHits:
		return v.MeanRuleHits, nil
	case FeatureMeanAxisDiff:
		return v.MeanAxisDiff, nil
	default:
		return 0, core.NewConfigError("feature", fmt.Sprintf("unknown feature %q", name))
	}
}

// SortedKeys returns the keys of a vector table in ascending order
func SortedKeys(vectors map[string]StructuralVector) []string {
	keys := make([]string, 0, len(vectors))
	for k := range vectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
