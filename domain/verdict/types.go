package verdict

import (
	"fmt"

	"glyphscore/domain/core"
)

// Label is the caller-facing outcome of a significance test
type Label string

const (
	LabelPass         Label = "PASS"
	LabelWeakPass     Label = "WEAK PASS"
	LabelInconclusive Label = "INCONCLUSIVE"
	LabelFail         Label = "FAIL"
)

// Thresholds holds the documented cut-offs used to label results.
// These are configuration, never hidden constants.
type Thresholds struct {
	// PassAlpha: p below this, with a large effect, is PASS
	PassAlpha float64 `yaml:"pass_alpha"`
	// WeakPassAlpha: p below this is at least WEAK PASS
	WeakPassAlpha float64 `yaml:"weak_pass_alpha"`
	// InconclusiveAlpha: p below this is INCONCLUSIVE rather than FAIL
	InconclusiveAlpha float64 `yaml:"inconclusive_alpha"`
	// LargeEffect is the Cramér's V (or other standardized effect) counted as large
	LargeEffect float64 `yaml:"large_effect"`
	// ChiSquareSignificant is the χ² value above which an association is "significant"
	ChiSquareSignificant float64 `yaml:"chi_square_significant"`
	// ChiSquareMarginal is the χ² value above which an association is worth a second look
	ChiSquareMarginal float64 `yaml:"chi_square_marginal"`
}

// DefaultThresholds returns the cut-offs used by the published analyses
func DefaultThresholds() Thresholds {
	return Thresholds{
		PassAlpha:            0.01,
		WeakPassAlpha:        0.05,
		InconclusiveAlpha:    0.10,
		LargeEffect:          0.3,
		ChiSquareSignificant: 20,
		ChiSquareMarginal:    3.841,
	}
}

// Validate checks that thresholds are ordered and in range
func (t Thresholds) Validate() error {
	if t.PassAlpha <= 0 || t.PassAlpha > t.WeakPassAlpha || t.WeakPassAlpha > t.InconclusiveAlpha || t.InconclusiveAlpha > 1 {
		return core.NewConfigError("thresholds", fmt.Sprintf("alphas must satisfy 0 < pass (%v) <= weak (%v) <= inconclusive (%v) <= 1",
			t.PassAlpha, t.WeakPassAlpha, t.InconclusiveAlpha))
	}
	if t.LargeEffect < 0 {
		return core.NewConfigError("large_effect", "must be >= 0")
	}
	if t.ChiSquareMarginal < 0 || t.ChiSquareMarginal > t.ChiSquareSignificant {
		return core.NewConfigError("chi_square_marginal", "must be between 0 and chi_square_significant")
	}
	return nil
}

// Classify labels a p-value, optionally qualified by a standardized effect size.
// A nil effect does not block PASS.
func (t Thresholds) Classify(p float64, effect *float64) Label {
	switch {
	case p < t.PassAlpha && (effect == nil || *effect >= t.LargeEffect):
		return LabelPass
	case p < t.WeakPassAlpha:
		return LabelWeakPass
	case p < t.InconclusiveAlpha:
		return LabelInconclusive
	default:
		return LabelFail
	}
}

// ClassifyChiSquare labels a contingency association by its χ² and Cramér's V
func (t Thresholds) ClassifyChiSquare(chiSq, cramersV float64) Label {
	switch {
	case chiSq > t.ChiSquareSignificant && cramersV >= t.LargeEffect:
		return LabelPass
	case chiSq > t.ChiSquareSignificant:
		return LabelWeakPass
	case chiSq > t.ChiSquareMarginal:
		return LabelInconclusive
	default:
		return LabelFail
	}
}
