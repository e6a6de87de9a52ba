package testkit

import (
	"fmt"
	"math/rand"

	"glyphscore/domain/rules"
	"glyphscore/domain/tokens"
)

// GlyphGeneratorConfig configures the synthetic corpus generator
type GlyphGeneratorConfig struct {
	// Sections in output order
	Sections []string `json:"sections"`
	// TokensPerSection is the number of occurrences generated per section
	TokensPerSection int `json:"tokens_per_section"`
	// LeftBias is the per-section probability of a left-marked ending.
	// Missing sections use 0.5.
	LeftBias map[string]float64 `json:"left_bias"`
	// NeutralRate is the probability of an ending no default rule matches
	NeutralRate float64 `json:"neutral_rate"`
	TokensPerLine int   `json:"tokens_per_line"`
	LinesPerFolio int   `json:"lines_per_folio"`
	Seed          int64 `json:"seed"`
}

// DefaultGlyphConfig returns a two-section corpus with a clear left/right split
func DefaultGlyphConfig() GlyphGeneratorConfig {
	return GlyphGeneratorConfig{
		Sections:         []string{"herbal", "bio"},
		TokensPerSection: 400,
		LeftBias:         map[string]float64{"herbal": 0.8, "bio": 0.2},
		NeutralRate:      0.1,
		TokensPerLine:    8,
		LinesPerFolio:    10,
		Seed:             42,
	}
}

var (
	stems        = []string{"d", "qok", "ch", "sh", "ot", "ok", "qot", "k"}
	leftEndings  = []string{"aiin", "ain", "aiin"}
	rightEndings = []string{"y", "ey", "edy"}
	neutral      = []string{"ol", "ar", "or"}
)

// GlyphGenerator produces deterministic synthetic glyph corpora
type GlyphGenerator struct {
	config GlyphGeneratorConfig
	rng    *rand.Rand
}

// NewGlyphGenerator creates a generator
func NewGlyphGenerator(config GlyphGeneratorConfig) *GlyphGenerator {
	return &GlyphGenerator{config: config, rng: rand.New(rand.NewSource(config.Seed))}
}

// Generate builds the corpus, folio and line columns included
func (g *GlyphGenerator) Generate() *tokens.Corpus {
	c := &tokens.Corpus{Name: "synthetic", HasFolio: true, HasLine: true}
	perLine := max(g.config.TokensPerLine, 1)
	perFolio := max(g.config.LinesPerFolio, 1)

	n := 0
	for _, section := range g.config.Sections {
		bias, ok := g.config.LeftBias[section]
		if !ok {
			bias = 0.5
		}
		for i := 0; i < g.config.TokensPerSection; i++ {
			line := n / perLine
			c.Occurrences = append(c.Occurrences, tokens.Occurrence{
				SurfaceForm:    g.token(bias),
				Section:        section,
				Folio:          fmt.Sprintf("f%d", line/perFolio+1),
				Line:           fmt.Sprintf("%d", line%perFolio+1),
				PositionInLine: n%perLine + 1,
			})
			n++
		}
	}
	return c
}

func (g *GlyphGenerator) token(leftBias float64) string {
	stem := stems[g.rng.Intn(len(stems))]
	switch {
	case g.rng.Float64() < g.config.NeutralRate:
		return stem + neutral[g.rng.Intn(len(neutral))]
	case g.rng.Float64() < leftBias:
		return stem + leftEndings[g.rng.Intn(len(leftEndings))]
	default:
		return stem + rightEndings[g.rng.Intn(len(rightEndings))]
	}
}

// DefaultRuleSpecs matches the generator's endings: -in endings vote left,
// -y endings vote right
func DefaultRuleSpecs() []rules.RuleSpec {
	return []rules.RuleSpec{
		{ID: "in", Kind: "suffix", Pattern: "in", PredictedSide: "left", Weight: 1.0},
		{ID: "y", Kind: "suffix", Pattern: "y", PredictedSide: "right", Weight: 1.0},
		{ID: "qo-dy", Kind: "pair", Pattern: "qo|dy", PredictedSide: "right", Weight: 0.5},
		{ID: "ch-ai", Kind: "chargram", Pattern: "chai", PredictedSide: "left", Weight: 0.5, AllowSections: []string{"herbal"}},
	}
}

// DefaultRuleSet builds DefaultRuleSpecs, panicking on invalid specs
func DefaultRuleSet() *rules.RuleSet {
	list := make([]rules.Rule, 0, 4)
	for _, spec := range DefaultRuleSpecs() {
		r, err := rules.NewRule(spec)
		if err != nil {
			panic(err)
		}
		list = append(list, r)
	}
	rs, err := rules.NewRuleSet("default", list)
	if err != nil {
		panic(err)
	}
	return rs
}
