package tabular

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"glyphscore/domain/core"
	"glyphscore/domain/rules"
	"glyphscore/internal"
	apperrors "glyphscore/internal/errors"
	"glyphscore/ports"

	"gopkg.in/yaml.v3"
)

// Rule table columns
const (
	ColID            = "id"
	ColKind          = "kind"
	ColPattern       = "pattern"
	ColPredSide      = "pred_side"
	ColBaseWeight    = "base_weight"
	ColAllowSections = "allow_sections"
	ColDenySections  = "deny_sections"
	SectionWeightPfx = "section_weight_"
)

// RequiredRuleColumns must be present in every rule table
var RequiredRuleColumns = []string{ColKind, ColPattern, ColPredSide, ColBaseWeight, ColAllowSections, ColDenySections}

// RuleDocument is the YAML form of a rule set
type RuleDocument struct {
	Name  string           `yaml:"name"`
	Rules []rules.RuleSpec `yaml:"rules"`
}

// RuleLoader loads a rule set from a table or YAML file
type RuleLoader struct {
	path   string
	logger *internal.Logger
}

var _ ports.RuleSource = (*RuleLoader)(nil)

// NewRuleLoader creates a loader for one rule file
func NewRuleLoader(path string, logger *internal.Logger) *RuleLoader {
	return &RuleLoader{path: path, logger: logger.With("rules")}
}

// LoadRuleSet reads and validates the rule set
func (l *RuleLoader) LoadRuleSet(ctx context.Context) (*rules.RuleSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(l.path), filepath.Ext(l.path))
	var (
		rs  *rules.RuleSet
		err error
	)
	switch strings.ToLower(filepath.Ext(l.path)) {
	case ".yaml", ".yml":
		rs, err = l.loadYAML(name)
	default:
		var table *Table
		table, err = NewDataReader(l.path, l.logger).ReadData()
		if err == nil {
			rs, err = ParseRuleTable(table, name)
		}
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("loaded %d rules from %s (hash %s)", rs.Len(), l.path, core.Hash(rs.Hash()).Short())
	return rs, nil
}

func (l *RuleLoader) loadYAML(name string) (*rules.RuleSet, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, apperrors.IOError("failed to read rule file", err)
	}
	var doc RuleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, core.NewConfigError("rules", fmt.Sprintf("invalid YAML in %s: %v", l.path, err))
	}
	if doc.Name != "" {
		name = doc.Name
	}
	return BuildRuleSet(name, doc.Rules)
}

// WriteRuleDocument writes a rule set as YAML that RuleLoader reads back
func WriteRuleDocument(path string, doc RuleDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode rule document")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.IOError(fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

// ParseRuleTable converts table rows into a validated rule set
func ParseRuleTable(table *Table, name string) (*rules.RuleSet, error) {
	if err := table.Require(RequiredRuleColumns...); err != nil {
		return nil, err
	}

	// column key -> section name with its original case
	weightCols := make(map[string]string)
	var weightOrder []string
	for i, h := range table.Headers {
		if !strings.HasPrefix(h, SectionWeightPfx) || len(h) == len(SectionWeightPfx) {
			continue
		}
		section := h[len(SectionWeightPfx):]
		if i < len(table.RawHeaders) && len(table.RawHeaders[i]) > len(SectionWeightPfx) &&
			strings.EqualFold(table.RawHeaders[i][:len(SectionWeightPfx)], SectionWeightPfx) {
			section = table.RawHeaders[i][len(SectionWeightPfx):]
		}
		weightCols[h] = section
		weightOrder = append(weightOrder, h)
	}

	specs := make([]rules.RuleSpec, 0, len(table.Rows))
	for i, row := range table.Rows {
		line := i + 2 // header is line 1
		weight, err := parseFloat(row[ColBaseWeight])
		if err != nil {
			return nil, core.NewConfigError(ColBaseWeight, fmt.Sprintf("%s line %d: %v", table.Source, line, err))
		}
		spec := rules.RuleSpec{
			ID:            row[ColID],
			Kind:          row[ColKind],
			Pattern:       row[ColPattern],
			PredictedSide: row[ColPredSide],
			Weight:        weight,
			AllowSections: SplitList(row[ColAllowSections]),
			DenySections:  SplitList(row[ColDenySections]),
		}
		for _, col := range weightOrder {
			cell := row[col]
			if cell == "" {
				continue
			}
			m, err := parseFloat(cell)
			if err != nil {
				return nil, core.NewConfigError(col, fmt.Sprintf("%s line %d: %v", table.Source, line, err))
			}
			if spec.SectionWeights == nil {
				spec.SectionWeights = make(map[string]float64)
			}
			spec.SectionWeights[weightCols[col]] = m
		}
		specs = append(specs, spec)
	}
	return BuildRuleSet(name, specs)
}

// BuildRuleSet validates specs in order, reporting the 1-based index of the
// first invalid one
func BuildRuleSet(name string, specs []rules.RuleSpec) (*rules.RuleSet, error) {
	list := make([]rules.Rule, 0, len(specs))
	for i, spec := range specs {
		r, err := rules.NewRule(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		list = append(list, r)
	}
	return rules.NewRuleSet(name, list)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	return strconv.ParseFloat(s, 64)
}
