package tabular

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"glyphscore/domain/core"
	"glyphscore/domain/rules"
	"glyphscore/domain/tokens"
	"glyphscore/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const ruleTSV = "Kind\tPattern\tPred_Side\tBase_Weight\tAllow_Sections\tDeny_Sections\tsection_weight_herbal\n" +
	"suffix\taiin\tleft\t1.0\t\t\t2\n" +
	"suffix\ty\tright\t1.0\therbal, bio\tastro\t\n" +
	"\t\t\t\t\t\t\n" +
	"pair\tqo|dy\tRight\t0.5\t\t\t\n"

func TestRuleLoader_TSV(t *testing.T) {
	path := writeFile(t, "voynich.tsv", ruleTSV)
	rs, err := NewRuleLoader(path, nil).LoadRuleSet(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "voynich", rs.Name())
	require.Equal(t, 3, rs.Len(), "blank rows are skipped")

	list := rs.Rules()
	m, ok := list[0].SectionMultiplier("herbal")
	assert.True(t, ok)
	assert.Equal(t, 2.0, m)
	assert.Equal(t, []string{"bio", "herbal"}, list[1].AllowSections())
	assert.Equal(t, []string{"astro"}, list[1].DenySections())
	assert.Equal(t, rules.KindPair, list[2].Kind)
	assert.Equal(t, "qo", list[2].Head)
	assert.Equal(t, "dy", list[2].Tail)
	assert.Equal(t, rules.SideRight, list[2].PredictedSide)
}

func TestRuleLoader_CSVAndYAMLShareHash(t *testing.T) {
	csvPath := writeFile(t, "r.csv", "kind,pattern,pred_side,base_weight,allow_sections,deny_sections\n"+
		"suffix,aiin,left,1,,\n"+
		"prefix,qo,right,0.5,\"herbal,bio\",\n")
	yamlPath := writeFile(t, "r.yaml", `name: r
rules:
  - kind: prefix
    pattern: qo
    pred_side: right
    base_weight: 0.5
    allow_sections: [bio, herbal]
  - kind: suffix
    pattern: aiin
    pred_side: left
    base_weight: 1
`)

	fromCSV, err := NewRuleLoader(csvPath, nil).LoadRuleSet(context.Background())
	require.NoError(t, err)
	fromYAML, err := NewRuleLoader(yamlPath, nil).LoadRuleSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fromCSV.Hash(), fromYAML.Hash(), "rule order and source format do not change the fingerprint")
}

func TestRuleLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		check   func(error) bool
	}{
		{"missing column", "a.tsv", "kind\tpattern\tpred_side\tbase_weight\tallow_sections\nsuffix\ty\tright\t1\t\n", core.IsMissingColumnError},
		{"unknown kind", "b.tsv", "kind\tpattern\tpred_side\tbase_weight\tallow_sections\tdeny_sections\ninfix\ty\tright\t1\t\t\n", core.IsConfigError},
		{"missing pattern", "c.tsv", "kind\tpattern\tpred_side\tbase_weight\tallow_sections\tdeny_sections\nsuffix\t\tright\t1\t\t\n", core.IsConfigError},
		{"bad weight", "d.tsv", "kind\tpattern\tpred_side\tbase_weight\tallow_sections\tdeny_sections\nsuffix\ty\tright\theavy\t\t\n", core.IsConfigError},
		{"bad yaml", "e.yaml", "rules: [", core.IsConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleLoader(writeFile(t, tt.file, tt.content), nil).LoadRuleSet(context.Background())
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}

	var missing *core.MissingColumnError
	_, err := NewRuleLoader(writeFile(t, "f.tsv", "kind\tpattern\n"), nil).LoadRuleSet(context.Background())
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "pred_side", missing.Column)
}

func TestCorpusLoader_TSV(t *testing.T) {
	path := writeFile(t, "tokens.tsv", "surface_form\tsection\tfolio\tposition_in_line\n"+
		"daiin\therbal\tf1r\t1\n"+
		"qoky\tNA\tf1r\t2\n"+
		"\therbal\tf1r\t3\n"+
		"cafe\u0301\tbio\tf2v\t\n")
	corpus, err := NewCorpusLoader(path, nil).LoadCorpus(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, corpus.Len())
	assert.True(t, corpus.HasFolio)
	assert.False(t, corpus.HasLine)
	assert.Equal(t, "", corpus.Occurrences[1].Section, "NA reads as an unknown section")
	assert.Equal(t, 2, corpus.Occurrences[1].PositionInLine)
	assert.Equal(t, "caf\u00e9", corpus.Occurrences[2].SurfaceForm, "surface forms are NFC-normalized")
	assert.Equal(t, []string{"herbal", "bio"}, corpus.Sections())
}

func TestCorpusLoader_Errors(t *testing.T) {
	_, err := NewCorpusLoader(writeFile(t, "t.tsv", "surface_form\nqoky\n"), nil).LoadCorpus(context.Background())
	assert.True(t, core.IsMissingColumnError(err))

	_, err = NewCorpusLoader(writeFile(t, "u.tsv", "surface_form\tsection\tposition_in_line\nqoky\t\tfirst\n"), nil).LoadCorpus(context.Background())
	assert.True(t, core.IsConfigError(err))

	_, err = NewCorpusLoader(filepath.Join(t.TempDir(), "absent.tsv"), nil).LoadCorpus(context.Background())
	assert.Error(t, err)
}

func TestCorpusLoader_XLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Surface_Form", "Section", "Line"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"daiin", "herbal", "3"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"qoky", "", "4"}))
	path := filepath.Join(t.TempDir(), "tokens.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	corpus, err := NewCorpusLoader(path, nil).LoadCorpus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, corpus.Len())
	assert.True(t, corpus.HasLine)
	assert.False(t, corpus.HasFolio)
	assert.Equal(t, "4", corpus.Occurrences[1].Line)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"herbal", "bio"}, SplitList(" herbal, ,bio "))
	assert.Nil(t, SplitList(""))
}

func TestRuleLoader_SectionWeightKeepsSectionCase(t *testing.T) {
	path := writeFile(t, "cased.tsv", "\ufeffKind\tPattern\tPred_Side\tBase_Weight\tAllow_Sections\tDeny_Sections\tSection_Weight_Herbal\n"+
		"suffix\taiin\tleft\t1.0\t\t\t3.0\n")
	rs, err := NewRuleLoader(path, nil).LoadRuleSet(context.Background())
	require.NoError(t, err)

	m, ok := rs.Rules()[0].SectionMultiplier("Herbal")
	require.True(t, ok)
	assert.Equal(t, 3.0, m)

	v := scoring.Score("daiin", "Herbal", rs)
	assert.Equal(t, 3.0, v.LeftScore)
	assert.Equal(t, tokens.VerdictLeft, v.PredictedSide)
	assert.Equal(t, 1.0, scoring.Score("daiin", "herbal", rs).LeftScore, "section names are case-sensitive")
}

func TestLoaders_DecomposedRulesMatchDecomposedTokens(t *testing.T) {
	rulesPath := writeFile(t, "nfd.tsv", "kind\tpattern\tpred_side\tbase_weight\tallow_sections\tdeny_sections\tsection_weight_He\u0301rb\n"+
		"suffix\te\u0301\tleft\t1.0\tHe\u0301rb\t\t2\n")
	tokensPath := writeFile(t, "nfd_tokens.tsv", "surface_form\tsection\n"+
		"dae\u0301\tHe\u0301rb\n")

	rs, err := NewRuleLoader(rulesPath, nil).LoadRuleSet(context.Background())
	require.NoError(t, err)
	corpus, err := NewCorpusLoader(tokensPath, nil).LoadCorpus(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, corpus.Len())

	o := corpus.Occurrences[0]
	v := scoring.Score(o.SurfaceForm, o.Section, rs)
	assert.Equal(t, 1, v.RuleHitCount)
	assert.Equal(t, 2.0, v.LeftScore)
	assert.Equal(t, tokens.VerdictLeft, v.PredictedSide)
}
