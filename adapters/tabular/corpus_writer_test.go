package tabular

import (
	"context"
	"path/filepath"
	"testing"

	"glyphscore/internal"
	"glyphscore/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCorpus_RoundTrip(t *testing.T) {
	cfg := testkit.DefaultGlyphConfig()
	cfg.TokensPerSection = 30
	corpus := testkit.NewGlyphGenerator(cfg).Generate()

	for _, name := range []string{"tokens.tsv", "tokens.csv", "tokens.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteCorpus(path, corpus))

			loaded, err := NewCorpusLoader(path, internal.NewLogger(internal.LogLevelError)).LoadCorpus(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "tokens", loaded.Name)
			assert.True(t, loaded.HasFolio)
			assert.True(t, loaded.HasLine)
			assert.Equal(t, corpus.Occurrences, loaded.Occurrences)
			assert.Equal(t, corpus.Hash(), loaded.Hash())
		})
	}
}

func TestWriteCorpus_BadPath(t *testing.T) {
	corpus := testkit.NewGlyphGenerator(testkit.DefaultGlyphConfig()).Generate()
	err := WriteCorpus(filepath.Join(t.TempDir(), "missing", "tokens.tsv"), corpus)
	assert.Error(t, err)
}

func TestWriteRuleDocument_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, WriteRuleDocument(path, RuleDocument{Name: "default", Rules: testkit.DefaultRuleSpecs()}))

	rs, err := NewRuleLoader(path, internal.NewLogger(internal.LogLevelError)).LoadRuleSet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", rs.Name())
	assert.Equal(t, testkit.DefaultRuleSet().Hash(), rs.Hash())
}
