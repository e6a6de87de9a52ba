package config

import (
	"os"
	"path/filepath"
	"testing"

	"glyphscore/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20.0, cfg.Thresholds.ChiSquareSignificant)
	assert.Equal(t, 0.3, cfg.Thresholds.LargeEffect)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GLYPH_SEED", "7")
	t.Setenv("GLYPH_N_PERM", "250")
	t.Setenv("GLYPH_FEATURES", "left_frac, mean_axis_diff")
	t.Setenv("GLYPH_P_VALUE_METHOD", "lookup")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Run.Seed)
	assert.Equal(t, 250, cfg.Run.NPerm)
	assert.Equal(t, []string{"left_frac", "mean_axis_diff"}, cfg.Cluster.Features)
	assert.Equal(t, "lookup", cfg.Run.PValueMethod)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("GLYPH_N_PERM", "lots")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
}

func TestLoad_UnknownFeature(t *testing.T) {
	t.Setenv("GLYPH_FEATURES", "left_frac,vowel_ratio")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
}

func TestMergeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glyph.yaml")
	doc := `
run:
  seed: 1234
  n_perm: 5000
cluster:
  k: 4
thresholds:
  pass_alpha: 0.001
  weak_pass_alpha: 0.01
  inconclusive_alpha: 0.05
  large_effect: 0.3
  chi_square_significant: 20
  chi_square_marginal: 3.841
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg := Default()
	require.NoError(t, cfg.MergeFile(path))
	assert.Equal(t, int64(1234), cfg.Run.Seed)
	assert.Equal(t, 5000, cfg.Run.NPerm)
	assert.Equal(t, 4, cfg.Cluster.K)
	assert.Equal(t, 1000, cfg.Run.NBoot, "fields absent from the file keep defaults")
	assert.Equal(t, 0.001, cfg.Thresholds.PassAlpha)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glyph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  seed: 1234\n  n_perm: 5000\n"), 0o644))
	t.Setenv("GLYPH_SEED", "9")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), cfg.Run.Seed, "environment wins over the file")
	assert.Equal(t, 5000, cfg.Run.NPerm)

	// GLYPH_CONFIG gives the same layering
	t.Setenv("GLYPH_CONFIG", path)
	viaEnv, err := Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.Run, viaEnv.Run)
}

func TestLoadFile_PathTakesPrecedenceOverGlyphConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "env.yaml")
	flagFile := filepath.Join(dir, "flag.yaml")
	require.NoError(t, os.WriteFile(envFile, []byte("run:\n  n_boot: 111\n"), 0o644))
	require.NoError(t, os.WriteFile(flagFile, []byte("run:\n  n_boot: 222\n"), 0o644))
	t.Setenv("GLYPH_CONFIG", envFile)

	cfg, err := LoadFile(flagFile)
	require.NoError(t, err)
	assert.Equal(t, 222, cfg.Run.NBoot)
}
