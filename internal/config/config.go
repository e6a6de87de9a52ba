package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"glyphscore/domain/features"
	"glyphscore/domain/stats"
	"glyphscore/domain/verdict"
	"glyphscore/internal/errors"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete batch configuration
type Config struct {
	Run        RunConfig          `yaml:"run"`
	Cluster    ClusterConfig      `yaml:"cluster"`
	Thresholds verdict.Thresholds `yaml:"thresholds"`
	Lookup     stats.LookupTable  `yaml:"lookup"`
	Artifacts  ArtifactConfig     `yaml:"artifacts"`
	LogLevel   string             `yaml:"log_level"`
}

// RunConfig holds the resampling parameters a result depends on
type RunConfig struct {
	Seed         int64   `yaml:"seed"`
	NPerm        int     `yaml:"n_perm"`
	NBoot        int     `yaml:"n_boot"`
	CILevel      float64 `yaml:"ci_level"`
	Workers      int     `yaml:"workers"`
	PValueMethod string  `yaml:"p_value_method"` // exact|lookup
	GroupBy      string  `yaml:"group_by"`       // type|folio|section|line
	CodeVersion  string  `yaml:"code_version"`
}

// ClusterConfig holds k-means settings
type ClusterConfig struct {
	K        int      `yaml:"k"`
	MinCount int      `yaml:"min_count"`
	MaxIters int      `yaml:"max_iters"`
	Features []string `yaml:"features"`
}

// ArtifactConfig selects where output tables go
type ArtifactConfig struct {
	Driver string `yaml:"driver"` // sqlite|postgres, empty disables the SQL store
	DSN    string `yaml:"dsn"`
	OutDir string `yaml:"out_dir"`
	Format string `yaml:"format"` // tsv|xlsx
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Seed:         42,
			NPerm:        1000,
			NBoot:        1000,
			CILevel:      0.95,
			Workers:      4,
			PValueMethod: "exact",
			GroupBy:      "type",
			CodeVersion:  "0.1.0",
		},
		Cluster: ClusterConfig{
			K:        3,
			MinCount: 5,
			MaxIters: 100,
			Features: append([]string(nil), features.DefaultFeatures...),
		},
		Thresholds: verdict.DefaultThresholds(),
		Lookup:     stats.DefaultChiSquareLookup(),
		Artifacts: ArtifactConfig{
			Format: "tsv",
		},
		LogLevel: "INFO",
	}
}

// Load reads .env (if present), an optional YAML file named by GLYPH_CONFIG,
// then environment overrides, and validates the result
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with path standing in for GLYPH_CONFIG when non-empty.
// The file always sits below the GLYPH_* environment overrides.
func LoadFile(path string) (*Config, error) {
	// A missing .env file is normal in batch environments
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("GLYPH_CONFIG")
	}
	cfg := Default()
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, errors.Wrap(err, "failed to read environment configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// MergeFile overlays a YAML document onto the configuration
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.IOError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrap(errors.ConfigInvalid(err.Error()), fmt.Sprintf("failed to parse config file %s", path))
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Run.Seed, err = getEnvInt64OrDefault("GLYPH_SEED", c.Run.Seed); err != nil {
		return err
	}
	if c.Run.NPerm, err = getEnvIntOrDefault("GLYPH_N_PERM", c.Run.NPerm); err != nil {
		return err
	}
	if c.Run.NBoot, err = getEnvIntOrDefault("GLYPH_N_BOOT", c.Run.NBoot); err != nil {
		return err
	}
	if c.Run.CILevel, err = getEnvFloatOrDefault("GLYPH_CI_LEVEL", c.Run.CILevel); err != nil {
		return err
	}
	if c.Run.Workers, err = getEnvIntOrDefault("GLYPH_WORKERS", c.Run.Workers); err != nil {
		return err
	}
	c.Run.PValueMethod = getEnvOrDefault("GLYPH_P_VALUE_METHOD", c.Run.PValueMethod)
	c.Run.GroupBy = getEnvOrDefault("GLYPH_GROUP_BY", c.Run.GroupBy)

	if c.Cluster.K, err = getEnvIntOrDefault("GLYPH_K", c.Cluster.K); err != nil {
		return err
	}
	if c.Cluster.MinCount, err = getEnvIntOrDefault("GLYPH_MIN_COUNT", c.Cluster.MinCount); err != nil {
		return err
	}
	if c.Cluster.MaxIters, err = getEnvIntOrDefault("GLYPH_MAX_ITERS", c.Cluster.MaxIters); err != nil {
		return err
	}
	if v := os.Getenv("GLYPH_FEATURES"); v != "" {
		c.Cluster.Features = splitList(v)
	}

	c.Artifacts.Driver = getEnvOrDefault("GLYPH_ARTIFACT_DRIVER", c.Artifacts.Driver)
	c.Artifacts.DSN = getEnvOrDefault("GLYPH_ARTIFACT_DSN", c.Artifacts.DSN)
	c.Artifacts.OutDir = getEnvOrDefault("GLYPH_OUT_DIR", c.Artifacts.OutDir)
	c.Artifacts.Format = getEnvOrDefault("GLYPH_OUT_FORMAT", c.Artifacts.Format)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	return nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if c.Run.NPerm <= 0 {
		return errors.ConfigInvalid("n_perm must be positive")
	}
	if c.Run.NBoot <= 0 {
		return errors.ConfigInvalid("n_boot must be positive")
	}
	if c.Run.CILevel <= 0 || c.Run.CILevel >= 1 {
		return errors.ConfigInvalid("ci_level must be in (0,1)")
	}
	if c.Run.Workers <= 0 {
		return errors.ConfigInvalid("workers must be positive")
	}
	switch c.Run.PValueMethod {
	case "exact", "lookup":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown p_value_method %q", c.Run.PValueMethod))
	}
	switch c.Run.GroupBy {
	case "type", "folio", "section", "line":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown group_by %q", c.Run.GroupBy))
	}
	if c.Cluster.K <= 0 || c.Cluster.MaxIters <= 0 || c.Cluster.MinCount < 0 {
		return errors.ConfigInvalid("cluster k and max_iters must be positive, min_count non-negative")
	}
	if len(c.Cluster.Features) == 0 {
		return errors.ConfigInvalid("at least one cluster feature is required")
	}
	for _, name := range c.Cluster.Features {
		if _, err := (features.StructuralVector{}).Feature(name); err != nil {
			return err
		}
	}
	switch c.Artifacts.Driver {
	case "", "sqlite", "postgres":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown artifact driver %q", c.Artifacts.Driver))
	}
	if c.Artifacts.Driver != "" && c.Artifacts.DSN == "" {
		return errors.ConfigInvalid("artifact dsn is required when a driver is set")
	}
	switch c.Artifacts.Format {
	case "tsv", "xlsx":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown output format %q", c.Artifacts.Format))
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	return c.Lookup.Validate()
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s: %q is not an integer", key, value))
	}
	return intValue, nil
}

func getEnvInt64OrDefault(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s: %q is not an integer", key, value))
	}
	return intValue, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(fmt.Sprintf("%s: %q is not a number", key, value))
	}
	return floatValue, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
