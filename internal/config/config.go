package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jengzang/region-insights-go/internal/anomaly"
	"github.com/jengzang/region-insights-go/internal/normalize"
	"github.com/jengzang/region-insights-go/internal/spatial"
)

// DefaultDBPath keeps the snapshot store in a shared in-memory database
const DefaultDBPath = "file:region_insights?mode=memory&cache=shared"

// Config holds application configuration
type Config struct {
	Port   string
	DBPath string

	// Inputs
	DataDir       string // holds enrolment/, demographic/ and biometric/ CSV directories
	BoundaryPath  string // GeoJSON FeatureCollection, optional
	BoundaryLevel string
	GazetteerPath string // empty uses the embedded gazetteer

	// Engine tuning
	FuzzyThreshold float64
	MinCohortSize  int
	PopulatedFloor int64
	CoverageFloor  float64
	Workers        int

	LogLevel  string
	LogFormat string
	RateLimit int // requests per minute per client IP
}

// Load reads configuration from the environment, falling back to defaults
func Load() (*Config, error) {
	th := anomaly.DefaultThresholds()
	cfg := &Config{
		Port:          getEnv("PORT", ":8080"),
		DBPath:        getEnv("DB_PATH", DefaultDBPath),
		DataDir:       getEnv("DATA_DIR", "./data"),
		BoundaryPath:  getEnv("BOUNDARY_PATH", ""),
		BoundaryLevel: getEnv("BOUNDARY_LEVEL", string(spatial.LevelDistrict)),
		GazetteerPath: getEnv("GAZETTEER_PATH", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.FuzzyThreshold, err = getEnvFloat("FUZZY_THRESHOLD", normalize.DefaultOptions().Threshold); err != nil {
		return nil, err
	}
	if cfg.MinCohortSize, err = getEnvInt("MIN_COHORT_SIZE", th.MinCohortSize); err != nil {
		return nil, err
	}
	floor, err := getEnvInt("POPULATED_FLOOR", int(th.PopulatedFloor))
	if err != nil {
		return nil, err
	}
	cfg.PopulatedFloor = int64(floor)
	if cfg.CoverageFloor, err = getEnvFloat("COVERAGE_FLOOR", spatial.DefaultMatcherOptions().CoverageFloor); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getEnvInt("WORKERS", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getEnvInt("RATE_LIMIT", 600); err != nil {
		return nil, err
	}

	if cfg.FuzzyThreshold <= 0 || cfg.FuzzyThreshold > 1 {
		return nil, fmt.Errorf("FUZZY_THRESHOLD must be in (0, 1], got %v", cfg.FuzzyThreshold)
	}
	if cfg.CoverageFloor < 0 || cfg.CoverageFloor > 1 {
		return nil, fmt.Errorf("COVERAGE_FLOOR must be in [0, 1], got %v", cfg.CoverageFloor)
	}
	if _, err := spatial.ParseLevel(cfg.BoundaryLevel); err != nil {
		return nil, fmt.Errorf("BOUNDARY_LEVEL: %w", err)
	}
	return cfg, nil
}

// NormalizeOptions returns normalizer options with the configured threshold
func (c *Config) NormalizeOptions() normalize.Options {
	opts := normalize.DefaultOptions()
	opts.Threshold = c.FuzzyThreshold
	return opts
}

// Thresholds returns anomaly thresholds with the configured overrides
func (c *Config) Thresholds() anomaly.Thresholds {
	th := anomaly.DefaultThresholds()
	th.MinCohortSize = c.MinCohortSize
	th.PopulatedFloor = c.PopulatedFloor
	return th
}

// MatcherOptions returns geo matcher options with the configured floor
func (c *Config) MatcherOptions() spatial.MatcherOptions {
	opts := spatial.DefaultMatcherOptions()
	opts.CoverageFloor = c.CoverageFloor
	return opts
}

// Gazetteer loads the configured gazetteer or the embedded default
func (c *Config) Gazetteer() (*normalize.Gazetteer, error) {
	if c.GazetteerPath == "" {
		return normalize.DefaultGazetteer()
	}
	return normalize.LoadGazetteer(c.GazetteerPath)
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
