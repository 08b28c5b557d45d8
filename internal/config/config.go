// Package config loads application configuration from environment
// variables with sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sathizz7/streetview-capturing-sys/internal/models"
)

// Config holds all application configuration
type Config struct {
	Port      string
	DBPath    string
	JWTSecret string

	// Mapping provider
	MapsAPIKey     string
	MapsMaxRetries int

	// Vision-judgment service
	OracleURL    string
	OracleAPIKey string
	OracleBatch  bool

	// Pipeline defaults, overridable per run
	Capture models.CaptureOptions
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           envStr("PORT", ":8080"),
		DBPath:         envStr("DB_PATH", "./data/captures.db"),
		JWTSecret:      envStr("JWT_SECRET", "change-me-in-production"),
		MapsAPIKey:     envStr("MAPS_API_KEY", ""),
		MapsMaxRetries: envInt("MAPS_MAX_RETRIES", 3),
		OracleURL:      envStr("ORACLE_URL", "http://localhost:9090"),
		OracleAPIKey:   envStr("ORACLE_API_KEY", ""),
		OracleBatch:    envBool("ORACLE_BATCH", true),
		Capture: models.CaptureOptions{
			RoadSearchRadiusM:          envFloat("ROAD_SEARCH_RADIUS_M", models.DefaultRoadSearchRadiusM),
			RoadSampleCount:            envInt("ROAD_SAMPLE_COUNT", models.DefaultRoadSampleCount),
			MaxRefinementIterations:    envInt("MAX_REFINEMENT_ITERATIONS", models.DefaultMaxRefinementIterations),
			RefinementQualityThreshold: envInt("REFINEMENT_QUALITY_THRESHOLD", models.DefaultRefinementQualityThreshold),
			OverallTimeout:             envDuration("OVERALL_TIMEOUT", models.DefaultOverallTimeout),
			MaxFanout:                  envInt("MAX_FANOUT", models.DefaultMaxFanout),
		},
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
