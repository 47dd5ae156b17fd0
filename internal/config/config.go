package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Cycle overlap policies.
const (
	// OverlapAllow starts a cycle on every tick, even while a previous cycle
	// is still running. The per-plant duplicate check keeps this safe.
	OverlapAllow = "allow"
	// OverlapSkip skips a tick while another cycle holds the cycle lock.
	OverlapSkip = "skip"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Storage. An empty DatabaseURL selects the in-memory store seeded from
	// the catalog file.
	DatabaseURL      string
	DatabaseMaxConns int

	// SourcesFile is an optional YAML provider catalog, see LoadCatalog.
	SourcesFile string

	// Ingestion scheduling.
	IngestInterval     time.Duration
	IngestRunOnStart   bool
	IngestConcurrency  int // 0 means one worker per plant, uncapped
	IngestCycleTimeout time.Duration
	FetchTimeout       time.Duration
	CycleOverlap       string
	CycleLockTTL       time.Duration
	RedisAddr          string

	// Inserted-reading publishing.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaReadingsTopic string

	// UETK register lookups.
	GISEnabled   bool
	GISBaseURL   string
	GISTimeout   time.Duration
	GISCacheSize int

	ReportTimezone string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	interval, err := parsePositiveDuration("INGEST_INTERVAL", "30m")
	if err != nil {
		return nil, err
	}
	cycleTimeout, err := parseDuration("INGEST_CYCLE_TIMEOUT", "0s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	lockTTL, err := parsePositiveDuration("CYCLE_LOCK_TTL", "55m")
	if err != nil {
		return nil, err
	}
	gisTimeout, err := parsePositiveDuration("GIS_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	concurrency, err := parseNonNegativeInt("INGEST_CONCURRENCY", 0)
	if err != nil {
		return nil, err
	}
	maxConns, err := parseNonNegativeInt("DATABASE_MAX_CONNS", 4)
	if err != nil {
		return nil, err
	}
	if maxConns == 0 {
		return nil, errors.New("invalid DATABASE_MAX_CONNS: must be positive")
	}

	brokersRaw := os.Getenv("KAFKA_BROKERS")
	kafkaEnabled := brokersRaw != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DatabaseMaxConns: maxConns,
		SourcesFile:      os.Getenv("SOURCES_FILE"),

		IngestInterval:     interval,
		IngestRunOnStart:   sharedcfg.EnvOrDefault("INGEST_RUN_ON_START", "true") == "true",
		IngestConcurrency:  concurrency,
		IngestCycleTimeout: cycleTimeout,
		FetchTimeout:       fetchTimeout,
		CycleOverlap:       sharedcfg.EnvOrDefault("CYCLE_OVERLAP", OverlapAllow),
		CycleLockTTL:       lockTTL,
		RedisAddr:          os.Getenv("REDIS_ADDR"),

		KafkaEnabled:       kafkaEnabled,
		KafkaReadingsTopic: sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "hydro-readings"),

		GISEnabled:   sharedcfg.EnvOrDefault("GIS_ENABLED", "true") == "true",
		GISBaseURL:   sharedcfg.EnvOrDefault("GIS_BASE_URL", "https://gis.biip.lt/qgisserver/uetk_public"),
		GISTimeout:   gisTimeout,
		GISCacheSize: parseCacheSize("GIS_CACHE_SIZE", 500),

		ReportTimezone: sharedcfg.EnvOrDefault("REPORT_TIMEZONE", "Europe/Vilnius"),
	}
	if brokersRaw != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokersRaw)
	}

	if cfg.CycleOverlap != OverlapAllow && cfg.CycleOverlap != OverlapSkip {
		return nil, fmt.Errorf("invalid CYCLE_OVERLAP %q: want %q or %q", cfg.CycleOverlap, OverlapAllow, OverlapSkip)
	}
	if cfg.RedisAddr != "" && cfg.CycleOverlap != OverlapSkip {
		return nil, errors.New("REDIS_ADDR requires CYCLE_OVERLAP=skip")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaReadingsTopic == "" {
		return nil, errors.New("KAFKA_READINGS_TOPIC is required")
	}
	if _, err := time.LoadLocation(cfg.ReportTimezone); err != nil {
		return nil, fmt.Errorf("invalid REPORT_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Location returns the report time zone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseCacheSize(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
