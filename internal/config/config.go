package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Togather-Foundation/historia/internal/validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Wikidata    WikidataConfig
	Wikipedia   WikipediaConfig
	Import      ImportConfig
	Jobs        JobsConfig
	Alerts      AlertsConfig
	Environment string
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MigrationsPath string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

type WikidataConfig struct {
	Endpoint  string
	UserAgent string
	RateLimit float64
	Timeout   time.Duration
}

type WikipediaConfig struct {
	Endpoint  string
	UserAgent string
	RateLimit float64
	CacheTTL  time.Duration
}

// ImportConfig controls the Wikidata paging run and the canonical type tag.
type ImportConfig struct {
	PageSize      int           `yaml:"page_size"`
	PageDelay     time.Duration `yaml:"page_delay"`
	MinYear       int           `yaml:"min_year"`
	Language      string        `yaml:"language"`
	BatchSize     int           `yaml:"batch_size"`
	CanonicalType string        `yaml:"canonical_type"`
	Query         string        `yaml:"query"`
}

type JobsConfig struct {
	QueueCapacity     int
	ImportInterval    time.Duration
	RejectedRetention time.Duration
	RiverEnabled      bool
	RetryWikidataRuns int
}

// AlertsConfig controls the email sent when a background job gives up.
type AlertsConfig struct {
	Enabled      bool
	From         string
	To           []string
	ResendAPIKey string
}

// fileOverlay is the optional YAML file passed with --config.
type fileOverlay struct {
	Import *ImportConfig `yaml:"import"`
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", "internal/storage/postgres/migrations"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "historia"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Wikidata: WikidataConfig{
			Endpoint:  getEnv("WIKIDATA_ENDPOINT", "https://query.wikidata.org/sparql"),
			UserAgent: getEnv("WIKIDATA_USER_AGENT", "Historia/1.0 (https://github.com/Togather-Foundation/historia)"),
			RateLimit: getEnvFloat("WIKIDATA_RATE_LIMIT", 1.0),
			Timeout:   getEnvDuration("WIKIDATA_TIMEOUT", 60*time.Second),
		},
		Wikipedia: WikipediaConfig{
			Endpoint:  getEnv("WIKIPEDIA_ENDPOINT", "https://en.wikipedia.org/w/api.php"),
			UserAgent: getEnv("WIKIPEDIA_USER_AGENT", "Historia/1.0 (https://github.com/Togather-Foundation/historia)"),
			RateLimit: getEnvFloat("WIKIPEDIA_RATE_LIMIT", 2.0),
			CacheTTL:  getEnvDuration("WIKIPEDIA_CACHE_TTL", 24*time.Hour),
		},
		Import: ImportConfig{
			PageSize:      getEnvInt("IMPORT_PAGE_SIZE", 500),
			PageDelay:     getEnvDuration("IMPORT_PAGE_DELAY", time.Second),
			MinYear:       getEnvInt("IMPORT_MIN_YEAR", 1500),
			Language:      getEnv("IMPORT_LANGUAGE", "en"),
			BatchSize:     getEnvInt("IMPORT_IDENTIFIER_BATCH_SIZE", 50),
			CanonicalType: getEnv("IMPORT_CANONICAL_TYPE", "historical_event"),
			Query:         getEnv("IMPORT_QUERY", ""),
		},
		Jobs: JobsConfig{
			QueueCapacity:     getEnvInt("JOB_QUEUE_CAPACITY", 100),
			ImportInterval:    getEnvDuration("IMPORT_SCHEDULE_INTERVAL", 0),
			RejectedRetention: getEnvDuration("REVIEW_REJECTED_RETENTION", 90*24*time.Hour),
			RiverEnabled:      getEnvBool("RIVER_ENABLED", true),
			RetryWikidataRuns: getEnvInt("JOB_RETRY_WIKIDATA_IMPORT", 3),
		},
		Alerts: AlertsConfig{
			Enabled:      getEnvBool("ALERT_EMAIL_ENABLED", false),
			From:         getEnv("ALERT_EMAIL_FROM", ""),
			To:           splitList(getEnv("ALERT_EMAIL_TO", "")),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Import.PageSize <= 0 {
		return Config{}, fmt.Errorf("IMPORT_PAGE_SIZE must be positive, got %d", cfg.Import.PageSize)
	}
	if cfg.Jobs.QueueCapacity <= 0 {
		return Config{}, fmt.Errorf("JOB_QUEUE_CAPACITY must be positive, got %d", cfg.Jobs.QueueCapacity)
	}

	if cfg.Alerts.Enabled && (cfg.Alerts.ResendAPIKey == "" || cfg.Alerts.From == "" || len(cfg.Alerts.To) == 0) {
		return Config{}, fmt.Errorf("ALERT_EMAIL_ENABLED requires RESEND_API_KEY, ALERT_EMAIL_FROM and ALERT_EMAIL_TO")
	}

	production := strings.EqualFold(cfg.Environment, "production")
	if err := validation.ValidateEndpoint(cfg.Wikidata.Endpoint, "WIKIDATA_ENDPOINT", production); err != nil {
		return Config{}, err
	}
	if err := validation.ValidateEndpoint(cfg.Wikipedia.Endpoint, "WIKIPEDIA_ENDPOINT", production); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyFile overlays import settings from a YAML file onto cfg.
// Zero values in the file leave the existing setting untouched.
func ApplyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if overlay.Import == nil {
		return nil
	}

	in := overlay.Import
	if in.PageSize > 0 {
		cfg.Import.PageSize = in.PageSize
	}
	if in.PageDelay > 0 {
		cfg.Import.PageDelay = in.PageDelay
	}
	if in.MinYear != 0 {
		cfg.Import.MinYear = in.MinYear
	}
	if in.Language != "" {
		cfg.Import.Language = in.Language
	}
	if in.BatchSize > 0 {
		cfg.Import.BatchSize = in.BatchSize
	}
	if in.CanonicalType != "" {
		cfg.Import.CanonicalType = in.CanonicalType
	}
	if strings.TrimSpace(in.Query) != "" {
		cfg.Import.Query = in.Query
	}
	return nil
}

// LoadEnvFile loads KEY=VALUE pairs from path without overriding variables
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
