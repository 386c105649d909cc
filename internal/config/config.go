package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names accepted by STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
)

type Config struct {
	Matcher   MatcherSettings `yaml:"matcher"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	MariaDB   MariaDBConfig   `yaml:"mariadb"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Web       WebConfig       `yaml:"web"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"`    // memory, badger, postgres or mariadb
	BadgerDir string `yaml:"badger_dir"` // data directory for the badger backend
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`            // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"` // Maximum open connections (default 25)
	MaxIdleConns int    `yaml:"max_idle_conns"` // Maximum idle connections (default 5)
}

type MariaDBConfig struct {
	DSN string `yaml:"dsn"` // e.g. gallery:gallery@tcp(localhost:3306)/gallery?parseTime=true
}

type ExtractorConfig struct {
	URL     string        `yaml:"url"` // InsightFace-style embedding server, empty disables recognition
	Timeout time.Duration `yaml:"timeout"`
}

type WebConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS whitelist; localhost is always allowed
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Matcher: DefaultMatcherSettings(),
		Storage: StorageConfig{
			Backend:   BackendMemory,
			BadgerDir: "data/gallery",
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Extractor: ExtractorConfig{
			Timeout: 60 * time.Second,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envReader parses matcher variables strictly. A malformed value is reported
// instead of being replaced by the default.
type envReader struct {
	problems []FieldError
}

func (r *envReader) int(key string, dst *int) {
	s := os.Getenv(key)
	if s == "" {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		r.problems = append(r.problems, FieldError{Field: key, Message: fmt.Sprintf("not an integer: %q", s)})
		return
	}
	*dst = n
}

func (r *envReader) float(key string, dst *float64) {
	s := os.Getenv(key)
	if s == "" {
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.problems = append(r.problems, FieldError{Field: key, Message: fmt.Sprintf("not a number: %q", s)})
		return
	}
	*dst = f
}

func (r *envReader) bool(key string, dst *bool) {
	s := os.Getenv(key)
	if s == "" {
		return
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		r.problems = append(r.problems, FieldError{Field: key, Message: fmt.Sprintf("not a boolean: %q", s)})
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	s := os.Getenv(key)
	if s == "" {
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		r.problems = append(r.problems, FieldError{Field: key, Message: fmt.Sprintf("not a duration: %q", s)})
		return
	}
	*dst = d
}

// Load builds the configuration from defaults, the optional YAML file named by
// GALLERY_CONFIG, and environment variables, in that order of precedence.
// Matcher settings are only parsed here; validate them with NewMatcher.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("GALLERY_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	var r envReader
	r.int("GALLERY_DIMENSION", &cfg.Matcher.Dimension)
	r.int("GALLERY_CAPACITY", &cfg.Matcher.Capacity)
	r.float("MATCH_THRESHOLD", &cfg.Matcher.MatchThreshold)
	cfg.Matcher.Metric = envString("MATCH_METRIC", cfg.Matcher.Metric)
	r.float("DETECTION_CONFIDENCE_GATE", &cfg.Matcher.DetectionConfidenceGate)
	r.int("MIN_FACE_SIZE", &cfg.Matcher.MinFaceSize)
	r.int("MAX_FACE_SIZE", &cfg.Matcher.MaxFaceSize)
	r.bool("DEBUG_LOGGING", &cfg.Matcher.Debug)
	r.duration("EMBEDDING_TIMEOUT", &cfg.Extractor.Timeout)
	if len(r.problems) > 0 {
		return nil, &ValidationError{Problems: r.problems}
	}

	cfg.Storage.Backend = envString("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.BadgerDir = envString("BADGER_DIR", cfg.Storage.BadgerDir)
	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.MariaDB.DSN = envString("MARIADB_DSN", cfg.MariaDB.DSN)
	cfg.Extractor.URL = envString("EMBEDDING_URL", cfg.Extractor.URL)
	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envInt("WEB_PORT", cfg.Web.Port)
	if origins := splitList(os.Getenv("WEB_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.Web.AllowedOrigins = origins
	}

	return cfg, nil
}

// mergeFile overlays the keys present in a YAML file onto cfg.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the matcher settings and the storage selection.
func (c *Config) Validate() (Matcher, error) {
	m, err := NewMatcher(c.Matcher)
	if err != nil {
		return Matcher{}, err
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendBadger:
	case BackendPostgres:
		if c.Database.URL == "" {
			return Matcher{}, &ValidationError{Problems: []FieldError{{Field: "DATABASE_URL", Message: "required for the postgres backend"}}}
		}
	case BackendMariaDB:
		if c.MariaDB.DSN == "" {
			return Matcher{}, &ValidationError{Problems: []FieldError{{Field: "MARIADB_DSN", Message: "required for the mariadb backend"}}}
		}
	default:
		return Matcher{}, &ValidationError{Problems: []FieldError{{
			Field:   "STORAGE_BACKEND",
			Message: fmt.Sprintf("unknown backend %q", c.Storage.Backend),
		}}}
	}
	return m, nil
}
