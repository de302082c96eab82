package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultAPIURL         = "https://classify.roboflow.com"
	DefaultPort           = "5000"
	DefaultUploadDir      = "uploads"
	DefaultModelID        = "pink-eye-on-goat/1"
	DefaultSubjectType    = "kambing"
	DefaultMaxUploadBytes = 10 << 20
)

// Config holds process-wide settings resolved once at startup.
type Config struct {
	APIURL             string
	APIKey             string
	Port               string
	UploadDir          string
	ModelID            string
	DefaultSubjectType string
	MaxUploadBytes     int64
	InferenceTimeout   time.Duration

	DatabaseDSN string
	RedisAddr   string
	JWTSecret   string
	JWTAudience string
	GRPCPort    string
	LogLevel    string
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through lookup, which returns "" for unset keys.
func LoadFrom(lookup func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if value := strings.TrimSpace(lookup(key)); value != "" {
			return value
		}
		return fallback
	}

	cfg := &Config{
		APIURL:             strings.TrimRight(get("API_URL", DefaultAPIURL), "/"),
		APIKey:             get("API_KEY", ""),
		Port:               get("PORT", DefaultPort),
		UploadDir:          get("UPLOAD_FOLDER", DefaultUploadDir),
		ModelID:            get("MODEL_ID", DefaultModelID),
		DefaultSubjectType: get("DEFAULT_SUBJECT_TYPE", DefaultSubjectType),
		MaxUploadBytes:     DefaultMaxUploadBytes,
		DatabaseDSN:        get("DATABASE_DSN", ""),
		RedisAddr:          get("REDIS_ADDR", ""),
		JWTSecret:          get("JWT_SECRET", ""),
		JWTAudience:        get("JWT_AUDIENCE", ""),
		GRPCPort:           get("GRPC_PORT", ""),
		LogLevel:           get("LOG_LEVEL", "info"),
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT %q: %w", cfg.Port, err)
	}
	if cfg.GRPCPort != "" {
		if _, err := strconv.Atoi(cfg.GRPCPort); err != nil {
			return nil, fmt.Errorf("invalid GRPC_PORT %q: %w", cfg.GRPCPort, err)
		}
	}

	if raw := get("MAX_UPLOAD_BYTES", ""); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES %q", raw)
		}
		cfg.MaxUploadBytes = n
	}

	if raw := get("INFERENCE_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid INFERENCE_TIMEOUT %q", raw)
		}
		cfg.InferenceTimeout = d
	}

	return cfg, nil
}

// Addr is the HTTP listen address on all interfaces.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// GRPCAddr is the health endpoint listen address, empty when disabled.
func (c *Config) GRPCAddr() string {
	if c.GRPCPort == "" {
		return ""
	}
	return ":" + c.GRPCPort
}

// HistoryEnabled reports whether prediction history has a backing store.
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseDSN != ""
}

// EnsureUploadDir creates the scratch directory when missing.
func (c *Config) EnsureUploadDir() error {
	return os.MkdirAll(c.UploadDir, 0o755)
}
