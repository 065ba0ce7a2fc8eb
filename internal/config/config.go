package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/giannis84/dieti-localstate/internal/storage"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// General key-value backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Secure single-value backends.
const (
	SecureBackendFile   = "file"
	SecureBackendMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	InspectorPort string `yaml:"inspector_port"`
	LogLevel      string `yaml:"log_level"`

	// HTTP server timeouts (optional, defaults apply in server.go)
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds the graceful shutdown, including the final
	// favorites write.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	StorageBackend string `yaml:"storage_backend"`
	SQLitePath     string `yaml:"sqlite_path"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPrefix    string `yaml:"redis_prefix"`

	SecureBackend  string `yaml:"secure_backend"`
	SecureStoreDir string `yaml:"secure_store_dir"`

	// AccountID namespaces the token keys. Empty keeps the app's original keys.
	AccountID string `yaml:"account_id"`

	// Secrets (env vars only, never read from config.yaml)
	//
	// InspectorSecret signs operator tokens for the debug routes. When empty,
	// only unsigned tokens are accepted; the inspector listens on loopback.
	InspectorSecret string `yaml:"-"`
	MasterKey       []byte `yaml:"-"`
	RedisPassword   string `yaml:"-"`
	DBHost          string `yaml:"-"`
	DBPort          string `yaml:"-"`
	DBUser          string `yaml:"-"`
	DBPassword      string `yaml:"-"`
	DBName          string `yaml:"-"`
}

// Load reads configuration with the following precedence (highest wins):
//  1. Environment variables
//  2. YAML config file (path from CONFIG_PATH env var, or "config.yaml")
//  3. Defaults
//
// Secrets are loaded exclusively from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	overrideString(&cfg.InspectorPort, "INSPECTOR_PORT")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.StorageBackend, "STORAGE_BACKEND")
	overrideString(&cfg.SQLitePath, "SQLITE_PATH")
	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.RedisPrefix, "REDIS_PREFIX")
	overrideString(&cfg.SecureBackend, "SECURE_BACKEND")
	overrideString(&cfg.SecureStoreDir, "SECURE_STORE_DIR")
	overrideString(&cfg.AccountID, "ACCOUNT_ID")

	// Timeouts (optional, unparsable values are ignored)
	overrideDuration(&cfg.ReadTimeout, "READ_TIMEOUT")
	overrideDuration(&cfg.WriteTimeout, "WRITE_TIMEOUT")
	overrideDuration(&cfg.IdleTimeout, "IDLE_TIMEOUT")
	overrideDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT")

	applyDefaults(cfg)

	cfg.InspectorSecret = os.Getenv("INSPECTOR_SECRET")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.DBHost = os.Getenv("POSTGRES_HOST")
	cfg.DBPort = os.Getenv("POSTGRES_PORT")
	cfg.DBUser = os.Getenv("POSTGRES_USER")
	cfg.DBPassword = os.Getenv("POSTGRES_PASSWORD")
	cfg.DBName = os.Getenv("POSTGRES_DB")

	if v := os.Getenv("MASTER_KEY"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("MASTER_KEY env var must be hex encoded: %w", err)
		}
		cfg.MasterKey = key
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.InspectorPort == "" {
		cfg.InspectorPort = "8765"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendSQLite
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "localstate.db"
	}
	if cfg.SecureBackend == "" {
		cfg.SecureBackend = SecureBackendFile
	}
	if cfg.SecureStoreDir == "" {
		cfg.SecureStoreDir = "secure"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis backend (set via config file or REDIS_ADDR env var)")
		}
	case BackendPostgres:
		required := []struct{ env, value string }{
			{"POSTGRES_HOST", c.DBHost},
			{"POSTGRES_PORT", c.DBPort},
			{"POSTGRES_USER", c.DBUser},
			{"POSTGRES_PASSWORD", c.DBPassword},
			{"POSTGRES_DB", c.DBName},
		}
		for _, r := range required {
			if r.value == "" {
				return fmt.Errorf("%s env var is required for the postgres backend", r.env)
			}
		}
	default:
		return fmt.Errorf("unknown storage_backend %q (want memory, sqlite, redis or postgres)", c.StorageBackend)
	}

	switch c.SecureBackend {
	case SecureBackendMemory:
	case SecureBackendFile:
		if len(c.MasterKey) == 0 {
			return fmt.Errorf("MASTER_KEY env var is required for the file secure backend")
		}
		if len(c.MasterKey) != storage.MasterKeySize {
			return fmt.Errorf("MASTER_KEY env var must encode %d bytes, got %d", storage.MasterKeySize, len(c.MasterKey))
		}
	default:
		return fmt.Errorf("unknown secure_backend %q (want file or memory)", c.SecureBackend)
	}
	return nil
}

// PostgresConnString returns a PostgreSQL connection string.
func (c *Config) PostgresConnString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// InspectorAddr returns the loopback listen address of the inspector service.
func (c *Config) InspectorAddr() string {
	return "127.0.0.1:" + c.InspectorPort
}
