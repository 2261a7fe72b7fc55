package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	// DefaultUsageLimit is the quota every new key starts with.
	DefaultUsageLimit = 1000
	// DefaultPort is used when neither the file nor the environment sets one.
	DefaultPort = 8080

	SummarizerModeManual = "manual"
	SummarizerModeLLM    = "llm"

	CacheTypeNone   = "none"
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// ServerConfig holds HTTP server timeouts, expressed as Go duration strings.
type ServerConfig struct {
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// AuthConfig configures how dashboard requests are tied to an owner.
// With an empty SessionSecret the X-User-Id header set by the fronting
// session layer is trusted as is.
type AuthConfig struct {
	SessionSecret string `yaml:"session_secret"`
}

// KeysConfig holds the key material and quota settings.
type KeysConfig struct {
	Prefix     string `yaml:"prefix"`
	UsageLimit int    `yaml:"usage_limit"`
}

// SummarizerConfig configures the GitHub summarizer endpoint.
type SummarizerConfig struct {
	Mode         string   `yaml:"mode"`
	GeminiAPIKey string   `yaml:"gemini_api_key"`
	GeminiModel  string   `yaml:"gemini_model"`
	GitHubToken  string   `yaml:"github_token"`
	RawBaseURL   string   `yaml:"raw_base_url"`
	Branches     []string `yaml:"branches"`
	HTTPTimeout  string   `yaml:"http_timeout"`
}

// CacheConfig configures the summary cache.
type CacheConfig struct {
	Type          string `yaml:"type"`
	TTL           string `yaml:"ttl"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// SchedulerConfig holds cron specs for the housekeeping jobs.
type SchedulerConfig struct {
	OrphanPurgeSpec string `yaml:"orphan_purge_spec"`
	CachePurgeSpec  string `yaml:"cache_purge_spec"`
}

// Config holds the configuration for the service.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Keys       KeysConfig       `yaml:"keys"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Cache      CacheConfig      `yaml:"cache"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Port       int              `yaml:"port"`
	Debug      bool             `yaml:"debug"`
}

// LoadConfig reads and parses the configuration file, applies defaults and
// environment overrides, and returns the config together with warnings about
// defaulted values.
var LoadConfig = func(path string) (*Config, []string, error) {
	var config Config
	var warnings []string

	data, err := os.ReadFile(path)
	if err == nil {
		if err = yaml.Unmarshal(data, &config); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// A missing file is fine; environment variables may provide everything.

	applyEnv(&config)
	warnings = applyDefaults(&config)

	if err := config.validate(); err != nil {
		return nil, nil, err
	}
	return &config, warnings, nil
}

func applyEnv(config *Config) {
	if dsn := os.Getenv("KEYHUB_DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if dbType := os.Getenv("KEYHUB_DATABASE_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if port := os.Getenv("KEYHUB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if debug := os.Getenv("KEYHUB_DEBUG"); debug != "" {
		config.Debug = debug == "true"
	}
	if secret := os.Getenv("KEYHUB_SESSION_SECRET"); secret != "" {
		config.Auth.SessionSecret = secret
	}
	if key := os.Getenv("KEYHUB_GEMINI_API_KEY"); key != "" {
		config.Summarizer.GeminiAPIKey = key
	}
	if token := os.Getenv("KEYHUB_GITHUB_TOKEN"); token != "" {
		config.Summarizer.GitHubToken = token
	}
	if addr := os.Getenv("KEYHUB_REDIS_ADDR"); addr != "" {
		config.Cache.RedisAddr = addr
	}
}

func applyDefaults(config *Config) []string {
	var warnings []string

	if config.Port == 0 {
		config.Port = DefaultPort
		warnings = append(warnings, fmt.Sprintf("port not set, using default value of %d", DefaultPort))
	}
	if config.Keys.UsageLimit == 0 {
		config.Keys.UsageLimit = DefaultUsageLimit
	}
	if config.Server.ReadTimeout == "" {
		config.Server.ReadTimeout = "15s"
	}
	if config.Server.WriteTimeout == "" {
		config.Server.WriteTimeout = "60s"
	}
	if config.Server.ShutdownTimeout == "" {
		config.Server.ShutdownTimeout = "5s"
	}
	if config.Summarizer.Mode == "" {
		config.Summarizer.Mode = SummarizerModeManual
		warnings = append(warnings, "summarizer.mode not set, using the manual README extractor")
	}
	if config.Summarizer.GeminiModel == "" {
		config.Summarizer.GeminiModel = "gemini-1.5-flash"
	}
	if config.Summarizer.HTTPTimeout == "" {
		config.Summarizer.HTTPTimeout = "30s"
	}
	if config.Cache.Type == "" {
		config.Cache.Type = CacheTypeMemory
	}
	if config.Cache.TTL == "" {
		config.Cache.TTL = "24h"
	}
	if config.Scheduler.OrphanPurgeSpec == "" {
		config.Scheduler.OrphanPurgeSpec = "@daily"
	}
	if config.Scheduler.CachePurgeSpec == "" {
		config.Scheduler.CachePurgeSpec = "@hourly"
	}
	if config.Auth.SessionSecret == "" {
		warnings = append(warnings, "auth.session_secret not set, trusting the X-User-Id header from the session layer")
	}
	return warnings
}

func (c *Config) validate() error {
	if c.Database.Type == "" || c.Database.DSN == "" {
		return fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if c.Keys.UsageLimit < 0 {
		return fmt.Errorf("keys.usage_limit must not be negative, got %d", c.Keys.UsageLimit)
	}
	switch c.Summarizer.Mode {
	case SummarizerModeManual:
	case SummarizerModeLLM:
		if c.Summarizer.GeminiAPIKey == "" {
			return fmt.Errorf("summarizer.mode %q requires summarizer.gemini_api_key", SummarizerModeLLM)
		}
	default:
		return fmt.Errorf("unsupported summarizer mode: %s", c.Summarizer.Mode)
	}
	switch c.Cache.Type {
	case CacheTypeNone, CacheTypeMemory:
	case CacheTypeRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.type %q requires cache.redis_addr", CacheTypeRedis)
		}
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}
	for name, value := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"summarizer.http_timeout": c.Summarizer.HTTPTimeout,
		"cache.ttl":               c.Cache.TTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}
	return nil
}

// Duration parses a duration that validate has already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
