package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the analyst service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	SecureCookies  bool          `mapstructure:"secure_cookies"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret is required")
	}
	if s.TokenTTL <= 0 {
		return fmt.Errorf("server.token_ttl must be positive")
	}
	return nil
}

// LLMConfig contains completion provider configurations
type LLMConfig struct {
	Providers map[string]LLMProvider `mapstructure:"providers"`
	Routing   LLMRoutingConfig       `mapstructure:"routing"`
	RateLimit RateLimitConfig        `mapstructure:"rate_limit"`
	CacheTTL  time.Duration          `mapstructure:"cache_ttl"`
}

// LLMProvider represents a single provider configuration
type LLMProvider struct {
	Type       string              `mapstructure:"type"` // openai or any OpenAI-compatible endpoint
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name        string  `mapstructure:"name"`
	APIName     string  `mapstructure:"api_name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LLMRoutingConfig defines which model serves each pipeline stage.
// Values are "<provider>/<model>" or a bare model key of the first provider.
type LLMRoutingConfig struct {
	Planning  string `mapstructure:"planning"`
	Agents    string `mapstructure:"agents"`
	Combining string `mapstructure:"combining"`
	Fallback  string `mapstructure:"fallback"`
}

// Route returns the configured model for a stage, or the fallback.
func (r LLMRoutingConfig) Route(stage string) string {
	var v string
	switch stage {
	case "planning":
		v = r.Planning
	case "agents":
		v = r.Agents
	case "combining":
		v = r.Combining
	}
	if strings.TrimSpace(v) == "" {
		return r.Fallback
	}
	return v
}

// RateLimitConfig bounds outbound completion calls across all runs.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

func (l LLMConfig) Validate() error {
	if len(l.Providers) == 0 {
		return fmt.Errorf("llm.providers must configure at least one provider")
	}
	for name, p := range l.Providers {
		if p.Type != "openai" {
			return fmt.Errorf("llm.providers.%s: unsupported type %q", name, p.Type)
		}
		if len(p.Models) == 0 {
			return fmt.Errorf("llm.providers.%s: no models configured", name)
		}
	}
	if strings.TrimSpace(l.Routing.Fallback) == "" {
		return fmt.Errorf("llm.routing.fallback is required")
	}
	if l.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("llm.rate_limit.requests_per_second cannot be negative")
	}
	return nil
}

// TelemetryConfig contains tracing settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// AgentsConfig controls the capability catalog and dataset sampling.
type AgentsConfig struct {
	CatalogFile   string `mapstructure:"catalog_file"`
	SigningSecret string `mapstructure:"signing_secret"`
	SampleRows    int    `mapstructure:"sample_rows"`
}

// StorageConfig contains persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	S3       S3Config       `mapstructure:"s3"`
	Files    FileConfig     `mapstructure:"files"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required when host is set")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// S3Config contains object storage configuration.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// Enabled reports whether uploads go to S3 rather than the local directory.
func (s S3Config) Enabled() bool { return strings.TrimSpace(s.Bucket) != "" }

func (s S3Config) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" && strings.TrimSpace(s.Bucket) == "" {
		return nil
	}
	if strings.TrimSpace(s.Bucket) == "" {
		return fmt.Errorf("storage.s3.bucket required when endpoint is provided")
	}
	return nil
}

// FileConfig contains local blob storage settings
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoadConfig loads config from file and ANALYST_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", 5*time.Minute)
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.max_upload_bytes", int64(32<<20))
	v.SetDefault("llm.cache_ttl", time.Hour)
	v.SetDefault("llm.rate_limit.requests_per_second", 2.0)
	v.SetDefault("llm.rate_limit.burst", 4)
	v.SetDefault("telemetry.service_name", "analyst")
	v.SetDefault("agents.sample_rows", 50)
	v.SetDefault("storage.files.data_dir", "./data")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ANALYST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	for name, p := range c.LLM.Providers {
		if p.BaseURL == "" {
			p.BaseURL = "https://api.openai.com/v1"
		}
		if p.Timeout <= 0 {
			p.Timeout = 60 * time.Second
		}
		if p.APIKey == "" {
			p.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		c.LLM.Providers[name] = p
	}
	if c.Agents.SampleRows <= 0 {
		c.Agents.SampleRows = 50
	}
}

// Validate checks every section that the serve command depends on.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Storage.S3.Validate(); err != nil {
		return err
	}
	return nil
}
