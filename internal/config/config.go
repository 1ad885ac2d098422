package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// DefaultModels per provider, used when ai.model is empty.
var DefaultModels = map[string]string{
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderOpenAI:    "gpt-4o",
	ProviderGemini:    "gemini-2.5-flash",
}

type Config struct {
	Server struct {
		Port              int      `yaml:"port"`
		ReadTimeoutSec    int      `yaml:"readTimeoutSec"`
		WriteTimeoutSec   int      `yaml:"writeTimeoutSec"`
		MaxUploadMB       int      `yaml:"maxUploadMB"`
		SessionIdleMinute int      `yaml:"sessionIdleMinutes"`
		AllowedOrigins    []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`  // debug, info, warn, error
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`

	AI struct {
		Provider   string `yaml:"provider"`
		APIKey     string `yaml:"apiKey"`
		BaseURL    string `yaml:"baseURL"`
		Model      string `yaml:"model"`
		MaxTokens  int    `yaml:"maxTokens"`
		TimeoutSec int    `yaml:"timeoutSec"`
	} `yaml:"ai"`

	Imaging struct {
		MaxWidth  int     `yaml:"maxWidth"`
		Quality   float64 `yaml:"quality"`
		MaxPixels int     `yaml:"maxPixels"` // width*height accepted before decoding
	} `yaml:"imaging"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
		Prefix     string `yaml:"prefix"`
	} `yaml:"minio"`

	Database struct {
		Driver   string `yaml:"driver"` // "", mysql, postgres
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Auth struct {
		// APIKeys maps a client name to its key. Empty disables auth.
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity        int `yaml:"capacity"`
		RefillPerSecond int `yaml:"refillPerSecond"`
	} `yaml:"rateLimit"`
}

// Load baca file config.yaml. File yang tidak ada berarti pakai default + env.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("UXTRAP_AI_PROVIDER"); v != "" {
		c.AI.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := getenv("UXTRAP_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("UXTRAP_AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if c.AI.APIKey != "" {
		return
	}
	switch c.provider() {
	case ProviderAnthropic:
		c.AI.APIKey = getenv("ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		c.AI.APIKey = getenv("OPENAI_API_KEY")
	case ProviderGemini:
		c.AI.APIKey = getenv("GEMINI_API_KEY")
	}
}

func (c *Config) provider() string {
	if c.AI.Provider == "" {
		return ProviderAnthropic
	}
	return c.AI.Provider
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 30
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 30
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 20
	}
	if c.Server.SessionIdleMinute == 0 {
		c.Server.SessionIdleMinute = 120
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	c.AI.Provider = c.provider()
	if c.AI.Model == "" {
		c.AI.Model = DefaultModels[c.AI.Provider]
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = 4096
	}
	if c.AI.TimeoutSec == 0 {
		c.AI.TimeoutSec = 180
	}
	if c.Imaging.MaxWidth == 0 {
		c.Imaging.MaxWidth = 1200
	}
	if c.Imaging.Quality == 0 {
		c.Imaging.Quality = 0.7
	}
	if c.Imaging.MaxPixels == 0 {
		c.Imaging.MaxPixels = 50_000_000
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "uxtrap-exports"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 60
	}
	if c.RateLimit.RefillPerSecond == 0 {
		c.RateLimit.RefillPerSecond = 1
	}
}

func (c *Config) Validate() error {
	if _, ok := DefaultModels[c.AI.Provider]; !ok {
		return fmt.Errorf("ai.provider %q is not supported (anthropic, openai, gemini)", c.AI.Provider)
	}
	if c.Imaging.Quality <= 0 || c.Imaging.Quality > 1 {
		return fmt.Errorf("imaging.quality must be in (0,1], got %v", c.Imaging.Quality)
	}
	if c.Imaging.MaxWidth <= 0 {
		return fmt.Errorf("imaging.maxWidth must be positive, got %d", c.Imaging.MaxWidth)
	}
	if c.Imaging.MaxPixels < 0 {
		return fmt.Errorf("imaging.maxPixels must be positive, got %d", c.Imaging.MaxPixels)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "", "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported (mysql, postgres)", c.Database.Driver)
	}
	return nil
}

func (c *Config) MinioEnabled() bool { return c.Minio.Endpoint != "" }

func (c *Config) MaxUploadBytes() int64 { return int64(c.Server.MaxUploadMB) << 20 }

func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.Server.SessionIdleMinute) * time.Minute
}

func (c *Config) AITimeout() time.Duration { return time.Duration(c.AI.TimeoutSec) * time.Second }

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

func (c *Config) PostgresDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
