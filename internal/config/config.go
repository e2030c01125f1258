// Package config loads service settings from an optional YAML file and the
// environment. Environment variables always win.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Bot       BotConfig       `yaml:"bot"`
	Model     ModelConfig     `yaml:"model"`
	Engine    EngineConfig    `yaml:"engine"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
	Accounts  AccountsConfig  `yaml:"accounts"`
	State     StateConfig     `yaml:"state"`
	Anomalies AnomaliesConfig `yaml:"anomalies"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Secrets   SecretsConfig   `yaml:"secrets"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type HTTPConfig struct {
	Addr          string `yaml:"addr"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type BotConfig struct {
	Username        string `yaml:"username"`
	StartingBalance int    `yaml:"starting_balance"`
	ReferralBonus   int    `yaml:"referral_bonus"`
	TokenParameter  string `yaml:"token_parameter"`
}

type ModelConfig struct {
	Provider       string        `yaml:"provider"` // openai, gemini
	BaseURL        string        `yaml:"base_url"`
	Name           string        `yaml:"name"`
	TokenParameter string        `yaml:"token_parameter"`
	Timeout        time.Duration `yaml:"timeout"`
}

type EngineConfig struct {
	SlideCounts []int  `yaml:"slide_counts"`
	Workers     int    `yaml:"workers"`
	Brand       string `yaml:"brand"`
}

type ArtifactConfig struct {
	Dir    string        `yaml:"dir"`
	MaxAge time.Duration `yaml:"max_age"`
}

type AccountsConfig struct {
	Backend     string `yaml:"backend"` // dynamodb, postgres, memory
	Table       string `yaml:"table"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type StateConfig struct {
	Backend       string        `yaml:"backend"` // redis, memory
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	Prefix        string        `yaml:"prefix"`
	InFlightTTL   time.Duration `yaml:"inflight_ttl"`
	TopicTTL      time.Duration `yaml:"topic_ttl"`
}

type AnomaliesConfig struct {
	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`
}

type DeliveryConfig struct {
	Mode  string      `yaml:"mode"` // document, link, auto
	Minio MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Bucket    string        `yaml:"bucket"`
	UseSSL    bool          `yaml:"use_ssl"`
	LinkTTL   time.Duration `yaml:"link_ttl"`
}

// SecretsConfig selects where tokens come from. With ParamPrefix set they are
// read from SSM Parameter Store; otherwise the plain values below are used.
type SecretsConfig struct {
	ParamPrefix string `yaml:"param_prefix"`
	BotToken    string `yaml:"-"`
	ModelAPIKey string `yaml:"-"`
}

func Default() *Config {
	return &Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Addr: ":8080"},
		Bot: BotConfig{
			StartingBalance: 2,
			ReferralBonus:   1,
			TokenParameter:  "bot-token",
		},
		Model: ModelConfig{
			Provider: "openai",
			Timeout:  60 * time.Second,
		},
		Engine: EngineConfig{
			SlideCounts: []int{5, 7, 10, 15, 20},
			Brand:       "Slide Master AI",
		},
		Artifacts: ArtifactConfig{
			Dir:    filepath.Join(os.TempDir(), "slide-master"),
			MaxAge: time.Hour,
		},
		Accounts: AccountsConfig{Backend: "memory"},
		State: StateConfig{
			Backend:     "memory",
			Prefix:      "slides",
			InFlightTTL: 5 * time.Minute,
			TopicTTL:    30 * time.Minute,
		},
		Anomalies: AnomaliesConfig{MongoDB: "slide_master"},
		Delivery: DeliveryConfig{
			Mode:  "document",
			Minio: MinioConfig{Bucket: "slide-decks", LinkTTL: 24 * time.Hour},
		},
	}
}

// Load reads path when it is non-empty and exists, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if err := envInt(key, dst); err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if err := envDuration(key, dst); err != nil {
			errs = append(errs, err)
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("HTTP_ADDR", &c.HTTP.Addr)
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.HTTP.Addr = ":" + port
	}
	str("WEBHOOK_SECRET", &c.HTTP.WebhookSecret)

	str("BOT_USERNAME", &c.Bot.Username)
	num("STARTING_BALANCE", &c.Bot.StartingBalance)
	num("REFERRAL_BONUS", &c.Bot.ReferralBonus)
	str("BOT_TOKEN_PARAMETER", &c.Bot.TokenParameter)

	str("MODEL_PROVIDER", &c.Model.Provider)
	str("MODEL_BASE_URL", &c.Model.BaseURL)
	str("MODEL_NAME", &c.Model.Name)
	str("MODEL_TOKEN_PARAMETER", &c.Model.TokenParameter)
	dur("MODEL_TIMEOUT", &c.Model.Timeout)

	if v := strings.TrimSpace(os.Getenv("SLIDE_COUNTS")); v != "" {
		counts, err := parseCounts(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			c.Engine.SlideCounts = counts
		}
	}
	num("WORKERS", &c.Engine.Workers)
	str("BRAND", &c.Engine.Brand)

	str("ARTIFACT_DIR", &c.Artifacts.Dir)
	dur("ARTIFACT_MAX_AGE", &c.Artifacts.MaxAge)

	str("ACCOUNTS_BACKEND", &c.Accounts.Backend)
	str("STATE_TABLE", &c.Accounts.Table)
	str("POSTGRES_DSN", &c.Accounts.PostgresDSN)

	str("STATE_BACKEND", &c.State.Backend)
	str("REDIS_ADDR", &c.State.RedisAddr)
	str("REDIS_PASSWORD", &c.State.RedisPassword)
	str("REDIS_PREFIX", &c.State.Prefix)
	dur("INFLIGHT_TTL", &c.State.InFlightTTL)
	dur("TOPIC_TTL", &c.State.TopicTTL)

	str("MONGO_URI", &c.Anomalies.MongoURI)
	str("MONGO_DB", &c.Anomalies.MongoDB)

	str("DELIVERY_MODE", &c.Delivery.Mode)
	str("MINIO_ENDPOINT", &c.Delivery.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Delivery.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Delivery.Minio.SecretKey)
	str("MINIO_BUCKET", &c.Delivery.Minio.Bucket)
	if v := strings.TrimSpace(os.Getenv("MINIO_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MINIO_USE_SSL: %w", err))
		} else {
			c.Delivery.Minio.UseSSL = b
		}
	}
	dur("MINIO_LINK_TTL", &c.Delivery.Minio.LinkTTL)

	str("PARAM_PREFIX", &c.Secrets.ParamPrefix)
	str("BOT_TOKEN", &c.Secrets.BotToken)
	str("MODEL_API_KEY", &c.Secrets.ModelAPIKey)

	return errors.Join(errs...)
}

// Validate checks the settings needed by the selected backends.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("config: "+format, args...))
	}

	switch c.Model.Provider {
	case "openai", "gemini":
	default:
		fail("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.Timeout <= 0 {
		fail("model timeout must be positive")
	}
	if len(c.Engine.SlideCounts) == 0 {
		fail("slide counts must not be empty")
	}
	for _, n := range c.Engine.SlideCounts {
		if n <= 0 {
			fail("slide count %d must be positive", n)
		}
	}
	if c.Bot.StartingBalance < 0 || c.Bot.ReferralBonus < 0 {
		fail("balances must not be negative")
	}
	if strings.TrimSpace(c.Artifacts.Dir) == "" {
		fail("artifact dir is required")
	}
	if c.Artifacts.MaxAge <= 0 {
		fail("artifact max age must be positive")
	}

	switch c.Accounts.Backend {
	case "dynamodb":
		if c.Accounts.Table == "" {
			fail("accounts table is required for dynamodb")
		}
	case "postgres":
		if c.Accounts.PostgresDSN == "" {
			fail("postgres dsn is required for postgres")
		}
	case "memory":
	default:
		fail("unknown accounts backend %q", c.Accounts.Backend)
	}

	switch c.State.Backend {
	case "redis":
		if c.State.RedisAddr == "" {
			fail("redis addr is required for redis state")
		}
		// The guard must outlive the model call or a second job slips in.
		if c.State.InFlightTTL <= c.Model.Timeout {
			fail("in-flight ttl %s must exceed model timeout %s", c.State.InFlightTTL, c.Model.Timeout)
		}
	case "memory":
	default:
		fail("unknown state backend %q", c.State.Backend)
	}

	switch c.Delivery.Mode {
	case "document":
	case "link", "auto":
		if c.Delivery.Minio.Endpoint == "" || c.Delivery.Minio.Bucket == "" {
			fail("minio endpoint and bucket are required for %s delivery", c.Delivery.Mode)
		}
	default:
		fail("unknown delivery mode %q", c.Delivery.Mode)
	}
	return errors.Join(errs...)
}

// RequireSecrets reports missing tokens for commands that talk to the chat
// and model APIs.
func (c *Config) RequireSecrets() error {
	if c.Secrets.ParamPrefix != "" {
		return nil
	}
	var errs []error
	if c.Secrets.BotToken == "" {
		errs = append(errs, errors.New("config: BOT_TOKEN is required without PARAM_PREFIX"))
	}
	if c.Secrets.ModelAPIKey == "" {
		errs = append(errs, errors.New("config: MODEL_API_KEY is required without PARAM_PREFIX"))
	}
	return errors.Join(errs...)
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseCounts(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("config: SLIDE_COUNTS: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
