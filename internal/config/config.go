package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ServiceName    = "market-pulse"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string                    `mapstructure:"env"`
	Log                     LogConfig                 `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration             `mapstructure:"graceful_shutdown_timeout"`
	APIKeys                 []APIKeyConfig            `mapstructure:"api_keys"`
	Port                    map[string]string         `mapstructure:"port"`
	Cache                   CacheConfig               `mapstructure:"cache"`
	Providers               map[string]ProviderConfig `mapstructure:"providers"`
	Assignments             map[string]string         `mapstructure:"assignments"` // category -> provider name
	Ingestion               IngestionConfig           `mapstructure:"ingestion"`
	Stream                  StreamConfig              `mapstructure:"stream"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type APIKeyConfig struct {
	Name      string `mapstructure:"name"`
	Key       string `mapstructure:"key"`
	Active    bool   `mapstructure:"active"`
	ExpiredAt any    `mapstructure:"expired_at"`
}

type CacheConfig struct {
	Driver          string        `mapstructure:"driver"` // redis | memory
	DSN             string        `mapstructure:"dsn"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	TTL             time.Duration `mapstructure:"ttl"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxRetry        int           `mapstructure:"max_retry"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
}

type ProviderConfig struct {
	Name         string              `mapstructure:"name"`
	APIKey       string              `mapstructure:"api_key"`
	BaseURL      string              `mapstructure:"base_url"`
	WSURL        string              `mapstructure:"ws_url"`
	PollInterval time.Duration       `mapstructure:"poll_interval"`
	Symbols      map[string][]string `mapstructure:"symbols"` // category -> symbols
}

type IngestionConfig struct {
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BreakerInterval time.Duration `mapstructure:"breaker_interval"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
	BreakerMinCalls uint32        `mapstructure:"breaker_min_calls"`
	BreakerFailRate float64       `mapstructure:"breaker_fail_rate"`
}

type StreamConfig struct {
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	MailboxSize     int           `mapstructure:"mailbox_size"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	applyDefaults(Env)

	return nil
}

func applyDefaults(cfg *EnvConfig) {
	if cfg == nil {
		return
	}

	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = 10 * time.Second
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "mp"
	}
	if cfg.Cache.TTL <= 0 {
		cfg.Cache.TTL = 300 * time.Second
	}
	if cfg.Ingestion.BackoffBase <= 0 {
		cfg.Ingestion.BackoffBase = 1 * time.Second
	}
	if cfg.Ingestion.BackoffCap <= 0 {
		cfg.Ingestion.BackoffCap = 30 * time.Second
	}
	if cfg.Ingestion.MaxAttempts <= 0 {
		cfg.Ingestion.MaxAttempts = 10
	}
	if cfg.Ingestion.BreakerInterval <= 0 {
		cfg.Ingestion.BreakerInterval = 60 * time.Second
	}
	if cfg.Ingestion.BreakerCooldown <= 0 {
		cfg.Ingestion.BreakerCooldown = 30 * time.Second
	}
	if cfg.Ingestion.BreakerMinCalls == 0 {
		cfg.Ingestion.BreakerMinCalls = 5
	}
	if cfg.Ingestion.BreakerFailRate <= 0 {
		cfg.Ingestion.BreakerFailRate = 0.5
	}
	if cfg.Stream.MailboxSize <= 0 {
		cfg.Stream.MailboxSize = 64
	}
	if cfg.Stream.WriteTimeout <= 0 {
		cfg.Stream.WriteTimeout = 5 * time.Second
	}
	if cfg.Stream.PingInterval <= 0 {
		cfg.Stream.PingInterval = 30 * time.Second
	}
	if cfg.Stream.MaxMessageBytes <= 0 {
		cfg.Stream.MaxMessageBytes = 1 << 16
	}
}
