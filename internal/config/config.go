package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	MySQL     DatabaseConfig  `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Providers ProvidersConfig `mapstructure:"providers"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr       string `mapstructure:"addr"`
	CronSecret string `mapstructure:"cron_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	SentTopic     string   `mapstructure:"sent_topic"`
	WriteTimeout  int      `mapstructure:"write_timeout_ms"`
	RequiredAcks  int      `mapstructure:"required_acks"`
	AllowAutoInit bool     `mapstructure:"allow_auto_topic_creation"`
}

type QueueConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type LifecycleConfig struct {
	Lookahead        time.Duration `mapstructure:"lookahead"`
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
	PubSubTopic      string        `mapstructure:"pubsub_topic"`
}

type OAuthClient struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TokenURL     string `mapstructure:"token_url"` // override for tests; default per provider
}

type OAuthConfig struct {
	Google    OAuthClient   `mapstructure:"google"`
	Microsoft OAuthClient   `mapstructure:"microsoft"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"`
}

type ProvidersConfig struct {
	Gmail   GmailConfig   `mapstructure:"gmail"`
	Outlook OutlookConfig `mapstructure:"outlook"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
}

type GmailConfig struct {
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type OutlookConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	TimeoutMs int           `mapstructure:"timeout_ms"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

type SMTPConfig struct {
	TimeoutMs int `mapstructure:"timeout_ms"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies
// env overrides (EMAILGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (EMAILGW_*)
	v.SetEnvPrefix("EMAILGW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the scheduled runs cannot operate under.
// Loosely-typed knobs are checked once here, not re-parsed per invocation.
func (c Config) Validate() error {
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive, got %d", c.Queue.BatchSize)
	}
	if c.Queue.StaleAfter <= 0 {
		return fmt.Errorf("queue.stale_after must be positive, got %s", c.Queue.StaleAfter)
	}
	if c.Lifecycle.Lookahead <= 0 {
		return fmt.Errorf("lifecycle.lookahead must be positive, got %s", c.Lifecycle.Lookahead)
	}
	if c.Lifecycle.RefreshThreshold <= 0 {
		return fmt.Errorf("lifecycle.refresh_threshold must be positive, got %s", c.Lifecycle.RefreshThreshold)
	}
	if c.HTTP.CronSecret == "" {
		return fmt.Errorf("http.cron_secret must be set")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.SentTopic == "" {
		return fmt.Errorf("kafka.sent_topic must be set when brokers are configured")
	}
	return nil
}
