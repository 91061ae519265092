package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Clob     ClobConfig     `mapstructure:"clob"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Risk     RiskConfig     `mapstructure:"risk"`
}

type ServerConfig struct {
	Port         string  `mapstructure:"port"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	RateBurst    int     `mapstructure:"rate_burst"`
	// OpsKey guards the order routes. They stay closed while it is empty.
	OpsKey string `mapstructure:"ops_key"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ClobConfig struct {
	Host    string `mapstructure:"host"`
	ChainID int64  `mapstructure:"chain_id"`

	// L1: key material held in memory for the process lifetime.
	PrivateKey    string `mapstructure:"private_key"`
	SignatureType int    `mapstructure:"signature_type"`
	Funder        string `mapstructure:"funder"`

	// L2 API credentials
	ApiKey        string `mapstructure:"api_key"`
	ApiSecret     string `mapstructure:"api_secret"`
	ApiPassphrase string `mapstructure:"api_passphrase"`

	TimeoutMs    int     `mapstructure:"timeout_ms"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	UserAgent    string  `mapstructure:"user_agent"`
}

type StreamConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	MarketAssets         []string      `mapstructure:"market_assets"`
	UserMarkets          []string      `mapstructure:"user_markets"`
	KeepaliveInterval    time.Duration `mapstructure:"keepalive_interval"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
	RecentMax     int    `mapstructure:"recent_max"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RiskConfig struct {
	MaxOrderValue    float64       `mapstructure:"max_order_value"`
	MaxSlippage      float64       `mapstructure:"max_slippage"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	RestrictedTokens []string      `mapstructure:"restricted_tokens"`
}

// Credentials holds the L2 triple. Returned only when all three parts are set.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

func (c *Config) Credentials() *Credentials {
	if c.Clob.ApiKey == "" || c.Clob.ApiSecret == "" || c.Clob.ApiPassphrase == "" {
		return nil
	}
	return &Credentials{
		Key:        c.Clob.ApiKey,
		Secret:     c.Clob.ApiSecret,
		Passphrase: c.Clob.ApiPassphrase,
	}
}

func (c *Config) Validate() error {
	if c.Clob.ChainID <= 0 {
		return fmt.Errorf("clob.chain_id must be positive, got %d", c.Clob.ChainID)
	}
	if c.Clob.SignatureType < 0 || c.Clob.SignatureType > 2 {
		return fmt.Errorf("clob.signature_type must be 0, 1 or 2, got %d", c.Clob.SignatureType)
	}
	if c.Stream.MaxReconnectAttempts < 0 {
		return errors.New("stream.max_reconnect_attempts must not be negative")
	}
	if c.Risk.MaxSlippage < 0 || c.Risk.MaxOrderValue < 0 {
		return errors.New("risk limits must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.rate_limit_rps", 50)
	v.SetDefault("server.rate_burst", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("clob.host", "https://clob.polymarket.com")
	v.SetDefault("clob.chain_id", 137)
	v.SetDefault("clob.signature_type", 0)
	v.SetDefault("clob.timeout_ms", 10000)
	v.SetDefault("clob.rate_limit_rps", 10)
	v.SetDefault("clob.user_agent", "polyclob")

	v.SetDefault("stream.base_url", "wss://ws-subscriptions-clob.polymarket.com")
	v.SetDefault("stream.market_assets", []string{})
	v.SetDefault("stream.user_markets", []string{})
	v.SetDefault("stream.keepalive_interval", 10*time.Second)
	v.SetDefault("stream.reconnect_base_delay", 3*time.Second)
	v.SetDefault("stream.max_reconnect_attempts", 5)
	v.SetDefault("stream.handshake_timeout", 10*time.Second)

	v.SetDefault("redis.channel_prefix", "polyclob")
	v.SetDefault("redis.recent_max", 1000)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("risk.max_order_value", 0)
	v.SetDefault("risk.max_slippage", 0)
	v.SetDefault("risk.stale_after", 10*time.Second)
	v.SetDefault("risk.restricted_tokens", []string{})
}

// Load reads config.yaml from the working directory, ./configs and any extra
// paths, then overlays POLYCLOB_* environment variables.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// e.g. POLYCLOB_CLOB_API_KEY
	v.SetEnvPrefix("polyclob")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
