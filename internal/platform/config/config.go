// Package config loads engine configuration from YAML files and environment
// variables via viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the execution engine.
type Config struct {
	Ethereum      EthereumConfig      `mapstructure:"ethereum"`
	Market        MarketConfig        `mapstructure:"market"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Signer        SignerConfig        `mapstructure:"signer"`
	Redis         RedisConfig         `mapstructure:"redis"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	HTTP          HTTPConfig          `mapstructure:"http"`
}

// EthereumConfig holds Ethereum connection configuration.
type EthereumConfig struct {
	ChainID       int64           `mapstructure:"chain_id"`
	WebSocketURLs []string        `mapstructure:"websocket_urls"`
	RPCURLs       []string        `mapstructure:"rpc_urls"`
	Reconnect     ReconnectConfig `mapstructure:"reconnect"`
	PollInterval  time.Duration   `mapstructure:"poll_interval"`
}

// ReconnectConfig holds WebSocket reconnection settings.
type ReconnectConfig struct {
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	Jitter     float64       `mapstructure:"jitter"`
}

// MarketConfig seeds the in-memory market with tokens and pools.
type MarketConfig struct {
	Tokens []TokenConfig `mapstructure:"tokens"`
	Pools  []PoolConfig  `mapstructure:"pools"`
}

// TokenConfig describes one tracked token.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
	// ETHPriceWei is wei per whole token, decimal string. Optional.
	ETHPriceWei string `mapstructure:"eth_price_wei"`
}

// PoolConfig describes one tracked pool.
type PoolConfig struct {
	Address  string `mapstructure:"address"`
	Protocol string `mapstructure:"protocol"`
	Token0   string `mapstructure:"token0"`
	Token1   string `mapstructure:"token1"`
}

// MonitorConfig holds pool health monitor settings.
type MonitorConfig struct {
	DisableThreshold int `mapstructure:"disable_threshold"`
}

// EngineConfig holds pipeline tuning.
type EngineConfig struct {
	// ToleranceBPS is the selection tolerance band in basis points.
	ToleranceBPS int64 `mapstructure:"tolerance_bps"`
	// TipsBPS is the share of profit paid as tips, in basis points.
	TipsBPS             int64         `mapstructure:"tips_bps"`
	EstimateConcurrency int64         `mapstructure:"estimate_concurrency"`
	EncodeWorkers       int           `mapstructure:"encode_workers"`
	BusBuffer           int           `mapstructure:"bus_buffer"`
	DedupeTTL           time.Duration `mapstructure:"dedupe_ttl"`
}

// SignerConfig holds signing configuration. The private key comes from the
// SIGNER_PRIVATE_KEY environment variable, never from the config file.
type SignerConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AWSConfig holds AWS service configuration.
type AWSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Region      string `mapstructure:"region"`
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
}

// CacheConfig holds caching configuration.
type CacheConfig struct {
	L1MaxSize int           `mapstructure:"l1_max_size"`
	L2TTL     time.Duration `mapstructure:"l2_ttl"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.BindEnv("signer.private_key", "SIGNER_PRIVATE_KEY")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not fatal if env vars are set.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.reconnect.base_delay", "1s")
	v.SetDefault("ethereum.reconnect.max_backoff", "30s")
	v.SetDefault("ethereum.reconnect.jitter", 0.2)
	v.SetDefault("ethereum.poll_interval", "12s")

	v.SetDefault("monitor.disable_threshold", 100)

	v.SetDefault("engine.tolerance_bps", 1000)
	v.SetDefault("engine.tips_bps", 5000)
	v.SetDefault("engine.estimate_concurrency", 4)
	v.SetDefault("engine.encode_workers", 4)
	v.SetDefault("engine.bus_buffer", 64)
	v.SetDefault("engine.dedupe_ttl", "24s")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("aws.enabled", false)
	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("cache.l1_max_size", 1000)
	v.SetDefault("cache.l2_ttl", "60s")

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9091)
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")

	v.SetDefault("http.port", 8080)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Ethereum.WebSocketURLs) == 0 {
		return fmt.Errorf("at least one WebSocket URL is required")
	}
	if len(c.Ethereum.RPCURLs) == 0 {
		return fmt.Errorf("at least one RPC endpoint is required")
	}

	if c.Monitor.DisableThreshold <= 0 {
		return fmt.Errorf("monitor disable threshold must be positive")
	}

	if c.Engine.ToleranceBPS < 0 {
		return fmt.Errorf("tolerance bps must be >= 0")
	}
	if c.Engine.TipsBPS < 0 || c.Engine.TipsBPS > 10000 {
		return fmt.Errorf("tips bps must be within [0, 10000]")
	}
	if c.Engine.EstimateConcurrency <= 0 {
		return fmt.Errorf("estimate concurrency must be positive")
	}

	for i, tok := range c.Market.Tokens {
		if tok.Symbol == "" || tok.Address == "" {
			return fmt.Errorf("market token %d: symbol and address are required", i)
		}
	}
	for i, pool := range c.Market.Pools {
		if pool.Address == "" {
			return fmt.Errorf("market pool %d: address is required", i)
		}
	}

	if c.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.AWS.Enabled {
		if c.AWS.Region == "" {
			return fmt.Errorf("AWS region is required when AWS is enabled")
		}
		if c.AWS.SNSTopicARN == "" {
			return fmt.Errorf("SNS topic ARN is required when AWS is enabled")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Observability.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Observability.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Observability.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Observability.Logging.Format)
	}

	return nil
}
