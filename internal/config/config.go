package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all registryd configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Payment  PaymentConfig  `mapstructure:"payment"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// StoreConfig selects the engine's persistence backend
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // "memory" or "postgres"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings for the broadcast board
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

// NATSConfig contains NATS transport settings
type NATSConfig struct {
	URL      string `mapstructure:"url"`
	Embedded bool   `mapstructure:"embedded"` // run an in-process server instead of dialing
	Prefix   string `mapstructure:"prefix"`   // subject prefix, default "mesh."
}

// PaymentConfig contains settlement facilitator settings
type PaymentConfig struct {
	FacilitatorURL string  `mapstructure:"facilitator_url"`
	TimeoutMS      int     `mapstructure:"timeout_ms"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("registryd")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("MESH")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults and environment variables apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise fail at first use
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("store.backend must be \"memory\" or \"postgres\", got %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Database.Database == "" {
		return fmt.Errorf("database.database is required for the postgres backend")
	}
	if c.Payment.RatePerSecond < 0 {
		return fmt.Errorf("payment.rate_per_second must be non-negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mesh-registryd")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("store.backend", "memory")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "mesh")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.embedded", false)
	v.SetDefault("nats.prefix", "mesh.")

	v.SetDefault("payment.facilitator_url", "http://localhost:8402")
	v.SetDefault("payment.timeout_ms", 10000)
	v.SetDefault("payment.rate_per_second", 5)
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode, c.PoolSize,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
