package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver     string        `mapstructure:"driver"` // postgres, sqlite or memory
	SQLitePath string        `mapstructure:"sqlite_path"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// DBConfig holds database configuration
type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN renders the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LedgerConfig struct {
	DefaultBalance int64         `mapstructure:"default_balance"`
	DailyAmount    int64         `mapstructure:"daily_amount"`
	DailyCooldown  time.Duration `mapstructure:"daily_cooldown"`
	TopLimit       int           `mapstructure:"top_limit"`
	// PlayReward is credited to a linked game account once per PlayCooldown.
	PlayReward   int64         `mapstructure:"play_reward"`
	PlayCooldown time.Duration `mapstructure:"play_cooldown"`
}

type CurrencyConfig struct {
	Name   string `mapstructure:"name"`
	Symbol string `mapstructure:"symbol"`
	Format string `mapstructure:"format"`
}

type GatewayConfig struct {
	Secret        string        `mapstructure:"secret"`
	GuildID       string        `mapstructure:"guild_id"` // empty = global scope
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	ReplayTTL     time.Duration `mapstructure:"replay_ttl"`
}

type JWTConfig struct {
	SecretKey   string `mapstructure:"secret_key"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
	Issuer      string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

type Config struct {
	Server      ServerConfig   `mapstructure:"server"`
	Store       StoreConfig    `mapstructure:"store"`
	Database    DBConfig       `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Ledger      LedgerConfig   `mapstructure:"ledger"`
	Currency    CurrencyConfig `mapstructure:"currency"`
	Gateway     GatewayConfig  `mapstructure:"gateway"`
	JWT         JWTConfig      `mapstructure:"jwt"`
	Log         LogConfig      `mapstructure:"log"`
	Permissions map[string]int `mapstructure:"permissions"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "data/ledger.db")
	v.SetDefault("store.timeout", 5*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "guild_economy")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Minute*5)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ledger.default_balance", 1000)
	v.SetDefault("ledger.daily_amount", 100)
	v.SetDefault("ledger.daily_cooldown", 24*time.Hour)
	v.SetDefault("ledger.top_limit", 10)
	v.SetDefault("ledger.play_reward", 50)
	v.SetDefault("ledger.play_cooldown", time.Hour)

	v.SetDefault("currency.name", "coins")
	v.SetDefault("currency.symbol", "💰")
	v.SetDefault("currency.format", "{amount} {currency}")

	v.SetDefault("gateway.secret", "")
	v.SetDefault("gateway.guild_id", "")
	v.SetDefault("gateway.rate_per_second", 10)
	v.SetDefault("gateway.burst", 20)
	v.SetDefault("gateway.replay_ttl", 10*time.Minute)

	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("jwt.issuer", "guild-economy")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")

	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.sqlite_path", "SQLITE_PATH")

	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.name", "DATABASE_NAME")
	v.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	v.BindEnv("ledger.default_balance", "DEFAULT_BALANCE")
	v.BindEnv("ledger.play_reward", "MINECRAFT_REWARD")
	v.BindEnv("gateway.secret", "API_SECRET_KEY", "API_KEY")
	v.BindEnv("gateway.guild_id", "GUILD_ID")

	v.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	v.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")

	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")
}

// Load reads configuration from path (a .env or YAML file; empty means
// ".env" in the working directory) with environment variables taking
// precedence. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = ".env"
	}
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the ledger cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Ledger.DefaultBalance < 0 {
		return errors.New("config: ledger.default_balance must not be negative")
	}
	if c.Ledger.DailyAmount <= 0 {
		return errors.New("config: ledger.daily_amount must be positive")
	}
	if c.Ledger.PlayReward <= 0 {
		return errors.New("config: ledger.play_reward must be positive")
	}
	if c.Ledger.TopLimit <= 0 {
		return errors.New("config: ledger.top_limit must be positive")
	}
	for op, level := range c.Permissions {
		if level < 0 || level > 3 {
			return fmt.Errorf("config: permission level for %q out of range", op)
		}
	}
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
