// Package config загружает настройки сервиса из config/config.yaml и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Rollup    RollupConfig    `mapstructure:"rollup"`
	Quotation QuotationConfig `mapstructure:"quotation"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	Migrate         bool          `mapstructure:"migrate"`
}

// DSN строка подключения для lib/pq.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	RouteTTL time.Duration `mapstructure:"route_ttl"`
}

type RoutingConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Profile string        `mapstructure:"profile"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MatchingConfig struct {
	Workers                   int     `mapstructure:"workers"`
	DefaultMaxDistanceKm      float64 `mapstructure:"default_max_distance_km"`
	DefaultMaxDurationMinutes float64 `mapstructure:"default_max_duration_minutes"`
	DefaultLimit              int     `mapstructure:"default_limit"`
	FallbackSpeedKmh          float64 `mapstructure:"fallback_speed_kmh"`
	TravelRatePerKm           string  `mapstructure:"travel_rate_per_km"`
}

// RatePerKm travel_rate_per_km как decimal.
func (c MatchingConfig) RatePerKm() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.TravelRatePerKm)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: matching.travel_rate_per_km: %w", err)
	}
	return d, nil
}

type RollupConfig struct {
	DefaultMarginPercent string        `mapstructure:"default_margin_percent"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	RetryBaseDelay       time.Duration `mapstructure:"retry_base_delay"`
}

func (c RollupConfig) Margin() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.DefaultMarginPercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: rollup.default_margin_percent: %w", err)
	}
	return d, nil
}

type QuotationConfig struct {
	DefaultValidDays int           `mapstructure:"default_valid_days"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 20*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "eventstaff")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "eventstaff")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.lock_timeout", 2*time.Second)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.route_ttl", 24*time.Hour)

	v.SetDefault("routing.enabled", false)
	v.SetDefault("routing.base_url", "http://localhost:5000")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.timeout", 3*time.Second)

	v.SetDefault("matching.workers", 8)
	v.SetDefault("matching.default_max_distance_km", 50)
	v.SetDefault("matching.default_max_duration_minutes", 60)
	v.SetDefault("matching.default_limit", 20)
	v.SetDefault("matching.fallback_speed_kmh", 40)
	v.SetDefault("matching.travel_rate_per_km", "1.50")

	v.SetDefault("rollup.default_margin_percent", "30")
	v.SetDefault("rollup.max_attempts", 3)
	v.SetDefault("rollup.retry_base_delay", 20*time.Millisecond)

	v.SetDefault("quotation.default_valid_days", 7)
	v.SetDefault("quotation.sweep_interval", 5*time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
}

// Load читает файл из paths (первый найденный), затем переменные вида DATABASE_HOST.
// Отсутствие файла не ошибка.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Matching.Workers <= 0 {
		return errors.New("config: matching.workers must be positive")
	}
	if c.Matching.DefaultLimit <= 0 || c.Matching.DefaultMaxDistanceKm <= 0 || c.Matching.DefaultMaxDurationMinutes <= 0 {
		return errors.New("config: matching defaults must be positive")
	}
	if c.Rollup.MaxAttempts <= 0 {
		return errors.New("config: rollup.max_attempts must be positive")
	}
	margin, err := c.Rollup.Margin()
	if err != nil {
		return err
	}
	if margin.IsNegative() {
		return errors.New("config: rollup.default_margin_percent must not be negative")
	}
	rate, err := c.Matching.RatePerKm()
	if err != nil {
		return err
	}
	if rate.IsNegative() {
		return errors.New("config: matching.travel_rate_per_km must not be negative")
	}
	if c.Quotation.DefaultValidDays <= 0 {
		return errors.New("config: quotation.default_valid_days must be positive")
	}
	if c.Quotation.SweepInterval <= 0 {
		return errors.New("config: quotation.sweep_interval must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return errors.New("config: rate_limit.requests_per_second must be positive")
	}
	return nil
}
