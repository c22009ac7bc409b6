package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultDateLayout is the date-time format the archive expects in startDate/endDate.
const DefaultDateLayout = "1/2/2006 3:04:05 PM"

// Config holds all configuration for archivist
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Index     IndexConfig     `mapstructure:"index"`
	Output    OutputConfig    `mapstructure:"output"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Server    ServerConfig    `mapstructure:"server"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ArchiveConfig describes the remote archive and how hard we may hit it.
type ArchiveConfig struct {
	URL           string        `mapstructure:"url"`
	DateLayout    string        `mapstructure:"date_layout"`
	Location      string        `mapstructure:"location"`
	Cap           int           `mapstructure:"cap"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	Backoff       time.Duration `mapstructure:"backoff"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// Normalize fills in defaults for unset archive values.
func (a ArchiveConfig) Normalize() ArchiveConfig {
	a.URL = strings.TrimSpace(a.URL)
	if strings.TrimSpace(a.DateLayout) == "" {
		a.DateLayout = DefaultDateLayout
	}
	if strings.TrimSpace(a.Location) == "" {
		a.Location = "Local"
	}
	if a.Cap <= 0 {
		a.Cap = 100
	}
	if a.Timeout <= 0 {
		a.Timeout = 30 * time.Second
	}
	if a.Retries < 0 {
		a.Retries = 0
	}
	if a.Backoff <= 0 {
		a.Backoff = 300 * time.Millisecond
	}
	if a.Burst <= 0 {
		a.Burst = 1
	}
	return a
}

// Validate checks archive settings. An empty URL is allowed because the fetch command
// takes the URL as an argument.
func (a ArchiveConfig) Validate() error {
	if a.URL != "" {
		if err := ValidateURL(a.URL); err != nil {
			return fmt.Errorf("archive.url: %w", err)
		}
	}
	if a.RatePerSecond < 0 {
		return fmt.Errorf("archive.rate_per_second cannot be negative")
	}
	if _, err := time.LoadLocation(a.Location); err != nil {
		return fmt.Errorf("archive.location: %w", err)
	}
	return nil
}

// LoadLocation resolves the configured time zone for archive dates.
func (a ArchiveConfig) LoadLocation() *time.Location {
	loc, err := time.LoadLocation(a.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

// ValidateURL accepts absolute http(s) URLs only.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// CacheConfig controls the redis batch cache in front of the archive.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

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

// DSN builds the connection string, preferring an explicit url.
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

// IndexConfig points at the bleve full-text index. An empty path keeps the index in memory.
type IndexConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig controls how fetched records are rendered.
type OutputConfig struct {
	Format   string `mapstructure:"format"`
	PageSize int    `mapstructure:"page_size"`
}

func (o OutputConfig) Validate() error {
	switch o.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output.format must be one of text, json, yaml (got %q)", o.Format)
	}
	if o.PageSize < 0 {
		return fmt.Errorf("output.page_size cannot be negative")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ScheduleConfig drives the periodic sync command.
type ScheduleConfig struct {
	Cron     string        `mapstructure:"cron"`
	Lookback time.Duration `mapstructure:"lookback"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
	Poll     time.Duration `mapstructure:"poll"`
}

func (s ScheduleConfig) Validate() error {
	if s.Lookback <= 0 {
		return fmt.Errorf("schedule.lookback must be positive")
	}
	if s.Poll <= 0 {
		return fmt.Errorf("schedule.poll must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.default_timeout", "2m")
	v.SetDefault("archive.url", "")
	v.SetDefault("archive.date_layout", DefaultDateLayout)
	v.SetDefault("archive.location", "Local")
	v.SetDefault("archive.cap", 100)
	v.SetDefault("archive.timeout", "30s")
	v.SetDefault("archive.retries", 0)
	v.SetDefault("archive.backoff", "300ms")
	v.SetDefault("archive.rate_per_second", 0)
	v.SetDefault("archive.burst", 1)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.postgres.host", "")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.user", "")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.dbname", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("index.path", "")
	v.SetDefault("output.format", "text")
	v.SetDefault("output.page_size", 0)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.metrics_port", 9464)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("server.address", ":10001")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("schedule.cron", "@hourly")
	v.SetDefault("schedule.lookback", "24h")
	v.SetDefault("schedule.lock_ttl", "10m")
	v.SetDefault("schedule.poll", "1m")
}

// LoadConfig loads config from file. With an empty path it searches the usual locations
// and falls back to defaults plus ARCHIVIST_* environment variables when no file exists.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

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

	v.SetEnvPrefix("ARCHIVIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Archive = cfg.Archive.Normalize()

	if err := cfg.Archive.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Output.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
