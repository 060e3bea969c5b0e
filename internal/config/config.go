package config

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	defaultServiceName  = "pixel-tracker"
	defaultServicePort  = 8094
	defaultVersion      = "0.1.0"
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"
	defaultDBHost       = "localhost"
	defaultDBPort       = 5432
	defaultDBName       = "pixel_tracker"
	defaultDBUser       = "postgres"
	defaultDBSSLMode    = "disable"

	defaultMaxRequestsPerMinute = 100
	defaultWindowSeconds        = 60

	defaultPublicIPURL     = "https://api.ipify.org?format=json"
	defaultGeoLookupURL    = "http://ip-api.com/json"
	defaultPublicIPTimeout = 2 * time.Second
	defaultLookupTimeout   = 3 * time.Second
	defaultGeoCacheTTL     = time.Hour

	defaultConversionEndpoint = "https://graph.facebook.com/v18.0"
	defaultConversionTimeout  = 10 * time.Second
	defaultConversionQueue    = 1000
)

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Geo        GeoConfig        `yaml:"geo"`
	Conversion ConversionConfig `yaml:"conversion"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Port          int    `env:"PIXEL_TRACKER_PORT"   yaml:"port"`
	Debug         bool   `env:"APP_DEBUG"            yaml:"debug"`
	EncryptionKey string `env:"PIXEL_TRACKER_SECRET" yaml:"encryption_key"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_PIXEL_TRACKER_HOST"     yaml:"host"`
	Port     int    `env:"POSTGRES_PIXEL_TRACKER_PORT"     yaml:"port"`
	User     string `env:"POSTGRES_PIXEL_TRACKER_USER"     yaml:"user"`
	Password string `env:"POSTGRES_PIXEL_TRACKER_PASSWORD" yaml:"password"`
	Database string `env:"POSTGRES_PIXEL_TRACKER_DB"       yaml:"database"`
	SSLMode  string `env:"POSTGRES_PIXEL_TRACKER_SSLMODE"  yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds the optional Redis cache configuration.
// When Addr is empty the geolocation cache is disabled.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"     yaml:"addr"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// GeoConfig holds geolocation resolver configuration.
type GeoConfig struct {
	PublicIPURL     string        `yaml:"public_ip_url"`
	LookupURL       string        `yaml:"lookup_url"`
	PublicIPTimeout time.Duration `yaml:"public_ip_timeout"`
	LookupTimeout   time.Duration `yaml:"lookup_timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// ConversionConfig holds external ad-conversion forwarding configuration.
type ConversionConfig struct {
	Enabled   bool          `env:"CONVERSION_ENABLED" yaml:"enabled"`
	Endpoint  string        `yaml:"endpoint"`
	Timeout   time.Duration `yaml:"timeout"`
	QueueSize int           `yaml:"queue_size"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
	WindowSeconds        int `yaml:"window_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setGeoDefaults(&cfg.Geo)
	setConversionDefaults(&cfg.Conversion)
	setRateLimitDefaults(&cfg.RateLimit)
	setLoggingDefaults(&cfg.Logging)
}

// setServiceDefaults applies default values to ServiceConfig.
func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
}

// setDatabaseDefaults applies default values to DatabaseConfig.
func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

// setGeoDefaults applies default values to GeoConfig.
func setGeoDefaults(geo *GeoConfig) {
	if geo.PublicIPURL == "" {
		geo.PublicIPURL = defaultPublicIPURL
	}
	if geo.LookupURL == "" {
		geo.LookupURL = defaultGeoLookupURL
	}
	if geo.PublicIPTimeout == 0 {
		geo.PublicIPTimeout = defaultPublicIPTimeout
	}
	if geo.LookupTimeout == 0 {
		geo.LookupTimeout = defaultLookupTimeout
	}
	if geo.CacheTTL == 0 {
		geo.CacheTTL = defaultGeoCacheTTL
	}
}

// setConversionDefaults applies default values to ConversionConfig.
func setConversionDefaults(cv *ConversionConfig) {
	if cv.Endpoint == "" {
		cv.Endpoint = defaultConversionEndpoint
	}
	if cv.Timeout == 0 {
		cv.Timeout = defaultConversionTimeout
	}
	if cv.QueueSize == 0 {
		cv.QueueSize = defaultConversionQueue
	}
}

// setRateLimitDefaults applies default values to RateLimitConfig.
func setRateLimitDefaults(rl *RateLimitConfig) {
	if rl.MaxRequestsPerMinute == 0 {
		rl.MaxRequestsPerMinute = defaultMaxRequestsPerMinute
	}
	if rl.WindowSeconds == 0 {
		rl.WindowSeconds = defaultWindowSeconds
	}
}

// setLoggingDefaults applies default values to LoggingConfig.
func setLoggingDefaults(log *LoggingConfig) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if c.Service.EncryptionKey == "" {
		return &ValidationError{
			Field:   "service.encryption_key",
			Message: "is required",
		}
	}
	return nil
}
