// Package config loads the service configuration from an optional TOML file
// with APP_-prefixed environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Contact  ContactConfig  `mapstructure:"contact"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Import   ImportConfig   `mapstructure:"import"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	GinMode string `mapstructure:"gin_mode"`
}

type DatabaseConfig struct {
	// postgres or sqlite
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	MaxOpenConns  int           `mapstructure:"max_open_conns"`
	MaxIdleConns  int           `mapstructure:"max_idle_conns"`
	// silent, error, warn or info
	LogLevel      string        `mapstructure:"log_level"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
	// stdout, file or both
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type StorageConfig struct {
	Root     string `mapstructure:"root"`
	MediaURL string `mapstructure:"media_url"`
	MaxWidth int    `mapstructure:"max_width"`
	Quality  int    `mapstructure:"quality"`
}

type CatalogConfig struct {
	PageSize               int    `mapstructure:"page_size"`
	NoveltyCount           int    `mapstructure:"novelty_count"`
	StockListCount         int    `mapstructure:"stock_list_count"`
	AutocompleteMinChars   int    `mapstructure:"autocomplete_min_chars"`
	AutocompleteMaxResults int    `mapstructure:"autocomplete_max_results"`
	PlaceholderImage       string `mapstructure:"placeholder_image"`
	Currency               string `mapstructure:"currency"`
	BaseURL                string `mapstructure:"base_url"`
}

type ContactConfig struct {
	WhatsApp string `mapstructure:"whatsapp"`
}

// AuthConfig enables bearer-token verification on the admin routes when
// both fields are set.
type AuthConfig struct {
	Issuer   string `mapstructure:"issuer"`
	ClientID string `mapstructure:"client_id"`
}

func (a AuthConfig) Enabled() bool {
	return a.Issuer != "" && a.ClientID != ""
}

type ImportConfig struct {
	CreateMissingCategories bool `mapstructure:"create_missing_categories"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configPath (if it exists) on top of the defaults and applies
// APP_* environment overrides, e.g. APP_DATABASE_DSN.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Storage.Root == "" {
		return errors.New("storage root is required")
	}
	if c.Storage.MaxWidth <= 0 {
		return fmt.Errorf("invalid storage max_width: %d", c.Storage.MaxWidth)
	}
	if c.Storage.Quality <= 0 || c.Storage.Quality > 100 {
		return fmt.Errorf("invalid storage quality: %d", c.Storage.Quality)
	}
	if c.Catalog.PageSize <= 0 {
		return fmt.Errorf("invalid catalog page_size: %d", c.Catalog.PageSize)
	}
	if c.Catalog.AutocompleteMinChars < 1 {
		return fmt.Errorf("invalid autocomplete_min_chars: %d", c.Catalog.AutocompleteMinChars)
	}
	if c.Catalog.AutocompleteMaxResults < 1 {
		return fmt.Errorf("invalid autocomplete_max_results: %d", c.Catalog.AutocompleteMaxResults)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.gin_mode", "release")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "catalog.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_threshold", "200ms")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/catalog.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("storage.root", "media/productos_imagenes")
	v.SetDefault("storage.media_url", "/media/productos_imagenes/")
	v.SetDefault("storage.max_width", 1200)
	v.SetDefault("storage.quality", 80)

	v.SetDefault("catalog.page_size", 12)
	v.SetDefault("catalog.novelty_count", 5)
	v.SetDefault("catalog.stock_list_count", 8)
	v.SetDefault("catalog.autocomplete_min_chars", 2)
	v.SetDefault("catalog.autocomplete_max_results", 8)
	v.SetDefault("catalog.placeholder_image", "/static/img/placeholder.png")
	v.SetDefault("catalog.currency", "MXN")
	v.SetDefault("catalog.base_url", "")

	v.SetDefault("contact.whatsapp", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("import.create_missing_categories", true)
	v.SetDefault("cors.allow_origins", []string{"*"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}
