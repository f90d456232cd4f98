package config

import (
	"time"
)

// Config is the root configuration of the bigcty command.
type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// FeedConfig holds release discovery and download settings.
type FeedConfig struct {
	URL         string        `yaml:"url"          env:"BIGCTY_FEED_URL"     env-default:"http://www.country-files.com/category/big-cty/feed/"`
	DownloadURL string        `yaml:"download_url" env:"BIGCTY_DOWNLOAD_URL" env-default:"http://www.country-files.com/bigcty/download/bigcty-%s.zip"`
	UserAgent   string        `yaml:"user_agent"   env:"BIGCTY_USER_AGENT"   env-default:"bigcty-go"`
	Timeout     time.Duration `yaml:"timeout"      env:"BIGCTY_FEED_TIMEOUT" env-default:"30s"`
}

// StoreConfig holds the location of the JSON store.
type StoreConfig struct {
	Path string `yaml:"path" env:"BIGCTY_STORE_PATH" env-default:"./cty.json"`
}

// ServerConfig holds HTTP server settings for "bigcty serve".
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	UpdateInterval  time.Duration `yaml:"update_interval"  env:"SERVER_UPDATE_INTERVAL"  env-default:"0s"`
}

// DatabaseConfig holds the SQL export target.
type DatabaseConfig struct {
	Dialect string `yaml:"dialect" env:"DB_DIALECT" env-default:"sqlite"`
	DSN     string `yaml:"dsn"     env:"DB_DSN"     env-default:"bigcty.db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}
