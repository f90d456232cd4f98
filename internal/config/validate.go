package config

import (
	"fmt"
	"strings"
)

// Validate checks the loaded configuration. Load calls it automatically.
func (c *Config) Validate() error {
	if strings.Count(c.Feed.DownloadURL, "%s") != 1 {
		return fmt.Errorf("feed.download_url must contain exactly one %%s (got %q)", c.Feed.DownloadURL)
	}
	if c.Feed.Timeout <= 0 {
		return fmt.Errorf("feed.timeout must be > 0 (got %v)", c.Feed.Timeout)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}
	if c.Server.UpdateInterval < 0 {
		return fmt.Errorf("server.update_interval must be >= 0 (got %v)", c.Server.UpdateInterval)
	}

	switch strings.ToLower(c.Database.Dialect) {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("database.dialect must be sqlite, postgres or mysql (got %q)", c.Database.Dialect)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}
	return nil
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
