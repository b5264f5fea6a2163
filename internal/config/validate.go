package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are sane.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.SendTimeout <= 0 {
		return errors.New("server.send_timeout must be positive")
	}
	if c.Server.IdleWindow <= 0 {
		return errors.New("server.idle_window must be positive")
	}
	if c.Server.RateLimit < 1 {
		return errors.New("server.rate_limit must be >= 1")
	}

	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) cannot exceed max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}
