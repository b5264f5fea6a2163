package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort              = 3000
	DefaultSendTimeout       = 5 * time.Second
	DefaultIdleWindow        = 5 * time.Minute
	DefaultIdleSweepInterval = 30 * time.Second
	DefaultRateLimit         = 20
	DefaultRateWindow        = time.Second
	DefaultMigrationsDir     = "db/migrations"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
)

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.SendTimeout == 0 {
		c.Server.SendTimeout = DefaultSendTimeout
	}
	if c.Server.IdleWindow == 0 {
		c.Server.IdleWindow = DefaultIdleWindow
	}
	if c.Server.IdleSweepInterval == 0 {
		c.Server.IdleSweepInterval = DefaultIdleSweepInterval
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = DefaultRateLimit
	}
	if c.Server.RateWindow == 0 {
		c.Server.RateWindow = DefaultRateWindow
	}
	if c.Server.MigrationsDir == "" {
		c.Server.MigrationsDir = DefaultMigrationsDir
	}

	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}
}
