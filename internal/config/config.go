package config

import "time"

// Config is the root configuration for the server.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Database DBConfig     `yaml:"database"`
}

// ServerConfig holds HTTP/WebSocket settings.
type ServerConfig struct {
	Port              int           `yaml:"port"`
	SendTimeout       time.Duration `yaml:"send_timeout"`        // per-recipient broadcast write bound
	IdleWindow        time.Duration `yaml:"idle_window"`         // close connections silent this long
	IdleSweepInterval time.Duration `yaml:"idle_sweep_interval"` // how often idle connections are reaped
	RateLimit         int           `yaml:"rate_limit"`          // max messages per connection per window
	RateWindow        time.Duration `yaml:"rate_window"`
	MigrationsDir     string        `yaml:"migrations_dir"`
}

// DBConfig holds the PostgreSQL connection for committed scores.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
