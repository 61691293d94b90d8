package config

import "time"

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageBadger = "badger"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	StorageDriver string `mapstructure:"storage_driver" yaml:"storage_driver"`
	DatabasePath  string `mapstructure:"database_path" yaml:"database_path"`
	// BadgerPath is the badger data directory. Empty runs badger in memory.
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`

	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	ClientBuffer       int           `mapstructure:"client_buffer" yaml:"client_buffer"`
	CommandBuffer      int           `mapstructure:"command_buffer" yaml:"command_buffer"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	TypingTimeout      time.Duration `mapstructure:"typing_timeout" yaml:"typing_timeout"`
	// AllowedOrigins are websocket origin patterns. Empty accepts any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		StorageDriver:      StorageSQLite,
		DatabasePath:       "chat.db",
		BadgerPath:         "data/badger",
		MaxMessageBytes:    1 << 20,
		ClientBuffer:       64,
		CommandBuffer:      256,
		RateLimitPerMinute: 600,
		TypingTimeout:      5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.StorageDriver != "" {
		c.StorageDriver = other.StorageDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.BadgerPath != "" {
		c.BadgerPath = other.BadgerPath
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.ClientBuffer != 0 {
		c.ClientBuffer = other.ClientBuffer
	}
	if other.CommandBuffer != 0 {
		c.CommandBuffer = other.CommandBuffer
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.TypingTimeout != 0 {
		c.TypingTimeout = other.TypingTimeout
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
}
