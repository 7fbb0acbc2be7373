package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	TCPAddr           string        `mapstructure:"tcp_addr" yaml:"tcp_addr"`
	StaticDir         string        `mapstructure:"static_dir" yaml:"static_dir"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer        int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	// MessagesPerMinute limits inbound WebSocket messages per connection. Zero disables it.
	MessagesPerMinute int `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	// TCPReadBytesPerSecond limits raw-stream reads per connection. Zero disables it.
	TCPReadBytesPerSecond int `mapstructure:"tcp_read_bytes_per_second" yaml:"tcp_read_bytes_per_second"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                  ":8124",
		TCPAddr:               ":8125",
		LogLevel:              "info",
		ReadHeaderTimeout:     5 * time.Second,
		ShutdownTimeout:       5 * time.Second,
		MaxMessageBytes:       64 << 10,
		SendBuffer:            64,
		MessagesPerMinute:     600,
		TCPReadBytesPerSecond: 256 << 10,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.TCPAddr != "" {
		c.TCPAddr = other.TCPAddr
	}
	if other.StaticDir != "" {
		c.StaticDir = other.StaticDir
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.SendBuffer != 0 {
		c.SendBuffer = other.SendBuffer
	}
	if other.MessagesPerMinute != 0 {
		c.MessagesPerMinute = other.MessagesPerMinute
	}
	if other.TCPReadBytesPerSecond != 0 {
		c.TCPReadBytesPerSecond = other.TCPReadBytesPerSecond
	}
}

// Validate reports every setting the servers cannot run with.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Addr == "" {
		bad("addr is required")
	}
	if c.MaxMessageBytes <= 0 {
		bad("max_message_bytes must be positive, got %d", c.MaxMessageBytes)
	}
	if c.SendBuffer <= 0 {
		bad("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.ShutdownTimeout <= 0 {
		bad("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.MessagesPerMinute < 0 {
		bad("messages_per_minute must not be negative, got %d", c.MessagesPerMinute)
	}
	if c.TCPReadBytesPerSecond < 0 {
		bad("tcp_read_bytes_per_second must not be negative, got %d", c.TCPReadBytesPerSecond)
	}
	return errors.Join(errs...)
}
