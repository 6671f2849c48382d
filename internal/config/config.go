package config

import "time"

// Config holds client configuration values.
type Config struct {
	URL   string `mapstructure:"url" yaml:"url"`
	User  string `mapstructure:"user" yaml:"user"`
	Room  string `mapstructure:"room" yaml:"room"`
	Token string `mapstructure:"token" yaml:"token"`

	ConnectTimeout     time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	IgnoreConnectError bool          `mapstructure:"ignore_connect_error" yaml:"ignore_connect_error"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	SendQueueSize      int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	HistoryPath string `mapstructure:"history_path" yaml:"history_path"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	EchoAddr    string `mapstructure:"echo_addr" yaml:"echo_addr"`

	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		URL:              "ws://localhost:8080/ws",
		Room:             "general",
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		SendQueueSize:    64,
		MaxMessageBytes:  1 << 20,
		HistoryPath:      "wirechat-history.db",
		EchoAddr:         ":8090",
		LogLevel:         "info",
		ShutdownTimeout:  5 * time.Second,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// IgnoreConnectError is only ever switched on.
func (c *Config) UpdateFrom(other Config) {
	if other.URL != "" {
		c.URL = other.URL
	}
	if other.User != "" {
		c.User = other.User
	}
	if other.Room != "" {
		c.Room = other.Room
	}
	if other.Token != "" {
		c.Token = other.Token
	}
	if other.ConnectTimeout != 0 {
		c.ConnectTimeout = other.ConnectTimeout
	}
	if other.IgnoreConnectError {
		c.IgnoreConnectError = true
	}
	if other.HandshakeTimeout != 0 {
		c.HandshakeTimeout = other.HandshakeTimeout
	}
	if other.SendQueueSize != 0 {
		c.SendQueueSize = other.SendQueueSize
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.HistoryPath != "" {
		c.HistoryPath = other.HistoryPath
	}
	if other.MetricsAddr != "" {
		c.MetricsAddr = other.MetricsAddr
	}
	if other.EchoAddr != "" {
		c.EchoAddr = other.EchoAddr
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
