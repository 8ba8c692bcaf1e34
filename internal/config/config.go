// Package config provides configuration loading for mcpd.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the root configuration for the mcpd daemon.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Protocol  ProtocolConfig  `koanf:"protocol"`
	Sessions  SessionConfig   `koanf:"sessions"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MaxBodyBytes caps a single POST body. Oversized requests are
	// rejected with JSON-RPC -32600 before parsing.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// ProtocolConfig holds limits enforced by the protocol handler.
type ProtocolConfig struct {
	ServerName    string `koanf:"server_name"`
	ServerVersion string `koanf:"server_version"`
	// MaxArgumentKeys bounds the argument object of one tools/call.
	MaxArgumentKeys int `koanf:"max_argument_keys"`
	// MaxPendingRequests bounds outstanding server-to-client requests.
	MaxPendingRequests int `koanf:"max_pending_requests"`
	// ClientReplyTimeout bounds the wait for a client reply to a
	// server-initiated request.
	ClientReplyTimeout time.Duration `koanf:"client_reply_timeout"`
	// PageSize is the list pagination page size.
	PageSize int `koanf:"page_size"`
}

// SessionConfig holds session manager policies.
type SessionConfig struct {
	MaxSessions int           `koanf:"max_sessions"`
	MaxAge      time.Duration `koanf:"max_age"`
	// CleanupInterval is measured in session creations, not time.
	CleanupInterval int `koanf:"cleanup_interval"`
	// EventBufferSize is the per-session SSE replay ring size.
	EventBufferSize int `koanf:"event_buffer_size"`
}

// RateLimitConfig holds the per-session token bucket settings.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	Rate    float64 `koanf:"rate"`
	Burst   int     `koanf:"burst"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Sessions.MaxSessions <= 0 {
		return fmt.Errorf("sessions.max_sessions must be positive, got %d", c.Sessions.MaxSessions)
	}
	if c.Sessions.MaxAge <= 0 {
		return fmt.Errorf("sessions.max_age must be positive, got %s", c.Sessions.MaxAge)
	}
	if c.Protocol.MaxPendingRequests <= 0 {
		return fmt.Errorf("protocol.max_pending_requests must be positive, got %d", c.Protocol.MaxPendingRequests)
	}
	if c.RateLimit.Enabled && c.RateLimit.Rate <= 0 {
		return fmt.Errorf("ratelimit.rate must be positive when enabled, got %f", c.RateLimit.Rate)
	}
	return nil
}

// StdioRequested reports whether any of the stdio environment switches
// is set. MCP_TRANSPORT=stdio, MCP_STDIO=1, and USE_STDIO=1 are
// equivalent.
func StdioRequested() bool {
	if os.Getenv("MCP_TRANSPORT") == "stdio" {
		return true
	}
	for _, key := range []string{"MCP_STDIO", "USE_STDIO"} {
		switch os.Getenv(key) {
		case "1", "true", "yes":
			return true
		}
	}
	return false
}
