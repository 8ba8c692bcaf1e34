package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// maxConfigFileSize rejects runaway config files before parsing.
const maxConfigFileSize = 1024 * 1024

// Load builds a Config from an optional YAML file plus environment
// overrides.
//
// Precedence (highest to lowest):
//  1. Environment variables (MCPD_SERVER_PORT, MCPD_SESSIONS_MAX_AGE, ...)
//  2. YAML config file, when configPath names an existing file
//  3. Defaults
//
// Environment variables use the MCPD_ prefix with an underscore
// separator: MCPD_SERVER_PORT maps to server.port and
// MCPD_PROTOCOL_MAX_ARGUMENT_KEYS maps to protocol.max_argument_keys.
// MCP_LOG_LEVEL is honored as a shorthand for logging.level.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := loadFile(k, configPath); err != nil {
			return nil, err
		}
	}

	// Split MCPD_SECTION_FIELD on the first underscore after the
	// prefix: the section never contains one, the field may.
	if err := k.Load(env.Provider("MCPD_", ".", func(s string) string {
		trimmed := strings.ToLower(strings.TrimPrefix(s, "MCPD_"))
		parts := strings.SplitN(trimmed, "_", 2)
		if len(parts) == 1 {
			return trimmed
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if lvl := os.Getenv("MCP_LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFile reads and parses a YAML config file through the rawbytes
// provider so the file is opened exactly once.
func loadFile(k *koanf.Koanf, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// applyDefaults fills in zero values with the documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 10 << 20
	}

	if cfg.Protocol.ServerName == "" {
		cfg.Protocol.ServerName = "mcpd"
	}
	if cfg.Protocol.ServerVersion == "" {
		cfg.Protocol.ServerVersion = "dev"
	}
	if cfg.Protocol.MaxArgumentKeys == 0 {
		cfg.Protocol.MaxArgumentKeys = 100
	}
	if cfg.Protocol.MaxPendingRequests == 0 {
		cfg.Protocol.MaxPendingRequests = 100
	}
	if cfg.Protocol.ClientReplyTimeout == 0 {
		cfg.Protocol.ClientReplyTimeout = 120 * time.Second
	}
	if cfg.Protocol.PageSize == 0 {
		cfg.Protocol.PageSize = 100
	}

	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = 1000
	}
	if cfg.Sessions.MaxAge == 0 {
		cfg.Sessions.MaxAge = time.Hour
	}
	if cfg.Sessions.CleanupInterval == 0 {
		cfg.Sessions.CleanupInterval = 100
	}
	if cfg.Sessions.EventBufferSize == 0 {
		cfg.Sessions.EventBufferSize = 100
	}

	if cfg.RateLimit.Rate == 0 {
		cfg.RateLimit.Rate = 100
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 200
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
