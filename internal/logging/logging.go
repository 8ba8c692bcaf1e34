// Package logging builds the process-wide zap logger for mcpd.
//
// The logger writes to stderr so the stdio transport can keep stdout
// reserved for JSON-RPC frames. The level is held in a zap.AtomicLevel
// so logging/setLevel can retune the running process.
package logging

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction.
type Config struct {
	// Level is the initial filter level: debug, info, warn, error.
	Level string
	// Format selects the encoder: "json" (default) or "console".
	Format string
}

// level is the shared atomic level. SetLevel adjusts it process-wide.
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// New creates a stderr-backed zap logger from config.
func New(cfg Config) (*zap.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level.SetLevel(lvl)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if cfg.Format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// SetLevel retunes the shared level. Used by the MCP logging/setLevel
// method, which is defined as process-wide.
func SetLevel(lvl zapcore.Level) {
	level.SetLevel(lvl)
}

// Level reports the current shared level.
func Level() zapcore.Level {
	return level.Level()
}

// ParseLevel maps MCP and zap level names onto zap levels. MCP defines
// the RFC 5424 set (debug..emergency); zap collapses the upper ranges.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info", "notice":
		return zapcore.InfoLevel, nil
	case "debug", "trace":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "critical", "alert", "emergency", "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Sync flushes the logger, swallowing the EINVAL/ENOTTY errors that
// syncing stderr produces on Linux.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}
