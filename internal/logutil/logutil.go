// Package logutil builds the zap loggers used by the skvs binaries.
package logutil

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the log section of the server configuration.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" yaml:"level"`
	// Format is console or json.
	Format string `toml:"format" yaml:"format"`
	// File, when set, receives the log through a size-rotated writer
	// instead of stderr.
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max-size-mb" yaml:"max-size-mb"`
	MaxBackups int    `toml:"max-backups" yaml:"max-backups"`
	MaxAgeDays int    `toml:"max-age-days" yaml:"max-age-days"`
}

// DefaultConfig logs at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// ParseLevel converts a level name into a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel, errors.Wrapf(err, "log level %q", level)
	}
	return l, nil
}

// Validate checks level and format names.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "", "console", "json":
	default:
		return errors.Errorf("log format %q: want console or json", c.Format)
	}
	if c.File != "" && (c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0) {
		return errors.New("log rotation limits must not be negative")
	}
	return nil
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := ParseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var ws zapcore.WriteSyncer
	if cfg.File != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	} else {
		ws = zapcore.Lock(os.Stderr)
	}

	return zap.New(zapcore.NewCore(enc, ws, level), zap.AddCaller()), nil
}
