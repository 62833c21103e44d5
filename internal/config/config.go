// Package config holds the skvs server configuration: built-in defaults,
// optional TOML or YAML file overrides, and validation.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dreamware/skvs/internal/logutil"
)

// Defaults
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8080
	DefaultWorkers      = 4
	DefaultBuckets      = 1024
	DefaultLockDelay    = time.Duration(0)
	DefaultMaxLineBytes = 4096

	minLineBytes = 16
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the server configuration.
type Config struct {
	Host    string `toml:"listen-host" yaml:"listen-host"`
	Port    int    `toml:"port" yaml:"port"`
	Workers int    `toml:"workers" yaml:"workers"`
	Buckets int    `toml:"buckets" yaml:"buckets"`

	// LockDelay is the artificial hold delay applied by every bucket lock.
	LockDelay time.Duration `toml:"lock-delay" yaml:"lock-delay"`

	// MaxLineBytes bounds one request line; longer lines close the connection.
	MaxLineBytes int `toml:"max-line-bytes" yaml:"max-line-bytes"`

	// StatusAddr serves /health, /info and /metrics over HTTP when set.
	StatusAddr string `toml:"status-addr" yaml:"status-addr"`

	// DumpOnExit logs a dump of the table before it is torn down.
	DumpOnExit bool `toml:"dump-on-exit" yaml:"dump-on-exit"`

	Log logutil.Config `toml:"log" yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:         DefaultHost,
		Port:         DefaultPort,
		Workers:      DefaultWorkers,
		Buckets:      DefaultBuckets,
		LockDelay:    DefaultLockDelay,
		MaxLineBytes: DefaultMaxLineBytes,
		Log:          logutil.DefaultConfig(),
	}
}

// Load reads path over the defaults and validates the result. The format
// follows the file extension: .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unsupported config file %q", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports the first problem.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "port %d out of range 1-65535", c.Port)
	}
	if c.Workers < 1 {
		return errors.Wrapf(ErrInvalidConfig, "workers must be at least 1, got %d", c.Workers)
	}
	if c.Buckets < 1 {
		return errors.Wrapf(ErrInvalidConfig, "buckets must be at least 1, got %d", c.Buckets)
	}
	if c.LockDelay < 0 {
		return errors.Wrapf(ErrInvalidConfig, "lock delay must not be negative, got %s", c.LockDelay)
	}
	if c.MaxLineBytes < minLineBytes {
		return errors.Wrapf(ErrInvalidConfig, "max line bytes must be at least %d, got %d", minLineBytes, c.MaxLineBytes)
	}
	if err := c.Log.Validate(); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log: %v", err)
	}
	return nil
}

// Address returns the TCP listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
