// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/xreparent/lib/display"
	"github.com/bureau-foundation/xreparent/lib/xtrace"
	"github.com/bureau-foundation/xreparent/lib/xwire"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "XREPARENT_CONFIG"

// DefaultListen is the synthetic display created when none is
// configured.
const DefaultListen = ":123"

// Config is the complete xreparent configuration.
type Config struct {
	// Upstream is the real display. Empty means $DISPLAY.
	Upstream string `yaml:"upstream" json:"upstream"`

	// Listen is the synthetic display clients connect to.
	Listen string `yaml:"listen" json:"listen"`

	// Parent is the container window XID in hex. The command line's
	// positional argument takes precedence.
	Parent string `yaml:"parent" json:"parent"`

	// WaitUpstream is how long to wait at startup for the upstream
	// display's socket to appear. Zero requires it to exist already.
	WaitUpstream Duration `yaml:"wait_upstream" json:"wait_upstream"`

	// OrphanTimeout stops the proxy if the workload exits and no
	// client connects within this long. Zero waits forever.
	OrphanTimeout Duration `yaml:"orphan_timeout" json:"orphan_timeout"`

	// IOTimeout bounds every read and write on a proxied connection.
	// Zero means no bound.
	IOTimeout Duration `yaml:"io_timeout" json:"io_timeout"`

	// BufferSize is the per-direction read buffer. Zero selects the
	// proxy default.
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`

	Trace TraceConfig `yaml:"trace" json:"trace"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

// TraceConfig configures the protocol trace.
type TraceConfig struct {
	// Path is the trace file. Empty disables tracing.
	Path string `yaml:"path" json:"path"`

	// Compression is none, zstd or lz4.
	Compression string `yaml:"compression" json:"compression"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`

	// Format is text, json, or auto (text on a terminal, JSON
	// otherwise).
	Format string `yaml:"format" json:"format"`
}

// Duration is a time.Duration written as a Go duration string, such
// as "30s" or "1m30s".
type Duration time.Duration

// UnmarshalText parses a duration string. Both the YAML and JSON
// decoders use it.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText formats the duration as UnmarshalText accepts it.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen: DefaultListen,
		Trace: TraceConfig{
			Compression: "zstd",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file at path, or the file named by
// XREPARENT_CONFIG when path is empty. With neither, it returns
// Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads the file at path over the defaults and validates the
// result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q (want .yaml, .yml, .json or .jsonc)", path, extension)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if c.Upstream != "" {
		if _, err := display.Resolve(c.Upstream); err != nil {
			errs = append(errs, fmt.Errorf("upstream: %w", err))
		}
	}
	if _, err := display.Resolve(c.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen: %w", err))
	}
	if c.Parent != "" {
		if _, err := xwire.ParseWindowID(c.Parent); err != nil {
			errs = append(errs, fmt.Errorf("parent: %w", err))
		}
	}
	if c.WaitUpstream < 0 {
		errs = append(errs, errors.New("wait_upstream must not be negative"))
	}
	if c.OrphanTimeout < 0 {
		errs = append(errs, errors.New("orphan_timeout must not be negative"))
	}
	if c.IOTimeout < 0 {
		errs = append(errs, errors.New("io_timeout must not be negative"))
	}
	if c.BufferSize < 0 {
		errs = append(errs, errors.New("buffer_size must not be negative"))
	}
	if _, err := xtrace.ParseCompression(c.Trace.Compression); err != nil {
		errs = append(errs, fmt.Errorf("trace.compression: %w", err))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be auto, text or json, not %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// LogLevel returns Log.Level as a slog.Level. Empty means info.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, err
	}
	return level, nil
}
