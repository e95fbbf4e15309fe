// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/xreparent/lib/display"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Listen != ":123" {
		t.Errorf("expected listen=:123, got %s", cfg.Listen)
	}
	if cfg.Trace.Path != "" {
		t.Errorf("expected tracing disabled, got path %s", cfg.Trace.Path)
	}
	if cfg.Trace.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Trace.Compression)
	}
	if cfg.OrphanTimeout != 0 {
		t.Errorf("expected no orphan timeout, got %v", time.Duration(cfg.OrphanTimeout))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config is invalid: %v", err)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("expected default listen display, got %s", cfg.Listen)
	}
}

func TestLoad_EnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "xreparent.yaml", "listen: \":7\"\n")
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Listen != ":7" {
		t.Errorf("expected listen=:7, got %s", cfg.Listen)
	}
}

func TestLoad_ExplicitPathWins(t *testing.T) {
	fromEnvironment := writeConfig(t, "environment.yaml", "listen: \":7\"\n")
	explicit := writeConfig(t, "explicit.yaml", "listen: \":8\"\n")
	t.Setenv(EnvironmentVariable, fromEnvironment)

	cfg, err := Load(explicit)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Listen != ":8" {
		t.Errorf("expected listen=:8 from the explicit path, got %s", cfg.Listen)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, "xreparent.yml", `
upstream: ":0"
listen: ":123"
parent: "0x3e00007"
orphan_timeout: 30s
wait_upstream: 10s
io_timeout: 1m30s
buffer_size: 8192
trace:
  path: /tmp/x.trace
  compression: lz4
log:
  level: debug
  format: json
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Upstream != ":0" || cfg.Listen != ":123" || cfg.Parent != "0x3e00007" {
		t.Errorf("displays/parent = %q %q %q", cfg.Upstream, cfg.Listen, cfg.Parent)
	}
	if time.Duration(cfg.OrphanTimeout) != 30*time.Second {
		t.Errorf("expected orphan_timeout=30s, got %v", time.Duration(cfg.OrphanTimeout))
	}
	if time.Duration(cfg.WaitUpstream) != 10*time.Second {
		t.Errorf("expected wait_upstream=10s, got %v", time.Duration(cfg.WaitUpstream))
	}
	if time.Duration(cfg.IOTimeout) != 90*time.Second {
		t.Errorf("expected io_timeout=1m30s, got %v", time.Duration(cfg.IOTimeout))
	}
	if cfg.BufferSize != 8192 {
		t.Errorf("expected buffer_size=8192, got %d", cfg.BufferSize)
	}
	if cfg.Trace.Path != "/tmp/x.trace" || cfg.Trace.Compression != "lz4" {
		t.Errorf("trace = %+v", cfg.Trace)
	}
	level, err := cfg.LogLevel()
	if err != nil || level != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, %v", level, err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log.format=json, got %s", cfg.Log.Format)
	}
}

func TestLoadFile_PartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "xreparent.yaml", "parent: \"42\"\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Listen != DefaultListen || cfg.Trace.Compression != "zstd" || cfg.Log.Format != "auto" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadFile_EmptyYAML(t *testing.T) {
	path := writeConfig(t, "xreparent.yaml", "# nothing configured\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Errorf("expected default listen display, got %s", cfg.Listen)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "xreparent.jsonc", `{
	// The container window from xwininfo.
	"parent": "3e00007",
	"orphan_timeout": "5s",
	/* Trace everything. */
	"trace": {"path": "/tmp/x.trace", "compression": "none",},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Parent != "3e00007" {
		t.Errorf("expected parent=3e00007, got %s", cfg.Parent)
	}
	if time.Duration(cfg.OrphanTimeout) != 5*time.Second {
		t.Errorf("expected orphan_timeout=5s, got %v", time.Duration(cfg.OrphanTimeout))
	}
	if cfg.Trace.Compression != "none" {
		t.Errorf("expected compression=none, got %s", cfg.Trace.Compression)
	}
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	for name, content := range map[string]string{
		"xreparent.yaml": "listne: \":5\"\n",
		"xreparent.json": `{"listne": ":5"}`,
	} {
		if _, err := LoadFile(writeConfig(t, name, content)); err == nil {
			t.Errorf("%s: expected an error for a misspelled key", name)
		}
	}
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "xreparent.toml", "listen = ':5'\n"))
	if err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLoadFile_BadDuration(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "xreparent.yaml", "orphan_timeout: soon\n"))
	if err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Upstream = "remote:0"
	cfg.Listen = "nocolon"
	cfg.Parent = "0xnothex"
	cfg.OrphanTimeout = Duration(-time.Second)
	cfg.IOTimeout = Duration(-time.Second)
	cfg.WaitUpstream = Duration(-time.Second)
	cfg.BufferSize = -1
	cfg.Trace.Compression = "brotli"
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if !errors.Is(err, display.ErrInvalidDisplay) {
		t.Errorf("expected the display error to be wrapped, got %v", err)
	}
	for _, field := range []string{"upstream", "listen", "parent", "orphan_timeout", "wait_upstream", "io_timeout", "buffer_size", "trace.compression", "log.level", "log.format"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected error to mention %s, got:\n%v", field, err)
		}
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("2m")); err != nil {
		t.Fatalf("UnmarshalText() failed: %v", err)
	}
	text, err := d.MarshalText()
	if err != nil || string(text) != "2m0s" {
		t.Fatalf("MarshalText() = %q, %v", text, err)
	}
}
