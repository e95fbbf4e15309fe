// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/xreparent/lib/clock"
	"github.com/bureau-foundation/xreparent/lib/version"
	"github.com/bureau-foundation/xreparent/lib/xtrace"
	"github.com/bureau-foundation/xreparent/lib/xwire"
	"github.com/bureau-foundation/xreparent/lib/xwire/xwiretest"
)

const (
	testRoot   uint32 = 0x2c00001
	testTarget uint32 = 0x3e00007
)

// writeTrace records one rewritten CreateWindow and the error the
// server sent back, and returns the trace path.
func writeTrace(t *testing.T, compression xtrace.Compression) string {
	t.Helper()
	order := binary.LittleEndian
	wire := &xwire.Codec{Order: order, Roots: []uint32{testRoot}, Target: testTarget}
	path := filepath.Join(t.TempDir(), "session.trace")

	recorder, err := xtrace.Create(path, compression, xtrace.Header{
		Upstream: ":0",
		Listen:   ":123",
		Target:   testTarget,
	}, clock.Fake(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("xtrace.Create: %v", err)
	}

	request := xwiretest.CreateWindow(order, 0x1a00002, testRoot)
	xwire.NewFramer(xwire.ClientToServer, wire).Frame(request, func(message xwire.Message) {
		recorder.Record(1, message, request[message.Offset:])
	})
	reply := xwiretest.Error(order, 3, xwire.OpCreateWindow, 1)
	xwire.NewFramer(xwire.ServerToClient, wire).Frame(reply, func(message xwire.Message) {
		recorder.Record(1, message, reply[message.Offset:])
	})

	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func runTool(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), err
}

func TestDumpDiagnostic(t *testing.T) {
	for _, compression := range []xtrace.Compression{xtrace.CompressionNone, xtrace.CompressionZstd, xtrace.CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			output, err := runTool(t, writeTrace(t, compression))
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			lines := strings.Split(strings.TrimSpace(output), "\n")
			if len(lines) != 3 {
				t.Fatalf("got %d lines, want header and two records:\n%s", len(lines), output)
			}
			if !strings.Contains(lines[0], `"xreparent-trace"`) {
				t.Errorf("header line = %s", lines[0])
			}
			if !strings.Contains(lines[1], `"CreateWindow"`) || !strings.Contains(lines[1], "true") {
				t.Errorf("request line = %s", lines[1])
			}
			if !strings.Contains(lines[2], `"Error(Window)"`) {
				t.Errorf("reply line = %s", lines[2])
			}
		})
	}
}

func TestDumpJSON(t *testing.T) {
	output, err := runTool(t, "--json", writeTrace(t, xtrace.CompressionZstd))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), output)
	}

	var header xtrace.Header
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("header: %v", err)
	}
	if header.Format != xtrace.FormatName || header.Target != testTarget {
		t.Errorf("header = %+v", header)
	}

	var request xtrace.Record
	if err := json.Unmarshal([]byte(lines[1]), &request); err != nil {
		t.Fatalf("request record: %v", err)
	}
	if request.Name != "CreateWindow" || !request.Rewritten || request.Parent != testRoot {
		t.Errorf("request record = %+v", request)
	}
	if len(request.Digest) != len(xtrace.Digest{}) {
		t.Errorf("digest is %d bytes", len(request.Digest))
	}
}

func TestDumpSummary(t *testing.T) {
	output, err := runTool(t, "--summary", writeTrace(t, xtrace.CompressionLZ4))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{
		"upstream :0, listen :123, parent 0x3e00007",
		"2 records on 1 connections, 1 rewritten, 0 anomalies",
		"CreateWindow",
		"Error(Window)",
		"client->server: 1 messages",
		"server->client: 1 messages",
		"lz4",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("summary missing %q:\n%s", want, output)
		}
	}
}

func TestRunArguments(t *testing.T) {
	if _, err := runTool(t); err == nil {
		t.Error("expected an error without a file")
	}
	if _, err := runTool(t, "a", "b"); err == nil {
		t.Error("expected an error with two files")
	}
	if _, err := runTool(t, "--json", "--summary", "x"); err == nil {
		t.Error("expected an error for --json with --summary")
	}
	if _, err := runTool(t, filepath.Join(t.TempDir(), "absent.trace")); err == nil {
		t.Error("expected an error for a missing file")
	}
	output, err := runTool(t, "--version")
	if err != nil || output != "xreparent-trace "+version.Full()+"\n" {
		t.Errorf("--version = %q, %v", output, err)
	}
}
