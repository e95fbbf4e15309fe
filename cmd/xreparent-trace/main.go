// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/jpillora/sizestr"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/xreparent/lib/codec"
	"github.com/bureau-foundation/xreparent/lib/process"
	"github.com/bureau-foundation/xreparent/lib/version"
	"github.com/bureau-foundation/xreparent/lib/xtrace"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		process.Fatal(err)
	}
}

// outputMode selects how records are printed.
type outputMode int

const (
	modeDiagnostic outputMode = iota
	modeJSON
	modeSummary
)

func run(args []string, stdout, stderr io.Writer) error {
	var asJSON, summary, showVersion bool

	flagSet := pflag.NewFlagSet("xreparent-trace", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.BoolVar(&asJSON, "json", false, "print one JSON object per line")
	flagSet.BoolVar(&summary, "summary", false, "print message counts instead of records")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage:\n  xreparent-trace [--json | --summary] FILE\n\nFlags:\n%s", flagSet.FlagUsages())
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Fprintf(stdout, "xreparent-trace %s\n", version.Full())
		return nil
	}
	if asJSON && summary {
		return errors.New("--json and --summary are mutually exclusive")
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return fmt.Errorf("expected exactly one trace file, got %d arguments", flagSet.NArg())
	}

	reader, err := xtrace.Open(flagSet.Arg(0))
	if err != nil {
		return err
	}
	defer reader.Close()

	mode := modeDiagnostic
	switch {
	case asJSON:
		mode = modeJSON
	case summary:
		mode = modeSummary
	}
	return dump(stdout, reader, mode)
}

func dump(w io.Writer, reader *xtrace.Reader, mode outputMode) error {
	switch mode {
	case modeJSON:
		return dumpJSON(w, reader)
	case modeSummary:
		return dumpSummary(w, reader)
	default:
		return dumpDiagnostic(w, reader)
	}
}

func dumpDiagnostic(w io.Writer, reader *xtrace.Reader) error {
	notation, err := codec.Diagnose(reader.HeaderRaw())
	if err != nil {
		return fmt.Errorf("trace header: %w", err)
	}
	fmt.Fprintln(w, notation)
	for index := 0; ; index++ {
		raw, err := reader.NextRaw()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		notation, err := codec.Diagnose(raw)
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		fmt.Fprintln(w, notation)
	}
}

func dumpJSON(w io.Writer, reader *xtrace.Reader) error {
	encoder := json.NewEncoder(w)
	if err := encoder.Encode(reader.Header()); err != nil {
		return err
	}
	for index := 0; ; index++ {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		if err := encoder.Encode(record); err != nil {
			return err
		}
	}
}

type nameCount struct {
	direction string
	name      string
	count     int
}

func dumpSummary(w io.Writer, reader *xtrace.Reader) error {
	header := reader.Header()
	counts := make(map[[2]string]int)
	connections := make(map[uint64]bool)
	volume := make(map[string]int64)
	messages := make(map[string]int)
	var total, rewrites int
	var anomalies []string

	for index := 0; ; index++ {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		total++
		connections[record.Connection] = true
		volume[record.Direction] += int64(record.Size)
		messages[record.Direction]++
		counts[[2]string{record.Direction, record.Name}]++
		if record.Rewritten {
			rewrites++
		}
		if record.Anomaly != "" {
			anomalies = append(anomalies, fmt.Sprintf("connection %d %s %s: %s",
				record.Connection, record.Direction, record.Name, record.Anomaly))
		}
	}

	rows := make([]nameCount, 0, len(counts))
	for key, count := range counts {
		rows = append(rows, nameCount{direction: key[0], name: key[1], count: count})
	}
	slices.SortFunc(rows, func(a, b nameCount) int {
		return cmp.Or(
			cmp.Compare(a.direction, b.direction),
			cmp.Compare(b.count, a.count),
			cmp.Compare(a.name, b.name),
		)
	})

	fmt.Fprintf(w, "trace started %s (%s, %s)\n", header.Started.Format("2006-01-02T15:04:05.000Z07:00"), header.Format, reader.Compression())
	fmt.Fprintf(w, "upstream %s, listen %s, parent %#x\n", header.Upstream, header.Listen, header.Target)
	fmt.Fprintf(w, "%d records on %d connections, %d rewritten, %d anomalies\n", total, len(connections), rewrites, len(anomalies))
	for _, direction := range slices.Sorted(maps.Keys(volume)) {
		fmt.Fprintf(w, "%s: %d messages, %s\n", direction, messages[direction], sizestr.ToString(volume[direction]))
	}
	for _, row := range rows {
		fmt.Fprintf(w, "  %-15s %-28s %d\n", row.direction, row.name, row.count)
	}
	for _, anomaly := range anomalies {
		fmt.Fprintf(w, "anomaly: %s\n", anomaly)
	}
	return nil
}
