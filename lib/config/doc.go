// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads xreparent's optional configuration file.
//
// The file is named by the --config flag or, failing that, by the
// XREPARENT_CONFIG environment variable. There is no search path and
// no per-field environment overrides: what the file says, plus what
// the command line explicitly sets, is the whole configuration.
//
// Files ending in .yaml or .yml are YAML. Files ending in .json or
// .jsonc are JSON, with // and /* */ comments and trailing commas
// allowed. Unknown keys are errors in both formats.
//
//	upstream: ":0"
//	listen: ":123"
//	parent: "0x3e00007"
//	orphan_timeout: 30s
//	trace:
//	  path: /tmp/xreparent.trace
//	  compression: zstd
//	log:
//	  level: debug
//	  format: json
package config
