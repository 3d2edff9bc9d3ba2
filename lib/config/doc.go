// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the
// concierge.
//
// Configuration is loaded from a single file specified by either the
// CONCIERGE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search. Values
// missing from the file keep the defaults from [Default].
//
// The file may carry environment-specific sections (development,
// staging, production) that are decoded on top of the base values
// when [Config].Environment matches. Only the keys present in the
// section override anything.
//
// After overrides, ${VAR} and ${VAR:-default} patterns are expanded in
// path, address and prompt fields. Durations are YAML duration strings
// ("5s", "250ms").
//
// Provider API keys never live in the YAML file. [LoadSecrets] reads
// them from the process environment, after optionally loading a
// dotenv file.
package config
