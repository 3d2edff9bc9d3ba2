// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus instruments shared by the
// reliability layer, history manager, tool executor, and turn
// orchestrator.
//
// A nil *Metrics is valid and records nothing, so components accept
// one optionally in their config structs the same way they accept an
// optional logger.
package metrics
