// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveProviderCall("success")
	m.ObserveProviderAttempt()
	m.SetBreakerState(1)
	m.ObserveTruncation(3)
	m.ObserveToolCall("view_cart", "success", 0.1)
	m.ObserveTurn("done", 2)
}

func TestObserveTruncationIgnoresZero(t *testing.T) {
	t.Parallel()
	m := New(nil)
	m.ObserveTruncation(0)
	m.ObserveTruncation(4)

	if got := testutil.ToFloat64(m.HistoryTruncations); got != 1 {
		t.Errorf("truncations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HistoryExcluded); got != 4 {
		t.Errorf("excluded = %v, want 4", got)
	}
}

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	m := New(registry)
	m.ObserveTurn("done", 1)
	m.ObserveToolCall("search_catalog", "success", 0.02)

	recorder := httptest.NewRecorder()
	Handler(registry).ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(recorder.Result().Body)
	for _, want := range []string{
		`concierge_turns_total{outcome="done"} 1`,
		`concierge_tools_calls_total{status="success",tool="search_catalog"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
