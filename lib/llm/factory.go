// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"fmt"
	"net/http"
	"strings"
)

// Provider kinds accepted by NewProvider.
const (
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
)

// ProviderOptions selects and configures a provider implementation.
type ProviderOptions struct {
	Kind       string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewProvider constructs the provider named by options.Kind.
func NewProvider(options ProviderOptions) (Provider, error) {
	switch strings.ToLower(options.Kind) {
	case KindOpenAI:
		return NewOpenAI(options.HTTPClient, options.BaseURL, options.APIKey), nil
	case KindAnthropic:
		return NewAnthropic(options.HTTPClient, options.BaseURL, options.APIKey), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider kind %q", options.Kind)
	}
}
