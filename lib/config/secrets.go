// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Secrets holds credentials read from the process environment.
type Secrets struct {
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
}

// LoadSecrets reads Secrets from the environment. When envFile is
// non-empty it is loaded first; variables already set in the process
// environment take precedence over the file.
func LoadSecrets(envFile string) (*Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}
	secrets := &Secrets{}
	if err := env.Parse(secrets); err != nil {
		return nil, fmt.Errorf("config: parsing secrets: %w", err)
	}
	return secrets, nil
}

// APIKey returns the key for the given provider kind.
func (s *Secrets) APIKey(kind string) (string, error) {
	var key, name string
	switch kind {
	case "openai":
		key, name = s.OpenAIAPIKey, "OPENAI_API_KEY"
	case "anthropic":
		key, name = s.AnthropicAPIKey, "ANTHROPIC_API_KEY"
	default:
		return "", fmt.Errorf("config: unknown provider kind %q", kind)
	}
	if key == "" {
		return "", fmt.Errorf("config: %s is not set", name)
	}
	return key, nil
}
