// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/concierge/lib/reliability"
)

// Kind classifies turn failures for client retry logic.
type Kind string

const (
	// KindUnavailable: the local reservoir or circuit breaker refused
	// the provider call. Nothing was written; retry later.
	KindUnavailable Kind = "unavailable"

	// KindTransport: transient provider failures exhausted the retry
	// budget. Nothing was written; retry later.
	KindTransport Kind = "transport"

	// KindProvider: the provider rejected the request or broke the
	// tool-call protocol. Nothing was written.
	KindProvider Kind = "provider"

	// KindPersistence: the reply was computed but the turn could not
	// be stored. The conversation may not reflect the message.
	KindPersistence Kind = "persistence"

	// KindInvalidRequest: the turn was refused before any provider
	// call (empty text, foreign or inactive conversation).
	KindInvalidRequest Kind = "invalid_request"
)

// TurnError is the failure returned by RunTurn.
type TurnError struct {
	Kind           Kind
	ConversationID string
	Err            error

	// message overrides the default user-facing text.
	message string
}

func (err *TurnError) Error() string {
	return fmt.Sprintf("orchestrator: turn on %s failed (%s): %v", err.ConversationID, err.Kind, err.Err)
}

func (err *TurnError) Unwrap() error {
	return err.Err
}

// Code is a stable identifier for clients.
func (err *TurnError) Code() string {
	switch err.Kind {
	case KindUnavailable:
		return "provider_unavailable"
	case KindTransport:
		return "provider_transport_error"
	case KindProvider:
		return "provider_error"
	case KindPersistence:
		return "persistence_failed"
	case KindInvalidRequest:
		return "invalid_request"
	}
	return "internal_error"
}

// UserMessage is short apologetic text suitable for the end user.
func (err *TurnError) UserMessage() string {
	if err.message != "" {
		return err.message
	}
	switch err.Kind {
	case KindUnavailable, KindTransport:
		return "Sorry, the assistant is temporarily unavailable. Please try again in a moment."
	case KindPersistence:
		return "Sorry, your last message may not have been saved. Please check the conversation and try again."
	case KindInvalidRequest:
		return "Sorry, this conversation cannot accept that message."
	}
	return "Sorry, something went wrong while answering. Please try again."
}

// Retryable reports whether the whole turn can safely be retried:
// the conversation was not touched.
func (err *TurnError) Retryable() bool {
	return err.Kind == KindUnavailable || err.Kind == KindTransport
}

// ExitCode maps the failure onto sysexits-style process statuses.
func (err *TurnError) ExitCode() int {
	switch err.Kind {
	case KindUnavailable, KindTransport:
		return 75 // EX_TEMPFAIL
	case KindPersistence:
		return 74 // EX_IOERR
	case KindInvalidRequest:
		return 64 // EX_USAGE
	}
	return 69 // EX_UNAVAILABLE
}

// providerFailureKind classifies an error from the reliability layer.
func providerFailureKind(err error) Kind {
	switch {
	case errors.Is(err, reliability.ErrCircuitOpen), errors.Is(err, reliability.ErrRateLimited):
		return KindUnavailable
	case errors.Is(err, reliability.ErrRetriesExhausted):
		return KindTransport
	}
	return KindProvider
}
