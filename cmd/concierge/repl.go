// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/concierge/lib/orchestrator"
)

// turnRunner is the slice of the orchestrator the session drives.
type turnRunner interface {
	RunTurn(ctx context.Context, conversationID, userID, text string) (*orchestrator.Reply, error)
}

// conversationEditor is the slice of the store behind the session's
// slash commands.
type conversationEditor interface {
	SetSummary(ctx context.Context, id, summary string) error
	SetActive(ctx context.Context, id string, active bool) error
}

var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	replyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	partialStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// session is one user's conversation on a terminal or pipe.
type session struct {
	runner         turnRunner
	conversations  conversationEditor
	conversationID string
	userID         string
	output         io.Writer

	// interactive shows a prompt before each line.
	interactive bool
}

// runOnce runs a single turn and prints the reply. Turn failures are
// returned so the process exits with the error's status.
func (s *session) runOnce(ctx context.Context, text string) error {
	reply, err := s.runner.RunTurn(ctx, s.conversationID, s.userID, text)
	if err != nil {
		return err
	}
	s.conversationID = reply.ConversationID
	s.printReply(reply)
	return nil
}

// loop reads one turn per input line until EOF or "/quit". A failed
// turn is reported and the loop continues unless ctx is done.
// "/summary <text>" replaces the current conversation's summary and
// "/archive" deactivates it.
func (s *session) loop(ctx context.Context, input io.Reader) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if s.interactive {
			fmt.Fprint(s.output, promptStyle.Render("you> "))
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		if strings.HasPrefix(text, "/") {
			if err := s.command(ctx, text); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.printError(err)
			}
			continue
		}

		reply, err := s.runner.RunTurn(ctx, s.conversationID, s.userID, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.printError(err)
			continue
		}
		s.conversationID = reply.ConversationID
		s.printReply(reply)
	}
}

func (s *session) command(ctx context.Context, text string) error {
	name, argument, _ := strings.Cut(text, " ")
	argument = strings.TrimSpace(argument)
	if name != "/summary" && name != "/archive" {
		return fmt.Errorf("unknown command %s", name)
	}
	if s.conversations == nil {
		return fmt.Errorf("%s: no conversation store", name)
	}
	if s.conversationID == "" {
		return fmt.Errorf("%s: no conversation yet", name)
	}

	switch name {
	case "/summary":
		if argument == "" {
			return errors.New("/summary: summary text is required")
		}
		if err := s.conversations.SetSummary(ctx, s.conversationID, argument); err != nil {
			return fmt.Errorf("/summary: %w", err)
		}
		fmt.Fprintln(s.output, faintStyle.Render(fmt.Sprintf("[%s] summary updated", s.conversationID)))
	case "/archive":
		if err := s.conversations.SetActive(ctx, s.conversationID, false); err != nil {
			return fmt.Errorf("/archive: %w", err)
		}
		fmt.Fprintln(s.output, faintStyle.Render(fmt.Sprintf("[%s] archived", s.conversationID)))
	}
	return nil
}

func (s *session) printReply(reply *orchestrator.Reply) {
	style := replyStyle
	if reply.Partial() {
		style = partialStyle
	}
	fmt.Fprintln(s.output, style.Render(reply.Text))
	if len(reply.Attachment) > 0 {
		fmt.Fprintln(s.output, faintStyle.Render(string(reply.Attachment)))
	}
	fmt.Fprintln(s.output, faintStyle.Render(fmt.Sprintf("[%s] %d provider calls, %d tool calls",
		reply.ConversationID, reply.Iterations, reply.ToolCalls)))
}

func (s *session) printError(err error) {
	var turnErr *orchestrator.TurnError
	if errors.As(err, &turnErr) {
		fmt.Fprintln(s.output, errorStyle.Render(fmt.Sprintf("%s (%s)", turnErr.UserMessage(), turnErr.Code())))
		return
	}
	fmt.Fprintln(s.output, errorStyle.Render(err.Error()))
}
