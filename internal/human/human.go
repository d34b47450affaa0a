// Package human provides the blocking human escalation boundary.
package human

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/coder/internal/conversation"
)

// Messages recorded by the gate.
const (
	ApprovedMsg     = "Approved by human"
	AutoApprovedMsg = "Approved automatically"
	AcceptPrompt    = "Type (o)k to accept or provide commentary."
)

// ErrNoAnswer is returned by a scripted prompter that ran out of answers.
var ErrNoAnswer = errors.New("no scripted answer left")

// ErrNoPrompter is returned when a gate must ask but has nobody to ask.
var ErrNoPrompter = errors.New("no human prompter configured")

// Prompter asks a human for free text and blocks until it arrives.
type Prompter interface {
	Prompt(ctx context.Context, text string) (string, error)
}

// IsAcceptance reports whether input is one of the acceptance tokens.
func IsAcceptance(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "o", "ok":
		return true
	}
	return false
}

// Scripted replays canned answers in order. Used for tests and unattended runs.
type Scripted struct {
	mu      sync.Mutex
	answers []string
	prompts []string
}

// NewScripted creates a prompter answering with the given replies.
func NewScripted(answers ...string) *Scripted {
	return &Scripted{answers: answers}
}

// Prompt returns the next answer.
func (s *Scripted) Prompt(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, text)
	if len(s.answers) == 0 {
		return "", ErrNoAnswer
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

// Prompts returns every prompt shown so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

// Gate records human decisions into a conversation.
type Gate struct {
	Prompter Prompter
	// Auto accepts without prompting.
	Auto bool
	// Feedback formats rejection text; the raw reply is used when nil.
	Feedback func(reply string) string

	logger *logging.Logger
}

// NewGate creates a gate over p.
func NewGate(p Prompter) *Gate {
	return &Gate{Prompter: p, logger: logging.New().WithComponent("human")}
}

func (g *Gate) log() *logging.Logger {
	if g.logger == nil {
		g.logger = logging.New().WithComponent("human")
	}
	return g.logger
}

// Confirm asks for final acceptance. On rejection the reply, followed by
// logs when non-empty, is appended as feedback.
func (g *Gate) Confirm(ctx context.Context, conv *conversation.Conversation, logs string) (bool, error) {
	if g.Auto {
		conv.Append(conversation.Human(AutoApprovedMsg))
		g.log().Info("human_auto_approved", nil)
		return true, nil
	}

	if g.Prompter == nil {
		return false, fmt.Errorf("human confirmation: %w", ErrNoPrompter)
	}
	reply, err := g.Prompter.Prompt(ctx, AcceptPrompt)
	if err != nil {
		return false, fmt.Errorf("human confirmation: %w", err)
	}
	if IsAcceptance(reply) {
		conv.Append(conversation.Human(ApprovedMsg))
		g.log().Info("human_approved", nil)
		return true, nil
	}

	feedback := reply
	if g.Feedback != nil {
		feedback = g.Feedback(reply)
	}
	if logs != "" {
		feedback += "\n\n" + logs
	}
	conv.Append(conversation.Human(feedback))
	g.log().Info("human_rejected", map[string]interface{}{"feedback_len": len(reply)})
	return false, nil
}

// Help surfaces a stuck agent to the human and records their hint.
func (g *Gate) Help(ctx context.Context, conv *conversation.Conversation, problem string) error {
	if g.Prompter == nil {
		return fmt.Errorf("human help: %w", ErrNoPrompter)
	}
	prompt := problem + "\nThe agent seems stuck. Give it a hint how to proceed:"
	reply, err := g.Prompter.Prompt(ctx, prompt)
	if err != nil {
		return fmt.Errorf("human help: %w", err)
	}
	conv.Append(conversation.Human("Human hint: " + reply))
	g.log().Info("human_help", nil)
	return nil
}

// Ask forwards a model question to the human.
func (g *Gate) Ask(ctx context.Context, question string) (string, error) {
	if g.Prompter == nil {
		return "", ErrNoPrompter
	}
	return g.Prompter.Prompt(ctx, question)
}
