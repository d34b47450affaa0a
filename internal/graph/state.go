// Package graph runs an agent as a small state machine of control nodes.
package graph

import (
	"fmt"

	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
)

// AgentState is everything one task run threads through its nodes.
// It is owned by the step loop and must not be shared while a run is active.
type AgentState struct {
	Conversation *conversation.Conversation
	Files        *files.Set

	// Last captured script output.
	Stdout string
	Stderr string

	// Voter is the auxiliary conversation used by multi-proposal flows.
	Voter *conversation.Conversation

	Step int
	Node Node

	// Final is the terminal tool call once the agent declared completion.
	Final *conversation.ToolCall
	// Answer is the content of the latest ai message.
	Answer string

	turnFinal bool
}

// NewState creates a state over set seeded with messages.
func NewState(set *files.Set, seed ...conversation.Message) *AgentState {
	return &AgentState{
		Conversation: conversation.New(seed...),
		Files:        set,
		Voter:        conversation.New(),
		Node:         NodeAgent,
	}
}

// FinalArg returns a string argument of the terminal call.
func (s *AgentState) FinalArg(name string) string {
	if s.Final == nil {
		return ""
	}
	switch v := s.Final.Args[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// RecursionLimitExceeded aborts a run that took too many steps.
// State carries the partial run; applied edits are not rolled back.
type RecursionLimitExceeded struct {
	Limit int
	Node  Node
	State *AgentState
}

func (e *RecursionLimitExceeded) Error() string {
	return fmt.Sprintf("recursion limit of %d reached before node %s", e.Limit, e.Node)
}
