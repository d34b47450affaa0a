// Package anomaly detects degenerate model turns and repeated failing tool calls.
package anomaly

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinayprograms/coder/internal/conversation"
)

// DefaultWindow is the number of identical failed attempts that counts as a loop.
const DefaultWindow = 3

// Corrective message texts.
const (
	NoToolsMsg       = "No tool was used. Every answer must call exactly one of the provided tools. If the task is complete, call the final response tool."
	MultipleToolsMsg = "Too many tool calls in one answer. Call exactly one tool per answer and wait for its result."
	TooManyCallsAck  = "Not executed: too many tool calls in one answer."
)

// Verdict classifies a model turn.
type Verdict int

const (
	Proceed Verdict = iota
	NoCalls
	ExcessCalls
)

func (v Verdict) String() string {
	switch v {
	case NoCalls:
		return "no_calls"
	case ExcessCalls:
		return "excess_calls"
	default:
		return "proceed"
	}
}

// Inspection is the outcome of checking one model turn.
type Inspection struct {
	Verdict  Verdict
	Calls    []conversation.ToolCall // calls to execute when Verdict is Proceed
	Messages []conversation.Message  // corrective messages to append
	Dropped  int                     // extra calls dropped in favor of the terminal call
}

// Attempt is one recorded tool call outcome.
type Attempt struct {
	Name   string
	Key    string
	Failed bool
}

// Options configures a Detector.
type Options struct {
	Window     int  // loop window size, DefaultWindow when zero
	SingleCall bool // more than one call per turn is a protocol error
	DropExtras bool // with SingleCall, keep only the terminal call when present
}

// Detector inspects model turns. One detector belongs to one graph run.
type Detector struct {
	opts    Options
	history []Attempt
}

// New creates a detector.
func New(opts Options) *Detector {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Detector{opts: opts}
}

// Window returns the configured loop window.
func (d *Detector) Window() int {
	return d.opts.Window
}

// Inspect classifies the tool calls declared by an ai message.
// finalName is the terminal tool of the running agent.
func (d *Detector) Inspect(msg conversation.Message, finalName string) Inspection {
	calls := msg.ToolCalls
	if len(calls) == 0 {
		return Inspection{
			Verdict:  NoCalls,
			Messages: []conversation.Message{conversation.Human(NoToolsMsg)},
		}
	}
	if len(calls) == 1 || !d.opts.SingleCall {
		return Inspection{Verdict: Proceed, Calls: calls}
	}

	if d.opts.DropExtras {
		for _, c := range calls {
			if c.Name == finalName {
				return Inspection{Verdict: Proceed, Calls: []conversation.ToolCall{c}, Dropped: len(calls) - 1}
			}
		}
	}

	// Every declared call still needs an answer so the wire history stays valid.
	ins := Inspection{Verdict: ExcessCalls}
	for _, c := range calls {
		ins.Messages = append(ins.Messages, conversation.ToolResult(c.ID, TooManyCallsAck))
	}
	ins.Messages = append(ins.Messages, conversation.Human(MultipleToolsMsg))
	return ins
}

// Record adds a dispatched call to the sliding window.
func (d *Detector) Record(call conversation.ToolCall, failed bool) {
	d.history = append(d.history, Attempt{Name: call.Name, Key: Key(call), Failed: failed})
	if len(d.history) > d.opts.Window {
		d.history = d.history[len(d.history)-d.opts.Window:]
	}
}

// Looped reports whether the last Window attempts are identical and all failed.
func (d *Detector) Looped() bool {
	if len(d.history) < d.opts.Window {
		return false
	}
	first := d.history[0]
	for _, a := range d.history {
		if !a.Failed || a.Key != first.Key {
			return false
		}
	}
	return true
}

// History returns the attempts currently in the window.
func (d *Detector) History() []Attempt {
	return append([]Attempt(nil), d.history...)
}

// Reset clears the window, typically after a human intervened.
func (d *Detector) Reset() {
	d.history = nil
}

// Describe renders the window for a human.
func (d *Detector) Describe() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("The agent repeated the same failing tool call %d times:\n", len(d.history)))
	for i, a := range d.history {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, a.Key))
	}
	return sb.String()
}

// Key returns a canonical identity for a call: its name plus arguments with sorted keys.
func Key(call conversation.ToolCall) string {
	args, err := json.Marshal(call.Args)
	if err != nil {
		args = []byte(fmt.Sprintf("%v", call.Args))
	}
	return call.Name + " " + string(args)
}
