package human

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vinayprograms/coder/internal/conversation"
)

func TestIsAcceptance(t *testing.T) {
	for _, in := range []string{"o", "ok", "OK", " Ok \n", "O"} {
		if !IsAcceptance(in) {
			t.Errorf("expected %q to be acceptance", in)
		}
	}
	for _, in := range []string{"", "okay", "yes", "no", "o k"} {
		if IsAcceptance(in) {
			t.Errorf("expected %q to be rejected", in)
		}
	}
}

func TestGate_ConfirmAccept(t *testing.T) {
	p := NewScripted("ok")
	g := NewGate(p)
	conv := conversation.New()

	ok, err := g.Confirm(context.Background(), conv, "logs")
	if err != nil || !ok {
		t.Fatalf("expected acceptance, ok=%v err=%v", ok, err)
	}
	last, _ := conv.Last()
	if last.Content != ApprovedMsg {
		t.Errorf("expected %q, got %q", ApprovedMsg, last.Content)
	}
	if prompts := p.Prompts(); len(prompts) != 1 || prompts[0] != AcceptPrompt {
		t.Errorf("unexpected prompts: %v", prompts)
	}
}

func TestGate_ConfirmFeedbackWithLogs(t *testing.T) {
	g := NewGate(NewScripted("button is misaligned"))
	conv := conversation.New()

	ok, err := g.Confirm(context.Background(), conv, "stdout:\nhello")
	if err != nil || ok {
		t.Fatalf("expected rejection, ok=%v err=%v", ok, err)
	}
	last, _ := conv.Last()
	if last.Content != "button is misaligned\n\nstdout:\nhello" {
		t.Errorf("unexpected feedback: %q", last.Content)
	}
}

func TestGate_ConfirmFeedbackFormat(t *testing.T) {
	g := NewGate(NewScripted("add tests"))
	g.Feedback = func(reply string) string { return "Rejected: " + reply }
	conv := conversation.New()

	g.Confirm(context.Background(), conv, "")
	last, _ := conv.Last()
	if last.Content != "Rejected: add tests" {
		t.Errorf("unexpected feedback: %q", last.Content)
	}
}

func TestGate_Auto(t *testing.T) {
	p := NewScripted()
	g := NewGate(p)
	g.Auto = true
	conv := conversation.New()

	ok, err := g.Confirm(context.Background(), conv, "")
	if err != nil || !ok {
		t.Fatalf("auto gate must accept, ok=%v err=%v", ok, err)
	}
	if len(p.Prompts()) != 0 {
		t.Error("auto gate must not prompt")
	}
	last, _ := conv.Last()
	if last.Content != AutoApprovedMsg {
		t.Errorf("unexpected message: %q", last.Content)
	}
}

func TestGate_Help(t *testing.T) {
	p := NewScripted("look at line 12")
	g := NewGate(p)
	conv := conversation.New()

	if err := g.Help(context.Background(), conv, "replace_code failed 3 times"); err != nil {
		t.Fatalf("Help failed: %v", err)
	}
	last, _ := conv.Last()
	if !strings.Contains(last.Content, "look at line 12") {
		t.Errorf("hint not recorded: %q", last.Content)
	}
	if !strings.Contains(p.Prompts()[0], "replace_code failed 3 times") {
		t.Error("problem not surfaced to the human")
	}
}

func TestGate_NoPrompter(t *testing.T) {
	g := NewGate(nil)
	conv := conversation.New()

	if err := g.Help(context.Background(), conv, "stuck"); !errors.Is(err, ErrNoPrompter) {
		t.Errorf("Help: expected ErrNoPrompter, got %v", err)
	}
	if _, err := g.Ask(context.Background(), "why?"); !errors.Is(err, ErrNoPrompter) {
		t.Errorf("Ask: expected ErrNoPrompter, got %v", err)
	}
	if _, err := g.Confirm(context.Background(), conv, ""); !errors.Is(err, ErrNoPrompter) {
		t.Errorf("Confirm: expected ErrNoPrompter, got %v", err)
	}
	if conv.Len() != 0 {
		t.Errorf("nothing should be recorded, got %d messages", conv.Len())
	}

	g.Auto = true
	if ok, err := g.Confirm(context.Background(), conv, ""); err != nil || !ok {
		t.Errorf("auto gate needs no prompter: ok=%v err=%v", ok, err)
	}
}

func TestScripted_Exhausted(t *testing.T) {
	g := NewGate(NewScripted())
	_, err := g.Confirm(context.Background(), conversation.New(), "")
	if !errors.Is(err, ErrNoAnswer) {
		t.Errorf("expected ErrNoAnswer, got %v", err)
	}
}

func TestPromptModel_Keys(t *testing.T) {
	m := newPromptModel("accept?", 80)
	m.input.SetValue("ok")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	pm := next.(promptModel)
	if !pm.done || cmd == nil {
		t.Error("enter should finish the prompt")
	}
	if pm.input.Value() != "ok" {
		t.Errorf("unexpected value %q", pm.input.Value())
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !next.(promptModel).aborted {
		t.Error("esc should abort")
	}
	if !strings.Contains(m.View(), "accept?") {
		t.Error("view should show the question")
	}
}
