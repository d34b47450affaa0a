package setup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vinayprograms/coder/internal/config"
	"github.com/vinayprograms/coder/internal/files"
)

func TestBuild_Defaults(t *testing.T) {
	cfg := Build(Options{Provider: "openai"})
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("expected suggested model, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("expected env var without a key, got %q", cfg.LLM.APIKeyEnv)
	}
	if cfg.Verify.Screenshot != "" {
		t.Error("no screenshot command without a frontend")
	}

	cfg = Build(Options{Provider: "anthropic", Model: "custom", APIKey: "k", FrontendURL: "http://localhost:3000"})
	if cfg.LLM.Model != "custom" || cfg.LLM.APIKeyEnv != "" {
		t.Errorf("unexpected llm config %+v", cfg.LLM)
	}
	if cfg.Verify.Screenshot == "" {
		t.Error("expected screenshot command with a frontend")
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	written, err := Write(dir, Options{Provider: "anthropic", ExecuteFile: "main.py"})
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 3 {
		t.Errorf("expected config, ignore and rules files, got %v", written)
	}

	cfg, err := config.LoadFile(filepath.Join(dir, config.DefaultFile))
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.Verify.ExecuteFile != "main.py" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.Verify.Linters["py"].PassMarker == "" {
		t.Error("linters should survive the round trip")
	}
	if _, err := os.Stat(filepath.Join(dir, files.IgnoreFile)); err != nil {
		t.Errorf("ignore file missing: %v", err)
	}
}

func TestWrite_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	if _, err := Write(dir, Options{Provider: "anthropic"}); err != nil {
		t.Fatal(err)
	}
	if _, err := Write(dir, Options{Provider: "openai"}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if _, err := Write(dir, Options{Provider: "openai", Force: true}); err != nil {
		t.Errorf("force should overwrite: %v", err)
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m Model, msgs ...tea.Msg) Model {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestWizard_AcceptDefaults(t *testing.T) {
	m := send(NewWizard(Options{}), key("enter"), key("enter"), key("enter"), key("enter"), key("enter"))
	if m.step != StepDone {
		t.Fatalf("expected done, at step %d", m.step)
	}
	opts := m.Options()
	if opts.Provider != "anthropic" || opts.Model != DefaultModel("anthropic") {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestWizard_ProviderChangeResetsModel(t *testing.T) {
	m := NewWizard(Options{Provider: "anthropic", Model: "claude-x"})
	m.input.SetValue("openai")
	m = send(m, key("enter"))
	if m.step != StepModel || m.input.Value() != "gpt-4o" {
		t.Errorf("expected openai suggestion, got step %d value %q", m.step, m.input.Value())
	}
	m = send(m, key("enter"), key("sk-1"), key("enter"))
	if m.Options().APIKey != "sk-1" {
		t.Errorf("expected api key, got %q", m.Options().APIKey)
	}
}

func TestWizard_Cancel(t *testing.T) {
	m := send(NewWizard(Options{}), key("esc"))
	if !m.Cancelled() {
		t.Error("expected cancelled")
	}
}
