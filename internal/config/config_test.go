package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFile)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	if cfg.Limits.Research != 100 || cfg.Limits.Plan != 50 || cfg.Limits.Execute != 150 || cfg.Limits.Debug != 150 {
		t.Errorf("unexpected default limits: %+v", cfg.Limits)
	}
	if cfg.Limits.LoopWindow != 3 {
		t.Errorf("expected loop window 3, got %d", cfg.Limits.LoopWindow)
	}
	if cfg.Verify.Linters["py"].PassMarker != "All checks passed!" {
		t.Errorf("expected ruff pass marker, got %+v", cfg.Verify.Linters)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[agent]
work_dir = "/srv/app"
silent = true

[llm]
provider = "anthropic"
model = "claude-sonnet"

[profiles.planner]
model = "small-model"
max_tokens = 1024

[limits]
debug = 20
drop_extra_calls = true

[verify]
execute_file = "main.py"
log_file = "app.log"
fail_on_stderr = true

[verify.linters.go]
command = ["go", "vet"]
pass_marker = ""

[planner]
proposals = 3

[events]
nats_url = "nats://localhost:4222"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Agent.WorkDir != "/srv/app" || !cfg.Agent.Silent {
		t.Errorf("agent section not loaded: %+v", cfg.Agent)
	}
	if cfg.Limits.Debug != 20 || cfg.Limits.Execute != 150 || !cfg.Limits.DropExtraCalls {
		t.Errorf("limits should merge with defaults: %+v", cfg.Limits)
	}
	if cfg.Verify.ExecuteFile != "main.py" || cfg.Verify.LogFile != "app.log" || !cfg.Verify.FailOnStderr {
		t.Errorf("verify section not loaded: %+v", cfg.Verify)
	}
	if got := cfg.Verify.Linters["go"].Command; len(got) != 2 || got[0] != "go" {
		t.Errorf("linter not loaded: %+v", cfg.Verify.Linters)
	}
	if cfg.Planner.Proposals != 3 {
		t.Errorf("expected 3 proposals, got %d", cfg.Planner.Proposals)
	}
	if cfg.Events.NATSURL != "nats://localhost:4222" || cfg.Events.Subject != "coder.events" {
		t.Errorf("events section not loaded: %+v", cfg.Events)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad toml", "[limits\n", "failed to parse"},
		{"zero limit", "[limits]\nplan = 0\n", "limits.plan"},
		{"small window", "[limits]\nloop_window = 1\n", "loop_window"},
		{"no proposals", "[planner]\nproposals = 0\n", "proposals"},
		{"empty linter", "[verify.linters.js]\npass_marker = \"ok\"\n", "verify.linters.js"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadDefault_Missing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadDefault(dir)
	if err != nil {
		t.Fatalf("missing file should give defaults: %v", err)
	}
	if cfg.Agent.WorkDir != dir {
		t.Errorf("expected work dir %s, got %s", dir, cfg.Agent.WorkDir)
	}
}

func TestGetProfile(t *testing.T) {
	cfg := New()
	cfg.LLM = LLMConfig{Provider: "openai", Model: "big", MaxTokens: 8000, BaseURL: "http://proxy"}
	cfg.Profiles = map[string]Profile{RolePlanner: {Model: "small", MaxTokens: 1000}}

	p := cfg.GetProfile(RolePlanner)
	if p.Provider != "openai" || p.Model != "small" || p.MaxTokens != 1000 || p.BaseURL != "http://proxy" {
		t.Errorf("profile should override only set fields: %+v", p)
	}
	if cfg.GetProfile(RoleDebugger).Model != "big" {
		t.Error("unknown role should fall back to default llm")
	}
}

func TestGetAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "secret")
	cfg := New()
	cfg.LLM.Provider = "anthropic"
	if cfg.GetAPIKey() != "secret" {
		t.Error("expected key from default env var")
	}

	t.Setenv("CUSTOM_KEY", "other")
	cfg.LLM.APIKeyEnv = "CUSTOM_KEY"
	if cfg.GetAPIKey() != "other" {
		t.Error("expected key from configured env var")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/data"); got != filepath.Join(home, "data") {
		t.Errorf("got %s", got)
	}
	if got := ExpandHome("/abs"); got != "/abs" {
		t.Errorf("got %s", got)
	}
}

func TestLintedExts(t *testing.T) {
	cfg := New()
	exts := cfg.LintedExts()
	if len(exts) != 1 || exts[0] != ".py" {
		t.Errorf("expected [.py], got %v", exts)
	}
}
