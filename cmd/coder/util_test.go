package main

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/coder/internal/agents"
	"github.com/vinayprograms/coder/internal/config"
)

func TestIsTerminal(t *testing.T) {
	f, err := os.CreateTemp("", "test-terminal-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if isTerminal(f) {
		t.Error("expected temp file to not be a terminal")
	}
}

func TestParseRetryConfig(t *testing.T) {
	tests := []struct {
		name        string
		maxRetries  int
		backoff     string
		wantRetries int
		wantBackoff time.Duration
	}{
		{"defaults", 0, "", 0, 0},
		{"with backoff", 3, "30s", 3, 30 * time.Second},
		{"invalid backoff", 2, "soon", 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRetryConfig(tt.maxRetries, tt.backoff)
			if got.MaxRetries != tt.wantRetries || got.MaxBackoff != tt.wantBackoff {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestParseTimeout(t *testing.T) {
	if d, err := parseTimeout(""); err != nil || d != 0 {
		t.Errorf("empty: %v %v", d, err)
	}
	if d, err := parseTimeout("2m"); err != nil || d != 2*time.Minute {
		t.Errorf("2m: %v %v", d, err)
	}
	if _, err := parseTimeout("forever"); err == nil {
		t.Error("expected error")
	}
}

func TestAPIKey_EnvFallback(t *testing.T) {
	t.Setenv("CODER_TEST_KEY", "sk-test")
	lc := config.LLMConfig{APIKeyEnv: "CODER_TEST_KEY"}
	if got := apiKey(nil, lc, "anthropic"); got != "sk-test" {
		t.Errorf("got %q", got)
	}

	t.Setenv("OPENAI_API_KEY", "sk-openai")
	if got := apiKey(nil, config.LLMConfig{}, "openai"); got != "sk-openai" {
		t.Errorf("got %q", got)
	}
	if got := apiKey(nil, config.LLMConfig{}, "unknown"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestProfileKey(t *testing.T) {
	a := config.LLMConfig{Provider: "anthropic", Model: "m1"}
	b := a
	if profileKey(a) != profileKey(b) {
		t.Error("equal settings should share a key")
	}
	b.Model = "m2"
	if profileKey(a) == profileKey(b) {
		t.Error("different models must not share a key")
	}
}

func TestResolve(t *testing.T) {
	if got := resolve("/w", "logs/app.log"); got != "/w/logs/app.log" {
		t.Errorf("got %q", got)
	}
	if got := resolve("/w", "/var/log/app.log"); got != "/var/log/app.log" {
		t.Errorf("got %q", got)
	}
}

func TestFormatResearch(t *testing.T) {
	out := formatResearch(&agents.Research{WorkOn: []string{"a.py"}, Images: []string{"mock.png"}})
	if !strings.Contains(out, "Files to work on:\n  a.py") || !strings.Contains(out, "Template images:\n  mock.png") {
		t.Errorf("unexpected output %q", out)
	}
	if strings.Contains(out, "Reference files") {
		t.Error("empty sections should be omitted")
	}
	if got := formatResearch(&agents.Research{}); got != "No files selected.\n" {
		t.Errorf("got %q", got)
	}
}
