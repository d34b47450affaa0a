package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/coder/internal/agents"
	"github.com/vinayprograms/coder/internal/config"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// parseRetryConfig converts config values to RetryConfig.
func parseRetryConfig(maxRetries int, backoffStr string) llm.RetryConfig {
	cfg := llm.RetryConfig{
		MaxRetries: maxRetries,
	}
	if backoffStr != "" {
		if d, err := time.ParseDuration(backoffStr); err == nil {
			cfg.MaxBackoff = d
		}
	}
	return cfg
}

// parseTimeout parses the script timeout; empty means no limit.
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid verify.timeout %q: %w", s, err)
	}
	return d, nil
}

// apiKey prefers the credentials file, then the profile's environment variable.
func apiKey(creds *credentials.Credentials, lc config.LLMConfig, provider string) string {
	if creds != nil {
		if key := creds.GetAPIKey(provider); key != "" {
			return key
		}
	}
	env := lc.APIKeyEnv
	if env == "" {
		env = config.DefaultAPIKeyEnv(provider)
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// profileKey identifies LLM settings that can share one provider.
func profileKey(lc config.LLMConfig) string {
	return strings.Join([]string{lc.Provider, lc.Model, lc.APIKeyEnv, fmt.Sprint(lc.MaxTokens), lc.BaseURL, lc.Thinking}, "|")
}

// resolve joins a relative path onto dir.
func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func formatResearch(res *agents.Research) string {
	var sb strings.Builder
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&sb, "%s:\n", title)
		for _, it := range items {
			fmt.Fprintf(&sb, "  %s\n", it)
		}
	}
	section("Files to work on", res.WorkOn)
	section("Reference files", res.References)
	section("Template images", res.Images)
	if sb.Len() == 0 {
		return "No files selected.\n"
	}
	return sb.String()
}
