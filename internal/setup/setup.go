// Package setup writes a project's coder configuration, interactively or not.
package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/coder/internal/agents"
	"github.com/vinayprograms/coder/internal/config"
	"github.com/vinayprograms/coder/internal/files"
)

// Provider defaults offered by the wizard.
var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5",
	"openai":    "gpt-4o",
	"google":    "gemini-2.5-pro",
	"mistral":   "mistral-large-latest",
	"groq":      "llama-3.3-70b-versatile",
}

// ErrExists is returned when coder.toml already exists and Force is off.
var ErrExists = errors.New("config already exists")

// Options are the answers that shape the generated config.
type Options struct {
	Provider    string
	Model       string
	APIKey      string // stored in the credentials file, never in coder.toml
	ExecuteFile string
	FrontendURL string
	Force       bool
}

// DefaultModel returns the suggested model for provider.
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// Build turns options into a config based on the defaults.
func Build(opts Options) *config.Config {
	cfg := config.New()
	cfg.LLM.Provider = opts.Provider
	cfg.LLM.Model = opts.Model
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel(opts.Provider)
	}
	if opts.APIKey == "" {
		cfg.LLM.APIKeyEnv = config.DefaultAPIKeyEnv(opts.Provider)
	}
	cfg.Verify.ExecuteFile = opts.ExecuteFile
	cfg.Verify.FrontendURL = opts.FrontendURL
	if opts.FrontendURL != "" {
		cfg.Verify.Screenshot = "node"
	}
	return cfg
}

// Write creates coder.toml and the .coder directory in workDir and returns
// the files it wrote.
func Write(workDir string, opts Options) ([]string, error) {
	path := filepath.Join(workDir, config.DefaultFile)
	if _, err := os.Stat(path); err == nil && !opts.Force {
		return nil, fmt.Errorf("%s: %w", path, ErrExists)
	}

	cfg := Build(opts)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	fmt.Fprintf(f, "# Coder configuration\n# Generated by: coder init\n\n")
	enc := toml.NewEncoder(f)
	enc.Indent = ""
	if err := enc.Encode(cfg); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	written := []string{path}

	created, err := files.EnsureIgnore(workDir)
	if err != nil {
		return written, err
	}
	if created {
		written = append(written, filepath.Join(workDir, files.IgnoreFile))
	}

	rules := filepath.Join(workDir, agents.RulesFile)
	if _, err := os.Stat(rules); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(rules, []byte("# Project rules for the agents, one per line.\n"), 0644); err != nil {
			return written, fmt.Errorf("failed to write rules: %w", err)
		}
		written = append(written, rules)
	}

	if opts.APIKey != "" {
		if err := SaveAPIKey(opts.Provider, opts.APIKey); err != nil {
			return written, err
		}
		written = append(written, credentials.DefaultPath())
	}
	return written, nil
}

// SaveAPIKey stores key in the shared credentials file.
func SaveAPIKey(provider, key string) error {
	creds, _, _ := credentials.Load()
	if creds == nil {
		creds = &credentials.Credentials{}
	}
	creds.SetAPIKey(provider, key)
	if err := creds.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}
