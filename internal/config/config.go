// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the config file looked up in the work dir.
const DefaultFile = "coder.toml"

// Agent roles that may carry their own LLM profile.
const (
	RoleResearcher = "researcher"
	RolePlanner    = "planner"
	RoleExecutor   = "executor"
	RoleDebugger   = "debugger"
)

// Config represents the coder configuration.
type Config struct {
	Agent     AgentConfig        `toml:"agent"`
	LLM       LLMConfig          `toml:"llm"`      // Default LLM settings
	Profiles  map[string]Profile `toml:"profiles"` // Per-role overrides
	Limits    LimitsConfig       `toml:"limits"`
	Verify    VerifyConfig       `toml:"verify"`
	Planner   PlannerConfig      `toml:"planner"`
	Index     IndexConfig        `toml:"index"`
	Storage   StorageConfig      `toml:"storage"` // Sessions and checkpoints
	Telemetry TelemetryConfig    `toml:"telemetry"`
	Events    EventsConfig       `toml:"events"`
}

// AgentConfig contains project settings.
type AgentConfig struct {
	WorkDir string `toml:"work_dir"`
	Silent  bool   `toml:"silent"` // researcher auto-approves its file selection
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKeyEnv    string `toml:"api_key_env"`
	MaxTokens    int    `toml:"max_tokens"`
	BaseURL      string `toml:"base_url"`      // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
	Thinking     string `toml:"thinking"`      // Thinking level: auto|off|low|medium|high
	MaxRetries   int    `toml:"max_retries"`   // Max retry attempts (default 5)
	RetryBackoff string `toml:"retry_backoff"` // Max backoff duration (default "60s")
}

// Profile overrides the default LLM for one agent role.
type Profile struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"`
	Thinking  string `toml:"thinking"`
}

// LimitsConfig bounds each agent's graph run.
type LimitsConfig struct {
	Research       int  `toml:"research"`
	Plan           int  `toml:"plan"`
	Execute        int  `toml:"execute"`
	Debug          int  `toml:"debug"`
	LoopWindow     int  `toml:"loop_window"`      // identical failing calls before escalation
	DropExtraCalls bool `toml:"drop_extra_calls"` // keep the terminal call when batched with others
}

// VerifyConfig configures the verification gate.
type VerifyConfig struct {
	ExecuteFile  string                  `toml:"execute_file"` // entry script run after edits
	Interpreter  string                  `toml:"interpreter"`
	Timeout      string                  `toml:"timeout"`
	LogFile      string                  `toml:"log_file"` // enables check_log for the debugger
	FailOnStderr bool                    `toml:"fail_on_stderr"`
	FrontendURL  string                  `toml:"frontend_url"`   // enables visual capture
	Screenshot   string                  `toml:"screenshot_cmd"` // capture command run with the generated code
	Linters      map[string]LinterConfig `toml:"linters"`        // keyed by extension without dot
}

// LinterConfig is a static analysis command for one file type.
type LinterConfig struct {
	Command    []string `toml:"command"`
	PassMarker string   `toml:"pass_marker"`
}

// PlannerConfig configures plan generation.
type PlannerConfig struct {
	Proposals int `toml:"proposals"` // >1 enables voting between proposals
}

// IndexConfig configures the project search index.
type IndexConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // defaults to .coder/index.bleve in the work dir
}

// StorageConfig contains persistent storage settings.
type StorageConfig struct {
	Path string `toml:"path"` // Base directory for sessions and checkpoints
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc (default) or http
}

// EventsConfig mirrors session events to NATS.
type EventsConfig struct {
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		Agent: AgentConfig{WorkDir: "."},
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Limits: LimitsConfig{
			Research:   100,
			Plan:       50,
			Execute:    150,
			Debug:      150,
			LoopWindow: 3,
		},
		Verify: VerifyConfig{
			Interpreter: "python3",
			Timeout:     "120s",
			Linters: map[string]LinterConfig{
				"py": {Command: []string{"ruff", "check", "--select", "E9,F"}, PassMarker: "All checks passed!"},
			},
		},
		Planner: PlannerConfig{Proposals: 1},
		Index:   IndexConfig{Enabled: true},
		Storage: StorageConfig{
			Path: "~/.local/coder",
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
		Events: EventsConfig{Subject: "coder.events"},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads coder.toml from dir, returning defaults when it does not exist.
func LoadDefault(dir string) (*Config, error) {
	path := filepath.Join(dir, DefaultFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := New()
		cfg.Agent.WorkDir = dir
		return cfg, nil
	}
	return LoadFile(path)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	for name, v := range map[string]int{
		"limits.research": c.Limits.Research,
		"limits.plan":     c.Limits.Plan,
		"limits.execute":  c.Limits.Execute,
		"limits.debug":    c.Limits.Debug,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.Limits.LoopWindow < 2 {
		return fmt.Errorf("limits.loop_window must be at least 2, got %d", c.Limits.LoopWindow)
	}
	if c.Planner.Proposals < 1 {
		return fmt.Errorf("planner.proposals must be at least 1, got %d", c.Planner.Proposals)
	}
	for ext, l := range c.Verify.Linters {
		if len(l.Command) == 0 {
			return fmt.Errorf("verify.linters.%s has no command", ext)
		}
	}
	return nil
}

// StoragePath returns the storage directory with ~ expanded.
func (c *Config) StoragePath() string {
	return ExpandHome(c.Storage.Path)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "coder")
	}
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

// LintedExts returns the extensions (with dot) that have a linter.
func (c *Config) LintedExts() []string {
	var out []string
	for ext := range c.Verify.Linters {
		out = append(out, "."+strings.TrimPrefix(ext, "."))
	}
	return out
}

// GetAPIKey returns the API key from the configured environment variable.
// If api_key_env is not set, uses the default env var for the provider.
func (c *Config) GetAPIKey() string {
	envVar := c.LLM.APIKeyEnv
	if envVar == "" {
		envVar = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// DefaultAPIKeyEnv returns the default environment variable name for a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	default:
		return ""
	}
}

// GetProfile returns the LLM config for an agent role.
// Falls back to default LLM config if the role has no profile.
func (c *Config) GetProfile(name string) LLMConfig {
	if name == "" {
		return c.LLM
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return c.LLM
	}
	result := c.LLM
	if profile.Provider != "" {
		result.Provider = profile.Provider
	}
	if profile.Model != "" {
		result.Model = profile.Model
	}
	if profile.APIKeyEnv != "" {
		result.APIKeyEnv = profile.APIKeyEnv
	}
	if profile.MaxTokens != 0 {
		result.MaxTokens = profile.MaxTokens
	}
	if profile.BaseURL != "" {
		result.BaseURL = profile.BaseURL
	}
	if profile.Thinking != "" {
		result.Thinking = profile.Thinking
	}
	return result
}
