package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/coder/internal/config"
	"github.com/vinayprograms/coder/internal/replay"
)

// Run executes the replay command.
func (c *ReplayCmd) Run() error {
	path, err := c.sessionPath()
	if err != nil {
		return err
	}
	r := replay.New(os.Stdout, c.Verbose)

	interactive := !c.NoPager && isTerminal(os.Stdout)
	switch {
	case c.Follow && interactive:
		return r.ReplayFileLive(path)
	case interactive:
		return r.ReplayFileInteractive(path)
	default:
		return r.ReplayFile(path)
	}
}

// sessionPath accepts a file path or a bare session ID from the session store.
func (c *ReplayCmd) sessionPath() (string, error) {
	if _, err := os.Stat(c.Session); err == nil {
		return c.Session, nil
	}
	if strings.ContainsRune(c.Session, filepath.Separator) || strings.HasSuffix(c.Session, ".jsonl") {
		return "", fmt.Errorf("session file not found: %s", c.Session)
	}

	cfg := config.Default()
	if c.Config != "" {
		var err error
		if cfg, err = config.LoadFile(c.Config); err != nil {
			return "", err
		}
	}
	path := filepath.Join(cfg.StoragePath(), "sessions", c.Session+".jsonl")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("session %s not found in %s", c.Session, filepath.Dir(path))
	}
	return path, nil
}
