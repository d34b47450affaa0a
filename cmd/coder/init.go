package main

import (
	"fmt"
	"os"

	"github.com/vinayprograms/coder/internal/setup"
)

// Run executes the init command.
func (c *InitCmd) Run() error {
	workDir := c.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	opts := setup.Options{
		Provider:    c.Provider,
		Model:       c.Model,
		ExecuteFile: c.ExecuteFile,
		FrontendURL: c.FrontendURL,
		Force:       c.Force,
	}
	if opts.Provider == "" {
		opts.Provider = "anthropic"
	}

	if !c.Yes && isTerminal(os.Stdin) {
		var err error
		if opts, err = setup.Run(opts); err != nil {
			return err
		}
		opts.Force = c.Force
	}

	written, err := setup.Write(workDir, opts)
	if err != nil {
		return err
	}
	for _, f := range written {
		fmt.Printf("wrote %s\n", f)
	}
	return nil
}
