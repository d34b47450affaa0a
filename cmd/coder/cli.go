// Package main defines the CLI structure using kong.
package main

import "github.com/alecthomas/kong"

// CLI defines the command-line interface.
type CLI struct {
	Init     InitCmd     `cmd:"" help:"Create coder.toml for a project"`
	Run      RunCmd      `cmd:"" help:"Research, plan, implement and debug a task"`
	Research ResearchCmd `cmd:"" help:"List the files a task would touch"`
	Index    IndexCmd    `cmd:"" help:"Build the project search index"`
	Replay   ReplayCmd   `cmd:"" help:"Replay a recorded session"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// ProjectFlags locate the project and its configuration.
type ProjectFlags struct {
	Config  string `help:"Config file path (default: <work-dir>/coder.toml)"`
	WorkDir string `short:"C" help:"Project directory" type:"path"`
}

// InitCmd writes a project configuration.
type InitCmd struct {
	WorkDir     string `short:"C" help:"Project directory" type:"path"`
	Provider    string `help:"LLM provider"`
	Model       string `help:"Model name"`
	ExecuteFile string `help:"Entry script run after each change"`
	FrontendURL string `help:"Frontend URL for visual feedback"`
	Yes         bool   `short:"y" help:"Skip the wizard and use flags and defaults"`
	Force       bool   `help:"Overwrite an existing coder.toml"`
}

// RunCmd runs the whole pipeline for one task.
type RunCmd struct {
	ProjectFlags `embed:""`
	Task         string `arg:"" help:"What to change"`
	NoIndex      bool   `help:"Disable the semantic search index"`
	Silent       bool   `help:"Accept the researcher's file selection without asking"`
}

// ResearchCmd runs only the researcher.
type ResearchCmd struct {
	ProjectFlags `embed:""`
	Task         string `arg:"" help:"What to change"`
	NoIndex      bool   `help:"Disable the semantic search index"`
}

// IndexCmd (re)builds the search index.
type IndexCmd struct {
	ProjectFlags `embed:""`
	Watch        bool `short:"w" help:"Keep the index updated as files change"`
}

// ReplayCmd prints a recorded session.
type ReplayCmd struct {
	Session string `arg:"" help:"Session file or session ID"`
	Verbose int    `short:"v" type:"counter" help:"Verbosity level (-v, -vv)"`
	NoPager bool   `help:"Disable pager for output"`
	Follow  bool   `short:"f" help:"Re-render while the session is being written"`
	Config  string `help:"Config file path, used to locate stored sessions"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
