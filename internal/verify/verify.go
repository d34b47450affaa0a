// Package verify runs the checks an agent must pass before a human sees its work.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
)

// LogsCorrect terminates log text that needs no further attention.
const LogsCorrect = "Logs are correct"

// StaticAnalyzer lints files. An empty report means every file passed.
type StaticAnalyzer interface {
	Analyze(ctx context.Context, recs []*files.Record) (string, error)
}

// ScriptRunner executes the project's entry file.
type ScriptRunner interface {
	Run(ctx context.Context, workDir, entry string) (stdout, stderr string, err error)
}

// LogFetcher returns application logs, optionally ending in LogsCorrect.
type LogFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// VisualCapturer executes capture code and returns a message carrying images.
// It must not write project files.
type VisualCapturer interface {
	Capture(ctx context.Context, code string) (conversation.Message, error)
}

// LogsOK reports whether fetched log text ends with the LogsCorrect sentinel.
func LogsOK(logs string) bool {
	return strings.HasSuffix(strings.TrimSpace(logs), LogsCorrect)
}

// FormatLog renders captured process output for the model and the human.
func FormatLog(stdout, stderr string) string {
	if stdout == "" {
		stdout = "<empty>"
	}
	if stderr == "" {
		stderr = "<empty>"
	}
	return fmt.Sprintf("Program execution results:\n\nstdout:\n%s\n\nstderr:\n%s", stdout, stderr)
}

// Step names a gate step.
type Step string

const (
	StepStaticAnalysis Step = "static_analysis"
	StepScript         Step = "script"
	StepLogs           Step = "logs"
	StepVisual         Step = "visual_capture"
)

// Gate runs the configured checks in fixed order.
// A nil collaborator skips its step.
type Gate struct {
	Analyzer     StaticAnalyzer
	AnalyzeExts  []string // restrict analysis to these extensions, all when empty
	Runner       ScriptRunner
	EntryFile    string
	FailOnStderr bool
	Logs         LogFetcher
	Capturer     VisualCapturer
	CaptureCode  string
}

// Outcome reports a gate run.
type Outcome struct {
	Passed bool
	Ran    []Step
	Failed []Step
	Stdout string
	Stderr string
}

// Configured reports whether the gate has any step to run.
func (g *Gate) Configured() bool {
	return g != nil && (g.Analyzer != nil || g.scriptConfigured() || g.Logs != nil || g.captureConfigured())
}

func (g *Gate) scriptConfigured() bool {
	return g.Runner != nil && g.EntryFile != ""
}

func (g *Gate) captureConfigured() bool {
	return g.Capturer != nil && g.CaptureCode != ""
}

// Run executes every configured step, appending each step's report to conv.
// Collaborator failures (a linter that cannot start) are returned as errors;
// check failures are reported through Outcome.
func (g *Gate) Run(ctx context.Context, conv *conversation.Conversation, set *files.Set) (Outcome, error) {
	logger := logging.New().WithComponent("verify")
	out := Outcome{Passed: true}
	fail := func(s Step) {
		out.Passed = false
		out.Failed = append(out.Failed, s)
	}

	if g.Analyzer != nil {
		out.Ran = append(out.Ran, StepStaticAnalysis)
		recs := set.Modified(g.AnalyzeExts...)
		if len(recs) > 0 {
			report, err := g.Analyzer.Analyze(ctx, recs)
			if err != nil {
				return out, fmt.Errorf("static analysis: %w", err)
			}
			if strings.TrimSpace(report) != "" {
				conv.Append(conversation.Human("Static analysis found problems:" + report))
				fail(StepStaticAnalysis)
			}
		}
	}

	if g.scriptConfigured() {
		out.Ran = append(out.Ran, StepScript)
		stdout, stderr, err := g.Runner.Run(ctx, set.WorkDir(), g.EntryFile)
		if err != nil {
			return out, fmt.Errorf("script execution: %w", err)
		}
		out.Stdout, out.Stderr = stdout, stderr
		conv.Append(conversation.Human(FormatLog(stdout, stderr)))
		if g.FailOnStderr && strings.TrimSpace(stderr) != "" {
			fail(StepScript)
		}
	}

	if g.Logs != nil {
		out.Ran = append(out.Ran, StepLogs)
		logs, err := g.Logs.Fetch(ctx)
		if err != nil {
			return out, fmt.Errorf("log inspection: %w", err)
		}
		conv.Append(conversation.Human("Logs:\n" + logs))
		if !LogsOK(logs) {
			fail(StepLogs)
		}
	}

	if g.captureConfigured() {
		out.Ran = append(out.Ran, StepVisual)
		msg, err := g.Capturer.Capture(ctx, g.CaptureCode)
		if err != nil {
			return out, fmt.Errorf("visual capture: %w", err)
		}
		InsertCapture(conv, msg)
	}

	logger.Info("verify_done", map[string]interface{}{
		"passed": out.Passed,
		"ran":    len(out.Ran),
		"failed": len(out.Failed),
	})
	return out, nil
}

// InsertCapture replaces earlier screenshot messages with msg.
func InsertCapture(conv *conversation.Conversation, msg conversation.Message) {
	conv.PurgeTagged(conversation.TagScreenshots)
	if !msg.HasTag(conversation.TagScreenshots) {
		msg.Tags = append(msg.Tags, conversation.TagScreenshots)
	}
	if msg.Role == "" {
		msg.Role = conversation.RoleHuman
	}
	conv.Append(msg)
}
