// Package pipeline chains the agents into a single-task coding run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/coder/internal/agents"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
	"github.com/vinayprograms/coder/internal/human"
	"github.com/vinayprograms/coder/internal/verify"
)

// TestPrompt asks the human to try the result before debugging.
const TestPrompt = "Please test app and provide commentary if debugging/additional refinement is needed."

// Upserter refreshes the search index with changed files.
type Upserter interface {
	UpsertRecords(recs []*files.Record) error
}

// Pipeline is research, plan, execute, check and debug for one task.
type Pipeline struct {
	Researcher *agents.Researcher
	Planner    *agents.Planner
	Executor   *agents.Executor
	Debugger   *agents.Debugger

	// Visual feedback: Capture writes the script while the executor works,
	// Capturer runs it. Both must be set to enable it.
	Capture  *agents.CaptureWriter
	Capturer verify.VisualCapturer

	Analyzer    verify.StaticAnalyzer
	AnalyzeExts []string
	Runner      verify.ScriptRunner
	EntryFile   string

	Prompter human.Prompter
	Index    Upserter // nil when indexing is off
	Out      io.Writer
}

// Result summarizes a pipeline run.
type Result struct {
	Research *agents.Research
	Plan     string
	Files    *files.Set
	Feedback string // what the debugger was started with, empty when not needed
	Debugged bool
}

// Run executes the whole pipeline for task.
func (p *Pipeline) Run(ctx context.Context, task string) (*Result, error) {
	logger := logging.New().WithComponent("pipeline")

	research, err := p.Researcher.Research(ctx, task)
	if err != nil {
		return nil, err
	}
	res := &Result{Research: research, Files: research.Files}
	logger.Info("research_done", map[string]interface{}{"files": len(research.Files.Paths()), "images": len(research.Images)})

	res.Plan, err = p.Planner.Plan(ctx, task, research.Files, research.Images)
	if err != nil {
		return res, err
	}

	captureCode, err := p.execute(ctx, task, res)
	if err != nil {
		return res, err
	}

	// Screenshots are taken while the checks below run.
	var shots *verify.Future
	if captureCode != "" {
		shots = verify.StartCapture(ctx, p.Capturer, captureCode)
	}

	execMsg, err := p.runScript(ctx, res.Files.WorkDir())
	if err != nil {
		return res, err
	}
	analysis, err := p.analyze(ctx, res.Files)
	if err != nil {
		return res, err
	}

	if analysis != "" {
		res.Feedback = joinNonEmpty(execMsg, analysis)
		logger.Info("static_analysis_failed", nil)
	} else {
		if execMsg != "" && p.Out != nil {
			fmt.Fprintln(p.Out, execMsg)
		}
		reply, err := p.Prompter.Prompt(ctx, TestPrompt)
		if err != nil {
			return res, fmt.Errorf("human review: %w", err)
		}
		if human.IsAcceptance(reply) {
			p.upsert(res.Files, logger)
			awaitShots(shots, logger)
			return res, nil
		}
		res.Feedback = joinNonEmpty(execMsg, reply)
	}
	p.upsert(res.Files, logger)

	in := agents.DebugInput{Task: task, Plan: res.Plan, Feedback: res.Feedback, Images: research.Images}
	if shots != nil {
		in.Screenshots = awaitShots(shots, logger)
		p.enableCapture(captureCode)
	}

	if _, err := p.Debugger.Do(ctx, in, res.Files); err != nil {
		return res, err
	}
	res.Debugged = true
	p.upsert(res.Files, logger)
	return res, nil
}

// execute runs the executor, writing the capture script alongside when
// visual feedback is configured.
func (p *Pipeline) execute(ctx context.Context, task string, res *Result) (string, error) {
	if p.Capture == nil || p.Capturer == nil {
		_, err := p.Executor.Do(ctx, task, res.Plan, res.Files)
		return "", err
	}

	var code string
	err := verify.Parallel(ctx,
		func(ctx context.Context) error {
			_, err := p.Executor.Do(ctx, task, res.Plan, res.Files)
			return err
		},
		// A failed capture script only disables visual feedback.
		func(ctx context.Context) error {
			c, err := p.Capture.Write(ctx, task, res.Plan)
			if err != nil {
				logging.New().WithComponent("pipeline").Warn("capture_code_failed", map[string]interface{}{"error": err.Error()})
				return nil
			}
			code = c
			return nil
		},
	)
	return code, err
}

func (p *Pipeline) runScript(ctx context.Context, workDir string) (string, error) {
	if p.Runner == nil || p.EntryFile == "" {
		return "", nil
	}
	if _, err := os.Stat(filepath.Join(workDir, p.EntryFile)); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	stdout, stderr, err := p.Runner.Run(ctx, workDir, p.EntryFile)
	if err != nil {
		return "", fmt.Errorf("script execution: %w", err)
	}
	return verify.FormatLog(stdout, stderr), nil
}

func (p *Pipeline) analyze(ctx context.Context, set *files.Set) (string, error) {
	if p.Analyzer == nil {
		return "", nil
	}
	recs := set.Modified(p.AnalyzeExts...)
	if len(recs) == 0 {
		return "", nil
	}
	report, err := p.Analyzer.Analyze(ctx, recs)
	if err != nil {
		return "", fmt.Errorf("static analysis: %w", err)
	}
	if strings.TrimSpace(report) == "" {
		return "", nil
	}
	return "Static analysis found problems:" + report, nil
}

// enableCapture makes the debugger's gate re-take screenshots on every
// completion declaration.
func (p *Pipeline) enableCapture(code string) {
	gate := verify.Gate{}
	if p.Debugger.Gate != nil {
		gate = *p.Debugger.Gate
	}
	gate.Capturer = p.Capturer
	gate.CaptureCode = code
	p.Debugger.Gate = &gate
}

// awaitShots returns nil when there is no capture or it failed.
func awaitShots(shots *verify.Future, logger *logging.Logger) *conversation.Message {
	if shots == nil {
		return nil
	}
	msg, err := shots.Wait()
	if err != nil {
		logger.Warn("capture_failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return &msg
}

func (p *Pipeline) upsert(set *files.Set, logger *logging.Logger) {
	if p.Index == nil {
		return
	}
	if err := p.Index.UpsertRecords(set.Modified()); err != nil {
		logger.Warn("index_upsert_failed", map[string]interface{}{"error": err.Error()})
	}
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, s := range parts {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}
