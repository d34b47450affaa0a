package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
)

// DefaultPassMarker is what ruff and biome print for a clean file.
const DefaultPassMarker = "All checks passed!"

// Linter is a command run once per file; the file path is appended to Command.
type Linter struct {
	Command    []string
	PassMarker string
}

// CommandAnalyzer lints modified files with per-extension commands.
type CommandAnalyzer struct {
	WorkDir string
	Linters map[string]Linter // keyed by extension, e.g. ".py"
}

// Analyze runs the linter for each file and concatenates the output of every
// file that did not pass. Files without a linter are skipped.
func (a *CommandAnalyzer) Analyze(ctx context.Context, recs []*files.Record) (string, error) {
	var sb strings.Builder
	for _, r := range recs {
		l, ok := a.Linters[strings.ToLower(filepath.Ext(r.Path))]
		if !ok || len(l.Command) == 0 {
			continue
		}
		marker := l.PassMarker
		if marker == "" {
			marker = DefaultPassMarker
		}

		args := append(append([]string(nil), l.Command[1:]...), filepath.Join(a.WorkDir, r.Path))
		cmd := exec.CommandContext(ctx, l.Command[0], args...)
		cmd.Dir = a.WorkDir
		var stdout bytes.Buffer
		cmd.Stdout = &stdout
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return "", fmt.Errorf("%s: %w", l.Command[0], err)
			}
		}
		if strings.TrimSpace(stdout.String()) != marker {
			sb.WriteString(fmt.Sprintf("\n\n---\n%s:\n\n%s", r.Path, stdout.String()))
		}
	}
	return sb.String(), nil
}

// ExecRunner runs the entry file with an interpreter.
type ExecRunner struct {
	Interpreter []string // e.g. ["python3"]; the entry is executed directly when empty
	Timeout     time.Duration
}

// Run executes the entry file in workDir. A non-zero exit is not an error;
// its output is returned like any other run.
func (r *ExecRunner) Run(ctx context.Context, workDir, entry string) (string, string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	argv := append(append([]string(nil), r.Interpreter...), entry)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		stderr.WriteString(fmt.Sprintf("\nprocess killed after %s", r.Timeout))
		return stdout.String(), stderr.String(), nil
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", "", fmt.Errorf("failed to start %s: %w", argv[0], err)
		}
	}
	return stdout.String(), stderr.String(), nil
}

// errorMarkers flag log lines that need the agent's attention.
var errorMarkers = []string{"ERROR", "Traceback", "Exception", "panic:", "FATAL"}

// FileLogFetcher returns log lines appended since the previous fetch.
type FileLogFetcher struct {
	Path   string
	offset int64
}

// Fetch reads new log content. When none of it looks like an error the
// result ends with LogsCorrect.
func (f *FileLogFetcher) Fetch(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "No logs yet.\n" + LogsCorrect, nil
		}
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	if int64(len(data)) < f.offset {
		f.offset = 0 // rotated
	}
	fresh := string(data[f.offset:])
	f.offset = int64(len(data))

	for _, m := range errorMarkers {
		if strings.Contains(fresh, m) {
			return fresh, nil
		}
	}
	return fresh + "\n" + LogsCorrect, nil
}

// CommandCapturer writes capture code to a temp file, runs it and collects
// the PNG files it leaves in OutDir.
type CommandCapturer struct {
	Command []string // e.g. ["node"]; the code file path is appended
	OutDir  string
	Ext     string // code file extension, ".js" when empty
}

// Capture runs the code and returns a screenshots message.
func (c *CommandCapturer) Capture(ctx context.Context, code string) (conversation.Message, error) {
	if len(c.Command) == 0 {
		return conversation.Message{}, fmt.Errorf("no capture command configured")
	}
	ext := c.Ext
	if ext == "" {
		ext = ".js"
	}
	if err := os.MkdirAll(c.OutDir, 0755); err != nil {
		return conversation.Message{}, fmt.Errorf("failed to create capture dir: %w", err)
	}
	script, err := os.CreateTemp("", "capture-*"+ext)
	if err != nil {
		return conversation.Message{}, err
	}
	defer os.Remove(script.Name())
	if _, err := script.WriteString(code); err != nil {
		script.Close()
		return conversation.Message{}, err
	}
	script.Close()

	args := append(append([]string(nil), c.Command[1:]...), script.Name())
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	cmd.Dir = c.OutDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return conversation.Human(fmt.Sprintf("Screenshot capture failed:\n%s", output), conversation.TagScreenshots), nil
	}

	shots, _ := filepath.Glob(filepath.Join(c.OutDir, "*.png"))
	sort.Strings(shots)
	msg := conversation.Human("Screenshots of the running application:", conversation.TagScreenshots)
	for _, p := range shots {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		msg.Images = append(msg.Images, conversation.Image{Path: p, MediaType: "image/png", Data: data})
	}
	return msg, nil
}
