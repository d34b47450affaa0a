package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
)

type fakeAnalyzer struct {
	report string
	seen   []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, recs []*files.Record) (string, error) {
	for _, r := range recs {
		f.seen = append(f.seen, r.Path)
	}
	return f.report, nil
}

type fakeRunner struct{ stdout, stderr string }

func (f fakeRunner) Run(_ context.Context, _, _ string) (string, string, error) {
	return f.stdout, f.stderr, nil
}

type fakeLogs struct{ text string }

func (f fakeLogs) Fetch(context.Context) (string, error) { return f.text, nil }

type fakeCapturer struct {
	delay time.Duration
	err   error
}

func (f fakeCapturer) Capture(ctx context.Context, code string) (conversation.Message, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return conversation.Message{}, ctx.Err()
	}
	if f.err != nil {
		return conversation.Message{}, f.err
	}
	return conversation.Message{Role: conversation.RoleHuman, Content: "shots for " + code, Images: []conversation.Image{{Path: "1.png"}}}, nil
}

func modifiedSet(t *testing.T, paths ...string) *files.Set {
	s := files.NewSet(t.TempDir())
	for _, p := range paths {
		s.MarkModified(p)
	}
	return s
}

func TestGate_StaticAnalysisFailure(t *testing.T) {
	set := modifiedSet(t, "a.py", "b.go")
	set.Reference("c.py")
	analyzer := &fakeAnalyzer{report: "\n\n---\na.py:\n\nF401 unused import"}
	g := &Gate{Analyzer: analyzer, AnalyzeExts: []string{".py"}}
	conv := conversation.New()

	out, err := g.Run(context.Background(), conv, set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Passed || len(out.Failed) != 1 || out.Failed[0] != StepStaticAnalysis {
		t.Errorf("expected static analysis failure, got %+v", out)
	}
	if len(analyzer.seen) != 1 || analyzer.seen[0] != "a.py" {
		t.Errorf("analyzer should only see modified .py files, saw %v", analyzer.seen)
	}
	last, _ := conv.Last()
	if !strings.Contains(last.Content, "F401") {
		t.Errorf("report not appended: %q", last.Content)
	}
}

func TestGate_ScriptOutputIsNotFailureByDefault(t *testing.T) {
	g := &Gate{Runner: fakeRunner{stdout: "ok", stderr: "warning"}, EntryFile: "main.py"}
	conv := conversation.New()

	out, err := g.Run(context.Background(), conv, modifiedSet(t))
	if err != nil || !out.Passed {
		t.Fatalf("expected pass, got %+v err=%v", out, err)
	}
	if out.Stdout != "ok" || out.Stderr != "warning" {
		t.Errorf("output not captured: %+v", out)
	}
	if conv.Len() != 1 || !strings.Contains(conv.Messages()[0].Content, "warning") {
		t.Error("script output must be appended")
	}

	g.FailOnStderr = true
	out, _ = g.Run(context.Background(), conversation.New(), modifiedSet(t))
	if out.Passed {
		t.Error("stderr should fail when flagged")
	}
}

func TestGate_Logs(t *testing.T) {
	g := &Gate{Logs: fakeLogs{text: "GET / 200\nLogs are correct"}}
	if out, _ := g.Run(context.Background(), conversation.New(), modifiedSet(t)); !out.Passed {
		t.Error("expected pass with sentinel")
	}
	g.Logs = fakeLogs{text: "Traceback: boom"}
	if out, _ := g.Run(context.Background(), conversation.New(), modifiedSet(t)); out.Passed {
		t.Error("expected failure without sentinel")
	}
}

func TestGate_VisualCaptureReplacesOld(t *testing.T) {
	conv := conversation.New(
		conversation.Human("task"),
		conversation.Human("old shots", conversation.TagScreenshots),
	)
	g := &Gate{Capturer: fakeCapturer{}, CaptureCode: "page.goto('/')"}

	out, err := g.Run(context.Background(), conv, modifiedSet(t))
	if err != nil || !out.Passed {
		t.Fatalf("expected pass, got %+v err=%v", out, err)
	}
	msgs := conv.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected old shots purged, got %d messages", len(msgs))
	}
	if !msgs[1].HasTag(conversation.TagScreenshots) || len(msgs[1].Images) != 1 {
		t.Errorf("fresh capture not tagged: %+v", msgs[1])
	}
}

func TestGate_SkipsUnconfigured(t *testing.T) {
	g := &Gate{Runner: fakeRunner{}}
	if g.Configured() {
		t.Error("runner without entry file is not a configured step")
	}
	out, _ := g.Run(context.Background(), conversation.New(), modifiedSet(t))
	if !out.Passed || len(out.Ran) != 0 {
		t.Errorf("expected nothing to run, got %+v", out)
	}
}

func TestCommandAnalyzer(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "good.py"), []byte(DefaultPassMarker), 0644)
	os.WriteFile(filepath.Join(dir, "bad.py"), []byte("E501 line too long"), 0644)

	a := &CommandAnalyzer{
		WorkDir: dir,
		Linters: map[string]Linter{".py": {Command: []string{"sh", "-c", `cat "$1"`, "lint"}}},
	}
	set := files.NewSet(dir)
	set.MarkModified("good.py")
	set.MarkModified("bad.py")
	set.MarkModified("notes.txt")

	report, err := a.Analyze(context.Background(), set.Modified())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !strings.Contains(report, "---\nbad.py:\n\nE501") {
		t.Errorf("missing bad.py report: %q", report)
	}
	if strings.Contains(report, "good.py") {
		t.Errorf("passing file reported: %q", report)
	}
}

func TestExecRunner(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "run.sh"), []byte("echo out\necho err >&2\nexit 3\n"), 0644)

	r := &ExecRunner{Interpreter: []string{"sh"}, Timeout: 5 * time.Second}
	stdout, stderr, err := r.Run(context.Background(), dir, "run.sh")
	if err != nil {
		t.Fatalf("non-zero exit must not be an error: %v", err)
	}
	if strings.TrimSpace(stdout) != "out" || strings.TrimSpace(stderr) != "err" {
		t.Errorf("unexpected output: %q / %q", stdout, stderr)
	}
}

func TestFileLogFetcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	f := &FileLogFetcher{Path: path}

	logs, _ := f.Fetch(context.Background())
	if !LogsOK(logs) {
		t.Errorf("missing log file should be fine: %q", logs)
	}

	os.WriteFile(path, []byte("started\n"), 0644)
	if logs, _ := f.Fetch(context.Background()); !LogsOK(logs) {
		t.Errorf("clean logs should pass: %q", logs)
	}

	fh, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	fh.WriteString("ERROR db down\n")
	fh.Close()
	logs, _ = f.Fetch(context.Background())
	if LogsOK(logs) || strings.Contains(logs, "started") {
		t.Errorf("expected only new error lines, got %q", logs)
	}
}

func TestFuture(t *testing.T) {
	f := StartCapture(context.Background(), fakeCapturer{delay: 10 * time.Millisecond}, "code")
	msg, err := f.Wait()
	if err != nil || msg.Content != "shots for code" {
		t.Errorf("unexpected capture: %+v err=%v", msg, err)
	}

	f = StartCapture(context.Background(), fakeCapturer{err: errors.New("no browser")}, "code")
	if _, err := f.Wait(); err == nil {
		t.Error("expected capture error")
	}
}

func TestParallel_JoinsBoth(t *testing.T) {
	var mainDone, sideDone bool
	err := Parallel(context.Background(),
		func(context.Context) error { time.Sleep(5 * time.Millisecond); mainDone = true; return nil },
		func(context.Context) error { sideDone = true; return nil },
	)
	if err != nil || !mainDone || !sideDone {
		t.Errorf("expected both to finish, err=%v main=%v side=%v", err, mainDone, sideDone)
	}
}

func TestFormatLog(t *testing.T) {
	s := FormatLog("", "boom")
	if !strings.Contains(s, "stdout:\n<empty>") || !strings.Contains(s, "stderr:\nboom") {
		t.Errorf("unexpected format: %q", s)
	}
}
