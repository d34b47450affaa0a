package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
)

type stubAsker struct{ answer string }

func (s stubAsker) Ask(_ context.Context, _ string) (string, error) { return s.answer, nil }

type stubSearcher struct{ out string }

func (s stubSearcher) Search(_ context.Context, _ string) (string, error) { return s.out, nil }

func newTestDispatcher(t *testing.T, seed map[string]string) (*Dispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range seed {
		path := filepath.Join(dir, name)
		os.MkdirAll(filepath.Dir(path), 0755)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	d := NewDispatcher(files.NewSet(dir), Options{
		Final: FinalTool{Name: "final_response_executor", Description: "done"},
		Asker: stubAsker{answer: "yes"},
	})
	return d, dir
}

func call(name string, args map[string]interface{}) conversation.ToolCall {
	return conversation.ToolCall{ID: "call_1", Name: name, Args: args}
}

func TestDispatch_ReplaceCodeMissingAnchor(t *testing.T) {
	d, dir := newTestDispatcher(t, map[string]string{"a.py": "x = 1\n"})

	msg, res, err := d.Dispatch(context.Background(), call("replace_code", map[string]interface{}{
		"filename": "a.py", "anchor": "MISSING", "code": "y = 2",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsNotExecuted(msg.Content) {
		t.Errorf("expected not-executed content, got %q", msg.Content)
	}
	if res.Executed || !res.Failed {
		t.Errorf("expected failed, not executed result: %+v", res)
	}
	if msg.Role != conversation.RoleTool || msg.ToolCallID != "call_1" {
		t.Errorf("unexpected message envelope: %+v", msg)
	}
	r, ok := d.Files().Get("a.py")
	if !ok || r.Modified {
		t.Errorf("a.py must be tracked and unmodified, got %+v (ok=%v)", r, ok)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "a.py"))
	if string(data) != "x = 1\n" {
		t.Errorf("file changed: %q", data)
	}
}

func TestDispatch_ReplaceCodeAmbiguousAnchor(t *testing.T) {
	d, _ := newTestDispatcher(t, map[string]string{"a.py": "x = 1\nx = 1\n"})

	msg, _, _ := d.Dispatch(context.Background(), call("replace_code", map[string]interface{}{
		"filename": "a.py", "anchor": "x = 1", "code": "y = 2",
	}))
	if !IsNotExecuted(msg.Content) || !strings.Contains(msg.Content, "ambiguous") {
		t.Errorf("expected ambiguous anchor refusal, got %q", msg.Content)
	}
	if r, _ := d.Files().Get("a.py"); r.Modified {
		t.Error("ambiguous edit must not set modified")
	}
}

func TestDispatch_ReplaceCodeSuccess(t *testing.T) {
	d, dir := newTestDispatcher(t, map[string]string{"a.py": "def f():\n    return 1\n"})

	msg, res, _ := d.Dispatch(context.Background(), call("replace_code", map[string]interface{}{
		"filename": "a.py", "anchor": "return 1", "code": "return 2",
	}))
	if IsNotExecuted(msg.Content) || !res.Executed {
		t.Fatalf("expected success, got %q", msg.Content)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "a.py"))
	if string(data) != "def f():\n    return 2\n" {
		t.Errorf("unexpected content: %q", data)
	}
	if r, _ := d.Files().Get("a.py"); !r.Modified {
		t.Error("successful edit must set modified")
	}
}

func TestDispatch_EditRefusedOnSyntaxError(t *testing.T) {
	d, _ := newTestDispatcher(t, map[string]string{"a.py": "print(1)\n"})

	msg, _, _ := d.Dispatch(context.Background(), call("replace_code", map[string]interface{}{
		"filename": "a.py", "anchor": "print(1)", "code": "print((1)",
	}))
	if !IsNotExecuted(msg.Content) {
		t.Errorf("expected syntax refusal, got %q", msg.Content)
	}
	if r, _ := d.Files().Get("a.py"); r.Modified {
		t.Error("refused edit must not set modified")
	}
}

func TestDispatch_InsertCode(t *testing.T) {
	tests := []struct {
		position string
		want     string
	}{
		{"after", "a = 1\nb = 2\nc = 3\n"},
		{"", "a = 1\nb = 2\nc = 3\n"},
		{"before", "b = 2\na = 1\nc = 3\n"},
	}
	for _, tt := range tests {
		t.Run("position="+tt.position, func(t *testing.T) {
			d, dir := newTestDispatcher(t, map[string]string{"m.py": "a = 1\nc = 3\n"})
			_, res, _ := d.Dispatch(context.Background(), call("insert_code", map[string]interface{}{
				"filename": "m.py", "anchor": "a = 1", "code": "b = 2", "position": tt.position,
			}))
			if !res.Executed {
				t.Fatalf("expected insert to execute: %+v", res)
			}
			data, _ := os.ReadFile(filepath.Join(dir, "m.py"))
			if string(data) != tt.want {
				t.Errorf("got %q, want %q", data, tt.want)
			}
		})
	}
}

func TestDispatch_InsertCodeBadPosition(t *testing.T) {
	d, _ := newTestDispatcher(t, map[string]string{"m.py": "a = 1\n"})
	msg, _, _ := d.Dispatch(context.Background(), call("insert_code", map[string]interface{}{
		"filename": "m.py", "anchor": "a = 1", "code": "b = 2", "position": "middle",
	}))
	if !IsNotExecuted(msg.Content) {
		t.Errorf("expected refusal for bad position, got %q", msg.Content)
	}
}

func TestDispatch_CreateFileIdempotent(t *testing.T) {
	d, dir := newTestDispatcher(t, nil)

	for i := 0; i < 2; i++ {
		_, res, err := d.Dispatch(context.Background(), call("create_file", map[string]interface{}{
			"filename": "pkg/x.py", "code": "print('hi')\n",
		}))
		if err != nil || !res.Executed {
			t.Fatalf("create %d failed: err=%v res=%+v", i, err, res)
		}
	}
	if len(d.Files().Records()) != 1 {
		t.Errorf("expected a single record, got %d", len(d.Files().Records()))
	}
	if r, _ := d.Files().Get("pkg/x.py"); !r.Modified {
		t.Error("created file must be modified")
	}
	if _, err := os.Stat(filepath.Join(dir, "pkg", "x.py")); err != nil {
		t.Errorf("file not written: %v", err)
	}
}

func TestDispatch_UnknownTool(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	_, _, err := d.Dispatch(context.Background(), call("delete_everything", nil))
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if perr.Tool != "delete_everything" {
		t.Errorf("unexpected tool in error: %q", perr.Tool)
	}
}

func TestDispatch_PathOutsideProject(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	msg, res, _ := d.Dispatch(context.Background(), call("see_file", map[string]interface{}{"filename": "../../etc/passwd"}))
	if !res.Failed || !strings.HasPrefix(msg.Content, "Error:") {
		t.Errorf("expected failure, got %q", msg.Content)
	}
}

func TestDispatch_SeeFileAndListDir(t *testing.T) {
	d, _ := newTestDispatcher(t, map[string]string{"src/main.go": "package main\n"})

	msg, _, _ := d.Dispatch(context.Background(), call("see_file", map[string]interface{}{"filename": "src/main.go"}))
	if !strings.Contains(msg.Content, "1|package main") {
		t.Errorf("unexpected see_file output: %q", msg.Content)
	}
	if r, ok := d.Files().Get("src/main.go"); !ok || r.Modified {
		t.Error("see_file should track without modifying")
	}

	msg, _, _ = d.Dispatch(context.Background(), call("list_dir", map[string]interface{}{"directory": "src"}))
	if !strings.Contains(msg.Content, "main.go") {
		t.Errorf("unexpected list_dir output: %q", msg.Content)
	}
}

func TestDispatch_FinalAndAskHuman(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	_, res, err := d.Dispatch(context.Background(), call("final_response_executor", map[string]interface{}{}))
	if err != nil || !res.Final || res.Kind != KindFinal {
		t.Errorf("expected final result, got %+v err=%v", res, err)
	}

	msg, _, _ := d.Dispatch(context.Background(), call("ask_human", map[string]interface{}{"question": "proceed?"}))
	if msg.Content != "yes" {
		t.Errorf("expected human answer, got %q", msg.Content)
	}
}

func TestDefinitions(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	names := map[string]bool{}
	for _, def := range d.Definitions() {
		names[def.Name] = true
	}
	for _, want := range []string{"list_dir", "see_file", "replace_code", "insert_code", "create_file", "ask_human", "final_response_executor"} {
		if !names[want] {
			t.Errorf("missing definition %s", want)
		}
	}
	if names["semantic_query"] {
		t.Error("semantic_query must be absent without a searcher")
	}

	withIndex := NewDispatcher(files.NewSet(t.TempDir()), Options{Searcher: stubSearcher{out: "a.go"}, ReadOnly: true})
	names = map[string]bool{}
	for _, def := range withIndex.Definitions() {
		names[def.Name] = true
	}
	if !names["semantic_query"] || names["replace_code"] {
		t.Errorf("unexpected read-only definitions: %v", names)
	}
}
