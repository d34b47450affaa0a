package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "ckpt"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("store is nil")
	}
}

func TestSaveAndGet(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	cp := &Checkpoint{
		Agent:  "executor",
		Status: StatusAborted,
		Node:   "agent",
		Step:   150,
		Limit:  150,
		Error:  "recursion limit exceeded",
		Files: []FileState{
			{Path: "a.py", Modified: true},
			{Path: "b.py"},
		},
		Stderr: "Traceback",
	}
	if err := store.Save(cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if cp.ID == "" || cp.Timestamp.IsZero() {
		t.Fatal("Save should assign ID and timestamp")
	}

	got := store.Get(cp.ID)
	if got == nil || got.Step != 150 || len(got.Files) != 2 {
		t.Fatalf("unexpected checkpoint: %+v", got)
	}

	if _, err := os.Stat(filepath.Join(dir, cp.ID+".json")); err != nil {
		t.Errorf("checkpoint file not written: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	store.Save(&Checkpoint{ID: "one", Agent: "debugger", Status: StatusDone, Files: []FileState{{Path: "x.go", Modified: true}}})
	os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{"), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644)

	fresh, _ := NewStore(dir)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cp := fresh.Get("one")
	if cp == nil || cp.Status != StatusDone || !cp.Files[0].Modified {
		t.Errorf("checkpoint not restored: %+v", cp)
	}
	if len(fresh.List()) != 1 {
		t.Errorf("expected 1 checkpoint, got %d", len(fresh.List()))
	}
}

func TestLatest(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	base := time.Now()
	store.Save(&Checkpoint{ID: "a", Agent: "executor", Timestamp: base})
	store.Save(&Checkpoint{ID: "b", Agent: "executor", Timestamp: base.Add(time.Second)})
	store.Save(&Checkpoint{ID: "c", Agent: "planner", Timestamp: base.Add(2 * time.Second)})

	if cp := store.Latest("executor"); cp == nil || cp.ID != "b" {
		t.Errorf("expected b, got %+v", cp)
	}
	if cp := store.Latest("researcher"); cp != nil {
		t.Errorf("expected nil, got %+v", cp)
	}
}

func TestLoad_MissingDir(t *testing.T) {
	store := &Store{dir: filepath.Join(t.TempDir(), "gone"), checkpoints: map[string]*Checkpoint{}}
	if err := store.Load(); err != nil {
		t.Errorf("missing dir should not be an error: %v", err)
	}
}
