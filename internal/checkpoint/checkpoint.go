// Package checkpoint persists the state a graph run ended in.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of the run when the checkpoint was taken.
type Status string

const (
	StatusDone    Status = "done"
	StatusAborted Status = "aborted"
)

// FileState is a tracked file at checkpoint time.
type FileState struct {
	Path     string `json:"path"`
	Modified bool   `json:"modified"`
}

// Checkpoint captures where a graph run stopped. Aborted runs keep their
// applied edits; the checkpoint records which files they touched.
type Checkpoint struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id,omitempty"`
	Agent     string            `json:"agent"`
	Status    Status            `json:"status"`
	Node      string            `json:"node"`
	Step      int               `json:"step"`
	Limit     int               `json:"limit"`
	Error     string            `json:"error,omitempty"`
	Files     []FileState       `json:"files,omitempty"`
	Stdout    string            `json:"stdout,omitempty"`
	Stderr    string            `json:"stderr,omitempty"`
	Messages  int               `json:"messages"`
	Final     map[string]string `json:"final,omitempty"` // terminal tool arguments
	Timestamp time.Time         `json:"timestamp"`
}

// Store manages checkpoints in a directory, one JSON file each.
type Store struct {
	dir         string
	checkpoints map[string]*Checkpoint
	mu          sync.RWMutex
}

// NewStore creates a new checkpoint store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{
		dir:         dir,
		checkpoints: make(map[string]*Checkpoint),
	}, nil
}

// Save stores cp, assigning an ID and timestamp when missing.
func (s *Store) Save(cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	s.checkpoints[cp.ID] = cp
	return s.flush(cp.ID)
}

// Get retrieves a checkpoint by ID.
func (s *Store) Get(id string) *Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[id]
}

// List returns all checkpoints, oldest first.
func (s *Store) List() []*Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Latest returns the newest checkpoint for agent, or nil.
func (s *Store) Latest(agent string) *Checkpoint {
	list := s.List()
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Agent == agent {
			return list[i]
		}
	}
	return nil
}

// flush writes a checkpoint to disk.
func (s *Store) flush(id string) error {
	data, err := json.MarshalIndent(s.checkpoints[id], "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, id+".json"), data, 0644)
}

// Load reads checkpoints from disk, skipping unreadable files.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		if cp.ID == "" {
			cp.ID = entry.Name()[:len(entry.Name())-len(".json")]
		}
		s.checkpoints[cp.ID] = &cp
	}
	return nil
}
