// Package session records what happened during a task run.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status constants for sessions.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Event types for the session log
const (
	EventTaskStart = "task_start"
	EventTaskEnd   = "task_end"

	// Graph events
	EventNode       = "node"        // Node entered
	EventModel      = "model"       // Model turn completed
	EventToolCall   = "tool_call"   // Tool invocation started
	EventToolResult = "tool_result" // Tool completed
	EventAnomaly    = "anomaly"     // Zero/excess calls or loop
	EventVerify     = "verify"      // Verification gate outcome
	EventHuman      = "human"       // Human input recorded
	EventCheckpoint = "checkpoint"  // Checkpoint saved
)

// Session is one agent run over one task.
type Session struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Task      string    `json:"task"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	seqCounter uint64
	mu         sync.Mutex
}

// Event is a single entry in the session log.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Agent string `json:"agent,omitempty"`
	Node  string `json:"node,omitempty"`
	Step  int    `json:"step,omitempty"`

	Content string                 `json:"content,omitempty"`
	Tool    string                 `json:"tool,omitempty"`
	CallID  string                 `json:"call_id,omitempty"`
	Args    map[string]interface{} `json:"args,omitempty"`

	Success    *bool  `json:"success,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Sink receives events as they happen.
type Sink interface {
	AddEvent(event Event) uint64
}

// Bool returns a pointer for Event.Success.
func Bool(b bool) *bool {
	return &b
}

// New creates a running session.
func New(agent, task string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		Agent:     agent,
		Task:      task,
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// nextSeqID returns the next sequence ID for this session.
func (s *Session) nextSeqID() uint64 {
	return atomic.AddUint64(&s.seqCounter, 1)
}

// CurrentSeqID returns the last used sequence ID, 0 before any event.
func (s *Session) CurrentSeqID() uint64 {
	return atomic.LoadUint64(&s.seqCounter)
}

// AddEvent adds a new event to the session with automatic sequencing.
func (s *Session) AddEvent(event Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.SeqID = s.nextSeqID()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Agent == "" {
		event.Agent = s.Agent
	}
	s.Events = append(s.Events, event)
	s.UpdatedAt = time.Now()
	return event.SeqID
}

// Finish marks the session complete or failed.
func (s *Session) Finish(result string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Result = result
	if err != nil {
		s.Status = StatusFailed
		s.Error = err.Error()
	} else {
		s.Status = StatusComplete
	}
	s.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the events.
func (s *Session) Snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.Events...)
}

// Store is the interface for session persistence.
type Store interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
}

// JSONL record types
const (
	RecordTypeHeader = "header" // Session metadata (first line)
	RecordTypeEvent  = "event"  // Individual event
	RecordTypeFooter = "footer" // Final state (last line)
)

// JSONLRecord is a wrapper for JSONL lines with type discrimination.
type JSONLRecord struct {
	RecordType string `json:"_type"`

	// Header fields
	ID           string    `json:"id,omitempty"`
	SessionAgent string    `json:"session_agent,omitempty"` // "agent" belongs to Event
	Task         string    `json:"task,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`

	*Event `json:",omitempty"`

	// Footer fields
	Status       string    `json:"status,omitempty"`
	Result       string    `json:"result,omitempty"`
	SessionError string    `json:"session_error,omitempty"` // "error" belongs to Event
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// FileStore stores sessions as JSONL files.
type FileStore struct {
	dir string
}

// NewFileStore creates a new file-based store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file a session is stored in.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

// Save persists a session to disk in JSONL format.
func (s *FileStore) Save(sess *Session) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	f, err := os.Create(s.Path(sess.ID))
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer f.Close()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	w := bufio.NewWriter(f)
	header := JSONLRecord{
		RecordType:   RecordTypeHeader,
		ID:           sess.ID,
		SessionAgent: sess.Agent,
		Task:         sess.Task,
		CreatedAt:    sess.CreatedAt,
	}
	if err := writeLine(w, header); err != nil {
		return err
	}

	for i := range sess.Events {
		evt := sess.Events[i]
		if err := writeLine(w, JSONLRecord{RecordType: RecordTypeEvent, Event: &evt}); err != nil {
			return err
		}
	}

	footer := JSONLRecord{
		RecordType:   RecordTypeFooter,
		Status:       sess.Status,
		Result:       sess.Result,
		SessionError: sess.Error,
		UpdatedAt:    sess.UpdatedAt,
	}
	if err := writeLine(w, footer); err != nil {
		return err
	}
	return w.Flush()
}

func writeLine(w io.Writer, record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Load reads a session by id.
func (s *FileStore) Load(id string) (*Session, error) {
	return LoadFile(s.Path(id))
}

// LoadFile reads a session from a JSONL file.
func LoadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sess := &Session{Events: []Event{}}

	// bufio.Reader has no line length limit, unlike Scanner
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if perr := parseLine(trimmed, sess); perr != nil {
				return nil, perr
			}
		}
		if err == io.EOF {
			break
		}
	}

	if len(sess.Events) > 0 {
		sess.seqCounter = sess.Events[len(sess.Events)-1].SeqID
	}
	return sess, nil
}

func parseLine(line []byte, sess *Session) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}

	switch record.RecordType {
	case RecordTypeHeader:
		sess.ID = record.ID
		sess.Agent = record.SessionAgent
		sess.Task = record.Task
		sess.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			sess.Events = append(sess.Events, *record.Event)
		}
	case RecordTypeFooter:
		sess.Status = record.Status
		sess.Result = record.Result
		sess.Error = record.SessionError
		sess.UpdatedAt = record.UpdatedAt
	}
	return nil
}
