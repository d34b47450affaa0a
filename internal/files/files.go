// Package files tracks the project files an agent has touched.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Record is a tracked project file.
type Record struct {
	Path     string `json:"path"`
	Modified bool   `json:"modified"`
	content  string
	cached   bool
}

// Content returns the last cached content of the file.
func (r *Record) Content() (string, bool) {
	return r.content, r.cached
}

// Set is the collection of file records for one task.
// The modified flag on a record only ever goes from false to true.
type Set struct {
	mu      sync.RWMutex
	workDir string
	records map[string]*Record
	order   []string
}

// NewSet creates an empty set rooted at workDir.
func NewSet(workDir string) *Set {
	return &Set{
		workDir: workDir,
		records: make(map[string]*Record),
	}
}

// WorkDir returns the project root.
func (s *Set) WorkDir() string {
	return s.workDir
}

// Reference returns the record for path, creating it unmodified on first reference.
func (s *Set) Reference(path string) *Record {
	path = s.clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.referenceLocked(path)
}

func (s *Set) referenceLocked(path string) *Record {
	if r, ok := s.records[path]; ok {
		return r
	}
	r := &Record{Path: path}
	s.records[path] = r
	s.order = append(s.order, path)
	return r
}

// MarkModified flags the record for path as modified, creating it if needed.
func (s *Set) MarkModified(path string) *Record {
	path = s.clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.referenceLocked(path)
	r.Modified = true
	return r
}

// Cache stores the latest known content of path.
func (s *Set) Cache(path, content string) {
	path = s.clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.referenceLocked(path)
	r.content = content
	r.cached = true
}

// Get returns the record for path if it is tracked.
func (s *Set) Get(path string) (*Record, bool) {
	path = s.clean(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[path]
	return r, ok
}

// Records returns the tracked records in reference order.
func (s *Set) Records() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, s.records[p])
	}
	return out
}

// Modified returns the modified records, optionally filtered by extension (".py", ".go").
func (s *Set) Modified(exts ...string) []*Record {
	var out []*Record
	for _, r := range s.Records() {
		if !r.Modified {
			continue
		}
		if len(exts) > 0 && !hasExt(r.Path, exts) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Paths returns the tracked paths, sorted.
func (s *Set) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]string(nil), s.order...)
	sort.Strings(out)
	return out
}

// Abs resolves a tracked path against the work dir.
func (s *Set) Abs(path string) string {
	return filepath.Join(s.workDir, s.clean(path))
}

// Snapshot renders the current content of every tracked file with line numbers.
// Missing files are reported rather than failing the snapshot.
func (s *Set) Snapshot() string {
	var sb strings.Builder
	sb.WriteString("File contents:\n")
	for _, r := range s.Records() {
		data, err := os.ReadFile(s.Abs(r.Path))
		if err != nil {
			sb.WriteString(fmt.Sprintf("\n%s:\n\n<file not readable: %v>\n", r.Path, err))
			continue
		}
		s.Cache(r.Path, string(data))
		sb.WriteString(fmt.Sprintf("\n%s:\n\n%s\n", r.Path, NumberLines(string(data))))
	}
	return sb.String()
}

// NumberLines prefixes each line with its 1-based number.
func NumberLines(content string) string {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	var sb strings.Builder
	for i, l := range lines {
		sb.WriteString(fmt.Sprintf("%d|%s\n", i+1, l))
	}
	return sb.String()
}

func (s *Set) clean(path string) string {
	if filepath.IsAbs(path) && s.workDir != "" {
		if rel, err := filepath.Rel(s.workDir, path); err == nil {
			path = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(strings.TrimPrefix(path, "./")))
}

func hasExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
