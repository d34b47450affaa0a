// Package index keeps a BM25 full-text index of the project files. It backs
// the semantic_query tool and is refreshed with every modified file.
package index

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/coder/internal/files"
)

const (
	// DefaultPath is where the index lives inside the work dir.
	DefaultPath = ".coder/index.bleve"
	// MaxFileSize bounds what gets indexed.
	MaxFileSize = 512 * 1024
	// DefaultLimit is the number of hits Search reports.
	DefaultLimit = 8
)

// Document is one indexed file.
type Document struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Ext     string `json:"ext"`
	Content string `json:"content"`
}

// Hit is a search result.
type Hit struct {
	Path    string
	Score   float64
	Snippet string
}

// Index is a bleve index over a work dir.
type Index struct {
	mu      sync.RWMutex
	index   bleve.Index
	workDir string
	ignore  *files.Ignore
	logger  *logging.Logger
}

// Open opens the index at path, creating it when missing. An empty path
// means DefaultPath under workDir.
func Open(workDir, path string) (*Index, error) {
	if path == "" {
		path = filepath.Join(workDir, DefaultPath)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	var idx bleve.Index
	var err error
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create bleve index: %w", err)
		}
	} else {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open bleve index: %w", err)
		}
	}

	return &Index{
		index:   idx,
		workDir: workDir,
		ignore:  files.LoadIgnore(workDir),
		logger:  logging.New().WithComponent("index"),
	}, nil
}

func buildMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	keyword := bleve.NewKeywordFieldMapping()

	doc.AddFieldMappingsAt("path", keyword)
	doc.AddFieldMappingsAt("ext", keyword)
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("content", text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

var nameSplitter = strings.NewReplacer("/", " ", ".", " ", "_", " ", "-", " ")

func newDocument(rel, content string) Document {
	return Document{
		Path:    rel,
		Name:    nameSplitter.Replace(rel),
		Ext:     strings.TrimPrefix(filepath.Ext(rel), "."),
		Content: content,
	}
}

// Upsert indexes content under rel, replacing any previous version.
func (x *Index) Upsert(rel, content string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	rel = filepath.ToSlash(rel)
	if err := x.index.Index(rel, newDocument(rel, content)); err != nil {
		return fmt.Errorf("failed to index %s: %w", rel, err)
	}
	return nil
}

// UpsertFile reads rel from the work dir and indexes it. Files that are
// ignored, too large or binary are skipped; a missing file is removed.
func (x *Index) UpsertFile(rel string) error {
	data, ok, err := x.read(rel)
	if err != nil {
		if os.IsNotExist(err) {
			return x.Delete(rel)
		}
		return err
	}
	if !ok {
		return nil
	}
	return x.Upsert(rel, string(data))
}

// UpsertRecords indexes every given file record.
func (x *Index) UpsertRecords(recs []*files.Record) error {
	for _, r := range recs {
		if err := x.UpsertFile(r.Path); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes rel from the index.
func (x *Index) Delete(rel string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Delete(filepath.ToSlash(rel))
}

// Build walks the work dir and indexes every eligible file in one batch.
// Documents for files that no longer qualify are removed.
func (x *Index) Build(ctx context.Context) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	stale, err := x.documentIDs(ctx)
	if err != nil {
		return 0, err
	}

	batch := x.index.NewBatch()
	count := 0
	err = filepath.WalkDir(x.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, _ := filepath.Rel(x.workDir, path)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if x.skip(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		data, ok, err := x.read(rel)
		if err != nil || !ok {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if err := batch.Index(rel, newDocument(rel, string(data))); err != nil {
			return err
		}
		delete(stale, rel)
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", x.workDir, err)
	}
	for id := range stale {
		batch.Delete(id)
	}
	if err := x.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to index batch: %w", err)
	}
	x.logger.Info("index_built", map[string]interface{}{"files": count, "removed": len(stale)})
	return count, nil
}

// documentIDs lists every indexed path. Callers hold x.mu.
func (x *Index) documentIDs(ctx context.Context) (map[string]struct{}, error) {
	total, err := x.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	ids := make(map[string]struct{}, total)
	if total == 0 {
		return ids, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(total), 0, false)
	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	for _, h := range res.Hits {
		ids[h.ID] = struct{}{}
	}
	return ids, nil
}

// Count returns the number of indexed files.
func (x *Index) Count() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.index.DocCount()
}

// Query returns up to limit files ranked by relevance to q.
func (x *Index) Query(ctx context.Context, q string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	content := bleve.NewMatchQuery(q)
	content.SetField("content")
	name := bleve.NewMatchQuery(q)
	name.SetField("name")
	name.SetBoost(2)

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery([]query.Query{content, name}...))
	req.Size = limit
	req.Fields = []string{"content"}

	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	terms := strings.Fields(strings.ToLower(q))
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		text, _ := h.Fields["content"].(string)
		hits = append(hits, Hit{Path: h.ID, Score: h.Score, Snippet: snippet(text, terms, 3)})
	}
	return hits, nil
}

// Search renders the best matches for the model.
func (x *Index) Search(ctx context.Context, q string) (string, error) {
	hits, err := x.Query(ctx, q, DefaultLimit)
	if err != nil || len(hits) == 0 {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("Files related to the query:\n")
	for _, h := range hits {
		sb.WriteString(fmt.Sprintf("\n%s (score %.2f)\n", h.Path, h.Score))
		if h.Snippet != "" {
			sb.WriteString(h.Snippet)
		}
	}
	return sb.String(), nil
}

// Close closes the underlying index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Close()
}

func (x *Index) skip(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if rel == ".coder" || strings.HasPrefix(rel, ".coder/") || rel == ".git" {
		return true
	}
	return x.ignore.Match(rel, isDir)
}

// read returns the file content and whether it should be indexed.
func (x *Index) read(rel string) ([]byte, bool, error) {
	if x.skip(rel, false) {
		return nil, false, nil
	}
	path := filepath.Join(x.workDir, rel)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() || info.Size() > MaxFileSize {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return nil, false, nil
	}
	return data, true, nil
}

// snippet returns up to max numbered lines mentioning any of terms.
func snippet(content string, terms []string, max int) string {
	if len(terms) == 0 {
		return ""
	}
	var sb strings.Builder
	n := 0
	for i, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(line)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				sb.WriteString(fmt.Sprintf("    %d|%s\n", i+1, strings.TrimSpace(line)))
				n++
				break
			}
		}
		if n == max {
			break
		}
	}
	return sb.String()
}
