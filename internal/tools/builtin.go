package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/coder/internal/files"
	"github.com/vinayprograms/coder/internal/syntax"
)

type builtinSpec struct {
	description string
	params      map[string]string
	required    []string
}

func (s builtinSpec) schema() map[string]interface{} {
	return objectSchema(s.params, s.required)
}

func objectSchema(params map[string]string, required []string) map[string]interface{} {
	props := make(map[string]interface{}, len(params))
	for name, desc := range params {
		props[name] = map[string]interface{}{"type": "string", "description": desc}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

var builtinSpecs = map[Kind]builtinSpec{
	KindListDir: {
		description: "List files and subdirectories of a project directory.",
		params:      map[string]string{"directory": "Directory relative to the project root, '.' for the root"},
		required:    []string{"directory"},
	},
	KindSeeFile: {
		description: "Show the content of a project file with line numbers.",
		params:      map[string]string{"filename": "File path relative to the project root"},
		required:    []string{"filename"},
	},
	KindReplaceCode: {
		description: "Replace the code fragment matching anchor (it must appear exactly once) with new code.",
		params: map[string]string{
			"filename": "File path relative to the project root",
			"anchor":   "Exact existing code fragment to replace",
			"code":     "New code",
		},
		required: []string{"filename", "anchor", "code"},
	},
	KindInsertCode: {
		description: "Insert code before or after the line containing anchor (it must appear exactly once).",
		params: map[string]string{
			"filename": "File path relative to the project root",
			"anchor":   "Exact existing code fragment marking the insertion point",
			"code":     "Code to insert",
			"position": "'after' (default) or 'before'",
		},
		required: []string{"filename", "anchor", "code"},
	},
	KindCreateFile: {
		description: "Create a new file with the given code.",
		params: map[string]string{
			"filename": "File path relative to the project root",
			"code":     "Full file content",
		},
		required: []string{"filename", "code"},
	},
	KindSemanticQuery: {
		description: "Search the project index for files related to a natural language query.",
		params:      map[string]string{"query": "What to look for"},
		required:    []string{"query"},
	},
	KindAskHuman: {
		description: "Ask the human operator a question and wait for the answer.",
		params:      map[string]string{"question": "Question for the human"},
		required:    []string{"question"},
	},
}

func stringArg(args map[string]interface{}, name string) (string, bool) {
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func requireArg(args map[string]interface{}, name string) (string, error) {
	s, ok := stringArg(args, name)
	if !ok {
		return "", fmt.Errorf("missing string argument %q", name)
	}
	return s, nil
}

// resolve maps a tool-supplied path to an absolute path inside the work dir.
func (d *Dispatcher) resolve(name string) (string, error) {
	if name == "" {
		name = "."
	}
	root, err := filepath.Abs(d.files.WorkDir())
	if err != nil {
		return "", err
	}
	abs := filepath.Join(root, filepath.FromSlash(name))
	if filepath.IsAbs(name) {
		abs = filepath.Clean(name)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the project", name)
	}
	return abs, nil
}

func (d *Dispatcher) listDir(_ context.Context, args map[string]interface{}) (string, Result, error) {
	dir, _ := stringArg(args, "directory")
	if _, err := d.resolve(dir); err != nil {
		return "", Result{}, err
	}
	if dir == "" {
		dir = "."
	}
	out, err := files.Tree(d.files.WorkDir(), dir, 1)
	return out, Result{Path: dir}, err
}

func (d *Dispatcher) seeFile(_ context.Context, args map[string]interface{}) (string, Result, error) {
	name, err := requireArg(args, "filename")
	if err != nil {
		return "", Result{}, err
	}
	abs, err := d.resolve(name)
	if err != nil {
		return "", Result{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", Result{Path: name}, err
	}
	d.files.Cache(name, string(data))
	return fmt.Sprintf("%s:\n\n%s", name, files.NumberLines(string(data))), Result{Path: name}, nil
}

func (d *Dispatcher) replaceCode(_ context.Context, args map[string]interface{}) (string, Result, error) {
	return d.edit(args, func(content, anchor, code string, at int) string {
		return content[:at] + code + content[at+len(anchor):]
	})
}

func (d *Dispatcher) insertCode(_ context.Context, args map[string]interface{}) (string, Result, error) {
	position, _ := stringArg(args, "position")
	position = strings.ToLower(strings.TrimSpace(position))
	if position != "" && position != "after" && position != "before" {
		return notExecuted("position must be 'before' or 'after', got %q", position), Result{}, nil
	}
	return d.edit(args, func(content, anchor, code string, at int) string {
		if !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		if position == "before" {
			lineStart := strings.LastIndex(content[:at], "\n") + 1
			return content[:lineStart] + code + content[lineStart:]
		}
		end := at + len(anchor)
		nl := strings.Index(content[end:], "\n")
		if nl < 0 {
			return content + "\n" + code
		}
		lineEnd := end + nl + 1
		return content[:lineEnd] + code + content[lineEnd:]
	})
}

// edit locates a unique anchor and applies fn. Any failure before the write
// yields not-executed content and leaves the record's modified flag alone.
func (d *Dispatcher) edit(args map[string]interface{}, fn func(content, anchor, code string, at int) string) (string, Result, error) {
	name, err := requireArg(args, "filename")
	if err != nil {
		return notExecuted("%v", err), Result{}, nil
	}
	anchor, err := requireArg(args, "anchor")
	if err != nil || anchor == "" {
		return notExecuted("anchor is required"), Result{Path: name}, nil
	}
	code, err := requireArg(args, "code")
	if err != nil {
		return notExecuted("%v", err), Result{Path: name}, nil
	}

	res := Result{Path: name}
	abs, err := d.resolve(name)
	if err != nil {
		return notExecuted("%v", err), res, nil
	}
	d.files.Reference(name)

	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notExecuted("file %s does not exist, use create_file instead", name), res, nil
		}
		return notExecuted("cannot read %s: %v", name, err), res, nil
	}
	content := string(data)

	switch n := strings.Count(content, anchor); {
	case n == 0:
		return notExecuted("anchor not found in %s. Check the current file content and retry.", name), res, nil
	case n > 1:
		return notExecuted("anchor is ambiguous in %s (%d matches). Provide a longer, unique fragment.", name, n), res, nil
	}

	updated := fn(content, anchor, code, strings.Index(content, anchor))
	if check := syntax.Check(name, updated); !syntax.OK(check) {
		return notExecuted("edit would break %s: %s", name, check), res, nil
	}
	if err := os.WriteFile(abs, []byte(updated), 0644); err != nil {
		return notExecuted("cannot write %s: %v", name, err), res, nil
	}

	d.files.MarkModified(name)
	d.files.Cache(name, updated)
	return fmt.Sprintf("Code in %s updated successfully.", name), res, nil
}

// createFile registers the record as modified even if the write fails.
func (d *Dispatcher) createFile(_ context.Context, args map[string]interface{}) (string, Result, error) {
	name, err := requireArg(args, "filename")
	if err != nil {
		return "", Result{}, err
	}
	code, _ := stringArg(args, "code")
	abs, err := d.resolve(name)
	if err != nil {
		return "", Result{Path: name}, err
	}

	d.files.MarkModified(name)
	res := Result{Path: name}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return "", res, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(abs, []byte(code), 0644); err != nil {
		return "", res, fmt.Errorf("failed to write file: %w", err)
	}
	d.files.Cache(name, code)
	return fmt.Sprintf("File %s created successfully.", name), res, nil
}

func (d *Dispatcher) semanticQuery(ctx context.Context, args map[string]interface{}) (string, Result, error) {
	q, err := requireArg(args, "query")
	if err != nil {
		return "", Result{}, err
	}
	out, err := d.opts.Searcher.Search(ctx, q)
	if err != nil {
		return "", Result{}, err
	}
	if out == "" {
		out = "No matching files."
	}
	return out, Result{}, nil
}

func (d *Dispatcher) askHuman(ctx context.Context, args map[string]interface{}) (string, Result, error) {
	q, err := requireArg(args, "question")
	if err != nil {
		return "", Result{}, err
	}
	answer, err := d.opts.Asker.Ask(ctx, q)
	if err != nil {
		return "", Result{}, err
	}
	return answer, Result{}, nil
}

func (d *Dispatcher) final(_ context.Context, _ map[string]interface{}) (string, Result, error) {
	return "Final response recorded.", Result{Final: true}, nil
}
