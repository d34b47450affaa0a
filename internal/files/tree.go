package files

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// IgnoreFile is the ignore list location relative to the work dir.
const IgnoreFile = ".coder/.coderignore"

// DefaultIgnore is written when no ignore file exists.
var DefaultIgnore = []string{
	".env",
	".gitignore",
	"*.pyc",
	"*.log",
	".coderrules",
	".git/",
	".idea/",
	".coder/",
	".vscode",
	"node_modules/",
	"/.next/",
	".ruff_cache/",
	"venv/",
	"env/",
	"__pycache__/",
	"build/",
}

// Ignore matches paths against .coderignore patterns.
type Ignore struct {
	patterns []string
}

// EnsureIgnore creates the default ignore file in workDir if missing.
// Returns true when a new file was written.
func EnsureIgnore(workDir string) (bool, error) {
	path := filepath.Join(workDir, IgnoreFile)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create ignore dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(DefaultIgnore, "\n")+"\n"), 0644); err != nil {
		return false, fmt.Errorf("failed to write ignore file: %w", err)
	}
	return true, nil
}

// LoadIgnore reads the ignore file from workDir, falling back to defaults.
func LoadIgnore(workDir string) *Ignore {
	f, err := os.Open(filepath.Join(workDir, IgnoreFile))
	if err != nil {
		return &Ignore{patterns: DefaultIgnore}
	}
	defer f.Close()

	ig := &Ignore{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ig.patterns = append(ig.patterns, line)
	}
	return ig
}

// Match reports whether rel (slash separated, relative to the work dir) is ignored.
func (ig *Ignore) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(strings.TrimPrefix(rel, "./"))
	base := filepath.Base(rel)
	for _, p := range ig.patterns {
		dirOnly := strings.HasSuffix(p, "/")
		anchored := strings.HasPrefix(p, "/")
		p = strings.Trim(p, "/")
		if dirOnly && !isDir {
			continue
		}
		if anchored {
			if ok, _ := filepath.Match(p, rel); ok {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Tree renders the directory structure under dir (relative to workDir),
// honoring the ignore list. depth <= 0 means unlimited.
func Tree(workDir, dir string, depth int) (string, error) {
	ig := LoadIgnore(workDir)
	root := filepath.Join(workDir, dir)
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("cannot list %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}

	var sb strings.Builder
	name := dir
	if name == "" || name == "." {
		name = filepath.Base(workDir)
	}
	sb.WriteString(name + "/\n")
	if err := walk(&sb, workDir, root, ig, "", 1, depth); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func walk(sb *strings.Builder, workDir, dir string, ig *Ignore, indent string, level, depth int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		rel, _ := filepath.Rel(workDir, full)
		if ig.Match(rel, e.IsDir()) {
			continue
		}
		if e.IsDir() {
			sb.WriteString(fmt.Sprintf("%s  %s/\n", indent, e.Name()))
			if depth <= 0 || level < depth {
				if err := walk(sb, workDir, full, ig, indent+"  ", level+1, depth); err != nil {
					return err
				}
			}
			continue
		}
		sb.WriteString(fmt.Sprintf("%s  %s\n", indent, e.Name()))
	}
	return nil
}
