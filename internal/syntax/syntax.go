// Package syntax runs cheap syntax checks on edited file contents.
package syntax

import (
	"context"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/python"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Valid is returned when no problem was found.
const Valid = "Valid syntax"

// templateTags are the tags balanced inside vue templates and tsx.
var templateTags = []string{"div", "p", "span", "main"}

var (
	vueTemplate = regexp.MustCompile(`(?s)<template>(.*)</template>`)
	vueScript   = regexp.MustCompile(`(?s)<script[^>]*>(.*?)</script>`)
)

// Check validates content according to the file extension of filename.
// It returns Valid or a one-line description of the first problem found.
func Check(filename, content string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "py":
		return checkTree(python.GetLanguage(), content)
	case "css":
		return checkTree(css.GetLanguage(), content)
	case "go":
		return checkGo(filename, content)
	case "json":
		return checkJSON(content)
	case "yml", "yaml":
		return checkYAML(content)
	case "html", "htm":
		return checkHTML(content)
	case "vue":
		return checkVue(content)
	case "tsx", "jsx":
		return checkTSX(content)
	default:
		return Brackets(content)
	}
}

// OK reports whether a Check result means the content is valid.
func OK(result string) bool {
	return result == Valid
}

func checkGo(filename, content string) string {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, filename, content, parser.AllErrors); err != nil {
		return fmt.Sprintf("Syntax Error: %v", err)
	}
	return Valid
}

// checkTree parses content with a tree-sitter grammar and reports the first
// ERROR or MISSING node.
func checkTree(lang *sitter.Language, content string) string {
	src := []byte(content)
	root, err := sitter.ParseCtx(context.Background(), src, lang)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if !root.HasError() {
		return Valid
	}
	n := firstError(root)
	if n == nil {
		return "Syntax Error: invalid syntax"
	}
	line := n.StartPoint().Row + 1
	if n.IsMissing() {
		return fmt.Sprintf("Syntax Error: missing %q (line %d)", n.Type(), line)
	}
	text := strings.TrimSpace(n.Content(src))
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return fmt.Sprintf("Syntax Error: invalid syntax near %q (line %d)", text, line)
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || !(c.HasError() || c.IsMissing()) {
			continue
		}
		if found := firstError(c); found != nil {
			return found
		}
	}
	return nil
}

func checkJSON(content string) string {
	var v interface{}
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return fmt.Sprintf("JSON error: %v", err)
	}
	return Valid
}

func checkYAML(content string) string {
	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var v interface{}
		err := dec.Decode(&v)
		if err == io.EOF {
			return Valid
		}
		if err != nil {
			return fmt.Sprintf("YAML error: %v", err)
		}
	}
}

// checkHTML tokenizes the document and verifies non-void elements are closed in order.
func checkHTML(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var stack []string
	line := 1
	for {
		tt := z.Next()
		raw := z.Raw()
		switch tt {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				if len(stack) > 0 {
					return fmt.Sprintf("HTML error: unclosed <%s>", stack[len(stack)-1])
				}
				return Valid
			}
			return fmt.Sprintf("HTML line %d: %v", line, z.Err())
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				stack = append(stack, string(name))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if len(stack) == 0 || stack[len(stack)-1] != tag {
				return fmt.Sprintf("HTML line %d: unexpected </%s>", line, tag)
			}
			stack = stack[:len(stack)-1]
		}
		line += strings.Count(string(raw), "\n")
	}
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true, "!doctype": true,
}

func checkVue(content string) string {
	m := vueTemplate.FindStringSubmatch(content)
	if m == nil {
		return "Template part has no valid open/closing tags."
	}
	if res := templateBalance(m[1]); res != Valid {
		return res
	}
	s := vueScript.FindStringSubmatch(content)
	if s == nil {
		return "Script part has no valid open/closing tags."
	}
	return Brackets(s[1])
}

func checkTSX(content string) string {
	if res := templateBalance(content); res != Valid {
		return res
	}
	return Brackets(content)
}

func templateBalance(code string) string {
	for _, tag := range templateTags {
		if res := tagBalance(code, "<"+tag, "</"+tag+">"); res != Valid {
			return res
		}
	}
	return Valid
}

// tagBalance counts open tags followed by space, '>' or newline against close tags.
func tagBalance(code, open, close string) string {
	count := 0
	for i := 0; i < len(code); {
		switch {
		case strings.HasPrefix(code[i:], open) && i+len(open) < len(code) && strings.ContainsRune(" >\n", rune(code[i+len(open)])):
			count++
			i += len(open)
		case strings.HasPrefix(code[i:], close):
			count--
			i += len(close)
			if count < 0 {
				return fmt.Sprintf("Invalid syntax, mismatch of %s and %s", open, close)
			}
		default:
			i++
		}
	}
	if count != 0 {
		return fmt.Sprintf("Invalid syntax, mismatch of %s and %s", open, close)
	}
	return Valid
}

// Brackets checks that (), [] and {} each balance independently.
func Brackets(code string) string {
	for _, pair := range [][2]rune{{'(', ')'}, {'[', ']'}, {'{', '}'}} {
		count := 0
		for _, c := range code {
			switch c {
			case pair[0]:
				count++
			case pair[1]:
				count--
			}
			if count < 0 {
				break
			}
		}
		if count != 0 {
			return fmt.Sprintf("Invalid syntax, mismatch of %c and %c", pair[0], pair[1])
		}
	}
	return Valid
}
