// Package agents wires the task graph into the four coding roles:
// researcher, planner, executor and debugger.
package agents

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/vinayprograms/coder/internal/checkpoint"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
	"github.com/vinayprograms/coder/internal/human"
	"github.com/vinayprograms/coder/internal/session"
	"github.com/vinayprograms/coder/internal/tools"
)

// RulesFile holds project rules appended to every system prompt.
const RulesFile = ".coder/.coderrules"

// Env is what every agent shares within one run.
type Env struct {
	WorkDir     string
	Prompter    human.Prompter
	Searcher    tools.Searcher // nil disables semantic_query
	Events      session.Sink
	Checkpoints *checkpoint.Store
	SessionID   string
	Window      int  // loop detection window
	DropExtras  bool // executor keeps the terminal call of a batched turn
	Out         io.Writer
	Width       int
}

func (e Env) out() io.Writer {
	if e.Out == nil {
		return io.Discard
	}
	return e.Out
}

func (e Env) width() int {
	if e.Width <= 0 {
		return 100
	}
	return e.Width
}

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10")) // Green

	greetingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")) // Blue

	planStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

func (e Env) banner(title, greeting string) {
	fmt.Fprintln(e.out(), bannerStyle.Render(title))
	if greeting != "" {
		fmt.Fprintln(e.out(), greetingStyle.Render(greeting))
	}
}

func (e Env) printPlan(title, plan string) {
	fmt.Fprintln(e.out(), greetingStyle.Render(title))
	fmt.Fprintln(e.out(), planStyle.Render(wordwrap.String(plan, e.width())))
}

func (e Env) note(text string) {
	fmt.Fprintln(e.out(), noteStyle.Render(wordwrap.String(text, e.width())))
}

func (e Env) human(auto bool) *human.Gate {
	if e.Prompter == nil && !auto {
		return nil
	}
	g := human.NewGate(e.Prompter)
	g.Auto = auto
	return g
}

// readRules returns the project rules or a placeholder.
func readRules(workDir string) string {
	data, err := os.ReadFile(filepath.Join(workDir, RulesFile))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return "No special rules."
	}
	return strings.TrimSpace(string(data))
}

// fileContents renders tracked files for a prompt, numbered or raw.
func fileContents(set *files.Set, numbered bool) string {
	if numbered {
		return set.Snapshot()
	}
	var sb strings.Builder
	for _, r := range set.Records() {
		data, err := os.ReadFile(set.Abs(r.Path))
		if err != nil {
			sb.WriteString(fmt.Sprintf("\n%s:\n\n<file not readable: %v>\n", r.Path, err))
			continue
		}
		sb.WriteString(fmt.Sprintf("\n%s:\n\n%s\n", r.Path, data))
	}
	return sb.String()
}

// imageMessage loads template images into one human message. Unreadable
// images are listed by path only.
func imageMessage(workDir string, paths []string) (conversation.Message, bool) {
	if len(paths) == 0 {
		return conversation.Message{}, false
	}
	msg := conversation.Human("Template images:")
	for _, p := range paths {
		abs := p
		if !filepath.IsAbs(p) {
			abs = filepath.Join(workDir, p)
		}
		img := conversation.Image{Path: p, MediaType: mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))}
		if data, err := os.ReadFile(abs); err == nil {
			img.Data = data
		}
		msg.Images = append(msg.Images, img)
	}
	return msg, true
}

// stringList decodes a terminal-call argument that should be a list of
// strings. Models sometimes send a JSON-encoded array or a single string.
func stringList(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		var list []string
		if strings.HasPrefix(s, "[") && json.Unmarshal([]byte(s), &list) == nil {
			return list
		}
		return []string{s}
	}
	return nil
}

func arraySchema(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": desc,
	}
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	if required == nil {
		required = []string{}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// testInstructionTool is the terminal tool of the editing agents.
func testInstructionTool(name string) tools.FinalTool {
	return tools.FinalTool{
		Name:        name,
		Description: "Call that tool when all changes are implemented to tell the job is done.",
		Parameters: objectSchema(map[string]interface{}{
			"test_instruction": map[string]interface{}{
				"type":        "string",
				"description": "Detailed instructions for human to test implemented changes",
			},
		}, "test_instruction"),
	}
}
