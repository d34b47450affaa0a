package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/graph"
)

// CaptureWriter writes the screenshot script for a task. It runs alongside
// the executor and must not touch project files.
type CaptureWriter struct {
	Model    graph.Model
	URL      string
	Language string // e.g. "Node.js playwright"
}

var codeBlockRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

// extractCode returns the first fenced code block, or the whole reply.
func extractCode(reply string) string {
	if m := codeBlockRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}

// Write asks the model for the capture script.
func (w *CaptureWriter) Write(ctx context.Context, task, plan string) (string, error) {
	lang := w.Language
	if lang == "" {
		lang = "Node.js playwright"
	}
	conv := conversation.New(
		conversation.System(fmt.Sprintf(capturePrompt, lang, w.URL)),
		conversation.Human(fmt.Sprintf("Task: %s\n\n######\n\nPlan:\n\n%s", task, plan)),
	)
	resp, err := w.Model.Chat(ctx, llm.ChatRequest{Messages: conv.ToLLM()})
	if err != nil {
		return "", fmt.Errorf("capture code: %w", err)
	}
	code := extractCode(resp.Content)
	if code == "" {
		return "", fmt.Errorf("capture code: empty reply")
	}
	return code, nil
}
