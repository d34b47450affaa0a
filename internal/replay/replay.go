package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/vinayprograms/coder/internal/session"
)

// gutter indents detail lines under the timeline columns.
const gutter = "      │          │   "

// Replayer formats session events for inspection.
type Replayer struct {
	output         io.Writer
	verbosity      int // 0=normal, 1=-v, 2=-vv
	maxContentSize int
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithMaxContentSize limits how much of each content field is printed.
func WithMaxContentSize(size int) ReplayerOption {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// New creates a Replayer writing to output.
func New(output io.Writer, verbosity int, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 50 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads a JSONL session and prints its timeline.
func (r *Replayer) ReplayFile(path string) error {
	sess, err := session.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	return r.Replay(sess)
}

// Render returns the timeline of the session at path as a string.
func (r *Replayer) Render(path string) (string, error) {
	var buf strings.Builder
	out := r.output
	r.output = &buf
	defer func() { r.output = out }()
	if err := r.ReplayFile(path); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ReplayFileInteractive shows the timeline in a scrollable pager.
func (r *Replayer) ReplayFileInteractive(path string) error {
	content, err := r.Render(path)
	if err != nil {
		return err
	}
	return newPager(fmt.Sprintf("Session: %s", sessionName(path))).Run(content)
}

// ReplayFileLive shows the timeline and re-renders it whenever the file changes.
func (r *Replayer) ReplayFileLive(path string) error {
	render := func() (string, error) { return r.Render(path) }
	return newPager(fmt.Sprintf("Session: %s (LIVE)", sessionName(path))).RunLive(path, render)
}

// Replay prints the header, timeline and outcome of sess.
func (r *Replayer) Replay(sess *session.Session) error {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("SESSION"), valueStyle.Render(sess.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Task:    "), valueStyle.Render(truncate(sess.Task, 200)))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status:  "), statusStyle(sess.Status).Render(sess.Status))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created: "), valueStyle.Render(sess.CreatedAt.Format(time.RFC3339)))
	if agents := agentNames(sess.Events); len(agents) > 0 {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Agents:  "), valueStyle.Render(strings.Join(agents, ", ")))
	}
	fmt.Fprintln(r.output)

	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(sess.Events))))
	fmt.Fprintln(r.output, divider)

	var lastAgent string
	for i := range sess.Events {
		ev := &sess.Events[i]
		if ev.Agent != "" && ev.Agent != lastAgent {
			fmt.Fprintln(r.output)
			fmt.Fprintf(r.output, "%s\n", agentStyle.Render(strings.ToUpper(ev.Agent)))
			lastAgent = ev.Agent
		}
		r.formatEvent(ev)
	}

	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)
	switch sess.Status {
	case session.StatusComplete:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
	case session.StatusFailed:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("FAILED:"), valueStyle.Render(sess.Error))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}
	fmt.Fprintln(r.output)
	return nil
}

func (r *Replayer) formatEvent(ev *session.Event) {
	ts := timeStyle.Render(ev.Timestamp.Format("15:04:05"))
	seq := seqStyle.Render(fmt.Sprintf("%d", ev.SeqID))
	line := func(s string) { fmt.Fprintf(r.output, "%s │ %s │ %s\n", seq, ts, s) }

	switch ev.Type {
	case session.EventTaskStart:
		line(nodeStyle.Render("RUN START"))

	case session.EventTaskEnd:
		style, word := outcomeStyle(ev.Success)
		line(fmt.Sprintf("%s %s %s", nodeStyle.Render("RUN END"), style.Render(word), dimStyle.Render(fmt.Sprintf("(step %d)", ev.Step))))
		if ev.Error != "" {
			r.printError(ev.Error)
		}

	case session.EventNode:
		if r.verbosity >= 1 {
			line(dimStyle.Render(fmt.Sprintf("→ %s #%d", ev.Node, ev.Step)))
		}

	case session.EventModel:
		line(fmt.Sprintf("%s %s", modelStyle.Render("MODEL"), dimStyle.Render(fmt.Sprintf("(%dms)", ev.DurationMs))))
		if ev.Content != "" {
			if r.verbosity >= 1 {
				r.printContent(ev.Content)
			} else {
				fmt.Fprintf(r.output, "%s%s\n", gutter, dimStyle.Render(truncate(ev.Content, 100)))
			}
		}

	case session.EventToolCall:
		line(fmt.Sprintf("%s %s%s", toolStyle.Render("TOOL"), valueStyle.Render(ev.Tool), argsHint(ev.Args)))
		if r.verbosity >= 2 {
			r.printArgs(ev.Args)
		}

	case session.EventToolResult:
		style, word := outcomeStyle(ev.Success)
		line(fmt.Sprintf("%s %s %s %s", toolStyle.Render("RESULT"), valueStyle.Render(ev.Tool), style.Render(word),
			dimStyle.Render(fmt.Sprintf("(%dms)", ev.DurationMs))))
		if ev.Error != "" {
			r.printError(ev.Error)
		}
		if r.verbosity >= 1 && ev.Content != "" {
			r.printContent(ev.Content)
		}

	case session.EventAnomaly:
		line(fmt.Sprintf("%s %s", warnStyle.Render("ANOMALY"), valueStyle.Render(ev.Content)))

	case session.EventVerify:
		style, word := outcomeStyle(ev.Success)
		line(fmt.Sprintf("%s %s", nodeStyle.Render(strings.ToUpper(ev.Node)), style.Render(word)))
		if r.verbosity >= 1 && ev.Content != "" {
			r.printContent(ev.Content)
		}

	case session.EventHuman:
		label := "HUMAN"
		if ev.Success != nil {
			if *ev.Success {
				label += " " + successStyle.Render("accepted")
			} else {
				label += " " + warnStyle.Render("feedback")
			}
		}
		line(humanStyle.Render(label))
		if ev.Content != "" {
			r.printContent(ev.Content)
		}

	case session.EventCheckpoint:
		line(fmt.Sprintf("%s %s %s", dimStyle.Render("CHECKPOINT:"), valueStyle.Render(ev.Content), dimStyle.Render(ev.Node)))

	default:
		line(dimStyle.Render(ev.Type))
	}
}

func (r *Replayer) printContent(content string) {
	if r.maxContentSize > 0 && len(content) > r.maxContentSize {
		content = content[:r.maxContentSize] + fmt.Sprintf("\n... [truncated, %d bytes total]", len(content))
	}
	for _, l := range strings.Split(content, "\n") {
		fmt.Fprintf(r.output, "%s%s\n", gutter, l)
	}
}

func (r *Replayer) printArgs(args map[string]interface{}) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(r.output, "%s%s %v\n", gutter, labelStyle.Render(k+":"), args[k])
	}
}

func (r *Replayer) printError(err string) {
	fmt.Fprintf(r.output, "%s%s\n", gutter, errorStyle.Render(err))
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case session.StatusComplete:
		return successStyle
	case session.StatusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}

// argsHint shows the argument that identifies what a tool call touched.
func argsHint(args map[string]interface{}) string {
	for _, key := range []string{"filename", "directory", "query", "question"} {
		if v, ok := args[key].(string); ok && v != "" {
			return dimStyle.Render(fmt.Sprintf(" [%s]", truncate(v, 60)))
		}
	}
	return ""
}

func agentNames(events []session.Event) []string {
	var out []string
	seen := map[string]bool{}
	for _, ev := range events {
		if ev.Agent != "" && !seen[ev.Agent] {
			seen[ev.Agent] = true
			out = append(out, ev.Agent)
		}
	}
	return out
}

func sessionName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

// truncate shortens s to a single line of at most n bytes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
