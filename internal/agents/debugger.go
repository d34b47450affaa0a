package agents

import (
	"context"
	"fmt"

	"github.com/vinayprograms/coder/internal/anomaly"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
	"github.com/vinayprograms/coder/internal/graph"
	"github.com/vinayprograms/coder/internal/tools"
	"github.com/vinayprograms/coder/internal/verify"
)

// DebuggerFinal is the debugger's terminal tool.
const DebuggerFinal = "final_response_debugger"

// Debugger fixes what the human, the linters or the running program reported.
type Debugger struct {
	Env
	Model graph.Model
	Limit int
	// Gate verifies every completion declaration; Logs enables check_log.
	Gate *verify.Gate
	Logs verify.LogFetcher
}

// DebugInput is what the debugger starts from.
type DebugInput struct {
	Task     string
	Plan     string
	Feedback string
	Images   []string
	// Screenshots is an initial capture result, inserted when non-empty.
	Screenshots *conversation.Message
}

// Do runs the debugger over set until the human accepts.
func (d *Debugger) Do(ctx context.Context, in DebugInput, set *files.Set) (*graph.AgentState, error) {
	d.banner("Debugger starting its work", "Need to improve your code? I can help!")

	limit := d.Limit
	if limit <= 0 {
		limit = graph.DefaultLimit
	}
	gate := d.human(false)
	opts := tools.Options{Final: testInstructionTool(DebuggerFinal), Searcher: d.Searcher}
	if gate != nil {
		opts.Asker = gate
	}
	exec, err := graph.New(graph.Config{
		Name:          "debugger",
		Model:         d.Model,
		Tools:         tools.NewDispatcher(set, opts),
		Anomaly:       anomaly.Options{Window: d.Window},
		Limit:         limit,
		Logs:          d.Logs,
		Gate:          d.Gate,
		Human:         gate,
		FeedbackLogs:  d.Gate != nil && d.Gate.EntryFile != "",
		SnapshotFiles: true,
		Events:        d.Events,
		Checkpoints:   d.Checkpoints,
		SessionID:     d.SessionID,
	})
	if err != nil {
		return nil, err
	}

	tree, err := files.Tree(d.WorkDir, ".", 0)
	if err != nil {
		return nil, fmt.Errorf("debugging: %w", err)
	}
	s := graph.NewState(set,
		conversation.System(fmt.Sprintf(debuggerPrompt, readRules(d.WorkDir))),
		conversation.Human(fmt.Sprintf("Task: %s\n\n######\n\nPlan which developer implemented already:\n\n%s", in.Task, in.Plan)),
		conversation.Human(tree),
		conversation.Human(set.Snapshot(), conversation.TagFileSnapshot),
		conversation.Human("Human feedback: "+in.Feedback),
	)
	if img, ok := imageMessage(d.WorkDir, in.Images); ok {
		s.Conversation.Append(img)
	}
	if in.Screenshots != nil {
		verify.InsertCapture(s.Conversation, *in.Screenshots)
	}

	s, err = exec.Run(ctx, s)
	if err != nil {
		return s, fmt.Errorf("debugging: %w", err)
	}
	return s, nil
}
