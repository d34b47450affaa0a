package agents

import (
	"context"
	"fmt"

	"github.com/vinayprograms/coder/internal/anomaly"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
	"github.com/vinayprograms/coder/internal/graph"
	"github.com/vinayprograms/coder/internal/tools"
)

// ExecutorFinal is the executor's terminal tool.
const ExecutorFinal = "final_response_executor"

// Executor implements an accepted plan. Checking the result is left to the
// caller, which decides whether the debugger needs to run.
type Executor struct {
	Env
	Model graph.Model
	Limit int
}

// Do applies plan to the files in set and returns the final state.
func (e *Executor) Do(ctx context.Context, task, plan string, set *files.Set) (*graph.AgentState, error) {
	e.banner("Executor starting its work", "Implementing the accepted plan.")

	limit := e.Limit
	if limit <= 0 {
		limit = graph.DefaultLimit
	}
	opts := tools.Options{Final: testInstructionTool(ExecutorFinal), Searcher: e.Searcher}
	gate := e.human(false)
	if gate != nil {
		opts.Asker = gate
	}
	exec, err := graph.New(graph.Config{
		Name:          "executor",
		Model:         e.Model,
		Tools:         tools.NewDispatcher(set, opts),
		Anomaly:       anomaly.Options{Window: e.Window, SingleCall: true, DropExtras: e.DropExtras},
		Limit:         limit,
		Help:          gate, // loops reach the human; there is no acceptance gate
		SnapshotFiles: true,
		Events:        e.Events,
		Checkpoints:   e.Checkpoints,
		SessionID:     e.SessionID,
	})
	if err != nil {
		return nil, err
	}

	tree, err := files.Tree(e.WorkDir, ".", 0)
	if err != nil {
		return nil, fmt.Errorf("execution: %w", err)
	}
	s := graph.NewState(set,
		conversation.System(fmt.Sprintf(executorPrompt, readRules(e.WorkDir))),
		conversation.Human(fmt.Sprintf("Task: %s\n\n######\n\nPlan:\n\n%s", task, plan)),
		conversation.Human(tree),
		conversation.Human(set.Snapshot(), conversation.TagFileSnapshot),
	)
	s, err = exec.Run(ctx, s)
	if err != nil {
		return s, fmt.Errorf("execution: %w", err)
	}
	return s, nil
}
