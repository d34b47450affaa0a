package graph

import (
	"errors"

	"github.com/vinayprograms/coder/internal/checkpoint"
	"github.com/vinayprograms/coder/internal/session"
)

func (e *Executor) emit(ev session.Event) {
	if e.cfg.Events == nil {
		return
	}
	ev.Agent = e.cfg.Name
	e.cfg.Events.AddEvent(ev)
}

// saveCheckpoint records where the run stopped. Failures are logged only.
func (e *Executor) saveCheckpoint(s *AgentState, status checkpoint.Status, runErr error) {
	if e.cfg.Checkpoints == nil {
		return
	}
	cp := &checkpoint.Checkpoint{
		SessionID: e.cfg.SessionID,
		Agent:     e.cfg.Name,
		Status:    status,
		Node:      string(s.Node),
		Step:      s.Step,
		Limit:     e.cfg.Limit,
		Stdout:    s.Stdout,
		Stderr:    s.Stderr,
		Messages:  s.Conversation.Len(),
	}
	var rle *RecursionLimitExceeded
	if runErr != nil {
		cp.Error = runErr.Error()
		if errors.As(runErr, &rle) {
			cp.Node = string(rle.Node)
		}
	}
	if s.Files != nil {
		for _, r := range s.Files.Records() {
			cp.Files = append(cp.Files, checkpoint.FileState{Path: r.Path, Modified: r.Modified})
		}
	}
	if s.Final != nil {
		cp.Final = make(map[string]string, len(s.Final.Args))
		for k := range s.Final.Args {
			cp.Final[k] = s.FinalArg(k)
		}
	}

	if err := e.cfg.Checkpoints.Save(cp); err != nil {
		e.logger.Warn("checkpoint_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	e.emit(session.Event{Type: session.EventCheckpoint, Node: cp.Node, Step: cp.Step, Content: cp.ID})
}
