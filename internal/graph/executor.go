package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/coder/internal/anomaly"
	"github.com/vinayprograms/coder/internal/checkpoint"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/human"
	"github.com/vinayprograms/coder/internal/session"
	"github.com/vinayprograms/coder/internal/tools"
	"github.com/vinayprograms/coder/internal/verify"
)

// Default recursion limits.
const (
	DefaultLimit         = 150
	DefaultResearchLimit = 100
	DefaultPlanLimit     = 50
)

// Model is the LLM boundary. llm.Provider satisfies it.
type Model interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// TurnFunc produces the ai message for one agent step.
type TurnFunc func(ctx context.Context, s *AgentState) (conversation.Message, error)

// Config describes one agent graph.
type Config struct {
	Name  string
	Model Model
	// Turn overrides the default single model call.
	Turn  TurnFunc
	Tools *tools.Dispatcher
	// TextMode treats any reply as the completion declaration; no tools are offered.
	TextMode bool
	Anomaly  anomaly.Options
	Limit    int

	// Optional nodes. A nil value leaves the node out of the graph.
	Logs  verify.LogFetcher
	Gate  *verify.Gate
	Human *human.Gate
	// Help handles loop escalation. Human is used when nil and it has a
	// prompter; without either the failing history goes back to the model.
	Help *human.Gate
	// FeedbackLogs appends captured script output to human feedback.
	FeedbackLogs bool
	// SnapshotFiles replaces the file snapshot message after every agent turn.
	SnapshotFiles bool

	Events      session.Sink
	Checkpoints *checkpoint.Store
	SessionID   string
}

// Executor runs one agent graph.
type Executor struct {
	cfg    Config
	routes routes
	logger *logging.Logger
}

// New validates cfg and creates an executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Model == nil && cfg.Turn == nil {
		return nil, errors.New("graph: model or turn function required")
	}
	if cfg.Tools == nil && !cfg.TextMode {
		return nil, errors.New("graph: tool dispatcher required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Name == "" {
		cfg.Name = "agent"
	}
	if cfg.Help == nil && cfg.Human != nil && cfg.Human.Prompter != nil {
		cfg.Help = cfg.Human
	}
	return &Executor{
		cfg: cfg,
		routes: routes{
			checkLog:  cfg.Logs != nil,
			verify:    cfg.Gate.Configured(),
			humanGate: cfg.Human != nil,
		},
		logger: logging.New().WithComponent("graph"),
	}, nil
}

// Limit returns the recursion limit.
func (e *Executor) Limit() int {
	return e.cfg.Limit
}

// run is the per-invocation scratch the nodes share.
type run struct {
	state    *AgentState
	detector *anomaly.Detector
	looped   bool
	logsOK   bool
	passed   bool
	accepted bool
}

// Run drives the graph from the agent node until done. A
// *RecursionLimitExceeded or model error aborts the run; the returned state
// is the partial state in both cases.
func (e *Executor) Run(ctx context.Context, s *AgentState) (*AgentState, error) {
	ctx, span := e.startRunSpan(ctx)
	r := &run{state: s, detector: anomaly.New(e.cfg.Anomaly)}
	if s.Node == "" || s.Node == NodeDone {
		s.Node = NodeAgent
	}
	e.emit(session.Event{Type: session.EventTaskStart, Node: string(s.Node)})

	err := e.loop(ctx, r)

	status := checkpoint.StatusDone
	if err != nil {
		status = checkpoint.StatusAborted
		e.logger.Error("run_aborted", map[string]interface{}{
			"agent": e.cfg.Name,
			"step":  s.Step,
			"node":  string(s.Node),
			"error": err.Error(),
		})
	}
	e.saveCheckpoint(s, status, err)
	end := session.Event{Type: session.EventTaskEnd, Node: string(s.Node), Step: s.Step, Success: session.Bool(err == nil)}
	if err != nil {
		end.Error = err.Error()
	}
	e.emit(end)
	e.endRunSpan(span, s, err)
	return s, err
}

func (e *Executor) loop(ctx context.Context, r *run) error {
	s := r.state
	for s.Node != NodeDone {
		if s.Step >= e.cfg.Limit {
			return &RecursionLimitExceeded{Limit: e.cfg.Limit, Node: s.Node, State: s}
		}
		s.Step++

		node := s.Node
		e.emit(session.Event{Type: session.EventNode, Node: string(node), Step: s.Step})
		nctx, span := e.startNodeSpan(ctx, node, s.Step)
		next, err := e.step(nctx, r, node)
		e.endNodeSpan(span, next, err)
		if err != nil {
			return err
		}
		if !Allowed(node, next) {
			return fmt.Errorf("graph: undefined transition %s -> %s", node, next)
		}
		e.logger.Debug("transition", map[string]interface{}{
			"agent": e.cfg.Name,
			"step":  s.Step,
			"from":  string(node),
			"to":    string(next),
		})
		s.Node = next
	}
	return nil
}

// step executes one node and returns the node to run next.
func (e *Executor) step(ctx context.Context, r *run, node Node) (Node, error) {
	switch node {
	case NodeAgent:
		if err := e.agentNode(ctx, r); err != nil {
			return node, err
		}
		return e.routes.afterAgent(r.looped, r.state.turnFinal), nil
	case NodeCheckLog:
		if err := e.checkLogNode(ctx, r); err != nil {
			return node, err
		}
		return e.routes.afterCheckLog(r.logsOK), nil
	case NodeVerify:
		if err := e.verifyNode(ctx, r); err != nil {
			return node, err
		}
		return e.routes.afterVerify(r.passed), nil
	case NodeHumanGate:
		if err := e.humanGateNode(ctx, r); err != nil {
			return node, err
		}
		return e.routes.afterHumanGate(r.accepted), nil
	case NodeHumanHelp:
		if err := e.humanHelpNode(ctx, r); err != nil {
			return node, err
		}
		return e.routes.afterHumanHelp(), nil
	}
	return node, fmt.Errorf("graph: unknown node %q", node)
}

// agentNode runs one model turn, vets it and dispatches its calls.
func (e *Executor) agentNode(ctx context.Context, r *run) error {
	s := r.state
	s.turnFinal = false
	r.looped = false

	start := time.Now()
	msg, err := e.turn(ctx, s)
	if err != nil {
		return fmt.Errorf("model call at step %d: %w", s.Step, err)
	}
	msg.Role = conversation.RoleAI
	s.Conversation.Append(msg)
	s.Answer = msg.Content
	e.emit(session.Event{
		Type:       session.EventModel,
		Node:       string(NodeAgent),
		Step:       s.Step,
		Content:    msg.Content,
		DurationMs: time.Since(start).Milliseconds(),
	})

	if e.cfg.TextMode {
		s.turnFinal = true
		return nil
	}

	finalName := e.cfg.Tools.FinalName()
	ins := r.detector.Inspect(msg, finalName)
	if ins.Verdict != anomaly.Proceed {
		for _, m := range ins.Messages {
			s.Conversation.Append(m)
		}
		e.emit(session.Event{Type: session.EventAnomaly, Step: s.Step, Content: ins.Verdict.String()})
		e.logger.Warn("bad_turn", map[string]interface{}{"agent": e.cfg.Name, "verdict": ins.Verdict.String(), "calls": len(msg.ToolCalls)})
		return e.exchangeSnapshot(s)
	}
	if ins.Dropped > 0 {
		// Dropped calls still need an answer on the wire.
		kept := ins.Calls[0].ID
		for _, c := range msg.ToolCalls {
			if c.ID != kept {
				s.Conversation.Append(conversation.ToolResult(c.ID, tools.NotExecuted+"dropped in favor of "+finalName))
			}
		}
		e.emit(session.Event{Type: session.EventAnomaly, Step: s.Step, Content: fmt.Sprintf("dropped %d extra calls", ins.Dropped)})
	}

	var corrective []conversation.Message
	for _, call := range ins.Calls {
		e.emit(session.Event{Type: session.EventToolCall, Step: s.Step, Tool: call.Name, CallID: call.ID, Args: call.Args})
		callStart := time.Now()

		reply, res, err := e.cfg.Tools.Dispatch(ctx, call)
		var perr *tools.ProtocolError
		switch {
		case errors.As(err, &perr):
			reply = conversation.ToolResult(call.ID, "Error: "+perr.Error())
			res = tools.Result{Failed: true}
			corrective = append(corrective, conversation.Human(fmt.Sprintf("Tool %q does not exist. Use only the provided tools.", call.Name)))
		case err != nil:
			return fmt.Errorf("dispatch %s: %w", call.Name, err)
		}

		s.Conversation.Append(reply)
		r.detector.Record(call, res.Failed)
		e.emit(session.Event{
			Type:       session.EventToolResult,
			Step:       s.Step,
			Tool:       call.Name,
			CallID:     call.ID,
			Content:    reply.Content,
			Success:    session.Bool(!res.Failed),
			DurationMs: time.Since(callStart).Milliseconds(),
		})

		if res.Final {
			c := call
			s.Final = &c
			s.turnFinal = true
		}
	}
	for _, m := range corrective {
		s.Conversation.Append(m)
	}

	if r.detector.Looped() {
		r.looped = true
		e.emit(session.Event{Type: session.EventAnomaly, Step: s.Step, Content: "loop_detected"})
		e.logger.Warn("loop_detected", map[string]interface{}{"agent": e.cfg.Name, "window": r.detector.Window()})
	}
	return e.exchangeSnapshot(s)
}

func (e *Executor) turn(ctx context.Context, s *AgentState) (conversation.Message, error) {
	if e.cfg.Turn != nil {
		return e.cfg.Turn(ctx, s)
	}
	req := llm.ChatRequest{Messages: s.Conversation.ToLLM()}
	if e.cfg.Tools != nil && !e.cfg.TextMode {
		req.Tools = e.cfg.Tools.Definitions()
	}
	resp, err := e.cfg.Model.Chat(ctx, req)
	if err != nil {
		return conversation.Message{}, err
	}
	return conversation.FromResponse(resp), nil
}

// exchangeSnapshot swaps the file snapshot message for a fresh one.
func (e *Executor) exchangeSnapshot(s *AgentState) error {
	if !e.cfg.SnapshotFiles || s.Files == nil {
		return nil
	}
	s.Conversation.PurgeTagged(conversation.TagFileSnapshot)
	s.Conversation.Append(conversation.Human(s.Files.Snapshot(), conversation.TagFileSnapshot))
	return nil
}

func (e *Executor) checkLogNode(ctx context.Context, r *run) error {
	logs, err := e.cfg.Logs.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("check_log: %w", err)
	}
	r.state.Conversation.Append(conversation.Human("Logs:\n" + logs))
	r.logsOK = verify.LogsOK(logs)
	e.emit(session.Event{Type: session.EventVerify, Node: string(NodeCheckLog), Step: r.state.Step, Success: session.Bool(r.logsOK)})
	return nil
}

func (e *Executor) verifyNode(ctx context.Context, r *run) error {
	s := r.state
	out, err := e.cfg.Gate.Run(ctx, s.Conversation, s.Files)
	if err != nil {
		return err
	}
	for _, st := range out.Ran {
		if st == verify.StepScript {
			s.Stdout, s.Stderr = out.Stdout, out.Stderr
		}
	}
	r.passed = out.Passed
	ev := session.Event{Type: session.EventVerify, Node: string(NodeVerify), Step: s.Step, Success: session.Bool(out.Passed)}
	if !out.Passed {
		ev.Content = fmt.Sprintf("failed: %v", out.Failed)
		e.logger.Info("verify_failed", map[string]interface{}{"agent": e.cfg.Name, "failed": fmt.Sprintf("%v", out.Failed)})
	}
	e.emit(ev)
	return nil
}

func (e *Executor) humanGateNode(ctx context.Context, r *run) error {
	s := r.state
	logs := ""
	if e.cfg.FeedbackLogs {
		logs = verify.FormatLog(s.Stdout, s.Stderr)
	}
	accepted, err := e.cfg.Human.Confirm(ctx, s.Conversation, logs)
	if err != nil {
		return err
	}
	r.accepted = accepted
	last, _ := s.Conversation.Last()
	e.emit(session.Event{Type: session.EventHuman, Node: string(NodeHumanGate), Step: s.Step, Content: last.Content, Success: session.Bool(accepted)})
	return nil
}

// humanHelpNode surfaces the failing call history. Without a human the
// history is fed back to the model instead.
func (e *Executor) humanHelpNode(ctx context.Context, r *run) error {
	s := r.state
	problem := r.detector.Describe()
	if e.cfg.Help != nil && e.cfg.Help.Prompter != nil {
		if err := e.cfg.Help.Help(ctx, s.Conversation, problem); err != nil {
			return err
		}
	} else {
		s.Conversation.Append(conversation.Human(problem + "\nStop repeating this call. Inspect the file again and try a different approach."))
	}
	r.detector.Reset()
	r.looped = false
	e.emit(session.Event{Type: session.EventHuman, Node: string(NodeHumanHelp), Step: s.Step, Content: problem})
	return nil
}
