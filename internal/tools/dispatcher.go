package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/coder/internal/conversation"
	"github.com/vinayprograms/coder/internal/files"
)

// Searcher answers semantic_query calls.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Asker answers ask_human calls.
type Asker interface {
	Ask(ctx context.Context, question string) (string, error)
}

// FinalTool describes an agent's terminal-signal tool.
type FinalTool struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

// Result describes the effect of a dispatched call.
type Result struct {
	Kind     Kind
	Executed bool   // false when the content carries the not-executed marker
	Failed   bool   // handler error or not executed
	Path     string // file touched, if any
	Final    bool
}

// Options configures a Dispatcher.
type Options struct {
	Final    FinalTool
	Searcher Searcher // nil disables semantic_query
	Asker    Asker    // nil disables ask_human
	ReadOnly bool     // registers only the non-mutating tools
}

type handler func(ctx context.Context, args map[string]interface{}) (string, Result, error)

// Dispatcher maps tool calls to handlers over the file set.
type Dispatcher struct {
	files    *files.Set
	opts     Options
	kinds    map[string]Kind
	handlers map[Kind]handler
	logger   *logging.Logger
}

// NewDispatcher creates a dispatcher over the given file set.
func NewDispatcher(set *files.Set, opts Options) *Dispatcher {
	d := &Dispatcher{
		files:    set,
		opts:     opts,
		kinds:    make(map[string]Kind),
		handlers: make(map[Kind]handler),
		logger:   logging.New().WithComponent("tools"),
	}

	d.register(KindListDir, d.listDir)
	d.register(KindSeeFile, d.seeFile)
	if !opts.ReadOnly {
		d.register(KindReplaceCode, d.replaceCode)
		d.register(KindInsertCode, d.insertCode)
		d.register(KindCreateFile, d.createFile)
	}
	if opts.Searcher != nil {
		d.register(KindSemanticQuery, d.semanticQuery)
	}
	if opts.Asker != nil {
		d.register(KindAskHuman, d.askHuman)
	}
	if opts.Final.Name != "" {
		d.kinds[opts.Final.Name] = KindFinal
		d.handlers[KindFinal] = d.final
	}
	return d
}

func (d *Dispatcher) register(k Kind, h handler) {
	d.kinds[k.String()] = k
	d.handlers[k] = h
}

// Files returns the file set the dispatcher edits.
func (d *Dispatcher) Files() *files.Set {
	return d.files
}

// FinalName returns the name of the terminal tool.
func (d *Dispatcher) FinalName() string {
	return d.opts.Final.Name
}

// Lookup resolves a tool name to its kind.
func (d *Dispatcher) Lookup(name string) (Kind, bool) {
	k, ok := d.kinds[name]
	return k, ok
}

// Dispatch executes one tool call and returns the tool message answering it.
// Unknown tools return a *ProtocolError; handler failures are reported in the
// message content and Result, not as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, call conversation.ToolCall) (conversation.Message, Result, error) {
	kind, ok := d.kinds[call.Name]
	if !ok {
		return conversation.Message{}, Result{}, &ProtocolError{Tool: call.Name, CallID: call.ID, Reason: "unknown tool"}
	}

	start := time.Now()
	args := call.Args
	if args == nil {
		args = map[string]interface{}{}
	}

	content, res, err := d.handlers[kind](ctx, args)
	res.Kind = kind
	if err != nil {
		content = fmt.Sprintf("Error: %v", err)
		res.Failed = true
	} else if IsNotExecuted(content) {
		res.Failed = true
	} else {
		res.Executed = true
	}

	d.logger.Info("tool_dispatch", map[string]interface{}{
		"tool":        call.Name,
		"call_id":     call.ID,
		"executed":    res.Executed,
		"failed":      res.Failed,
		"path":        res.Path,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return conversation.ToolResult(call.ID, content), res, nil
}

// Definitions returns the model-facing definitions of the registered tools.
func (d *Dispatcher) Definitions() []llm.ToolDef {
	var defs []llm.ToolDef
	for _, k := range []Kind{KindListDir, KindSeeFile, KindReplaceCode, KindInsertCode, KindCreateFile, KindSemanticQuery, KindAskHuman} {
		if _, ok := d.handlers[k]; !ok {
			continue
		}
		spec := builtinSpecs[k]
		defs = append(defs, llm.ToolDef{
			Name:        k.String(),
			Description: spec.description,
			Parameters:  spec.schema(),
		})
	}
	if d.opts.Final.Name != "" {
		params := d.opts.Final.Parameters
		if params == nil {
			params = objectSchema(nil, nil)
		}
		defs = append(defs, llm.ToolDef{
			Name:        d.opts.Final.Name,
			Description: d.opts.Final.Description,
			Parameters:  params,
		})
	}
	return defs
}
