// Package main provides runtime wiring for the agents.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"github.com/vinayprograms/coder/internal/agents"
	"github.com/vinayprograms/coder/internal/checkpoint"
	"github.com/vinayprograms/coder/internal/config"
	"github.com/vinayprograms/coder/internal/human"
	"github.com/vinayprograms/coder/internal/index"
	"github.com/vinayprograms/coder/internal/pipeline"
	"github.com/vinayprograms/coder/internal/session"
	"github.com/vinayprograms/coder/internal/verify"
)

// runtime holds everything one command invocation needs.
type runtime struct {
	cfg     *config.Config
	creds   *credentials.Credentials
	workDir string
	noIndex bool
	out     io.Writer
	logger  *logging.Logger

	// Components
	models      map[string]llm.Provider // by role
	byProfile   map[string]llm.Provider
	telem       telemetry.Exporter
	sess        *session.Session
	sessions    *session.FileStore
	sink        session.Sink
	checkpoints *checkpoint.Store
	idx         *index.Index
	prompter    human.Prompter

	closers []func()
}

// loadConfig resolves the work dir and reads its configuration. A relative
// agent.work_dir is taken relative to the config file.
func loadConfig(flags ProjectFlags) (*config.Config, string, error) {
	workDir := flags.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, "", err
	}

	var cfg *config.Config
	configDir := workDir
	if flags.Config != "" {
		cfg, err = config.LoadFile(flags.Config)
		if abs, aerr := filepath.Abs(flags.Config); aerr == nil {
			configDir = filepath.Dir(abs)
		}
	} else {
		cfg, err = config.LoadDefault(workDir)
	}
	if err != nil {
		return nil, "", fmt.Errorf("error loading config: %w", err)
	}
	if flags.WorkDir == "" && cfg.Agent.WorkDir != "" {
		workDir = resolve(configDir, config.ExpandHome(cfg.Agent.WorkDir))
	}
	return cfg, workDir, nil
}

func newRuntime(cfg *config.Config, workDir string, creds *credentials.Credentials) *runtime {
	return &runtime{
		cfg:     cfg,
		creds:   creds,
		workDir: workDir,
		out:     os.Stdout,
		logger:  logging.New().WithComponent("coder"),
		models:  make(map[string]llm.Provider),

		byProfile: make(map[string]llm.Provider),
	}
}

// setup initializes all runtime components. Returns error on failure.
func (rt *runtime) setup(task string) error {
	if err := os.MkdirAll(rt.cfg.StoragePath(), 0755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}
	for _, role := range []string{config.RoleResearcher, config.RolePlanner, config.RoleExecutor, config.RoleDebugger} {
		if err := rt.createProvider(role); err != nil {
			return err
		}
	}
	if err := rt.setupTelemetry(); err != nil {
		return err
	}
	if err := rt.setupSession(task); err != nil {
		return err
	}
	if err := rt.setupIndex(); err != nil {
		return err
	}
	rt.prompter = human.NewTerminal()
	return nil
}

// createProvider creates the LLM provider for an agent role. Roles sharing
// the default profile share one provider.
func (rt *runtime) createProvider(role string) error {
	lc := rt.cfg.GetProfile(role)
	if p, ok := rt.byProfile[profileKey(lc)]; ok {
		rt.models[role] = p
		return nil
	}

	provider := lc.Provider
	if provider == "" {
		provider = llm.InferProviderFromModel(lc.Model)
	}
	if provider == "" && lc.Model == "" {
		return fmt.Errorf("LLM model not configured for %s", role)
	}

	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider:    provider,
		Model:       lc.Model,
		APIKey:      apiKey(rt.creds, lc, provider),
		MaxTokens:   lc.MaxTokens,
		BaseURL:     lc.BaseURL,
		Thinking:    llm.ThinkingConfig{Level: llm.ThinkingLevel(lc.Thinking)},
		RetryConfig: parseRetryConfig(lc.MaxRetries, lc.RetryBackoff),
	})
	if err != nil {
		return fmt.Errorf("creating LLM provider for %s: %w", role, err)
	}
	rt.byProfile[profileKey(lc)] = p
	rt.models[role] = p
	return nil
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// setupSession opens the session log, checkpoint store and optional NATS mirror.
func (rt *runtime) setupSession(task string) error {
	var err error
	rt.sessions, err = session.NewFileStore(filepath.Join(rt.cfg.StoragePath(), "sessions"))
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	rt.checkpoints, err = checkpoint.NewStore(filepath.Join(rt.cfg.StoragePath(), "checkpoints"))
	if err != nil {
		return err
	}
	if err := rt.checkpoints.Load(); err != nil {
		rt.logger.Warn("checkpoint_load_failed", map[string]interface{}{"error": err.Error()})
	}

	rt.sess = session.New("coder", task)
	rt.sink = &persistingSink{sess: rt.sess, store: rt.sessions, logger: rt.logger}
	if url := rt.cfg.Events.NATSURL; url != "" {
		pub, err := session.NewPublisher(url, rt.cfg.Events.Subject, rt.sink)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		rt.sink = pub
		rt.addCloser(func() { pub.Close() })
	}
	return nil
}

// setupIndex opens and refreshes the search index.
func (rt *runtime) setupIndex() error {
	if rt.noIndex || !rt.cfg.Index.Enabled {
		return nil
	}
	idx, err := openIndex(rt.cfg, rt.workDir)
	if err != nil {
		return err
	}
	rt.idx = idx
	rt.addCloser(func() { idx.Close() })
	return nil
}

func openIndex(cfg *config.Config, workDir string) (*index.Index, error) {
	path := cfg.Index.Path
	if path == "" {
		path = filepath.Join(workDir, index.DefaultPath)
	}
	idx, err := index.Open(workDir, config.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	return idx, nil
}

// env is the environment every agent shares.
func (rt *runtime) env() agents.Env {
	e := agents.Env{
		WorkDir:     rt.workDir,
		Prompter:    rt.prompter,
		Events:      rt.sink,
		Checkpoints: rt.checkpoints,
		SessionID:   rt.sess.ID,
		Window:      rt.cfg.Limits.LoopWindow,
		DropExtras:  rt.cfg.Limits.DropExtraCalls,
		Out:         rt.out,
	}
	if rt.idx != nil {
		e.Searcher = rt.idx
	}
	return e
}

func (rt *runtime) researcher() *agents.Researcher {
	return &agents.Researcher{
		Env:    rt.env(),
		Model:  rt.models[config.RoleResearcher],
		Limit:  rt.cfg.Limits.Research,
		Silent: rt.cfg.Agent.Silent,
	}
}

// pipeline assembles the agents and verification collaborators.
func (rt *runtime) pipeline() (*pipeline.Pipeline, error) {
	env := rt.env()
	vc := rt.cfg.Verify

	var analyzer verify.StaticAnalyzer
	if len(vc.Linters) > 0 {
		linters := make(map[string]verify.Linter, len(vc.Linters))
		for ext, l := range vc.Linters {
			linters["."+strings.TrimPrefix(strings.ToLower(ext), ".")] = verify.Linter{Command: l.Command, PassMarker: l.PassMarker}
		}
		analyzer = &verify.CommandAnalyzer{WorkDir: rt.workDir, Linters: linters}
	}

	timeout, err := parseTimeout(vc.Timeout)
	if err != nil {
		return nil, err
	}
	runner := &verify.ExecRunner{Interpreter: strings.Fields(vc.Interpreter), Timeout: timeout}

	gate := &verify.Gate{
		Analyzer:     analyzer,
		AnalyzeExts:  rt.cfg.LintedExts(),
		Runner:       runner,
		EntryFile:    vc.ExecuteFile,
		FailOnStderr: vc.FailOnStderr,
	}
	debugger := &agents.Debugger{
		Env:   env,
		Model: rt.models[config.RoleDebugger],
		Limit: rt.cfg.Limits.Debug,
		Gate:  gate,
	}
	if vc.LogFile != "" {
		debugger.Logs = &verify.FileLogFetcher{Path: resolve(rt.workDir, vc.LogFile)}
	}

	p := &pipeline.Pipeline{
		Researcher: rt.researcher(),
		Planner: &agents.Planner{
			Env:       env,
			Model:     rt.models[config.RolePlanner],
			Proposals: rt.cfg.Planner.Proposals,
			Limit:     rt.cfg.Limits.Plan,
		},
		Executor: &agents.Executor{
			Env:   env,
			Model: rt.models[config.RoleExecutor],
			Limit: rt.cfg.Limits.Execute,
		},
		Debugger:    debugger,
		Analyzer:    analyzer,
		AnalyzeExts: rt.cfg.LintedExts(),
		Runner:      runner,
		EntryFile:   vc.ExecuteFile,
		Prompter:    rt.prompter,
		Out:         rt.out,
	}
	if rt.idx != nil {
		p.Index = rt.idx
	}
	if vc.FrontendURL != "" && vc.Screenshot != "" {
		p.Capture = &agents.CaptureWriter{Model: rt.models[config.RoleExecutor], URL: vc.FrontendURL}
		p.Capturer = &verify.CommandCapturer{
			Command: strings.Fields(vc.Screenshot),
			OutDir:  filepath.Join(rt.workDir, ".coder", "screenshots"),
		}
	}
	return p, nil
}

// finish closes the session and stores it.
func (rt *runtime) finish(result string, err error) {
	if rt.sess == nil {
		return
	}
	rt.sess.Finish(result, err)
	if serr := rt.sessions.Save(rt.sess); serr != nil {
		rt.logger.Warn("session_save_failed", map[string]interface{}{"error": serr.Error()})
		return
	}
	fmt.Fprintf(rt.out, "Session saved: %s\n", rt.sessions.Path(rt.sess.ID))
}

// cleanup runs all registered cleanup functions in reverse order.
func (rt *runtime) cleanup() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// addCloser registers a cleanup function.
func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}

// persistingSink records events and rewrites the session file after each one
// so a running session can be followed with `coder replay -f`.
type persistingSink struct {
	mu     sync.Mutex
	sess   *session.Session
	store  *session.FileStore
	logger *logging.Logger
}

func (p *persistingSink) AddEvent(ev session.Event) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	seq := p.sess.AddEvent(ev)
	if err := p.store.Save(p.sess); err != nil {
		p.logger.Debug("session_flush_failed", map[string]interface{}{"error": err.Error()})
	}
	return seq
}

// Run executes the run command.
func (c *RunCmd) Run(ctx context.Context) error {
	cfg, workDir, err := loadConfig(c.ProjectFlags)
	if err != nil {
		return err
	}
	if c.Silent {
		cfg.Agent.Silent = true
	}
	rt := newRuntime(cfg, workDir, globalCreds)
	rt.noIndex = c.NoIndex
	defer rt.cleanup()
	if err := rt.setup(c.Task); err != nil {
		return err
	}
	if rt.idx != nil {
		if _, err := rt.idx.Build(ctx); err != nil {
			rt.logger.Warn("index_build_failed", map[string]interface{}{"error": err.Error()})
		}
	}

	p, err := rt.pipeline()
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := p.Run(ctx, c.Task)
	summary := ""
	if res != nil {
		summary = fmt.Sprintf("plan accepted, %d files tracked, debugged=%t", len(res.Files.Paths()), res.Debugged)
	}
	rt.finish(summary, err)
	rt.logger.Info("run_finished", map[string]interface{}{"duration_ms": time.Since(start).Milliseconds(), "ok": err == nil})
	return err
}

// Run executes the research command.
func (c *ResearchCmd) Run(ctx context.Context) error {
	cfg, workDir, err := loadConfig(c.ProjectFlags)
	if err != nil {
		return err
	}
	rt := newRuntime(cfg, workDir, globalCreds)
	rt.noIndex = c.NoIndex
	defer rt.cleanup()
	if err := rt.setup(c.Task); err != nil {
		return err
	}

	res, err := rt.researcher().Research(ctx, c.Task)
	if err != nil {
		rt.finish("", err)
		return err
	}
	fmt.Fprint(rt.out, formatResearch(res))
	rt.finish(strings.Join(res.WorkOn, ", "), nil)
	return nil
}

// Run executes the index command.
func (c *IndexCmd) Run(ctx context.Context) error {
	cfg, workDir, err := loadConfig(c.ProjectFlags)
	if err != nil {
		return err
	}
	idx, err := openIndex(cfg, workDir)
	if err != nil {
		return err
	}
	defer idx.Close()

	n, err := idx.Build(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d files in %s\n", n, workDir)
	if !c.Watch {
		return nil
	}

	w, err := index.NewWatcher(idx)
	if err != nil {
		return err
	}
	defer w.Close()
	w.OnChange = func(rel string, removed bool) {
		if removed {
			fmt.Printf("removed %s\n", rel)
		} else {
			fmt.Printf("indexed %s\n", rel)
		}
	}
	fmt.Println("Watching for changes, press Ctrl+C to stop.")
	return w.Run(ctx)
}
