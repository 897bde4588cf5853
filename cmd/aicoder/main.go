// Package main is the entry point for the aicoder CLI: an interactive,
// terminal-based AI coding assistant built around an agentic control loop
// (see internal/conversation.Loop).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aicoder-go/aicoder/internal/api"
	"github.com/aicoder-go/aicoder/internal/approval"
	"github.com/aicoder-go/aicoder/internal/config"
	"github.com/aicoder-go/aicoder/internal/conversation"
	"github.com/aicoder-go/aicoder/internal/hooks"
	"github.com/aicoder-go/aicoder/internal/mcp"
	"github.com/aicoder-go/aicoder/internal/session"
	"github.com/aicoder-go/aicoder/internal/stats"
	"github.com/aicoder-go/aicoder/internal/terminal"
	"github.com/aicoder-go/aicoder/internal/tools"
)

var version = "dev"

// cliOptions collects the flags accepted by the root command.
type cliOptions struct {
	model        string
	printMode    bool
	resumeID     string
	continueLast bool
	yolo         bool
	debug        bool
	outputFormat string
}

func main() {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:     "aicoder",
		Short:   "An interactive, terminal-based AI coding assistant",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args)
		},
	}

	root.Flags().StringVar(&opts.model, "model", "", "model ID to use (overrides AICODER_MODEL)")
	root.Flags().BoolVarP(&opts.printMode, "print", "p", false, "non-interactive: send one message, print the reply, exit")
	root.Flags().StringVarP(&opts.resumeID, "resume", "r", "", "resume a specific session by ID")
	root.Flags().BoolVarP(&opts.continueLast, "continue", "c", false, "continue the most recent session in this directory")
	root.Flags().BoolVar(&opts.yolo, "yolo", false, "start with YOLO_MODE enabled (auto-deny rules still apply)")
	root.Flags().BoolVar(&opts.debug, "debug", false, "enable verbose structured logging")
	root.Flags().StringVar(&opts.outputFormat, "output-format", "text", "output format for -p mode: text, json, stream-json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles every wired component the control loop needs. Building it is
// the CLI's real job; the REPL itself just drives it.
type app struct {
	log *zap.Logger

	env          *config.Env
	settings     *config.Settings
	persistent   *config.PersistentStore
	cwd          string
	ruleFileDir  string

	term       *terminal.Controller
	stats      *stats.Stats
	client     *api.Client
	registry   *tools.Registry
	approvalCtx *approval.Context
	engine     *approval.Engine
	termHandler *tools.TerminalPermissionHandler
	hookRunner *hooks.Runner
	mcpMgr     *mcp.Manager
	sessions   *session.Store
	history    *conversation.History
	compactor  *conversation.Compactor
	loop       *conversation.Loop

	sess         *session.Session
	outputFormat string
}

// outputHandler selects the stream handler for -p/--output-format.
func outputHandler(format string) api.StreamHandler {
	switch format {
	case "json":
		return conversation.NewJSONStreamHandler(os.Stdout)
	case "stream-json":
		return conversation.NewStreamJSONStreamHandler(os.Stdout)
	default:
		return &conversation.PrintStreamHandler{}
	}
}

func run(ctx context.Context, opts *cliOptions, positional []string) error {
	log := newLogger(opts.debug)
	defer log.Sync()

	a, err := buildApp(ctx, opts, log)
	if err != nil {
		return err
	}
	defer a.shutdown()

	recoverFromCrash(a)

	if opts.printMode {
		message := strings.Join(positional, " ")
		return a.runOnce(ctx, message)
	}
	return a.runREPL(ctx)
}

func newLogger(debugEnabled bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debugEnabled || os.Getenv("DEBUG") != "" {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func buildApp(ctx context.Context, opts *cliOptions, log *zap.Logger) (*app, error) {
	env := config.LoadEnv()
	if opts.model != "" {
		env.Model = opts.model
	}
	if opts.yolo {
		env.YOLOMode = true
	}
	env.ApplyTokenWeights()

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	settings, err := config.LoadSettings(cwd)
	if err != nil {
		log.Warn("loading settings", zap.Error(err))
		settings = &config.Settings{}
	}

	persistent, err := config.LoadPersistentStore()
	if err != nil {
		log.Warn("loading persistent store", zap.Error(err))
		persistent = nil
	}

	home, _ := os.UserHomeDir()
	ruleFileDir := filepath.Join(home, ".aicoder")

	ruleSet, err := approval.LoadRuleSet(ruleFileDir)
	if err != nil {
		log.Warn("loading approval rule files", zap.Error(err))
		ruleSet = &approval.RuleSet{}
	}
	approvalCtx := approval.NewContext()
	approvalCtx.SetYOLO(env.YOLOMode)
	engine := approval.NewEngine(ruleSet, approvalCtx)
	termHandler := tools.NewTerminalPermissionHandler(engine)

	registry := tools.NewRegistry(termHandler)
	tracker := tools.NewFileTracker()
	registry.Register(tools.NewFileReadTool(tracker))
	registry.Register(tools.NewFileWriteTool(tracker))
	registry.Register(tools.NewFileEditTool(tracker))
	registry.Register(tools.NewListDirectoryTool(cwd))
	registry.Register(tools.NewGlobTool(cwd))
	registry.Register(tools.NewGrepTool(cwd))
	registry.Register(tools.NewPwdTool(cwd))
	registry.Register(tools.NewMemoryTool(cwd))
	registry.Register(tools.NewRunShellCommandTool(cwd))

	manifestPath := tools.ResolveManifestPath(cwd, env.MCPToolsConfPath)
	manifest, err := tools.LoadExternalManifest(manifestPath)
	if err != nil {
		log.Warn("loading external tool manifest", zap.String("path", manifestPath), zap.Error(err))
	} else {
		tools.RegisterExternalTools(registry, manifest, cwd, env.ShellCommandTimeout)
	}

	mcpMgr := mcp.NewManager(cwd)
	mcpMgr.SetLogger(log)
	if mcpCfg, err := mcp.LoadMCPConfig(cwd); err != nil {
		log.Warn("loading MCP config", zap.Error(err))
	} else if mcpCfg != nil {
		if err := mcpMgr.StartServers(ctx, mcpCfg.MCPServers, registry); err != nil {
			log.Warn("starting MCP servers", zap.Error(err))
		}
	}
	var hookConfig hooks.HookConfig
	if settings.Hooks != nil {
		if err := json.Unmarshal(settings.Hooks, &hookConfig); err != nil {
			log.Warn("parsing hooks config", zap.Error(err))
		}
	}
	hookRunner := hooks.NewRunner(hookConfig)

	sessions, err := session.NewStore(cwd)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	st := stats.New()
	term := terminal.New()
	term.Start()

	httpClient := &http.Client{Timeout: env.HTTPTimeout}
	client := api.NewClient(
		&api.StaticTokenSource{Key: env.APIKey},
		api.WithBaseURL(env.APIBaseURL),
		api.WithModel(env.Model),
		api.WithHTTPClient(httpClient),
		api.WithVersion(version),
	)

	a := &app{
		log:         log,
		env:         env,
		settings:    settings,
		persistent:  persistent,
		cwd:         cwd,
		ruleFileDir: ruleFileDir,
		term:        term,
		stats:       st,
		client:      client,
		registry:    registry,
		approvalCtx: approvalCtx,
		engine:      engine,
		termHandler: termHandler,
		hookRunner:   hookRunner,
		mcpMgr:       mcpMgr,
		sessions:     sessions,
		outputFormat: opts.outputFormat,
	}

	if err := a.loadOrCreateSession(opts); err != nil {
		return nil, err
	}
	a.buildLoop()

	if err := hookRunner.RunOnInit(ctx); err != nil {
		log.Warn("onInit hook failed", zap.Error(err))
	}
	return a, nil
}

// loadOrCreateSession resolves --resume/--continue, or starts a fresh
// session with a freshly-built system prompt.
func (a *app) loadOrCreateSession(opts *cliOptions) error {
	var sess *session.Session
	var err error

	switch {
	case opts.resumeID != "":
		sess, err = a.sessions.Load(opts.resumeID)
	case opts.continueLast:
		sess, err = a.sessions.MostRecent()
	}
	if err != nil {
		a.log.Warn("loading session, starting fresh instead", zap.Error(err))
		sess = nil
	}

	if sess == nil {
		sess = &session.Session{
			ID:        session.GenerateID(),
			Model:     a.env.Model,
			CWD:       a.cwd,
			CreatedAt: timeNow(),
			UpdatedAt: timeNow(),
		}
	}
	a.sess = sess

	a.history = conversation.NewHistory("")
	if len(sess.Messages) > 0 {
		a.history.Restore(sess.Messages)
	} else {
		promptCtx := &conversation.PromptContext{
			CWD:         a.cwd,
			Model:       a.env.Model,
			RuleFileDir: a.ruleFileDir,
			Version:     version,
			GitStatus:   conversation.CollectGitStatus(a.cwd),
		}
		systemPrompt := conversation.BuildSystemPrompt(promptCtx)
		a.history = conversation.NewHistory(systemPrompt)

		memEntries := config.LoadMemoryEntries(a.cwd)
		userCtx := conversation.UserContext{
			MemoryContent: config.FormatMemoryForContext(memEntries),
			CurrentDate:   conversation.FormatCurrentDate(),
		}
		if ctxMsg := conversation.BuildContextMessage(userCtx); ctxMsg != "" {
			a.history.AddUserMessage(ctxMsg)
		}
	}
	return nil
}

func (a *app) buildLoop() {
	a.compactor = conversation.NewCompactor(a.client)
	a.compactor.MaxInputTokens = a.env.CompactPercentageThreshold()

	a.loop = conversation.NewLoop(conversation.LoopConfig{
		Client:      a.client,
		Tools:       a.registry.Definitions(),
		ToolExec:    a.registry,
		IsCancelAll: tools.IsCancelAll,
		Handler:     &conversation.PrintStreamHandler{},
		History:     a.history,
		Compactor:   a.compactor,
		Hooks:       a.hookRunner,
		Guidance:    a.termHandler,
		Stats:       a.stats,
		OnTurnComplete: func(h *conversation.History) {
			a.sess.Messages = h.Snapshot()
			a.sess.UpdatedAt = timeNow()
			if err := a.sessions.Save(a.sess); err != nil {
				a.log.Warn("saving session", zap.Error(err))
			}
		},
	})
}

func (a *app) shutdown() {
	a.term.Stop()
	a.term.Cleanup()
	a.mcpMgr.Shutdown()
}

// crashFilePath is where an in-progress session is mirrored so it can be
// recovered if the process dies without a clean shutdown.
func (a *app) crashFilePath() string {
	return filepath.Join(a.sessions.Dir(), "session_crash.json")
}

func recoverFromCrash(a *app) {
	path := a.crashFilePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	fmt.Printf("A previous session did not exit cleanly (%s).\n", path)
	fmt.Print("Reload it, delete it, or ignore it? [r/d/I] ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r", "reload":
		var sess session.Session
		if err := json.Unmarshal(data, &sess); err == nil {
			a.sess = &sess
			a.history.Restore(sess.Messages)
		}
		loadedPath := filepath.Join(a.sessions.Dir(), "session_crash_loaded.json")
		os.Rename(path, loadedPath)
	case "d", "delete":
		os.Remove(path)
	default:
		// ignore: leave the crash file in place for a later look.
	}
}

func (a *app) writeCrashFile() {
	data, err := json.Marshal(a.sess)
	if err != nil {
		return
	}
	os.WriteFile(a.crashFilePath(), data, 0644)
}

func timeNow() time.Time { return time.Now() }

// runOnce implements -p/--print: one message in, one reply out, then exit.
func (a *app) runOnce(ctx context.Context, message string) error {
	a.loop.SetHandler(outputHandler(a.outputFormat))
	if err := a.loop.SendMessage(ctx, message); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

// runREPL implements the interactive IDLE/COMMAND/SHELL/APIREQ loop from
// spec.md §4.10.
func (a *app) runREPL(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("aicoder %s — %s\n", version, a.cwd)
	fmt.Println("Type /help for commands, Ctrl-C to cancel a turn, /quit to exit.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		a.term.EnterPromptMode()
		fmt.Print("\n> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			a.term.ExitPromptMode()
			return nil
		}
		a.term.ExitPromptMode()
		line = strings.TrimRight(line, "\n\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		a.writeCrashFile()

		switch {
		case strings.HasPrefix(line, "/"):
			if quit := a.dispatchCommand(ctx, line); quit {
				os.Remove(a.crashFilePath())
				return nil
			}
		case strings.HasPrefix(line, "!"):
			a.runShellLine(ctx, strings.TrimPrefix(line, "!"))
		default:
			a.sendTurn(ctx, line)
		}
	}
}

func (a *app) sendTurn(ctx context.Context, message string) {
	result, err := a.hookRunner.RunOnBeforeUserPrompt(ctx, message)
	if err != nil {
		fmt.Println("onBeforeUserPrompt hook error:", err)
		return
	}
	if result.Block {
		fmt.Println("Message blocked by hook.")
		return
	}
	if result.Message != "" {
		message = result.Message
	}

	if err := a.hookRunner.RunOnBeforeAiPrompt(ctx); err != nil {
		fmt.Println("onBeforeAiPrompt hook error:", err)
	}
	for _, injection := range a.hookRunner.PendingInjections() {
		a.history.AddUserMessage(injection)
	}

	err = a.loop.SendMessage(ctx, message)
	if err != nil {
		if tools.IsCancelAll(err) {
			fmt.Println("\n[cancelled]")
			return
		}
		fmt.Println("\nError:", err)
	}
	fmt.Println()
}

func (a *app) runShellLine(ctx context.Context, cmd string) {
	start := time.Now()
	out, err := a.registry.Execute(ctx, "run_shell_command", []byte(fmt.Sprintf(`{"command":%q}`, cmd)))
	a.stats.RecordToolCall(time.Since(start), err)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Print(out)
}

// dispatchCommand handles the "/"-prefixed command surface. Returns true if
// the REPL should exit.
func (a *app) dispatchCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/help":
		printHelp()
	case "/quit", "/exit":
		return true
	case "/new":
		a.history.Clear()
		a.loadOrCreateSession(&cliOptions{})
		a.buildLoop()
		fmt.Println("Started a new session.")
	case "/model":
		if len(args) == 0 {
			fmt.Println("Current model:", a.client.Model())
		} else {
			a.client.SetModel(args[0])
			a.loop.SetModel(args[0])
			fmt.Println("Model set to", args[0])
		}
	case "/compact":
		if err := a.loop.Compact(ctx); err != nil {
			fmt.Println("Compaction error:", err)
		} else {
			fmt.Println("Conversation compacted.")
		}
	case "/stats":
		snap := a.stats.Snapshot()
		fmt.Println(snap.Format(a.env.ContextSize))
	case "/cost":
		snap := a.stats.Snapshot()
		fmt.Printf("Tokens: %d prompt + %d completion. Tool calls: %d. Compactions: %d.\n",
			snap.PromptTokens, snap.CompletionTokens, snap.ToolCalls, snap.Compactions)
	case "/yolo":
		a.approvalCtx.SetYOLO(true)
		fmt.Println("YOLO mode enabled (auto_deny rules still apply).")
	case "/revoke_approvals":
		a.approvalCtx.Revoke()
		fmt.Println("Session approval cache cleared.")
	case "/memory":
		entries := config.LoadMemoryEntries(a.cwd)
		fmt.Println(config.FormatMemoryForContext(entries))
	case "/save":
		a.sess.Messages = a.history.Snapshot()
		a.sess.UpdatedAt = timeNow()
		if err := a.sessions.Save(a.sess); err != nil {
			fmt.Println("Save error:", err)
		} else {
			fmt.Println("Session saved:", a.sess.ID)
		}
	case "/load":
		if len(args) == 0 {
			fmt.Println("usage: /load <session-id>")
			return false
		}
		sess, err := a.sessions.Load(args[0])
		if err != nil {
			fmt.Println("Load error:", err)
			return false
		}
		a.sess = sess
		a.history.Restore(sess.Messages)
		fmt.Println("Loaded session:", sess.ID)
	case "/pprint_messages":
		data, _ := json.MarshalIndent(a.history.Messages(), "", "  ")
		fmt.Println(string(data))
	case "/breakpoint":
		debug.PrintStack()
	case "/debug":
		fmt.Println(a.env.String())
		if servers := a.mcpMgr.Servers(); len(servers) > 0 {
			fmt.Println("MCP servers:")
			for _, name := range servers {
				fmt.Println(" ", a.mcpMgr.ServerStatus(name))
			}
		}
	case "/prompt":
		if len(args) == 0 {
			fmt.Println(a.env.PromptMain)
		} else {
			fmt.Println(strings.Join(args, " "))
		}
	case "/plan":
		fmt.Println("Plan mode is not a separate execution path in this build; use approval prompts to review edits before they apply.")
	case "/retry":
		fmt.Println("Retry is not yet wired to a stored last-request; re-send your message instead.")
	default:
		fmt.Println("Unknown command:", cmd, "— try /help")
	}
	return false
}

func printHelp() {
	fmt.Println(`Commands:
  /help                 show this text
  /quit, /exit          exit the program
  /new                   start a fresh session
  /model [name]          show or change the active model
  /compact               force a conversation compaction
  /stats                 show usage statistics
  /cost                  show a short token usage summary
  /yolo                  auto-approve tools (auto_deny rules still apply)
  /revoke_approvals      clear the session approval cache
  /memory                show loaded project/user memory content
  /save                  save the current session
  /load <id>             load a session by ID
  /pprint_messages       dump the raw message history as JSON
  /breakpoint            print a Go stack trace
  /debug                 show resolved configuration
  /prompt [text]         show AICODER_PROMPT_MAIN; with text, echo it (nothing is changed)
  /plan                  describe plan-mode behavior
  !<command>             run a shell command directly`)
}
