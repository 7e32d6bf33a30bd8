// supportagent is the interactive customer support assistant.
//
// The tools are reached in process (--transport local), through a child
// tool host over its standard streams (pipe) or through an HTTP tool host (http).
//
// Usage:
//
//	supportagent [--config file] [--transport local|pipe|http] [--user user_001]
//	supportagent --examples
//	supportagent --print-config [--format yaml|json|toml]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/assistants"
	"github.com/effective-security/supportagent/callbacks"
	"github.com/effective-security/supportagent/config"
	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/pkg/llmfactory"
	"github.com/effective-security/supportagent/pkg/llms"
	"github.com/effective-security/supportagent/pkg/prompts"
	"github.com/effective-security/supportagent/store"
	"github.com/effective-security/supportagent/tools/support"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/spf13/pflag"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/cmd", "supportagent")

// DefaultToolHost is the pipe tool host command when none is configured
const DefaultToolHost = "toolhost"

// newModel returns the model from the configuration
var newModel = func(cfg *config.Config) (llms.Model, error) {
	return llmfactory.New(&cfg.LLM).Model(cfg.Model.Provider, cfg.Model.Name)
}

func main() {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configFile  string
	transport   string
	logLevel    string
	userID      string
	examples    bool
	printConfig bool
	format      string
	verbose     bool
	trace       bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := new(options)
	fs := pflag.NewFlagSet("supportagent", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configFile, "config", "c", "", "configuration file: .yaml, .json or .toml")
	fs.StringVarP(&o.transport, "transport", "t", "", "tool transport: local|pipe|http")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR")
	fs.StringVarP(&o.userID, "user", "u", "", "authenticated user ID")
	fs.BoolVar(&o.examples, "examples", false, "run the example queries and exit")
	fs.BoolVar(&o.printConfig, "print-config", false, "print the effective configuration and exit")
	fs.StringVar(&o.format, "format", "yaml", "format of --print-config: yaml|json|toml")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "print the turn events")
	fs.BoolVar(&o.trace, "trace", false, "print the transcript of each turn")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if o.transport != "" {
		cfg.Tools.Transport = strings.ToLower(o.transport)
	}
	if cfg.Tools.Transport == config.TransportPipe && len(cfg.Tools.Command) == 0 {
		cfg.Tools.Command = []string{DefaultToolHost}
	}
	if o.logLevel != "" {
		cfg.LogLevel = strings.ToUpper(o.logLevel)
	}
	if o.userID != "" {
		cfg.DefaultUserID = o.userID
	}
	if err = cfg.Validate(); err != nil {
		return err
	}
	xlog.SetGlobalLogLevel(cfg.Level())

	if o.printConfig {
		b, err := config.Marshal(cfg, o.format)
		if err != nil {
			return err
		}
		_, err = stdout.Write(b)
		return errors.WithStack(err)
	}

	model, err := newModel(cfg)
	if err != nil {
		return err
	}

	bridge, closer, err := newBridge(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	defer bridge.Close()

	var pad *callbacks.Scratchpad
	cb := callbacks.NewFanout(callbacks.NewPackageLogger(logger))
	if o.verbose {
		cb.Add(callbacks.NewPrinter(stderr, callbacks.ModeVerbose))
	}
	if o.trace {
		pad = callbacks.NewScratchpad(callbacks.ModeVerbose)
		cb.Add(pad)
	}

	agent, err := assistants.NewAgent(model, bridge,
		assistants.WithName(values.StringsCoalesce(cfg.Agent.Name, assistants.DefaultName)),
		assistants.WithMaxTurns(cfg.Agent.MaxTurns),
		assistants.WithParallelToolCalls(cfg.Agent.ParallelToolCalls),
		assistants.WithIdentityKey(cfg.Agent.IdentityKey),
		assistants.WithSystemPrompt(cfg.Agent.SystemPrompt),
		assistants.WithPromptData(prompts.SystemPromptData{IdentityKey: cfg.Agent.IdentityKey}),
		assistants.WithMaxTokens(cfg.Model.MaxTokens),
		assistants.WithTemperature(cfg.Model.Temperature),
		assistants.WithCallback(cb),
	)
	if err != nil {
		return err
	}

	session, err := agent.Start(ctx, cfg.DefaultUserID)
	if err != nil {
		return err
	}

	c := &console{
		session:   session,
		transport: cfg.Tools.Transport,
		out:       stdout,
		errOut:    stderr,
		pad:       pad,
	}
	if o.examples {
		return c.runExamples(ctx)
	}
	return c.repl(ctx, stdin)
}

// newBridge returns the bridge of the configured transport,
// the closer releases the resources that are not owned by the bridge.
var newBridge = func(ctx context.Context, cfg *config.Config, stderr io.Writer) (mcp.Bridge, io.Closer, error) {
	var bridge mcp.Bridge
	closer := io.Closer(noopCloser{})

	timeout := cfg.Tools.Timeout.TimeDuration()
	switch cfg.Tools.Transport {
	case config.TransportLocal:
		st, stc, err := store.Open(ctx, store.Options{
			Backend:  cfg.Store.Backend,
			File:     cfg.Store.File,
			RedisURL: cfg.Store.RedisURL,
			Prefix:   cfg.Store.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		closer = stc
		bridge = mcp.NewLocalBridge(support.NewRegistry(st))

	case config.TransportPipe:
		command := cfg.Tools.Command
		pb, err := mcp.NewPipeBridge(ctx, command[0], command[1:],
			mcp.WithToolTimeout(timeout),
			mcp.WithShutdownGrace(cfg.Tools.ShutdownGrace.TimeDuration()),
			mcp.WithStderr(stderr),
		)
		if err != nil {
			return nil, nil, err
		}
		bridge = pb

	case config.TransportHTTP:
		bridge = mcp.NewHTTPBridge(cfg.Tools.HostURL(), mcp.WithHTTPTimeout(timeout))

	default:
		return nil, nil, errors.Errorf("unsupported transport: %s", cfg.Tools.Transport)
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "bridge_created",
		"transport", cfg.Tools.Transport,
	)
	return mcp.NewCachedBridge(bridge, cfg.Tools.Transport), closer, nil
}

type noopCloser struct{}

func (noopCloser) Close() error { return nil }
