// toolhost serves the customer support tools to a separate agent process.
//
// By default the tools are served as JSON-RPC 2.0 over the standard
// streams, one message per line. With --http the tools are served
// over plain HTTP instead.
//
// Usage:
//
//	toolhost [--config file] [--http :8765] [--log-level DEBUG]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/config"
	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/mcp/transport/httptransport"
	"github.com/effective-security/supportagent/mcp/transport/stdio"
	"github.com/effective-security/supportagent/store"
	"github.com/effective-security/supportagent/tools/support"
	"github.com/effective-security/xlog"
	"github.com/spf13/pflag"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/cmd", "toolhost")

func main() {
	// stdout carries the frames
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configFile string
	httpAddr   string
	logLevel   string
	dbFile     string
}

func parseFlags(args []string) (*options, error) {
	o := new(options)
	fs := pflag.NewFlagSet("toolhost", pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVarP(&o.configFile, "config", "c", "", "configuration file: .yaml, .json or .toml")
	fs.StringVar(&o.httpAddr, "http", "", "serve over HTTP on the address, e.g. :8765")
	fs.StringVar(&o.logLevel, "log-level", "", "log level: TRACE|DEBUG|INFO|NOTICE|WARNING|ERROR")
	fs.StringVar(&o.dbFile, "db", "", "JSON file to persist the memory store")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return o, nil
}

// run serves until the peer disconnects or ctx is cancelled
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	level := cfg.Level()
	if o.logLevel != "" {
		level = config.ParseLevel(o.logLevel)
	}
	xlog.SetGlobalLogLevel(level)

	storeOpts := store.Options{
		Backend:  cfg.Store.Backend,
		File:     cfg.Store.File,
		RedisURL: cfg.Store.RedisURL,
		Prefix:   cfg.Store.Prefix,
	}
	if o.dbFile != "" {
		storeOpts.File = o.dbFile
	}
	st, closer, err := store.Open(ctx, storeOpts)
	if err != nil {
		return err
	}
	defer closer.Close()

	registry := support.NewRegistry(st)

	if o.httpAddr != "" {
		return httptransport.New(registry).ListenAndServe(ctx, o.httpAddr)
	}

	server := mcp.NewServer(registry)
	if err = server.Serve(stdio.New(stdin, stdout)); err != nil {
		return err
	}
	defer server.Close()

	select {
	case <-server.Done():
		logger.KV(xlog.INFO, "status", "disconnected")
	case <-ctx.Done():
		logger.KV(xlog.INFO, "status", "stopped")
	}
	return nil
}
