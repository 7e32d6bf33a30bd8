package mcp

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/mcp/transport/stdio"
	"github.com/effective-security/xlog"
)

// PipeOption configures the PipeBridge
type PipeOption func(*pipeConfig)

type pipeConfig struct {
	timeout time.Duration
	grace   time.Duration
	env     []string
	dir     string
	stderr  io.Writer
}

// WithToolTimeout sets the timeout of the handshake and of each call.
func WithToolTimeout(timeout time.Duration) PipeOption {
	return func(c *pipeConfig) {
		c.timeout = timeout
	}
}

// WithShutdownGrace sets how long the child is given to exit on Close,
// before it is killed.
func WithShutdownGrace(grace time.Duration) PipeOption {
	return func(c *pipeConfig) {
		c.grace = grace
	}
}

// WithEnv adds environment variables to the child process, in KEY=VALUE form.
func WithEnv(env ...string) PipeOption {
	return func(c *pipeConfig) {
		c.env = append(c.env, env...)
	}
}

// WithDir sets the working directory of the child process.
func WithDir(dir string) PipeOption {
	return func(c *pipeConfig) {
		c.dir = dir
	}
}

// WithStderr sets where the child process writes its logs.
func WithStderr(w io.Writer) PipeOption {
	return func(c *pipeConfig) {
		c.stderr = w
	}
}

// PipeBridge owns a child tool host process and talks to it
// over its standard streams.
type PipeBridge struct {
	cfg    pipeConfig
	cmd    *exec.Cmd
	client *Client
	stdout *os.File

	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

var _ Bridge = (*PipeBridge)(nil)

// NewPipeBridge spawns the tool host and performs the initialize handshake.
// The child is killed if the handshake fails.
func NewPipeBridge(ctx context.Context, command string, args []string, opts ...PipeOption) (*PipeBridge, error) {
	cfg := pipeConfig{
		timeout: DefaultToolTimeout,
		grace:   DefaultShutdownGrace,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cmd := exec.Command(command, args...)
	cmd.Env = append(os.Environ(), cfg.env...)
	cmd.Dir = cfg.dir
	cmd.Stderr = cfg.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, MarkTransport(errors.Wrap(err, "failed to create stdin pipe"))
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, MarkTransport(errors.Wrap(err, "failed to create stdout pipe"))
	}
	cmd.Stdout = stdoutW

	if err = cmd.Start(); err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, MarkTransport(errors.Wrapf(err, "failed to start %s", command))
	}
	// the child holds its own copy of the write end
	_ = stdoutW.Close()

	b := &PipeBridge{
		cfg:    cfg,
		cmd:    cmd,
		stdout: stdoutR,
		exited: make(chan struct{}),
		client: NewClient(WithRequestTimeout(cfg.timeout)),
	}
	go func() {
		b.waitErr = cmd.Wait()
		close(b.exited)
	}()

	logger.ContextKV(ctx, xlog.INFO, "status", "spawned", "command", command, "pid", cmd.Process.Pid)

	hctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	if _, err = b.client.Connect(hctx, stdio.New(stdoutR, stdin)); err != nil {
		_ = b.client.Close()
		b.kill()
		return nil, MarkTransport(errors.WithMessagef(err, "handshake with %s failed", command))
	}

	return b, nil
}

// Pid returns the process ID of the tool host.
func (b *PipeBridge) Pid() int {
	return b.cmd.Process.Pid
}

// ServerInfo returns the handshake result.
func (b *PipeBridge) ServerInfo() *InitializeResult {
	return b.client.ServerInfo()
}

// ListTools implements Bridge.ListTools
func (b *PipeBridge) ListTools(ctx context.Context) ([]chatmodel.ToolDefinition, error) {
	defer measureCall(TransportPipe, time.Now())

	ctx, cancel := context.WithTimeout(ctx, b.cfg.timeout)
	defer cancel()

	list, err := b.client.ListTools(ctx)
	if err != nil {
		return nil, MarkTransport(errors.WithMessage(err, "failed to list tools"))
	}
	defs := make([]chatmodel.ToolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, t.Definition())
	}
	return defs, nil
}

// Invoke implements Bridge.Invoke
func (b *PipeBridge) Invoke(ctx context.Context, name string, args json.RawMessage) chatmodel.ToolResult {
	defer measureCall(TransportPipe, time.Now())

	ctx, cancel := context.WithTimeout(ctx, b.cfg.timeout)
	defer cancel()

	res, err := b.client.CallTool(ctx, name, args)
	if err != nil {
		return TransportFailure(ctx, TransportPipe, name, err)
	}
	return res.ToolResult()
}

// Close closes the pipe to the child, waits for it to exit
// and kills it after the grace period.
func (b *PipeBridge) Close() error {
	b.closeOnce.Do(func() {
		_ = b.client.Close()

		timer := time.NewTimer(b.cfg.grace)
		defer timer.Stop()

		select {
		case <-b.exited:
			logger.KV(xlog.INFO, "status", "exited", "pid", b.Pid())
		case <-timer.C:
			logger.KV(xlog.WARNING, "reason", "shutdown_timeout", "pid", b.Pid(), "grace", b.cfg.grace)
			b.kill()
		}
		_ = b.stdout.Close()

		var exitErr *exec.ExitError
		if b.waitErr != nil && !errors.As(b.waitErr, &exitErr) {
			b.closeErr = errors.WithStack(b.waitErr)
		}
	})
	return b.closeErr
}

// Exited is closed when the child process has exited.
func (b *PipeBridge) Exited() <-chan struct{} {
	return b.exited
}

func (b *PipeBridge) kill() {
	if err := b.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.KV(xlog.ERROR, "reason", "kill", "pid", b.Pid(), "err", err.Error())
	}
	<-b.exited
	_ = b.stdout.Close()
}
