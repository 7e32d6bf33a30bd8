package mcp_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/effective-security/supportagent/mcp"
	"github.com/effective-security/supportagent/mcp/transport/stdio"
	"github.com/effective-security/supportagent/store"
	"github.com/effective-security/supportagent/tools"
	"github.com/effective-security/supportagent/tools/support"
	"github.com/effective-security/xlog"
)

// envToolHost switches the test binary into a child tool host.
const envToolHost = "SUPPORTAGENT_TEST_TOOLHOST"

func TestMain(m *testing.M) {
	switch os.Getenv(envToolHost) {
	case "serve":
		os.Exit(runToolHost())
	case "hang":
		// never answers the handshake
		_, _ = io.Copy(io.Discard, os.Stdin)
		os.Exit(0)
	case "crash":
		os.Exit(3)
	case "linger":
		// keeps running after stdin is closed
		_ = runToolHost()
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func runToolHost() int {
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))

	r, err := newHostRegistry()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	srv := mcp.NewServer(r)
	if err = srv.Serve(stdio.NewStdioTransport()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	<-srv.Done()
	return 0
}

type sleepRequest struct {
	Ms int `json:"ms" jsonschema:"description=Milliseconds to sleep"`
}

// newHostRegistry returns the support tools over a seeded store,
// plus a slow tool to exercise timeouts.
func newHostRegistry() (*tools.Registry, error) {
	st, err := store.NewMemoryStore()
	if err != nil {
		return nil, err
	}
	r := support.NewRegistry(st)
	err = r.Register(tools.MustFunction("sleep", "Sleeps for the given time",
		func(ctx context.Context, req *sleepRequest) (any, error) {
			select {
			case <-time.After(time.Duration(req.Ms) * time.Millisecond):
				return map[string]any{"success": true, "message": "done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))
	if err != nil {
		return nil, err
	}
	return r, nil
}
