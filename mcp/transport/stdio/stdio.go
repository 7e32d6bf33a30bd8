// Package stdio implements a newline-delimited JSON-RPC transport
// over a reader and a writer, such as the standard streams of a process.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/mcp/transport", "stdio")

// MaxFrameSize is the maximum size of a single frame.
const MaxFrameSize = 10 * 1024 * 1024

// Transport implements transport.Transport over io streams.
// Each frame is one line of JSON.
type Transport struct {
	reader io.Reader
	writer io.Writer
	closer io.Closer

	writeMu sync.Mutex
	mu      sync.RWMutex

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()

	started   bool
	closeOnce sync.Once
	done      chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport reading frames from r and writing frames to w.
// If w implements io.Closer, it is closed on Close.
func New(r io.Reader, w io.Writer) *Transport {
	t := &Transport{
		reader: r,
		writer: w,
		done:   make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	return t
}

// NewStdioTransport returns a transport over the standard streams of the process.
func NewStdioTransport() *Transport {
	t := New(os.Stdin, os.Stdout)
	// stdout is not closed by the transport
	t.closer = nil
	return t
}

// Start implements Transport.Start, reading runs in a goroutine.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.started = true
	t.mu.Unlock()

	go t.readLoop(ctx)
	return nil
}

// Done is closed when the transport is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

func (t *Transport) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg := new(transport.BaseJsonRpcMessage)
		if err := json.Unmarshal(line, msg); err != nil {
			logger.KV(xlog.DEBUG, "reason", "invalid_frame", "err", err.Error())
			t.handleError(errors.Wrap(err, "failed to decode frame"))
			continue
		}

		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(ctx, msg)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		t.handleError(errors.Wrap(err, "failed to read frame"))
	}
	t.doClose()
}

// Send implements Transport.Send
func (t *Transport) Send(_ context.Context, message *transport.BaseJsonRpcMessage) error {
	select {
	case <-t.done:
		return errors.New("transport closed")
	default:
	}

	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err = t.writer.Write(data); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

// Close implements Transport.Close
func (t *Transport) Close() error {
	var err error
	if t.closer != nil {
		t.writeMu.Lock()
		err = t.closer.Close()
		t.writeMu.Unlock()
	}
	t.doClose()
	return errors.WithStack(err)
}

func (t *Transport) doClose() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.mu.RLock()
		handler := t.closeHandler
		t.mu.RUnlock()
		if handler != nil {
			handler()
		}
	})
}

func (t *Transport) handleError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}
