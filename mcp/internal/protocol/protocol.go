// Package protocol implements the JSON-RPC layer of the tool protocol
// on top of a pluggable transport.
//
// It handles request/response correlation, notifications, request
// cancellation and timeouts, and error propagation.
//
// Usage:
//
//	p := protocol.NewProtocol(nil)
//	p.SetRequestHandler("tools/list", handler)
//	_ = p.Connect(stdio.New(r, w))
//	defer p.Close()
//
//	res, err := p.Request(ctx, "tools/call", params, &protocol.RequestOptions{
//		Timeout: 5 * time.Second,
//	})
//
// All public methods are safe for concurrent use.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/mcp/internal", "protocol")

// DefaultRequestTimeoutMsec is the request timeout when none is specified
const DefaultRequestTimeoutMsec = 60000

// Method names handled by the protocol itself
const (
	MethodCancelled   = "notifications/cancelled"
	MethodInitialized = "notifications/initialized"
)

var (
	// ErrNotConnected is returned when the protocol has no transport
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionClosed is returned for requests pending when the transport closes
	ErrConnectionClosed = errors.New("connection closed")
	// ErrRequestTimeout is returned when the response did not arrive in time
	ErrRequestTimeout = errors.New("request timeout")
)

// RPCError is an error response received from the peer.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// ProtocolOptions contains additional initialization options
type ProtocolOptions struct {
	// Name is used in logs
	Name string
}

// RequestOptions contains options that can be given per request
type RequestOptions struct {
	// Timeout specifies a timeout for this request.
	// If not specified, DefaultRequestTimeoutMsec will be used
	Timeout time.Duration
}

// RequestHandlerExtra contains extra data given to request handlers
type RequestHandlerExtra struct {
	// Context is cancelled if the request was cancelled from the sender's side
	Context context.Context
}

// RequestHandler handles a request and returns the result.
type RequestHandler func(context.Context, *transport.BaseJSONRPCRequest, RequestHandlerExtra) (transport.JsonRpcBody, error)

// NotificationHandler handles a notification.
type NotificationHandler func(notification *transport.BaseJSONRPCNotification) error

// Protocol implements the framing on top of a pluggable transport,
// including request/response linking and notifications.
type Protocol struct {
	transport transport.Transport
	options   ProtocolOptions

	requestMessageID transport.RequestId
	closed           bool
	mu               sync.RWMutex

	// Maps method name to request handler
	requestHandlers map[string]RequestHandler
	// Maps request ID to cancellation function
	requestCancellers map[transport.RequestId]context.CancelFunc
	// Maps method name to notification handler
	notificationHandlers map[string]NotificationHandler
	// Maps message ID to response handler
	responseHandlers map[transport.RequestId]chan *responseEnvelope

	// OnClose is called when the connection is closed for any reason
	OnClose func()
	// OnError is called when an error occurs
	OnError func(error)
}

type responseEnvelope struct {
	response json.RawMessage
	err      error
}

// NewProtocol creates a new Protocol instance
func NewProtocol(options *ProtocolOptions) *Protocol {
	p := &Protocol{
		requestHandlers:      make(map[string]RequestHandler),
		requestCancellers:    make(map[transport.RequestId]context.CancelFunc),
		notificationHandlers: make(map[string]NotificationHandler),
		responseHandlers:     make(map[transport.RequestId]chan *responseEnvelope),
	}
	if options != nil {
		p.options = *options
	}

	p.SetNotificationHandler(MethodCancelled, p.handleCancelledNotification)
	p.SetNotificationHandler(MethodInitialized, func(n *transport.BaseJSONRPCNotification) error {
		logger.KV(xlog.DEBUG, "name", p.options.Name, "method", n.Method)
		return nil
	})

	return p
}

// Connect attaches to the given transport, starts it, and starts listening for messages
func (p *Protocol) Connect(tr transport.Transport) error {
	p.mu.Lock()
	p.transport = tr
	p.closed = false
	p.mu.Unlock()

	tr.SetCloseHandler(p.handleClose)
	tr.SetErrorHandler(p.handleError)
	tr.SetMessageHandler(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		switch message.Type {
		case transport.BaseMessageTypeJSONRPCRequestType:
			p.handleRequest(ctx, message.JsonRpcRequest)
		case transport.BaseMessageTypeJSONRPCNotificationType:
			p.handleNotification(message.JsonRpcNotification)
		case transport.BaseMessageTypeJSONRPCResponseType:
			p.handleResponse(message.JsonRpcResponse.Id, message.JsonRpcResponse.Result, nil)
		case transport.BaseMessageTypeJSONRPCErrorType:
			e := message.JsonRpcError
			p.handleResponse(e.Id, nil, &RPCError{Code: e.Error.Code, Message: e.Error.Message})
		}
	})

	return tr.Start(context.Background())
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	p.closed = true

	for _, cancel := range p.requestCancellers {
		cancel()
	}
	// fail all pending requests
	for id, ch := range p.responseHandlers {
		select {
		case ch <- &responseEnvelope{err: errors.WithStack(ErrConnectionClosed)}:
		default:
		}
		delete(p.responseHandlers, id)
	}
	onClose := p.OnClose
	p.mu.Unlock()

	logger.KV(xlog.DEBUG, "name", p.options.Name, "status", "closed")
	if onClose != nil {
		onClose()
	}
}

func (p *Protocol) handleError(err error) {
	logger.KV(xlog.DEBUG, "name", p.options.Name, "err", err.Error())
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) handleNotification(notification *transport.BaseJSONRPCNotification) {
	p.mu.RLock()
	handler := p.notificationHandlers[notification.Method]
	p.mu.RUnlock()

	if handler == nil {
		logger.KV(xlog.DEBUG, "name", p.options.Name, "reason", "no_handler", "method", notification.Method)
		return
	}

	go func() {
		if err := handler(notification); err != nil {
			p.handleError(errors.Wrap(err, "notification handler error"))
		}
	}()
}

func (p *Protocol) handleRequest(ctx context.Context, request *transport.BaseJSONRPCRequest) {
	logger.KV(xlog.DEBUG,
		"name", p.options.Name,
		"method", request.Method,
		"id", request.Id,
	)

	p.mu.RLock()
	handler := p.requestHandlers[request.Method]
	p.mu.RUnlock()

	if handler == nil {
		p.sendErrorResponse(request.Id, transport.ErrorCodeMethodNotFound, "method not found: "+request.Method)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.requestCancellers[request.Id] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.requestCancellers, request.Id)
			p.mu.Unlock()
			cancel()
		}()

		result, err := handler(ctx, request, RequestHandlerExtra{Context: ctx})
		if err != nil {
			logger.KV(xlog.DEBUG, "method", request.Method, "id", request.Id, "err", err.Error())
			code := transport.ErrorCodeServerError
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) {
				code = rpcErr.Code
			}
			p.sendErrorResponse(request.Id, code, err.Error())
			return
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			p.sendErrorResponse(request.Id, transport.ErrorCodeInternalError, "failed to marshal result: "+err.Error())
			return
		}
		response := &transport.BaseJSONRPCResponse{
			Jsonrpc: "2.0",
			Id:      request.Id,
			Result:  jsonResult,
		}

		if err := p.send(ctx, transport.NewBaseMessageResponse(response)); err != nil {
			p.handleError(errors.Wrap(err, "failed to send response"))
		}
	}()
}

func (p *Protocol) handleCancelledNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		RequestId transport.RequestId `json:"requestId"`
		Reason    string              `json:"reason"`
	}

	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal cancelled params")
	}

	p.mu.RLock()
	cancel := p.requestCancellers[params.RequestId]
	p.mu.RUnlock()

	if cancel != nil {
		logger.KV(xlog.DEBUG, "name", p.options.Name, "status", "cancelled", "id", params.RequestId, "reason", params.Reason)
		cancel()
	}
	return nil
}

func (p *Protocol) handleResponse(id transport.RequestId, result json.RawMessage, err error) {
	p.mu.RLock()
	ch := p.responseHandlers[id]
	p.mu.RUnlock()

	if ch == nil {
		logger.KV(xlog.DEBUG, "name", p.options.Name, "reason", "unexpected_response", "id", id)
		return
	}
	select {
	case ch <- &responseEnvelope{response: result, err: err}:
	default:
	}
}

// Close closes the connection
func (p *Protocol) Close() error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr != nil {
		return tr.Close()
	}
	return nil
}

func (p *Protocol) send(ctx context.Context, msg *transport.BaseJsonRpcMessage) error {
	p.mu.RLock()
	tr := p.transport
	closed := p.closed
	p.mu.RUnlock()

	if tr == nil {
		return errors.WithStack(ErrNotConnected)
	}
	if closed {
		return errors.WithStack(ErrConnectionClosed)
	}
	return tr.Send(ctx, msg)
}

// Request sends a request and waits for a response
func (p *Protocol) Request(ctx context.Context, method string, params any, opts *RequestOptions) (json.RawMessage, error) {
	timeout := time.Duration(DefaultRequestTimeoutMsec) * time.Millisecond
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	marshalledParams, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal params")
	}

	p.mu.Lock()
	if p.transport == nil {
		p.mu.Unlock()
		return nil, errors.WithStack(ErrNotConnected)
	}
	if p.closed {
		p.mu.Unlock()
		return nil, errors.WithStack(ErrConnectionClosed)
	}
	id := p.requestMessageID
	p.requestMessageID++
	ch := make(chan *responseEnvelope, 1)
	p.responseHandlers[id] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.responseHandlers, id)
		p.mu.Unlock()
	}()

	request := &transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalledParams,
		Id:      id,
	}

	if err := p.send(ctx, transport.NewBaseMessageRequest(request)); err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case envelope := <-ch:
		if envelope.err != nil {
			return nil, envelope.err
		}
		return envelope.response, nil
	case <-ctx.Done():
		p.sendCancelNotification(id, ctx.Err().Error())
		return nil, errors.WithStack(ctx.Err())
	case <-timer.C:
		p.sendCancelNotification(id, "request timeout")
		return nil, errors.Wrapf(ErrRequestTimeout, "%s: no response after %v", method, timeout)
	}
}

func (p *Protocol) sendCancelNotification(requestID transport.RequestId, reason string) {
	err := p.Notification(MethodCancelled, map[string]any{
		"requestId": requestID,
		"reason":    reason,
	})
	if err != nil {
		p.handleError(errors.Wrap(err, "failed to send cancel notification"))
	}
}

func (p *Protocol) sendErrorResponse(requestID transport.RequestId, code int, message string) {
	response := &transport.BaseJSONRPCError{
		Jsonrpc: "2.0",
		Id:      requestID,
		Error: transport.BaseJSONRPCErrorInner{
			Code:    code,
			Message: message,
		},
	}
	if err := p.send(context.Background(), transport.NewBaseMessageError(response)); err != nil {
		p.handleError(errors.Wrap(err, "failed to send error response"))
	}
}

// Notification emits a notification, which is a one-way message that does not expect a response
func (p *Protocol) Notification(method string, params any) error {
	marshalled, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification params")
	}

	notification := &transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  marshalled,
	}
	return p.send(context.Background(), transport.NewBaseMessageNotification(notification))
}

// SetRequestHandler registers a handler to invoke when this protocol object receives a request with the given method
func (p *Protocol) SetRequestHandler(method string, handler RequestHandler) {
	p.mu.Lock()
	p.requestHandlers[method] = handler
	p.mu.Unlock()
}

// RemoveRequestHandler removes the request handler for the given method
func (p *Protocol) RemoveRequestHandler(method string) {
	p.mu.Lock()
	delete(p.requestHandlers, method)
	p.mu.Unlock()
}

// SetNotificationHandler registers a handler to invoke when this protocol object receives a notification with the given method
func (p *Protocol) SetNotificationHandler(method string, handler NotificationHandler) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}

// RemoveNotificationHandler removes the notification handler for the given method
func (p *Protocol) RemoveNotificationHandler(method string) {
	p.mu.Lock()
	delete(p.notificationHandlers, method)
	p.mu.Unlock()
}
