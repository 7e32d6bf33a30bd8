// Package transport defines the JSON-RPC 2.0 message envelope and the
// Transport interface used by the tool protocol.
package transport

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// RequestId is the JSON-RPC request ID.
type RequestId int64

// JsonRpcBody is the result of a request handler.
type JsonRpcBody any

// BaseMessageType is the discriminator of BaseJsonRpcMessage.
type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// JSON-RPC error codes
const (
	ErrorCodeParseError     = -32700
	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternalError  = -32603
	ErrorCodeServerError    = -32000
)

// BaseJSONRPCRequest is a request that expects a response.
type BaseJSONRPCRequest struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Id      RequestId       `json:"id"`
}

// BaseJSONRPCNotification is a one-way message.
type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// BaseJSONRPCResponse is a successful response to a request.
type BaseJSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      RequestId       `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// BaseJSONRPCErrorInner is the error object of an error response.
type BaseJSONRPCErrorInner struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// BaseJSONRPCError is an error response to a request.
type BaseJSONRPCError struct {
	Jsonrpc string                `json:"jsonrpc"`
	Id      RequestId             `json:"id"`
	Error   BaseJSONRPCErrorInner `json:"error"`
}

// BaseJsonRpcMessage is one frame on the wire,
// exactly one of the typed fields is set according to Type.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

// NewBaseMessageRequest returns a request frame
func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

// NewBaseMessageNotification returns a notification frame
func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

// NewBaseMessageResponse returns a response frame
func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

// NewBaseMessageError returns an error frame
func NewBaseMessageError(response *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: response,
	}
}

// MessageID returns the ID of a request, response or error frame.
func (m *BaseJsonRpcMessage) MessageID() RequestId {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.Id
	case BaseMessageTypeJSONRPCResponseType:
		return m.JsonRpcResponse.Id
	case BaseMessageTypeJSONRPCErrorType:
		return m.JsonRpcError.Id
	}
	return 0
}

// MarshalJSON implements json.Marshaler
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, errors.Newf("unknown message type: %q", m.Type)
}

type probe struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Id      json.RawMessage `json:"id"`
	Error   json.RawMessage `json:"error"`
	Result  json.RawMessage `json:"result"`
}

// UnmarshalJSON implements json.Unmarshaler,
// the frame type is detected from the present fields.
func (m *BaseJsonRpcMessage) UnmarshalJSON(data []byte) error {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Wrap(err, "invalid JSON-RPC message")
	}
	if p.Jsonrpc != "2.0" {
		return errors.Newf("invalid JSON-RPC version: %q", p.Jsonrpc)
	}

	hasID := len(p.Id) > 0 && !bytes.Equal(p.Id, []byte("null"))
	switch {
	case p.Method != "" && hasID:
		var req BaseJSONRPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return errors.Wrap(err, "invalid JSON-RPC request")
		}
		*m = *NewBaseMessageRequest(&req)
	case p.Method != "":
		var n BaseJSONRPCNotification
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.Wrap(err, "invalid JSON-RPC notification")
		}
		*m = *NewBaseMessageNotification(&n)
	case len(p.Error) > 0:
		var e BaseJSONRPCError
		if err := json.Unmarshal(data, &e); err != nil {
			return errors.Wrap(err, "invalid JSON-RPC error")
		}
		*m = *NewBaseMessageError(&e)
	case hasID:
		var r BaseJSONRPCResponse
		if err := json.Unmarshal(data, &r); err != nil {
			return errors.Wrap(err, "invalid JSON-RPC response")
		}
		*m = *NewBaseMessageResponse(&r)
	default:
		return errors.New("invalid JSON-RPC message: no method or id")
	}
	return nil
}

// Transport carries JSON-RPC frames between the two protocol peers.
type Transport interface {
	// Start starts processing messages on the transport, it does not block.
	Start(ctx context.Context) error
	// Send sends a frame.
	Send(ctx context.Context, message *BaseJsonRpcMessage) error
	// Close closes the connection.
	Close() error
	// SetCloseHandler sets the callback for when the connection is closed for any reason.
	SetCloseHandler(handler func())
	// SetErrorHandler sets the callback for transport errors.
	SetErrorHandler(handler func(error))
	// SetMessageHandler sets the callback for received frames.
	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))
}
