// Package httptransport hosts a tool registry over plain HTTP.
//
// Routes:
//
//	GET  /health         liveness probe
//	GET  /tools          tool catalog
//	POST /tools/execute  invoke a tool with {name, arguments}
package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/tools"
	"github.com/effective-security/xlog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/mcp/transport", "httptransport")

// Routes
const (
	PathHealth  = "/health"
	PathTools   = "/tools"
	PathExecute = "/tools/execute"
)

// HeaderRequestID carries the request ID.
const HeaderRequestID = "X-Request-ID"

// ServerName is reported by the health probe.
const ServerName = "MCP HTTP"

// MaxBodySize is the maximum size of a request body.
const MaxBodySize = 1024 * 1024

// HealthResponse is the response of GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Server string `json:"server"`
}

// ToolsResponse is the response of GET /tools
type ToolsResponse struct {
	Tools []chatmodel.ToolDefinition `json:"tools"`
}

// ExecuteRequest is the body of POST /tools/execute
type ExecuteRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ExecuteResponse is the response of POST /tools/execute
type ExecuteResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

// ErrorResponse is returned with non-2xx status codes
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Host serves the tools of a registry over HTTP.
type Host struct {
	registry *tools.Registry
	router   chi.Router
	server   *http.Server
}

// New returns a host for the registry.
func New(registry *tools.Registry) *Host {
	h := &Host{
		registry: registry,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(middleware.Recoverer)

	r.Get(PathHealth, h.handleHealth)
	r.Get(PathTools, h.handleListTools)
	r.Post(PathExecute, h.handleExecute)

	h.router = r
	return h
}

// Handler returns the HTTP handler of the host.
func (h *Host) Handler() http.Handler {
	return h.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (h *Host) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return h.Serve(ctx, ln)
}

// Serve serves on the listener until ctx is cancelled.
func (h *Host) Serve(ctx context.Context, ln net.Listener) error {
	h.server = &http.Server{
		Handler:           h.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.server.Shutdown(shutdownCtx)
	}()

	logger.KV(xlog.INFO, "status", "listening", "addr", ln.Addr().String(), "tools", len(h.registry.Names()))

	err := h.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.WithStack(err)
}

func (h *Host) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Server: ServerName})
}

func (h *Host) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ToolsResponse{Tools: h.registry.Define()})
}

func (h *Host) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readBody(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
		return
	}

	var req ExecuteRequest
	if err = json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: "invalid request: " + err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: "tool name is required"})
		return
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "executing",
		"tool", req.Name,
		"request_id", w.Header().Get(HeaderRequestID),
	)

	res := h.registry.Execute(ctx, req.Name, req.Arguments)
	writeJSON(w, http.StatusOK, ExecuteResponse{
		Success: res.Success,
		Result:  res.Text(),
	})
}

func readBody(body io.ReadCloser) ([]byte, error) {
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, MaxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read request body")
	}
	if len(data) > MaxBodySize {
		return nil, errors.New("request body too large")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// requestID echoes the caller's request ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}
