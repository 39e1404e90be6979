package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/ggoodman/mcp-file-server/sessions"
)

// Request is an inbound JSON-RPC request routed to a Handler.
type Request struct {
	Method  string
	Params  json.RawMessage
	Session sessions.Session
}

// Handler serves one method. The returned value is marshaled as the JSON-RPC
// result. Errors of type *ProtocolError are reported with their kind; any
// other error is reported as an internal error.
type Handler interface {
	Handle(ctx context.Context, req *Request) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, req *Request) (any, error) {
	return f(ctx, req)
}

// Typed wraps fn with parameter decoding into P. Absent or null params decode
// into the zero P. Decoding failures become InvalidParams errors.
func Typed[P, R any](fn func(ctx context.Context, session sessions.Session, params *P) (R, error)) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (any, error) {
		var p P
		if raw := bytes.TrimSpace(req.Params); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, InvalidParams("invalid params", err)
			}
		}
		return fn(ctx, req.Session, &p)
	})
}

// Registry maps method names to handlers. Each method slot is independently
// mutable; lookups always observe the latest binding.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to method, replacing any previous binding. A request that
// was already routed keeps running against the handler it resolved. A nil h
// removes the binding.
func (r *Registry) Register(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil {
		delete(r.handlers, method)
		return
	}
	r.handlers[method] = h
}

// Resolve returns the handler bound to method.
func (r *Registry) Resolve(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Methods lists the bound method names in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	r.mu.RUnlock()
	slices.Sort(out)
	return out
}
