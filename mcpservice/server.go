package mcpservice

import (
	"context"
	"errors"

	"github.com/ggoodman/mcp-file-server/mcp"
	"github.com/ggoodman/mcp-file-server/sessions"
)

// HandshakeObserver is invoked once a session becomes active. It can observe
// the negotiated session but cannot veto it: a returned error is logged and
// otherwise ignored.
type HandshakeObserver func(ctx context.Context, session sessions.Session) error

// ServerOption configures a Server.
type ServerOption func(*Server)

// Server bundles the static description of an MCP server: its identity,
// instructions, capabilities and the method registry the dispatcher routes
// requests through.
type Server struct {
	info         mcp.ImplementationInfo
	instructions string

	registry *Registry
	tools    *ToolsContainer
	logging  LoggingCapability
	observer HandshakeObserver

	extra []methodBinding
}

type methodBinding struct {
	method  string
	handler Handler
}

// NewServer builds a Server using functional options. Capability handlers are
// bound first, then handlers supplied through WithMethodHandler, so explicit
// bindings win.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		info:     mcp.ImplementationInfo{Name: "mcp-server", Version: "0.0.0"},
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tools != nil {
		s.tools.bind(s.registry)
	}
	if s.logging != nil {
		s.registry.Register(string(mcp.LoggingSetLevelMethod), loggingHandler(s.logging))
	}
	for _, b := range s.extra {
		s.registry.Register(b.method, b.handler)
	}
	return s
}

// WithServerInfo sets the server identity returned during initialize.
func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// WithInstructions sets human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.instructions = instr }
}

// WithToolsCapability advertises tools and serves tools/list and tools/call
// from the container.
func WithToolsCapability(tc *ToolsContainer) ServerOption {
	return func(s *Server) { s.tools = tc }
}

// WithLoggingCapability advertises logging and serves logging/setLevel.
func WithLoggingCapability(lc LoggingCapability) ServerOption {
	return func(s *Server) { s.logging = lc }
}

// WithHandshakeObserver registers a callback invoked after each successful
// initialize.
func WithHandshakeObserver(fn HandshakeObserver) ServerOption {
	return func(s *Server) { s.observer = fn }
}

// WithMethodHandler binds an additional method.
func WithMethodHandler(method string, h Handler) ServerOption {
	return func(s *Server) { s.extra = append(s.extra, methodBinding{method: method, handler: h}) }
}

// Info returns the server identity.
func (s *Server) Info() mcp.ImplementationInfo { return s.info }

// Instructions returns the initialize instructions, possibly empty.
func (s *Server) Instructions() string { return s.instructions }

// Registry returns the live method registry. Handlers registered after the
// server started are visible to subsequent requests.
func (s *Server) Registry() *Registry { return s.registry }

// Capabilities returns the capability set advertised during initialize.
func (s *Server) Capabilities() mcp.ServerCapabilities {
	var caps mcp.ServerCapabilities
	if s.tools != nil {
		caps.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{ListChanged: true}
	}
	if s.logging != nil {
		caps.Logging = &struct{}{}
	}
	return caps
}

// NegotiateProtocolVersion echoes requested when supported and falls back to
// the latest version otherwise.
func (s *Server) NegotiateProtocolVersion(requested string) string {
	if mcp.IsSupportedProtocolVersion(requested) {
		return requested
	}
	return mcp.LatestProtocolVersion
}

// ToolsChanged subscribes to tool set changes. The returned channel is
// signalled after every change and closed when the container is closed; stop
// releases the subscription. The channel is nil when the server has no tools
// capability.
func (s *Server) ToolsChanged() (ch <-chan struct{}, stop func()) {
	if s.tools == nil {
		return nil, func() {}
	}
	ch = s.tools.Subscriber()
	return ch, func() { s.tools.Unsubscribe(ch) }
}

// ObserveHandshake runs the handshake observer, if any. Panics are converted
// into errors so the caller only has to log the result.
func (s *Server) ObserveHandshake(ctx context.Context, session sessions.Session) (err error) {
	if s.observer == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(errObserverPanic, NewPanicError(r))
		}
	}()
	return s.observer(ctx, session)
}

var errObserverPanic = errors.New("handshake observer panicked")
