package stdio

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/ggoodman/mcp-file-server/internal/engine"
	"github.com/ggoodman/mcp-file-server/lifecycle"
	"github.com/ggoodman/mcp-file-server/mcpservice"
	"github.com/ggoodman/mcp-file-server/sessions"
)

// ErrNotServing is returned by Handler methods that need a running session.
var ErrNotServing = errors.New("stdio: handler is not serving")

// Handler serves a single MCP session over stdin and stdout (or the streams
// given with WithIO). It wires a Transport, the dispatcher and a lifecycle
// coordinator together.
type Handler struct {
	srv *mcpservice.Server
	cfg config

	mu      sync.Mutex
	started bool
	d       *engine.Dispatcher
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(srv *mcpservice.Server, opts ...Option) *Handler {
	return &Handler{srv: srv, cfg: newConfig(opts)}
}

// Serve runs the session until the peer closes the input stream, a shutdown
// signal arrives or ctx ends. In-flight requests are given the grace period
// to finish before the streams are closed. A nil error means a clean stop.
// Serve may be called at most once.
func (h *Handler) Serve(ctx context.Context) error {
	t := newTransport(h.cfg)
	d := engine.New(t, h.srv, engine.WithLogger(h.cfg.l))

	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.New("stdio: Serve called twice")
	}
	h.started = true
	h.d = d
	h.mu.Unlock()

	opts := []lifecycle.Option{
		lifecycle.WithLogger(h.cfg.l),
		lifecycle.WithGracePeriod(h.cfg.grace),
	}
	if h.cfg.signalsSet {
		if len(h.cfg.signals) == 0 {
			opts = append(opts, lifecycle.WithSignalNotifier(func(chan<- os.Signal, ...os.Signal) {}, func(chan<- os.Signal) {}))
		} else {
			opts = append(opts, lifecycle.WithSignals(h.cfg.signals...))
		}
	}
	return lifecycle.New(t, d, opts...).Run(ctx)
}

// Session returns the session being served, or nil before Serve.
func (h *Handler) Session() sessions.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.d == nil {
		return nil
	}
	return h.d.Session()
}

// Ping sends a ping to the client and waits for the reply.
func (h *Handler) Ping(ctx context.Context) error {
	h.mu.Lock()
	d := h.d
	h.mu.Unlock()
	if d == nil {
		return ErrNotServing
	}
	return d.Ping(ctx)
}
