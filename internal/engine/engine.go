// Package engine routes decoded JSON-RPC traffic for a single MCP session:
// it owns the session state machine, runs the initialize handshake, executes
// registry handlers concurrently and drains them on shutdown.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-file-server/internal/jsonrpc"
	"github.com/ggoodman/mcp-file-server/internal/logctx"
	"github.com/ggoodman/mcp-file-server/internal/outbound"
	"github.com/ggoodman/mcp-file-server/mcp"
	"github.com/ggoodman/mcp-file-server/mcpservice"
	"github.com/ggoodman/mcp-file-server/sessions"
	"github.com/ggoodman/mcp-file-server/transport"
)

var (
	// ErrGracePeriodExpired is the cancellation cause of handlers still
	// running when the shutdown grace period ends.
	ErrGracePeriodExpired = errors.New("shutdown grace period expired")
	// ErrRequestCancelled is the cancellation cause of a handler whose
	// request the client cancelled.
	ErrRequestCancelled = errors.New("request cancelled by client")
	// ErrSessionClosed fails server-initiated calls still pending at shutdown.
	ErrSessionClosed = errors.New("session closed")
)

// Dispatcher serves one session over a transport.Transport.
type Dispatcher struct {
	t   transport.Transport
	srv *mcpservice.Server
	log *slog.Logger

	sess *session
	out  *outbound.Dispatcher

	serving atomic.Bool

	mu       sync.Mutex
	inflight map[string]context.CancelCauseFunc // id.Key() -> cancel
	draining bool
	handlers sync.WaitGroup

	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// New constructs a Dispatcher. The transport must be opened by the caller
// before Serve.
func New(t transport.Transport, srv *mcpservice.Server, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		t:        t,
		srv:      srv,
		log:      slog.Default(),
		sess:     newSession(),
		inflight: make(map[string]context.CancelCauseFunc),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.out = outbound.New(outboundSender{d: d})
	return d
}

// Session returns a read-only view of the session served by d.
func (d *Dispatcher) Session() sessions.Session { return d.sess }

// Serve consumes inbound frames until the peer closes the stream or the
// transport is closed, in which case it returns nil. A receive failure is
// returned as a *transport.Error. Handlers started by Serve may outlive it;
// Shutdown waits for them.
//
// Handler contexts carry the values of ctx but not its cancellation. They
// are cancelled individually by notifications/cancelled and collectively
// when the Shutdown grace period expires.
func (d *Dispatcher) Serve(ctx context.Context) error {
	if !d.serving.CompareAndSwap(false, true) {
		return errors.New("engine: Serve called twice")
	}
	d.log.InfoContext(ctx, "engine.serve.start", slog.String("session_id", d.sess.id))
	for frame, err := range d.t.Receive() {
		if err != nil {
			d.log.ErrorContext(ctx, "engine.serve.receive_fail", slog.String("err", err.Error()))
			return transport.Wrap("receive", err)
		}
		d.handleFrame(ctx, frame)
	}
	d.log.InfoContext(ctx, "engine.serve.end")
	return nil
}

func (d *Dispatcher) handleFrame(ctx context.Context, frame []byte) {
	msg, err := jsonrpc.Decode(frame)
	if err != nil {
		id := jsonrpc.PeekID(frame)
		if id == nil {
			d.log.WarnContext(ctx, "engine.decode.drop", slog.String("err", err.Error()), slog.Int("bytes", len(frame)))
			return
		}
		d.replyError(ctx, id, mcpservice.MalformedMessage(err))
		return
	}

	switch msg.Type() {
	case jsonrpc.TypeResponse:
		d.handleResponse(ctx, msg.AsResponse())
	case jsonrpc.TypeNotification:
		d.handleNotification(ctx, msg.AsRequest())
	default:
		d.handleRequest(ctx, msg.AsRequest())
	}
}

func (d *Dispatcher) requestContext(ctx context.Context, req *jsonrpc.Request) context.Context {
	typ := jsonrpc.TypeRequest
	id := ""
	if req.ID == nil {
		typ = jsonrpc.TypeNotification
	} else {
		id = req.ID.String()
	}
	ctx = logctx.WithSessionData(ctx, d.sess.logData())
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: id, Type: typ})
	return sessions.WithSession(ctx, d.sess)
}

func (d *Dispatcher) handleRequest(ctx context.Context, req *jsonrpc.Request) {
	ctx = d.requestContext(ctx, req)

	if d.isDraining() {
		d.replyError(ctx, req.ID, errShuttingDown())
		return
	}

	state := d.sess.State()
	switch {
	case req.Method == string(mcp.InitializeMethod):
		if state != sessions.StatePending {
			d.replyError(ctx, req.ID, mcpservice.InvalidHandshake("session already initialized"))
			return
		}
		d.handshake(ctx, req)
		return
	case state != sessions.StateActive:
		d.replyError(ctx, req.ID, mcpservice.SessionNotReady(req.Method))
		return
	case req.Method == string(mcp.PingMethod):
		d.replyResult(ctx, req.ID, &mcp.EmptyResult{})
		return
	}

	h, ok := d.srv.Registry().Resolve(req.Method)
	if !ok {
		d.replyError(ctx, req.ID, mcpservice.MethodNotFound(req.Method))
		return
	}
	d.startHandler(ctx, req, h)
}

func (d *Dispatcher) startHandler(ctx context.Context, req *jsonrpc.Request, h mcpservice.Handler) {
	key := req.ID.Key()

	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		d.replyError(ctx, req.ID, errShuttingDown())
		return
	}
	if _, dup := d.inflight[key]; dup {
		d.mu.Unlock()
		d.replyError(ctx, req.ID, mcpservice.MalformedMessage(fmt.Errorf("duplicate in-flight request id %s", req.ID)))
		return
	}
	hctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	d.inflight[key] = cancel
	d.handlers.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.handlers.Done()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, key)
			d.mu.Unlock()
			cancel(context.Canceled)
		}()
		d.runHandler(hctx, req, h)
	}()
}

func (d *Dispatcher) runHandler(ctx context.Context, req *jsonrpc.Request, h mcpservice.Handler) {
	start := time.Now()
	res, err := invoke(ctx, h, &mcpservice.Request{Method: req.Method, Params: req.Params, Session: d.sess})
	if err != nil {
		perr := mcpservice.AsProtocolError(err)
		d.logHandlerError(ctx, perr, start)
		d.replyError(ctx, req.ID, perr)
		return
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, res)
	if err != nil {
		perr := mcpservice.InternalError(err)
		d.logHandlerError(ctx, perr, start)
		d.replyError(ctx, req.ID, perr)
		return
	}
	if err := d.send(ctx, resp); err != nil {
		d.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return
	}
	if cause := context.Cause(ctx); cause != nil {
		d.log.InfoContext(ctx, "engine.handle_request.cancelled", slog.String("cause", cause.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return
	}
	d.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func invoke(ctx context.Context, h mcpservice.Handler, req *mcpservice.Request) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = mcpservice.InternalError(mcpservice.NewPanicError(r))
		}
	}()
	return h.Handle(ctx, req)
}

func (d *Dispatcher) logHandlerError(ctx context.Context, perr *mcpservice.ProtocolError, start time.Time) {
	dur := slog.Int64("dur_ms", time.Since(start).Milliseconds())
	if perr.Kind != mcpservice.KindInternalError {
		d.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", perr.Error()), dur)
		return
	}
	var pe *mcpservice.PanicError
	if errors.As(perr, &pe) {
		d.log.ErrorContext(ctx, "engine.handle_request.panic", slog.Any("panic", pe.Value), slog.String("stack", string(pe.Stack)), dur)
		return
	}
	d.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", perr.Error()), dur)
}

func (d *Dispatcher) handleNotification(ctx context.Context, n *jsonrpc.Request) {
	ctx = d.requestContext(ctx, n)

	if d.sess.State() != sessions.StateActive {
		d.log.DebugContext(ctx, "engine.notification.drop", slog.String("state", d.sess.State().String()))
		return
	}

	switch n.Method {
	case string(mcp.InitializedNotificationMethod):
		d.sess.initialized.Store(true)
		d.log.DebugContext(ctx, "engine.notification.initialized")
	case string(mcp.CancelledNotificationMethod):
		var p mcp.CancelledNotification
		if err := json.Unmarshal(n.Params, &p); err != nil || len(p.RequestID) == 0 {
			d.log.WarnContext(ctx, "engine.notification.cancelled.invalid")
			return
		}
		if d.cancelInflight(p.RequestID, p.Reason) {
			d.log.InfoContext(ctx, "engine.notification.cancelled", slog.String("request_id", string(p.RequestID)))
			return
		}
		if d.out.OnCancelled(&p) {
			d.log.InfoContext(ctx, "engine.notification.cancelled.outbound", slog.String("request_id", string(p.RequestID)))
			return
		}
		d.log.DebugContext(ctx, "engine.notification.cancelled.unknown", slog.String("request_id", string(p.RequestID)))
	default:
		d.log.DebugContext(ctx, "engine.notification.ignored")
	}
}

func (d *Dispatcher) cancelInflight(rawID json.RawMessage, reason string) bool {
	var id jsonrpc.RequestID
	if err := json.Unmarshal(rawID, &id); err != nil || id.IsNil() {
		return false
	}
	d.mu.Lock()
	cancel, ok := d.inflight[id.Key()]
	d.mu.Unlock()
	if !ok {
		return false
	}
	cause := ErrRequestCancelled
	if reason != "" {
		cause = fmt.Errorf("%w: %s", ErrRequestCancelled, reason)
	}
	cancel(cause)
	return true
}

func (d *Dispatcher) handleResponse(ctx context.Context, resp *jsonrpc.Response) {
	if d.out.OnResponse(resp) {
		return
	}
	id := ""
	if resp.ID != nil {
		id = resp.ID.String()
	}
	err := mcpservice.MalformedMessage(errors.New("response matches no pending request"))
	d.log.WarnContext(ctx, "engine.response.unmatched", slog.String("id", id), slog.String("err", err.Error()))
}

// Ping sends a ping to the client and waits for its reply.
func (d *Dispatcher) Ping(ctx context.Context) error {
	if d.sess.State() != sessions.StateActive {
		return mcpservice.SessionNotReady(string(mcp.PingMethod))
	}
	_, err := d.out.Call(ctx, string(mcp.PingMethod), nil)
	return err
}

// Shutdown stops accepting requests and waits for in-flight handlers. If ctx
// ends first, the remaining handlers are cancelled with ErrGracePeriodExpired
// and the returned error wraps both that cause and ctx.Err(). The session is
// Closed when Shutdown returns.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	pending := len(d.inflight)
	d.mu.Unlock()
	d.doneOnce.Do(func() { close(d.done) })

	d.log.InfoContext(ctx, "engine.shutdown.start", slog.Int("inflight", pending))

	drained := make(chan struct{})
	go func() {
		d.handlers.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
		d.log.InfoContext(ctx, "engine.shutdown.drained")
	case <-ctx.Done():
		d.mu.Lock()
		abandoned := len(d.inflight)
		for _, cancel := range d.inflight {
			cancel(ErrGracePeriodExpired)
		}
		d.mu.Unlock()
		d.log.WarnContext(ctx, "engine.shutdown.grace_expired", slog.Int("abandoned", abandoned))
		err = fmt.Errorf("%w: %w", ErrGracePeriodExpired, ctx.Err())
	}

	d.sess.close()
	d.out.Close(ErrSessionClosed)
	return err
}

func (d *Dispatcher) isDraining() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draining
}

func errShuttingDown() *mcpservice.ProtocolError {
	return &mcpservice.ProtocolError{Kind: mcpservice.KindInternalError, Message: "server is shutting down"}
}

// startToolsForwarder relays tool set changes as list_changed notifications
// until Shutdown.
func (d *Dispatcher) startToolsForwarder(ctx context.Context) {
	ch, stop := d.srv.ToolsChanged()
	if ch == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer stop()
		for {
			select {
			case <-d.done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				if err := d.notify(ctx, string(mcp.ToolsListChangedNotificationMethod), nil); err != nil {
					d.log.WarnContext(ctx, "engine.tools.list_changed.fail", slog.String("err", err.Error()))
					continue
				}
				d.log.DebugContext(ctx, "engine.tools.list_changed")
			}
		}
	}()
}

func (d *Dispatcher) replyResult(ctx context.Context, id *jsonrpc.RequestID, result any) {
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		d.replyError(ctx, id, mcpservice.InternalError(err))
		return
	}
	if err := d.send(ctx, resp); err != nil {
		d.log.ErrorContext(ctx, "engine.reply.fail", slog.String("err", err.Error()))
	}
}

func (d *Dispatcher) replyError(ctx context.Context, id *jsonrpc.RequestID, perr *mcpservice.ProtocolError) {
	if id.IsNil() {
		d.log.WarnContext(ctx, "engine.reply.no_id", slog.String("err", perr.Error()))
		return
	}
	code, message, data := wireError(perr)
	if perr.Kind != mcpservice.KindInternalError {
		d.log.InfoContext(ctx, "engine.reply.error", slog.Int("code", int(code)), slog.String("err", perr.Error()))
	}
	if err := d.send(ctx, jsonrpc.NewErrorResponse(id, code, message, data)); err != nil {
		d.log.ErrorContext(ctx, "engine.reply.fail", slog.String("err", err.Error()))
	}
}

// wireError maps a ProtocolError onto a JSON-RPC error object. Causes stay
// out of the wire message.
func wireError(perr *mcpservice.ProtocolError) (jsonrpc.ErrorCode, string, any) {
	msg := perr.Message
	switch perr.Kind {
	case mcpservice.KindMalformedMessage:
		return jsonrpc.ErrorCodeInvalidRequest, msg, nil
	case mcpservice.KindMethodNotFound:
		return jsonrpc.ErrorCodeMethodNotFound, msg, map[string]string{"method": perr.Method}
	case mcpservice.KindInvalidParams, mcpservice.KindInvalidHandshake:
		return jsonrpc.ErrorCodeInvalidParams, msg, nil
	case mcpservice.KindSessionNotReady:
		return jsonrpc.ErrorCodeSessionNotReady, msg, nil
	default:
		if msg == "" {
			msg = "internal error"
		}
		return jsonrpc.ErrorCodeInternalError, msg, nil
	}
}

// send writes msg regardless of ctx cancellation so a cancelled handler
// still delivers its response.
func (d *Dispatcher) send(ctx context.Context, msg any) error {
	frame, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	return d.t.Send(context.WithoutCancel(ctx), frame)
}

func (d *Dispatcher) notify(ctx context.Context, method string, params any) error {
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return d.send(ctx, n)
}

// outboundSender carries server-initiated requests over the dispatcher's
// transport.
type outboundSender struct {
	d *Dispatcher
}

func (s outboundSender) SendRequest(ctx context.Context, req *jsonrpc.Request) error {
	return s.d.send(ctx, req)
}

func (s outboundSender) SendCancelled(ctx context.Context, id *jsonrpc.RequestID) error {
	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return s.d.notify(ctx, string(mcp.CancelledNotificationMethod), &mcp.CancelledNotification{RequestID: raw})
}
