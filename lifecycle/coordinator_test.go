package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

type fakeTransport struct {
	mu       sync.Mutex
	openErr  error
	closeErr error
	opened   bool
	closes   int
	closed   chan struct{}
	once     sync.Once
	events   *eventLog
}

func newFakeTransport(ev *eventLog) *fakeTransport {
	return &fakeTransport{closed: make(chan struct{}), events: ev}
}

func (f *fakeTransport) Open(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.events.add("close")
	f.once.Do(func() { close(f.closed) })
	return f.closeErr
}

// fakeDispatcher serves until the transport closes, or returns serveErr as
// soon as it is released.
type fakeDispatcher struct {
	t        *fakeTransport
	serveErr error
	release  chan struct{}
	events   *eventLog

	served   chan struct{}
	shutdown func(ctx context.Context) error
}

func (f *fakeDispatcher) Serve(ctx context.Context) error {
	close(f.served)
	select {
	case <-f.t.closed:
		return nil
	case <-f.release:
		return f.serveErr
	}
}

func (f *fakeDispatcher) Shutdown(ctx context.Context) error {
	f.events.add("shutdown")
	if f.shutdown != nil {
		return f.shutdown(ctx)
	}
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(s string) {
	e.mu.Lock()
	e.events = append(e.events, s)
	e.mu.Unlock()
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

// fakeSignals captures the channel registered by the coordinator.
type fakeSignals struct {
	mu      sync.Mutex
	ch      chan<- os.Signal
	sigs    []os.Signal
	stopped bool
	ready   chan struct{}
}

func newFakeSignals() *fakeSignals { return &fakeSignals{ready: make(chan struct{})} }

func (s *fakeSignals) notify(c chan<- os.Signal, sig ...os.Signal) {
	s.mu.Lock()
	s.ch = c
	s.sigs = sig
	s.mu.Unlock()
	close(s.ready)
}

func (s *fakeSignals) stop(c chan<- os.Signal) {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *fakeSignals) send(t *testing.T, sig os.Signal) {
	t.Helper()
	<-s.ready
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	select {
	case ch <- sig:
	case <-time.After(time.Second):
		t.Fatalf("signal %v was not consumed", sig)
	}
}

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *fakeTransport, *fakeDispatcher, *fakeSignals) {
	t.Helper()
	ev := &eventLog{}
	tr := newFakeTransport(ev)
	d := &fakeDispatcher{t: tr, release: make(chan struct{}), served: make(chan struct{}), events: ev}
	sigs := newFakeSignals()
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSignalNotifier(sigs.notify, sigs.stop),
	}
	return New(tr, d, append(base, opts...)...), tr, d, sigs
}

func runAsync(c *Coordinator, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

func TestRun_SignalDrainsThenCloses(t *testing.T) {
	var deadline time.Time
	c, tr, d, sigs := newTestCoordinator(t, WithGracePeriod(time.Second))
	d.shutdown = func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}
	start := time.Now()
	done := runAsync(c, context.Background())
	<-d.served

	sigs.send(t, syscall.SIGTERM)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := d.events.list(); len(got) != 2 || got[0] != "shutdown" || got[1] != "close" {
		t.Fatalf("expected shutdown before close, got %v", got)
	}
	if deadline.IsZero() || deadline.Sub(start) > 2*time.Second {
		t.Fatalf("shutdown context must be bounded by the grace period, deadline %v", deadline)
	}
	if tr.closes != 1 {
		t.Fatalf("expected one close, got %d", tr.closes)
	}
	sigs.mu.Lock()
	defer sigs.mu.Unlock()
	if !sigs.stopped {
		t.Fatalf("signal channel was not released")
	}
	if len(sigs.sigs) != 2 {
		t.Fatalf("expected SIGINT and SIGTERM by default, got %v", sigs.sigs)
	}
}

func TestRun_RepeatedSignalsIgnored(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	c, _, d, sigs := newTestCoordinator(t)
	d.shutdown = func(ctx context.Context) error {
		close(entered)
		<-release
		return nil
	}
	done := runAsync(c, context.Background())
	<-d.served

	sigs.send(t, os.Interrupt)
	<-entered
	// a second signal while draining must not abort the drain
	sigs.send(t, os.Interrupt)
	select {
	case <-done:
		t.Fatalf("Run returned before the drain finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_GraceExpiryIsNotAnError(t *testing.T) {
	c, tr, d, sigs := newTestCoordinator(t, WithGracePeriod(10*time.Millisecond))
	d.shutdown = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	done := runAsync(c, context.Background())
	<-d.served
	sigs.send(t, syscall.SIGINT)
	if err := waitRun(t, done); err != nil {
		t.Fatalf("grace expiry must not fail Run, got %v", err)
	}
	if tr.closes != 1 {
		t.Fatalf("transport must be closed after the grace period")
	}
}

func TestRun_ServeFailure(t *testing.T) {
	c, _, d, _ := newTestCoordinator(t)
	d.serveErr = errors.New("transport receive: broken pipe")
	done := runAsync(c, context.Background())
	<-d.served
	close(d.release)

	err := waitRun(t, done)
	if !errors.Is(err, d.serveErr) {
		t.Fatalf("expected serve error, got %v", err)
	}
	if got := d.events.list(); len(got) == 0 || got[0] != "shutdown" {
		t.Fatalf("expected shutdown after serve failure, got %v", got)
	}
}

func TestRun_PeerCloseEndsRun(t *testing.T) {
	c, tr, d, _ := newTestCoordinator(t)
	tr.closeErr = errors.New("close failed")
	done := runAsync(c, context.Background())
	<-d.served
	close(d.release)

	if err := waitRun(t, done); !errors.Is(err, tr.closeErr) {
		t.Fatalf("expected close error to be reported, got %v", err)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	c, tr, d, _ := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(c, ctx)
	<-d.served
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tr.closes != 1 {
		t.Fatalf("expected transport close")
	}
}

func TestRun_OpenFailure(t *testing.T) {
	c, tr, d, sigs := newTestCoordinator(t)
	tr.openErr = errors.New("stdin is closed")
	if err := c.Run(context.Background()); !errors.Is(err, tr.openErr) {
		t.Fatalf("expected open error, got %v", err)
	}
	select {
	case <-d.served:
		t.Fatalf("Serve must not run when Open fails")
	default:
	}
	if !sigs.stopped {
		t.Fatalf("signal channel was not released")
	}
}
