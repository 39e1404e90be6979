package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultGracePeriod bounds how long in-flight handlers may keep running
// after shutdown starts.
const DefaultGracePeriod = 5 * time.Second

// Transport is the part of transport.Transport the coordinator drives.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
}

// Dispatcher is the part of engine.Dispatcher the coordinator drives.
type Dispatcher interface {
	Serve(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Coordinator owns process-level start and stop for one session.
type Coordinator struct {
	t   Transport
	d   Dispatcher
	log *slog.Logger

	grace   time.Duration
	signals []os.Signal
	notify  func(c chan<- os.Signal, sig ...os.Signal)
	stop    func(c chan<- os.Signal)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithGracePeriod overrides DefaultGracePeriod. Non-positive values are
// ignored.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithSignals replaces the termination signals, SIGINT and SIGTERM by
// default.
func WithSignals(sigs ...os.Signal) Option {
	return func(c *Coordinator) {
		if len(sigs) > 0 {
			c.signals = sigs
		}
	}
}

// WithSignalNotifier replaces signal.Notify and signal.Stop, which lets tests
// deliver signals without touching the process.
func WithSignalNotifier(notify func(c chan<- os.Signal, sig ...os.Signal), stop func(c chan<- os.Signal)) Option {
	return func(c *Coordinator) {
		if notify != nil && stop != nil {
			c.notify = notify
			c.stop = stop
		}
	}
}

// New constructs a Coordinator.
func New(t Transport, d Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		t:       t,
		d:       d,
		log:     slog.Default(),
		grace:   DefaultGracePeriod,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		notify:  signal.Notify,
		stop:    signal.Stop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run opens the transport and serves until a termination signal arrives, the
// peer closes the stream or ctx ends. It then shuts the dispatcher down within
// the grace period and closes the transport.
//
// The returned error is the dispatcher's transport failure, if any, joined
// with a failure to close the transport. An expired grace period is logged,
// not returned.
func (c *Coordinator) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	c.notify(sigCh, c.signals...)
	defer c.stop(sigCh)

	if err := c.t.Open(ctx); err != nil {
		c.log.ErrorContext(ctx, "lifecycle.open.fail", slog.String("err", err.Error()))
		return err
	}

	var g errgroup.Group
	served := make(chan struct{})
	g.Go(func() error {
		defer close(served)
		return c.d.Serve(ctx)
	})
	c.log.InfoContext(ctx, "lifecycle.run.start", slog.Duration("grace", c.grace))

	select {
	case sig := <-sigCh:
		c.log.InfoContext(ctx, "lifecycle.signal", slog.String("signal", sig.String()))
	case <-served:
		c.log.InfoContext(ctx, "lifecycle.serve.ended")
	case <-ctx.Done():
		c.log.InfoContext(ctx, "lifecycle.context.done", slog.String("err", context.Cause(ctx).Error()))
	}

	ignoring := make(chan struct{})
	defer close(ignoring)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				c.log.WarnContext(ctx, "lifecycle.signal.ignored", slog.String("signal", sig.String()))
			case <-ignoring:
				return
			}
		}
	}()

	start := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.grace)
	defer cancel()
	if err := c.d.Shutdown(shutdownCtx); err != nil {
		c.log.WarnContext(ctx, "lifecycle.shutdown.grace_expired", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	} else {
		c.log.InfoContext(ctx, "lifecycle.shutdown.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	}

	closeErr := c.t.Close()
	if closeErr != nil {
		c.log.ErrorContext(ctx, "lifecycle.close.fail", slog.String("err", closeErr.Error()))
	}
	serveErr := g.Wait()
	if serveErr != nil {
		c.log.ErrorContext(ctx, "lifecycle.serve.fail", slog.String("err", serveErr.Error()))
	}
	return errors.Join(serveErr, closeErr)
}
