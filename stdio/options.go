package stdio

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// DefaultMaxFrameSize bounds a single inbound line.
const DefaultMaxFrameSize = 10 << 20

// Option customizes a Transport or a Handler.
type Option func(*config)

type config struct {
	r            io.Reader
	w            io.Writer
	l            *slog.Logger
	maxFrameSize int

	// handler only
	grace      time.Duration
	signals    []os.Signal
	signalsSet bool
}

func newConfig(opts []Option) config {
	c := config{
		r:            os.Stdin,
		w:            os.Stdout,
		l:            slog.Default(),
		maxFrameSize: DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithIO sets the reader and writer.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(c *config) {
		if r != nil {
			c.r = r
		}
		if w != nil {
			c.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(c *config) {
		if r != nil {
			c.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.l = l
		}
	}
}

// WithMaxFrameSize bounds the size of one inbound line. Non-positive values
// are ignored.
func WithMaxFrameSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxFrameSize = n
		}
	}
}

// WithGracePeriod bounds how long Handler.Serve waits for in-flight requests
// during shutdown.
func WithGracePeriod(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithShutdownSignals overrides the signals that trigger a graceful shutdown
// in Handler.Serve. Passing no signals disables signal handling.
func WithShutdownSignals(sigs ...os.Signal) Option {
	return func(c *config) {
		c.signals = sigs
		c.signalsSet = true
	}
}
