package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/ggoodman/mcp-file-server/transport"
)

// ErrFrameTooLarge is yielded by Receive when a line exceeds the configured
// maximum frame size. The stream is unusable afterwards.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

var errNotOpen = errors.New("transport not open")

// Transport is a newline-delimited transport.Transport over an io.Reader and
// an io.Writer, by default os.Stdin and os.Stdout.
//
// Receiving is done by a single goroutine started in Open, so a read blocked
// on the peer never prevents Close from ending the Receive sequence.
type Transport struct {
	r        io.Reader
	w        io.Writer
	l        *slog.Logger
	maxFrame int

	opened   atomic.Bool
	consumed atomic.Bool
	frames   chan received

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

type received struct {
	frame []byte
	err   error
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport constructs a Transport. Options other than WithIO, WithReader,
// WithWriter, WithLogger and WithMaxFrameSize are ignored.
func NewTransport(opts ...Option) *Transport {
	c := newConfig(opts)
	return newTransport(c)
}

func newTransport(c config) *Transport {
	return &Transport{
		r:        c.r,
		w:        c.w,
		l:        c.l,
		maxFrame: c.maxFrameSize,
		frames:   make(chan received),
		closed:   make(chan struct{}),
	}
}

// Open validates the streams and starts the reader goroutine.
func (t *Transport) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &transport.Error{Op: "open", Err: err}
	}
	select {
	case <-t.closed:
		return &transport.Error{Op: "open", Err: transport.ErrClosed}
	default:
	}
	if t.r == nil || t.w == nil {
		return &transport.Error{Op: "open", Err: errors.New("reader and writer are required")}
	}
	for _, s := range []any{t.r, t.w} {
		if f, ok := s.(*os.File); ok {
			if _, err := f.Stat(); err != nil {
				return &transport.Error{Op: "open", Err: err}
			}
		}
	}
	if !t.opened.CompareAndSwap(false, true) {
		return &transport.Error{Op: "open", Err: errors.New("transport already open")}
	}
	go t.readLoop()
	return nil
}

func (t *Transport) readLoop() {
	defer close(t.frames)
	br := bufio.NewReaderSize(t.r, 64<<10)
	for {
		frame, err := t.readFrame(br)
		if frame != nil {
			select {
			case t.frames <- received{frame: frame}:
			case <-t.closed:
				return
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			t.l.Debug("stdio.receive.eof")
			return
		}
		select {
		case t.frames <- received{err: &transport.Error{Op: "receive", Err: err}}:
		case <-t.closed:
		}
		return
	}
}

// readFrame returns the next non-blank line without its terminator. At EOF
// a final unterminated line is returned together with io.EOF.
func (t *Transport) readFrame(br *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		// the limit applies to the content; the terminator is not counted
		if len(bytes.TrimRight(line, "\r\n")) > t.maxFrame {
			t.l.Warn("stdio.receive.frame_too_large", slog.Int("max_bytes", t.maxFrame))
			return nil, fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, t.maxFrame)
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err != nil:
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				return trimmed, err
			}
			return nil, err
		}
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			return trimmed, nil
		}
		line = line[:0]
	}
}

// Receive returns the inbound frame sequence. See transport.Transport.
func (t *Transport) Receive() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if !t.opened.Load() {
			yield(nil, &transport.Error{Op: "receive", Err: errNotOpen})
			return
		}
		if !t.consumed.CompareAndSwap(false, true) {
			yield(nil, &transport.Error{Op: "receive", Err: transport.ErrClosed})
			return
		}
		for {
			select {
			case <-t.closed:
				return
			case r, ok := <-t.frames:
				if !ok {
					return
				}
				if !yield(r.frame, r.err) || r.err != nil {
					return
				}
			}
		}
	}
}

// Send writes frame followed by a newline in a single Write call while holding
// the write lock, so concurrent sends never interleave.
func (t *Transport) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bytes.IndexByte(frame, '\n') >= 0 {
		return errors.New("stdio: frame contains a newline")
	}
	if !t.opened.Load() {
		return &transport.Error{Op: "send", Err: errNotOpen}
	}

	buf := make([]byte, len(frame)+1)
	copy(buf, frame)
	buf[len(frame)] = '\n'

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.closed:
		return &transport.Error{Op: "send", Err: transport.ErrClosed}
	default:
	}
	if _, err := t.w.Write(buf); err != nil {
		return &transport.Error{Op: "send", Err: err}
	}
	return nil
}

// Close ends the Receive sequence, fails further sends and closes the
// underlying streams when they implement io.Closer. Only the first call does
// any work.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		var errs []error
		if c, ok := t.r.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		if c, ok := t.w.(io.Closer); ok && !sameStream(t.r, t.w) {
			errs = append(errs, c.Close())
		}
		if joined := errors.Join(errs...); joined != nil {
			err = &transport.Error{Op: "close", Err: joined}
		}
	})
	return err
}

// sameStream reports whether r and w are the same object, as with an
// io.ReadWriteCloser passed for both ends.
func sameStream(r io.Reader, w io.Writer) bool {
	rt := reflect.TypeOf(r)
	if rt == nil || rt != reflect.TypeOf(w) || !rt.Comparable() {
		return false
	}
	return any(r) == any(w)
}
