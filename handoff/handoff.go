// Package handoff bridges a capture callback running on a goroutine this
// package does not control to a synchronous pull.
//
// A Buffer is a single slot shared by exactly one producer, the capture
// callback, and one consumer, the goroutine calling Stream.Next. The slot
// is either Empty, Filled or Error:
//
//	Empty  -> Filled  producer decoded a frame
//	Filled -> Empty   consumer copied the frame out
//	any    -> Error   producer failed to decode, or the owner closed the buffer
//
// A producer that knows the stream is over calls Fail instead of offering a
// frame that cannot decode. If the slot is Filled the cause is held until the
// consumer has drained the last frame, so ending a stream never drops one.
//
// Error is terminal. The producer never waits for the consumer: a frame
// arriving while the slot is still Filled is dropped after a short backoff,
// which bounds memory and latency at the price of losing frames.
package handoff

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var _ = fmt.Print

// DefaultBackoff is how long the producer sleeps before dropping a frame and
// how long the consumer sleeps between polls.
const DefaultBackoff = time.Millisecond

// ErrClosed is the cause recorded when the owner closes the buffer.
var ErrClosed = errors.New("handoff: buffer closed")

type State int

const (
	Empty State = iota
	Filled
	Error
)

func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Filled:
		return "Filled"
	case Error:
		return "Error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DecodeError is returned by the first Consume call after the producer
// failed. It matches io.EOF with errors.Is since the stream is over, and
// unwraps to the cause.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("handoff: end of stream: %s", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == io.EOF }

// Stats is a snapshot of the buffer's counters.
type Stats struct {
	// Delivered counts frames the producer wrote into the slot.
	Delivered uint64
	// Dropped counts frames discarded because the slot was still full.
	Dropped uint64
	// Consumed counts frames copied out by the consumer.
	Consumed uint64
}

// DropRate returns the percentage of offered frames that were dropped.
func (s Stats) DropRate() float64 {
	total := s.Delivered + s.Dropped
	if total == 0 {
		return 0
	}
	return 100 * float64(s.Dropped) / float64(total)
}

type config struct {
	backoff time.Duration
	logger  *slog.Logger
}

type Option func(*config)

// WithBackoff sets the producer backoff and consumer poll interval.
func WithBackoff(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.backoff = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

type Buffer struct {
	mu    sync.RWMutex
	data  []byte
	state State
	cause error
	// set by Fail while Filled, applied once the slot is drained
	pending error
	// set once the consumer has seen the cause, later polls report plain io.EOF
	reported bool

	cfg config

	delivered, dropped, consumed atomic.Uint64
}

func New(opts ...Option) *Buffer {
	ans := &Buffer{cfg: config{backoff: DefaultBackoff}}
	for _, o := range opts {
		o(&ans.cfg)
	}
	if ans.cfg.logger == nil {
		ans.cfg.logger = slog.Default()
	}
	return ans
}

func (b *Buffer) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Buffer) Stats() Stats {
	return Stats{Delivered: b.delivered.Load(), Dropped: b.dropped.Load(), Consumed: b.consumed.Load()}
}

// Produce offers one frame. decode must write the frame into dst, growing it
// if needed, and return the result; it runs under the write lock and must
// not retain dst. Produce reports whether the frame was stored.
//
// Produce must not be called concurrently with itself.
func (b *Buffer) Produce(decode func(dst []byte) ([]byte, error)) bool {
	b.mu.RLock()
	state, ending := b.state, b.pending != nil
	b.mu.RUnlock()
	if ending {
		return false
	}
	switch state {
	case Filled:
		// the consumer has not drained the previous frame yet
		time.Sleep(b.cfg.backoff)
		n := b.dropped.Add(1)
		b.cfg.logger.Debug("handoff: dropping frame, consumer busy", "dropped", n)
		return false
	case Error:
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Empty {
		// closed while we were waiting for the lock
		return false
	}
	data, err := decode(b.data[:0])
	if err != nil {
		b.data = b.data[:0]
		b.state = Error
		b.cause = err
		b.cfg.logger.Warn("handoff: frame decode failed, stream terminated", "error", err)
		return false
	}
	b.data = data
	b.state = Filled
	b.delivered.Add(1)
	return true
}

// Consume blocks until a frame is available and copies it into dst, which is
// grown as needed and returned. Once the buffer is in the Error state it
// reports end of stream: the first such call returns a *DecodeError carrying
// the cause, later ones return io.EOF. It never blocks once the buffer has
// reached the Error state.
func (b *Buffer) Consume(dst []byte) ([]byte, error) {
	for {
		b.mu.RLock()
		state := b.state
		b.mu.RUnlock()
		if state != Empty {
			break
		}
		time.Sleep(b.cfg.backoff)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Error {
		if b.reported {
			return dst[:0], io.EOF
		}
		b.reported = true
		return dst[:0], &DecodeError{Err: b.cause}
	}
	dst = append(dst[:0], b.data...)
	b.state = Empty
	b.consumed.Add(1)
	if b.pending != nil {
		b.terminate(b.pending)
	}
	return dst, nil
}

// Fail ends the stream with err as the cause reported to the consumer. A
// frame still in the slot is delivered first. Fail does not count as a
// dropped frame and later Produce calls are ignored. It is a no-op once the
// buffer is in the Error state.
func (b *Buffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Error:
		return
	case Filled:
		if b.pending == nil {
			b.pending = err
		}
		return
	}
	b.terminate(err)
}

func (b *Buffer) terminate(err error) {
	b.data = b.data[:0]
	b.state = Error
	b.cause = err
	b.pending = nil
	b.cfg.logger.Info("handoff: stream ended", "cause", err)
}

// Close moves the buffer into the terminal Error state so a blocked or
// future Consume reports end of stream. Closing twice is harmless.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Error {
		return
	}
	b.state = Error
	b.cause = ErrClosed
	b.pending = nil
	b.data = nil
}
