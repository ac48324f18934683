package decode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/user/framegrab/pkg/ports"
)

// ErrDecoderState is returned when a decoder call is not legal in the
// decoder's current state.
var ErrDecoderState = errors.New("decode: invalid decoder state")

// State is the lifecycle state of a guarded decoder.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Guard serializes access to a ports.FrameDecoder and enforces its state
// machine: Configure once, Decode and Flush only while configured, Close at
// most once. Close never waits for an in-flight call; the call closes the
// decoder itself when it returns.
type Guard struct {
	dec ports.FrameDecoder

	call sync.Mutex // held for the duration of a decoder call

	mu           sync.Mutex // guards the fields below
	state        State
	busy         bool
	closePending bool

	closeOnce sync.Once
	closeErr  error
}

// NewGuard wraps an unconfigured decoder.
func NewGuard(dec ports.FrameDecoder) *Guard {
	return &Guard{dec: dec}
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Configure configures the decoder. It is legal only once.
func (g *Guard) Configure(cfg ports.DecoderConfig) error {
	return g.do("configure", StateUnconfigured, func() error {
		if err := g.dec.Configure(cfg); err != nil {
			return err
		}
		g.mu.Lock()
		if g.state == StateUnconfigured {
			g.state = StateConfigured
		}
		g.mu.Unlock()
		return nil
	})
}

// Decode submits one unit.
func (g *Guard) Decode(unit ports.EncodedUnit) ([]ports.DecodedFrame, error) {
	var frames []ports.DecodedFrame
	err := g.do("decode", StateConfigured, func() error {
		var err error
		frames, err = g.dec.Decode(unit)
		return err
	})
	return frames, err
}

// Flush drains the decoder.
func (g *Guard) Flush() ([]ports.DecodedFrame, error) {
	var frames []ports.DecodedFrame
	err := g.do("flush", StateConfigured, func() error {
		var err error
		frames, err = g.dec.Flush()
		return err
	})
	return frames, err
}

// Close closes the decoder. It is idempotent and safe to call from any
// goroutine. When a call is in flight, Close returns immediately and the
// decoder is closed as soon as that call completes; a later Close reports
// the decoder's close error.
func (g *Guard) Close() error {
	g.mu.Lock()
	if g.state == StateClosed {
		g.mu.Unlock()
		return g.closeDecoder()
	}
	if g.busy {
		g.closePending = true
		g.mu.Unlock()
		return nil
	}
	g.state = StateClosed
	g.mu.Unlock()

	return g.closeDecoder()
}

func (g *Guard) closeDecoder() error {
	g.closeOnce.Do(func() {
		g.closeErr = g.dec.Close()
	})
	return g.closeErr
}

func (g *Guard) do(op string, want State, fn func() error) error {
	g.call.Lock()
	defer g.call.Unlock()

	g.mu.Lock()
	if g.state != want || g.closePending {
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("%w: %s while %s", ErrDecoderState, op, state)
	}
	g.busy = true
	g.mu.Unlock()

	err := fn()

	g.mu.Lock()
	g.busy = false
	closeNow := g.closePending
	if closeNow {
		g.closePending = false
		g.state = StateClosed
	}
	g.mu.Unlock()

	if closeNow {
		// The error is kept for the next Close.
		_ = g.closeDecoder()
	}
	return err
}
