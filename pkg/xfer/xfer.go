// Package xfer implements the link framing engine: the TCK-domain state
// machine that moves one stream word in each direction per frame of
// data_width+2 shift cycles.
//
// Frame layout, LSB first on both TDI and TDO:
//
//	bit 0             flow control: the sender's readiness to receive
//	bits 1..width     payload
//	bit width+1       valid
package xfer

import (
	"fmt"

	"github.com/OpenTraceLab/jtagstream/internal/logging"
	"github.com/OpenTraceLab/jtagstream/pkg/stream"
	"github.com/OpenTraceLab/jtagstream/pkg/vendor"
)

var log = logging.For(logging.ComponentXfer)

// MaxDataWidth bounds the payload so a word fits in stream.Item.
const MaxDataWidth = 32

// State is the framing engine state.
type State uint8

const (
	StateReady State = iota
	StateData
	StateValid
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "XFER-READY"
	case StateData:
		return "XFER-DATA"
	case StateValid:
		return "XFER-VALID"
	}
	return fmt.Sprintf("State(%d)", s)
}

// Stats counts engine events since construction.
type Stats struct {
	Frames   uint64 // frames run to completion
	Aborted  uint64 // partial frames discarded by reset
	Sent     uint64 // words popped from TX and shifted out
	Received uint64 // words committed to RX
	Rejected uint64 // valid words that arrived while RX was not ready
}

// Engine is the framing state machine. tx is the TCK-side reader of the
// system-to-host queue, rx the TCK-side writer of the host-to-system queue.
//
// The RX readiness presented in bit 0 of a frame is latched and decides the
// commit at the end of that frame. Once a frame presented not-ready, every
// later frame of the same scan does too, until the next reset: within one DR
// scan the ready bits seen by the host are a run of ones followed by zeros.
type Engine struct {
	width int
	tx    stream.Source
	rx    stream.Sink

	state   State
	count   int
	data    uint32
	valid   bool
	rxReady bool
	held    bool

	stats Stats
}

// New builds an engine moving width-bit words.
func New(width int, tx stream.Source, rx stream.Sink) (*Engine, error) {
	if width < 1 || width > MaxDataWidth {
		return nil, fmt.Errorf("xfer: data width %d out of range 1..%d", width, MaxDataWidth)
	}
	return &Engine{width: width, tx: tx, rx: rx}, nil
}

// Width returns the payload width in bits.
func (e *Engine) Width() int { return e.width }

// FrameBits returns the number of shift cycles in one frame.
func (e *Engine) FrameBits() int { return FrameBits(e.width) }

// FrameBits returns the frame length for a payload width.
func FrameBits(width int) int { return width + 2 }

// State returns the current engine state.
func (e *Engine) State() State { return e.state }

// Stats returns a copy of the counters.
func (e *Engine) Stats() Stats { return e.stats }

// TDO is the bit the engine presents for the current state.
func (e *Engine) TDO() bool {
	switch e.state {
	case StateReady:
		return e.presentReady()
	case StateData:
		return e.data&1 == 1
	default:
		return e.valid
	}
}

func (e *Engine) presentReady() bool {
	return !e.held && e.rx.Ready()
}

// Clock applies one TCK edge with the strobes decoded for that edge.
func (e *Engine) Clock(s vendor.Strobes, tdi bool) {
	if s.Reset || s.Capture {
		e.reset()
		return
	}
	if !s.Shift {
		return
	}
	switch e.state {
	case StateReady:
		e.rxReady = e.presentReady()
		if !e.rxReady {
			e.held = true
		}
		e.valid, e.data = false, 0
		if tdi && e.tx.Valid() {
			if item, ok := e.tx.Pop(); ok {
				e.valid = true
				e.data = stream.Mask(item.Data, e.width)
				e.stats.Sent++
			}
		}
		e.count = 0
		e.state = StateData

	case StateData:
		e.data >>= 1
		if tdi {
			e.data |= 1 << uint(e.width-1)
		}
		e.count++
		if e.count == e.width {
			e.state = StateValid
		}

	case StateValid:
		if tdi {
			e.commit()
		}
		e.stats.Frames++
		e.count = 0
		e.state = StateReady
	}
}

func (e *Engine) commit() {
	if !e.rxReady {
		e.stats.Rejected++
		log.Debug("word rejected, receiver not ready", "data", e.data)
		return
	}
	if !e.rx.Push(stream.Item{Data: e.data}) {
		// rx readiness cannot drop between the ready and valid bits:
		// only this engine pushes into rx.
		e.stats.Rejected++
		log.Debug("word rejected by receiver", "data", e.data)
		return
	}
	e.stats.Received++
}

func (e *Engine) reset() {
	if e.state != StateReady {
		e.stats.Aborted++
		log.Debug("partial frame discarded", "state", e.state, "bits", e.count)
	}
	e.state = StateReady
	e.count = 0
	e.data = 0
	e.valid = false
	e.rxReady = false
	e.held = false
}

// Reset returns the engine to XFER-READY. A partial frame is counted as
// aborted. Counters are kept.
func (e *Engine) Reset() {
	e.reset()
}
