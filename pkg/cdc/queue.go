// Package cdc implements the asynchronous FIFO that carries stream items
// between two clock domains with no fixed phase relationship.
//
// The queue follows the classic gray-pointer design. Each side owns a binary
// pointer and publishes its gray-coded value. The opposite side samples that
// value through a chain of synchroniser stages that only advance on its own
// clock edge (Tick), so a pointer change becomes observable after at least
// `stages` edges of the observing domain. Empty is computed in the read
// domain from the synchronised write pointer, Full in the write domain from
// the synchronised read pointer; both are therefore pessimistic and never
// report a state the other domain has not yet committed.
//
// The write side and the read side may be driven from different goroutines.
// Each side is single-owner; the only shared state is the slot array and the
// two published pointers. A slot is written before the pointer that covers it
// is published, and is read before the pointer that releases it is published.
package cdc

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/OpenTraceLab/jtagstream/pkg/stream"
)

// Reference geometry: four entries behind a two-flop synchroniser.
const (
	DefaultDepth  = 4
	DefaultStages = 2
	MinStages     = 2
)

// ErrBadGeometry is returned for a depth/stage combination that cannot be
// both lossless and free of false full/empty reports.
var ErrBadGeometry = errors.New("cdc: unsupported queue geometry")

// Queue is a bounded FIFO of stream items crossing a clock boundary.
type Queue struct {
	depth  uint32
	stages int
	// pointers carry one extra wrap bit: values run modulo 2*depth
	ptrMask uint32

	slots []stream.Item

	wgray atomic.Uint32
	rgray atomic.Uint32

	w Writer
	r Reader
}

// New builds a queue with depth entries and the given number of synchroniser
// stages. depth must be a power of two no smaller than twice the stage count,
// which covers the round-trip synchronisation latency.
func New(depth, stages int) (*Queue, error) {
	if err := ValidateGeometry(depth, stages); err != nil {
		return nil, err
	}
	q := &Queue{
		depth:   uint32(depth),
		stages:  stages,
		ptrMask: uint32(2*depth - 1),
		slots:   make([]stream.Item, depth),
	}
	q.w = Writer{q: q, sync: make([]uint32, stages)}
	q.r = Reader{q: q, sync: make([]uint32, stages)}
	return q, nil
}

// ValidateGeometry checks a depth/stage pair without building a queue.
func ValidateGeometry(depth, stages int) error {
	if stages < MinStages {
		return fmt.Errorf("%w: %d synchroniser stages, need at least %d", ErrBadGeometry, stages, MinStages)
	}
	if depth < 2 || depth&(depth-1) != 0 {
		return fmt.Errorf("%w: depth %d is not a power of two", ErrBadGeometry, depth)
	}
	if depth < 2*stages {
		return fmt.Errorf("%w: depth %d below round-trip latency of %d stages", ErrBadGeometry, depth, stages)
	}
	return nil
}

// Depth returns the number of entries.
func (q *Queue) Depth() int {
	return int(q.depth)
}

// Stages returns the synchroniser length.
func (q *Queue) Stages() int {
	return q.stages
}

// Writer returns the write-domain view.
func (q *Queue) Writer() *Writer {
	return &q.w
}

// Reader returns the read-domain view.
func (q *Queue) Reader() *Reader {
	return &q.r
}

// Reset empties the queue and clears both synchronisers. It is an explicit
// reset and must only be called while neither domain is clocking.
func (q *Queue) Reset() {
	q.w.ptr = 0
	q.r.ptr = 0
	clear(q.w.sync)
	clear(q.r.sync)
	clear(q.slots)
	q.wgray.Store(0)
	q.rgray.Store(0)
}

func toGray(v uint32) uint32 {
	return v ^ (v >> 1)
}

func fromGray(g uint32) uint32 {
	v := g
	for shift := uint(1); shift < 32; shift <<= 1 {
		v ^= v >> shift
	}
	return v
}

// Writer is the write-domain side of a Queue. It implements stream.Sink.
type Writer struct {
	q    *Queue
	ptr  uint32
	sync []uint32 // read pointer, gray, stage 0 nearest the crossing
}

// Tick advances the write domain one clock edge, moving the read pointer one
// stage through the synchroniser.
func (w *Writer) Tick() {
	shift(w.sync, w.q.rgray.Load())
}

// Free returns how many entries the write domain can currently prove empty.
func (w *Writer) Free() int {
	used := (w.ptr - fromGray(w.sync[len(w.sync)-1])) & w.q.ptrMask
	return int(w.q.depth - used)
}

// Ready reports whether the queue is not full as seen from the write domain.
func (w *Writer) Ready() bool {
	return w.Free() > 0
}

// Push stores item if the queue is not full. It never overwrites.
func (w *Writer) Push(item stream.Item) bool {
	if !w.Ready() {
		return false
	}
	q := w.q
	q.slots[w.ptr&(q.depth-1)] = item
	w.ptr = (w.ptr + 1) & q.ptrMask
	q.wgray.Store(toGray(w.ptr))
	return true
}

// Reader is the read-domain side of a Queue. It implements stream.Source.
type Reader struct {
	q    *Queue
	ptr  uint32
	sync []uint32 // write pointer, gray, stage 0 nearest the crossing
}

// Tick advances the read domain one clock edge, moving the write pointer one
// stage through the synchroniser.
func (r *Reader) Tick() {
	shift(r.sync, r.q.wgray.Load())
}

// Len returns how many entries the read domain can currently see.
func (r *Reader) Len() int {
	return int((fromGray(r.sync[len(r.sync)-1]) - r.ptr) & r.q.ptrMask)
}

// Valid reports whether the queue is not empty as seen from the read domain.
func (r *Reader) Valid() bool {
	return r.Len() > 0
}

// Peek returns the head item, or the zero Item when nothing is visible.
func (r *Reader) Peek() stream.Item {
	if !r.Valid() {
		return stream.Item{}
	}
	return r.q.slots[r.ptr&(r.q.depth-1)]
}

// Pop consumes the head item.
func (r *Reader) Pop() (stream.Item, bool) {
	if !r.Valid() {
		return stream.Item{}, false
	}
	q := r.q
	item := q.slots[r.ptr&(q.depth-1)]
	r.ptr = (r.ptr + 1) & q.ptrMask
	q.rgray.Store(toGray(r.ptr))
	return item, true
}

func shift(stages []uint32, in uint32) {
	copy(stages[1:], stages[:len(stages)-1])
	stages[0] = in
}
