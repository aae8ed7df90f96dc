package xfer

import (
	"testing"

	"github.com/OpenTraceLab/jtagstream/pkg/stream"
	"github.com/OpenTraceLab/jtagstream/pkg/vendor"
)

var shift = vendor.Strobes{Shift: true, Sel: true}

type frameResult struct {
	ready bool
	data  uint32
	valid bool
}

// runFrame clocks one complete frame with the host side driving ready, data
// and valid, and returns what the engine shifted out.
func runFrame(e *Engine, ready bool, data uint32, valid bool) frameResult {
	n := e.FrameBits()
	var out uint64
	for i := 0; i < n; i++ {
		var tdi bool
		switch {
		case i == 0:
			tdi = ready
		case i == n-1:
			tdi = valid
		default:
			tdi = data>>uint(i-1)&1 == 1
		}
		if e.TDO() {
			out |= 1 << uint(i)
		}
		e.Clock(shift, tdi)
	}
	return frameResult{
		ready: out&1 == 1,
		data:  uint32(out>>1) & (1<<uint(e.width) - 1),
		valid: out>>uint(n-1)&1 == 1,
	}
}

func newEngine(t *testing.T, width, rxCap int) (*Engine, *stream.Buffer, *stream.Buffer) {
	t.Helper()
	tx := stream.NewBuffer(0)
	rx := stream.NewBuffer(rxCap)
	e, err := New(width, tx, rx)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, tx, rx
}

func TestHostToDeviceRoundTrip(t *testing.T) {
	e, _, rx := newEngine(t, 8, 0)
	for _, b := range []uint32{0x41, 0x42, 0x43} {
		res := runFrame(e, true, b, true)
		if !res.ready {
			t.Fatalf("device not ready for %#x", b)
		}
		if res.valid {
			t.Fatalf("device sent valid with empty TX")
		}
	}
	if got := string(rx.Bytes()); got != "ABC" {
		t.Fatalf("rx = %q, want ABC", got)
	}
	if s := e.Stats(); s.Frames != 3 || s.Received != 3 || s.Rejected != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestDeviceToHost(t *testing.T) {
	e, tx, _ := newEngine(t, 8, 0)
	tx.WriteBytes([]byte("hi"))

	res := runFrame(e, true, 0, false)
	if !res.valid || res.data != 'h' {
		t.Fatalf("frame 1 = %+v, want valid 'h'", res)
	}
	res = runFrame(e, true, 0, false)
	if !res.valid || res.data != 'i' {
		t.Fatalf("frame 2 = %+v, want valid 'i'", res)
	}
	res = runFrame(e, true, 0, false)
	if res.valid || res.data != 0 {
		t.Fatalf("frame 3 = %+v, want idle", res)
	}
	if e.Stats().Sent != 2 {
		t.Fatalf("sent = %d, want 2", e.Stats().Sent)
	}
}

func TestHostNotReadyKeepsTX(t *testing.T) {
	e, tx, _ := newEngine(t, 8, 0)
	tx.WriteBytes([]byte{0x55})

	if res := runFrame(e, false, 0, false); res.valid {
		t.Fatalf("engine sent while host was not ready")
	}
	if tx.Len() != 1 {
		t.Fatalf("TX item consumed without handshake")
	}
	if res := runFrame(e, true, 0, false); !res.valid || res.data != 0x55 {
		t.Fatalf("retry frame = %+v", res)
	}
}

func TestFrameLength(t *testing.T) {
	for _, width := range []int{1, 8, 17, 32} {
		e, _, _ := newEngine(t, width, 0)
		if e.FrameBits() != width+2 {
			t.Fatalf("FrameBits(%d) = %d", width, e.FrameBits())
		}
		for i := 0; i < width+1; i++ {
			e.Clock(shift, false)
		}
		if e.State() != StateValid {
			t.Fatalf("width %d: state after %d edges = %s, want XFER-VALID", width, width+1, e.State())
		}
		e.Clock(shift, false)
		if e.State() != StateReady || e.Stats().Frames != 1 {
			t.Fatalf("width %d: frame not complete after %d edges", width, width+2)
		}
	}
}

func TestFullDuplex32(t *testing.T) {
	e, tx, rx := newEngine(t, 32, 0)
	tx.Push(stream.Item{Data: 0xDEADBEEF})
	res := runFrame(e, true, 0xCAFEF00D, true)
	if !res.valid || res.data != 0xDEADBEEF {
		t.Fatalf("device word = %+v", res)
	}
	got, ok := rx.Pop()
	if !ok || got.Data != 0xCAFEF00D {
		t.Fatalf("host word = %#x, %v", got.Data, ok)
	}
}

func TestMidFrameResetDiscards(t *testing.T) {
	for _, strobe := range []vendor.Strobes{{Reset: true}, {Capture: true}} {
		e, _, rx := newEngine(t, 8, 0)
		e.Clock(shift, true)
		for i := 0; i < 3; i++ {
			e.Clock(shift, true)
		}
		if e.State() != StateData {
			t.Fatalf("state = %s, want XFER-DATA", e.State())
		}
		e.Clock(strobe, false)
		if e.State() != StateReady || e.Stats().Aborted != 1 {
			t.Fatalf("after %+v: state %s, stats %+v", strobe, e.State(), e.Stats())
		}
		if rx.Len() != 0 {
			t.Fatalf("partial frame reached RX")
		}
		runFrame(e, true, 0x5A, true)
		if got := rx.Bytes(); len(got) != 1 || got[0] != 0x5A {
			t.Fatalf("frame after reset = %v", got)
		}
	}
}

func TestResetBetweenFramesIsNotAnAbort(t *testing.T) {
	e, _, _ := newEngine(t, 8, 0)
	runFrame(e, true, 1, true)
	e.Clock(vendor.Strobes{Capture: true}, false)
	if e.Stats().Aborted != 0 {
		t.Fatalf("clean reset counted as abort")
	}
}

func TestNoShiftNoChange(t *testing.T) {
	e, tx, _ := newEngine(t, 8, 0)
	tx.WriteBytes([]byte{1})
	for i := 0; i < 100; i++ {
		e.Clock(vendor.Strobes{RunTest: true}, true)
		e.Clock(vendor.Strobes{Update: true, Sel: true}, true)
	}
	if e.State() != StateReady || tx.Len() != 1 || e.Stats() != (Stats{}) {
		t.Fatalf("engine moved without shift: %s %+v", e.State(), e.Stats())
	}
}

func TestIdleFramesAreIdempotent(t *testing.T) {
	e, tx, rx := newEngine(t, 8, 0)
	for i := 0; i < 10; i++ {
		if res := runFrame(e, true, 0xFF, false); res.valid || !res.ready {
			t.Fatalf("idle frame %d = %+v", i, res)
		}
	}
	if tx.Len() != 0 || rx.Len() != 0 {
		t.Fatalf("idle frames moved data")
	}
	if s := e.Stats(); s.Frames != 10 || s.Sent != 0 || s.Received != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestBackPressure(t *testing.T) {
	e, _, rx := newEngine(t, 8, 1)

	if res := runFrame(e, true, 'a', true); !res.ready {
		t.Fatalf("first frame not ready")
	}
	res := runFrame(e, true, 'b', true)
	if res.ready {
		t.Fatalf("full receiver presented ready")
	}
	if e.Stats().Rejected != 1 || rx.Len() != 1 {
		t.Fatalf("stats %+v, rx len %d", e.Stats(), rx.Len())
	}

	// Draining mid-scan does not reopen the link before the next capture.
	rx.Pop()
	if res := runFrame(e, true, 'b', true); res.ready {
		t.Fatalf("ready reopened within the same scan")
	}
	if rx.Len() != 0 || e.Stats().Rejected != 2 {
		t.Fatalf("word committed while held: rx %d, %+v", rx.Len(), e.Stats())
	}

	e.Clock(vendor.Strobes{Capture: true}, false)
	if res := runFrame(e, true, 'b', true); !res.ready {
		t.Fatalf("ready not restored after capture")
	}
	if got := rx.Bytes(); string(got) != "b" {
		t.Fatalf("rx = %q, want b", got)
	}
}

func TestPayloadMasked(t *testing.T) {
	e, tx, _ := newEngine(t, 8, 0)
	tx.Push(stream.Item{Data: 0x1FF})
	if res := runFrame(e, true, 0, false); res.data != 0xFF {
		t.Fatalf("data = %#x, want 0xff", res.data)
	}
}

func TestBadWidth(t *testing.T) {
	for _, w := range []int{0, -1, 33} {
		if _, err := New(w, stream.NewBuffer(0), stream.NewBuffer(0)); err == nil {
			t.Fatalf("New(%d) accepted", w)
		}
	}
}
