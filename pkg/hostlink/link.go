// Package hostlink is the host half of the JTAG stream link. It drives a
// probe through jtag.Adapter, selects the PHY's user chain and moves words
// in DR scans of fixed-size frames.
//
// Every frame the host offers its readiness to receive and at most one
// word. The device answers with its own readiness and at most one word. A
// word the host sent counts as delivered only if the device was ready in
// that frame; otherwise it is offered again in the next scan. Within a scan
// the device's ready bits are a run of ones followed by zeros, so delivered
// words always form a prefix of what was offered.
package hostlink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/OpenTraceLab/jtagstream/internal/logging"
	"github.com/OpenTraceLab/jtagstream/pkg/idcode"
	"github.com/OpenTraceLab/jtagstream/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/jtagstream/pkg/jtag"
	"github.com/OpenTraceLab/jtagstream/pkg/stream"
	"github.com/OpenTraceLab/jtagstream/pkg/xfer"
)

var log = logging.For(logging.ComponentHostLink)

var (
	// ErrNoTarget is returned by Dial when no device answers the IDCODE
	// scan.
	ErrNoTarget = errors.New("hostlink: no target on the chain")
	// ErrStalled is returned when the device made no progress for
	// Config.StallScans scans.
	ErrStalled = errors.New("hostlink: link stalled")
	// ErrNarrowLink is returned by the byte interface when frames carry
	// fewer than eight payload bits.
	ErrNarrowLink = errors.New("hostlink: data width below 8 bits")
	// ErrRXFull is returned by Flush and Write when the device cannot take
	// more words until the caller drains received ones with Take or Read.
	ErrRXFull = errors.New("hostlink: receive buffer full")
)

// Stats counts link activity since Dial.
type Stats struct {
	Scans    uint64
	Frames   uint64
	Sent     uint64 // words the device accepted
	Received uint64 // words the device sent
	Retried  uint64 // offered words the device was not ready for
}

// Link is a connected host-side stream endpoint. It is safe for concurrent
// use; scans are serialised.
type Link struct {
	cfg  Config
	scan *scanner
	id   idcode.IDCode
	info deviceinfo.DeviceInfo

	mu    sync.Mutex
	tx    []uint32
	rx    []uint32
	stats Stats
}

// Dial resets the TAP, identifies the target, loads the user instruction
// and leaves the TAP in Run-Test/Idle.
func Dial(a jtag.Adapter, cfg Config) (*Link, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Link{cfg: cfg, scan: newScanner(a)}
	id, err := l.scan.idcode()
	if err != nil {
		return nil, err
	}
	l.id = id
	l.info = deviceinfo.Lookup(l.id.Raw)
	log.Debug("target identified", "idcode", l.id.String(), "device", l.info.Name)

	if _, err := l.scan.ir(bitsOf(cfg.UserOpcode, cfg.IRLength)); err != nil {
		return nil, err
	}
	log.Debug("user chain selected", "opcode", cfg.UserOpcode, "ir_length", cfg.IRLength)
	return l, nil
}

// ReadIDCode resets the TAP and reads the IDCODE of the target without
// selecting a chain. The TAP is left in Run-Test/Idle.
func ReadIDCode(a jtag.Adapter) (idcode.IDCode, error) {
	return newScanner(a).idcode()
}

// Config returns the validated configuration.
func (l *Link) Config() Config { return l.cfg }

// IDCode returns the IDCODE read while dialing.
func (l *Link) IDCode() idcode.IDCode { return l.id }

// Device returns the database entry for the target, if known.
func (l *Link) Device() deviceinfo.DeviceInfo { return l.info }

// Stats returns a copy of the counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Pending returns how many words wait to be sent and to be read.
func (l *Link) Pending() (tx, rx int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tx), len(l.rx)
}

// Queue appends words for the device without scanning.
func (l *Link) Queue(words ...uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range words {
		l.tx = append(l.tx, stream.Mask(w, l.cfg.DataWidth))
	}
}

// Take removes up to limit received words, all of them when limit <= 0.
func (l *Link) Take(limit int) []uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.rx)
	if limit > 0 && limit < n {
		n = limit
	}
	out := append([]uint32(nil), l.rx[:n]...)
	l.rx = l.rx[n:]
	return out
}

// Exchange runs one DR scan and returns how many queued words the device
// accepted and how many words it sent.
func (l *Link) Exchange() (sent, received int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.cfg.DataWidth
	fb := xfer.FrameBits(w)
	n := l.cfg.FramesPerScan
	room := l.cfg.RXBuffer - len(l.rx)
	offered := min(len(l.tx), n)

	tdi := make([]bool, n*fb)
	for i := 0; i < n; i++ {
		f := tdi[i*fb : (i+1)*fb]
		f[0] = i < room
		if i < offered {
			for b := 0; b < w; b++ {
				f[1+b] = l.tx[i]>>uint(b)&1 == 1
			}
			f[w+1] = true
		}
	}

	tdo, err := l.scan.dr(tdi)
	if err != nil {
		return 0, 0, err
	}

	for i := 0; i < n; i++ {
		f := tdo[i*fb : (i+1)*fb]
		if i < offered && sent == i && f[0] {
			sent++
		}
		if f[w+1] {
			if i >= room {
				// the device only sends when the host was ready
				log.Warn("word received in a frame the host was not ready for", "frame", i)
				continue
			}
			var v uint32
			for b := 0; b < w; b++ {
				if f[1+b] {
					v |= 1 << uint(b)
				}
			}
			l.rx = append(l.rx, v)
			received++
		}
	}
	l.tx = l.tx[sent:]

	l.stats.Scans++
	l.stats.Frames += uint64(n)
	l.stats.Sent += uint64(sent)
	l.stats.Received += uint64(received)
	l.stats.Retried += uint64(offered - sent)
	if offered > sent {
		log.Debug("device not ready, words retried", "offered", offered, "sent", sent)
	}
	return sent, received, nil
}

// Flush scans until every queued word was accepted. It returns ErrRXFull
// when the host buffer is full and the device stopped accepting words, which
// happens when the peer answers what it receives.
func (l *Link) Flush(ctx context.Context) error {
	idle := 0
	for {
		if tx, _ := l.Pending(); tx == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		sent, received, err := l.Exchange()
		if err != nil {
			return err
		}
		if sent == 0 && received == 0 {
			if _, rx := l.Pending(); rx >= l.cfg.RXBuffer {
				return fmt.Errorf("%w: %d words waiting", ErrRXFull, rx)
			}
			idle++
			if idle >= l.cfg.StallScans {
				return fmt.Errorf("%w: %d scans without progress", ErrStalled, idle)
			}
			continue
		}
		idle = 0
	}
}

// Poll scans until at least one word was received or the link stays idle
// for Config.StallScans scans, and returns the received words.
func (l *Link) Poll(ctx context.Context) ([]uint32, error) {
	if _, rx := l.Pending(); rx == 0 {
		if err := l.poll(ctx); err != nil {
			return nil, err
		}
	}
	return l.Take(0), nil
}

// Write sends p one byte per frame and returns once the device accepted
// all of it. On error it returns how many bytes were accepted; the rest is
// dropped from the queue so the caller can retry with p[n:]. ErrRXFull means
// received bytes must be read before writing on.
func (l *Link) Write(p []byte) (int, error) {
	if l.cfg.DataWidth < 8 {
		return 0, ErrNarrowLink
	}
	for _, c := range p {
		l.Queue(uint32(c))
	}
	if err := l.Flush(context.Background()); err != nil {
		return len(p) - l.unqueue(len(p)), err
	}
	return len(p), nil
}

// unqueue drops up to n words from the tail of the transmit queue and
// returns how many it dropped.
func (l *Link) unqueue(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n = min(n, len(l.tx))
	l.tx = l.tx[:len(l.tx)-n]
	return n
}

// Read returns received bytes, scanning until at least one arrives. It
// fails with ErrStalled when the device stays silent.
func (l *Link) Read(p []byte) (int, error) {
	if l.cfg.DataWidth < 8 {
		return 0, ErrNarrowLink
	}
	if len(p) == 0 {
		return 0, nil
	}
	if _, rx := l.Pending(); rx == 0 {
		if err := l.poll(context.Background()); err != nil {
			return 0, err
		}
	}
	words := l.Take(len(p))
	for i, w := range words {
		p[i] = byte(w)
	}
	return len(words), nil
}

func (l *Link) poll(ctx context.Context) error {
	for idle := 0; idle < l.cfg.StallScans; idle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, received, err := l.Exchange()
		if err != nil || received > 0 {
			return err
		}
	}
	return fmt.Errorf("%w: nothing received in %d scans", ErrStalled, l.cfg.StallScans)
}

func bitsOf(v uint32, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v>>uint(i)&1 == 1
	}
	return out
}
