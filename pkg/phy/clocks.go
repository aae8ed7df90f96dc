package phy

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OpenTraceLab/jtagstream/pkg/stream"
)

// Handler is the system-side logic run on every system clock edge, before
// the edge is applied.
type Handler func(d *Device) error

// Echo returns every received word to the host.
func Echo(d *Device) error {
	stream.Transfer(d.Source(), d.Sink())
	return nil
}

// Collect drains received words into buf.
func Collect(buf *stream.Buffer) Handler {
	return func(d *Device) error {
		stream.Transfer(d.Source(), buf)
		return nil
	}
}

// WriteTo drains received words as bytes into w.
func WriteTo(w io.Writer) Handler {
	return func(d *Device) error {
		src := d.Source()
		if !src.Valid() {
			return nil
		}
		item, _ := src.Pop()
		_, err := w.Write([]byte{byte(item.Data)})
		return err
	}
}

// Feed offers the bytes of buf to the host, one per edge.
func Feed(buf *stream.Buffer) Handler {
	return func(d *Device) error {
		stream.Transfer(buf, d.Sink())
		return nil
	}
}

// Chain runs handlers in order on the same edge.
func Chain(hs ...Handler) Handler {
	return func(d *Device) error {
		for _, h := range hs {
			if err := h(d); err != nil {
				return err
			}
		}
		return nil
	}
}

// Clocks interleaves the two domains of a Device deterministically. For every
// TCK edge it runs as many system edges as the frequency ratio calls for,
// carrying the remainder, so any rational ratio is reproduced exactly.
type Clocks struct {
	dev     *Device
	handler Handler
	sysHz   int
	tckHz   int
	acc     int
	sysTick uint64
	err     error
}

// NewClocks binds a Device to a system handler and a sys:TCK frequency
// ratio.
func NewClocks(d *Device, h Handler, sysHz, tckHz int) (*Clocks, error) {
	if sysHz <= 0 || tckHz <= 0 {
		return nil, fmt.Errorf("phy: clock frequencies must be positive, got %d/%d", sysHz, tckHz)
	}
	return &Clocks{dev: d, handler: h, sysHz: sysHz, tckHz: tckHz}, nil
}

// Device returns the clocked device.
func (c *Clocks) Device() *Device { return c.dev }

// SysTicks returns the number of system edges applied.
func (c *Clocks) SysTicks() uint64 { return c.sysTick }

// Err returns the first handler error. Once set, system edges stop.
func (c *Clocks) Err() error { return c.err }

// Sys applies one system edge.
func (c *Clocks) Sys() {
	if c.err != nil {
		return
	}
	if c.handler != nil {
		if err := c.handler(c.dev); err != nil {
			c.err = err
			log.Debug("system handler failed", "err", err)
			return
		}
	}
	c.dev.TickSys()
	c.sysTick++
}

// TickTCK runs the system edges due before this TCK edge, then the edge.
func (c *Clocks) TickTCK(tms, tdi bool) bool {
	c.acc += c.sysHz
	for c.acc >= c.tckHz {
		c.acc -= c.tckHz
		c.Sys()
	}
	return c.dev.TickTCK(tms, tdi)
}

// Step clocks the system domain alone for n edges, as when TCK is stopped.
func (c *Clocks) Step(n int) {
	for i := 0; i < n; i++ {
		c.Sys()
	}
}

// RunConcurrent clocks the system domain of d in its own goroutine, calling
// h on every edge and pausing period between edges, while host drives the
// TCK domain from another. It returns when host returns, when h fails or
// when ctx is cancelled.
func RunConcurrent(ctx context.Context, d *Device, h Handler, period time.Duration, host func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return host(gctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			if h != nil {
				if err := h(d); err != nil {
					return fmt.Errorf("phy: system handler: %w", err)
				}
			}
			d.TickSys()
			if period > 0 {
				time.Sleep(period)
			} else {
				runtime.Gosched()
			}
		}
	})
	return g.Wait()
}
