// Package phy assembles the device side of the stream link: a vendor port,
// the framing engine and the two clock-domain-crossing queues.
//
// A Device has two clock inputs. TickTCK is one edge of the host-driven test
// clock and TickSys one edge of the system clock. Each may be called from its
// own goroutine; neither domain changes state without its own edge.
package phy

import (
	"github.com/OpenTraceLab/jtagstream/internal/logging"
	"github.com/OpenTraceLab/jtagstream/pkg/cdc"
	"github.com/OpenTraceLab/jtagstream/pkg/stream"
	"github.com/OpenTraceLab/jtagstream/pkg/tap"
	"github.com/OpenTraceLab/jtagstream/pkg/vendor"
	"github.com/OpenTraceLab/jtagstream/pkg/xfer"
)

var log = logging.For(logging.ComponentPHY)

// Device is the software model of a JTAG stream PHY.
type Device struct {
	cfg    Config
	port   *vendor.SimPort
	tx     *cdc.Queue // system -> TCK
	rx     *cdc.Queue // TCK -> system
	engine *xfer.Engine
}

// Snapshot is a point-in-time view of both domains. Take it only while
// neither domain is being clocked.
type Snapshot struct {
	TAP          tap.State
	TAPOneHot    uint16
	Ticks        uint16
	Instruction  uint32
	UserSelected bool
	Xfer         xfer.State
	Stats        xfer.Stats
	TXFree       int // system-side free entries towards the host
	RXPending    int // words waiting for the system side
}

// New validates cfg and builds a Device.
func New(cfg Config) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	port, err := vendor.NewPort(cfg.Family, cfg.Chain)
	if err != nil {
		return nil, err
	}
	tx, err := cdc.New(cfg.Depth, cfg.SyncStages)
	if err != nil {
		return nil, err
	}
	rx, err := cdc.New(cfg.Depth, cfg.SyncStages)
	if err != nil {
		return nil, err
	}
	engine, err := xfer.New(cfg.DataWidth, tx.Reader(), rx.Writer())
	if err != nil {
		return nil, err
	}
	log.Debug("device built", "family", cfg.Family, "chain", cfg.Chain,
		"width", cfg.DataWidth, "depth", cfg.Depth, "stages", cfg.SyncStages)
	return &Device{cfg: cfg, port: port, tx: tx, rx: rx, engine: engine}, nil
}

// Config returns the validated configuration.
func (d *Device) Config() Config { return d.cfg }

// Port returns the vendor port.
func (d *Device) Port() *vendor.SimPort { return d.port }

// Sink accepts words from the system side for the host. System domain.
func (d *Device) Sink() stream.Sink { return d.tx.Writer() }

// Source yields words the host sent. System domain.
func (d *Device) Source() stream.Source { return d.rx.Reader() }

// TickSys applies one system clock edge.
func (d *Device) TickSys() {
	d.tx.Writer().Tick()
	d.rx.Reader().Tick()
}

// TickTCK applies one TCK edge and returns the TDO value the host samples
// before it.
func (d *Device) TickTCK(tms, tdi bool) bool {
	sig := d.port.Strobes()
	tdo := d.port.TDO(d.engine.TDO())
	d.engine.Clock(sig, tdi)
	d.port.Clock(tms, tdi)
	d.tx.Reader().Tick()
	d.rx.Writer().Tick()
	return tdo
}

// Snapshot reports the state of both domains.
func (d *Device) Snapshot() Snapshot {
	tm := d.port.TAP()
	return Snapshot{
		TAP:          tm.State(),
		TAPOneHot:    tm.OneHot(),
		Ticks:        tm.Ticks(),
		Instruction:  d.port.Instruction(),
		UserSelected: d.port.UserSelected(),
		Xfer:         d.engine.State(),
		Stats:        d.engine.Stats(),
		TXFree:       d.tx.Writer().Free(),
		RXPending:    d.rx.Reader().Len(),
	}
}

// Reset is the system reset: both queues are emptied, the engine returns to
// its ready state and the TAP to Test-Logic-Reset. Call it only while
// neither domain is clocking.
func (d *Device) Reset() {
	d.tx.Reset()
	d.rx.Reset()
	d.engine.Reset()
	d.port.Reset()
	log.Debug("device reset")
}
