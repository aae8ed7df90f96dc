package jtag

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/jtagstream/internal/logging"
)

var log = logging.For(logging.ComponentProbe)

// Target is a device clocked one TCK edge at a time. TickTCK returns the TDO
// value the device drives before the edge.
type Target interface {
	TickTCK(tms, tdi bool) bool
}

// TargetAdapter drives a Target bit by bit, standing in for a probe wired to
// a simulated device.
type TargetAdapter struct {
	mu      sync.Mutex
	target  Target
	speedHz int
	clocks  uint64
}

var _ Adapter = (*TargetAdapter)(nil)

// NewTargetAdapter wraps target.
func NewTargetAdapter(target Target) *TargetAdapter {
	return &TargetAdapter{target: target, speedHz: 1_000_000}
}

func (a *TargetAdapter) Info() (AdapterInfo, error) {
	return AdapterInfo{
		Name:         "Simulator",
		Vendor:       "jtagstream",
		Model:        "bit-banged target",
		MinFrequency: 1,
		MaxFrequency: 100_000_000,
		Notes:        "clocks an in-process device model",
	}, nil
}

func (a *TargetAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.clock(tms, tdi, bits)
}

func (a *TargetAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return a.clock(tms, tdi, bits)
}

// ResetTAP clocks five TMS=1 cycles. A simulated target has no TRST pin, so
// hard and soft resets are the same.
func (a *TargetAdapter) ResetTAP(bool) error {
	_, err := a.clock([]byte{0x1F}, nil, 5)
	return err
}

func (a *TargetAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	a.mu.Lock()
	a.speedHz = hz
	a.mu.Unlock()
	return nil
}

// Clocks returns the number of TCK cycles driven so far.
func (a *TargetAdapter) Clocks() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clocks
}

func (a *TargetAdapter) clock(tms, tdi []byte, bits int) ([]byte, error) {
	n, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	tdo := make([]byte, n)
	for i := 0; i < bits; i++ {
		if a.target.TickTCK(Bit(tms, i), Bit(tdi, i)) {
			tdo[i/8] |= 1 << uint(i%8)
		}
	}
	a.clocks += uint64(bits)
	log.Debug("target clocked", "bits", bits)
	return tdo, nil
}
