// Package jtag is the host-side probe abstraction. An Adapter clocks raw
// TCK cycles with per-bit TMS and TDI and returns TDO sampled on every
// cycle; TAP navigation is left to the caller, which tracks the state with
// pkg/tap.
//
// Bit vectors are packed LSB first: bit i lives in byte i/8 at position i%8.
package jtag

import (
	"errors"
	"fmt"
)

// AdapterInfo describes capabilities reported by a JTAG adapter implementation.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	SupportsSRST bool
	SupportsTRST bool
	Notes        string
}

// Adapter abstracts a physical or virtual JTAG Test Access Port adapter.
//
// ShiftIR and ShiftDR clock bits cycles. The region only tells the backend
// which register the caller is addressing; both drive the pins the same way.
// A nil tms means TMS low on every cycle, a nil tdi means TDI low.
type Adapter interface {
	Info() (AdapterInfo, error)
	ShiftIR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ShiftDR(tms, tdi []byte, bits int) (tdo []byte, err error)
	ResetTAP(hard bool) error
	SetSpeed(hz int) error
}

// ErrClosed is returned by adapters used after Close.
var ErrClosed = errors.New("jtag: adapter closed")

// ValidateShiftBuffers ensures TMS/TDIs are present when bits exceed their
// lengths and returns the number of bytes required to accommodate the bit
// length.
func ValidateShiftBuffers(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	required := (bits + 7) / 8
	if len(tms) > 0 && len(tms) < required {
		return 0, fmt.Errorf("jtag: tms buffer too short, need %d bytes", required)
	}
	if len(tdi) > 0 && len(tdi) < required {
		return 0, fmt.Errorf("jtag: tdi buffer too short, need %d bytes", required)
	}
	return required, nil
}
