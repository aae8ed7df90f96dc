package hostlink

import (
	"fmt"

	"github.com/OpenTraceLab/jtagstream/pkg/idcode"
	"github.com/OpenTraceLab/jtagstream/pkg/jtag"
	"github.com/OpenTraceLab/jtagstream/pkg/tap"
)

// scanner turns register scans into raw adapter cycles, tracking the TAP
// with a local state machine. Every scan starts and ends in Run-Test/Idle.
type scanner struct {
	adapter jtag.Adapter
	tap     *tap.StateMachine
}

func newScanner(a jtag.Adapter) *scanner {
	return &scanner{adapter: a, tap: tap.NewStateMachine()}
}

// reset puts the TAP in Test-Logic-Reset and then Run-Test/Idle.
func (s *scanner) reset() error {
	if err := s.adapter.ResetTAP(false); err != nil {
		return fmt.Errorf("hostlink: reset TAP: %w", err)
	}
	s.tap.Reset()
	seq, err := s.tap.GoTo(tap.StateRunTestIdle)
	if err != nil {
		return err
	}
	_, err = s.adapter.ShiftDR(jtag.PackBits(seq.TMS), nil, len(seq.TMS))
	return err
}

// idcode resets the TAP and shifts out the register Test-Logic-Reset
// selects: IDCODE, or BYPASS on parts without one.
func (s *scanner) idcode() (idcode.IDCode, error) {
	if err := s.reset(); err != nil {
		return idcode.IDCode{}, err
	}
	tdo, err := s.dr(make([]bool, 32))
	if err != nil {
		return idcode.IDCode{}, err
	}
	id := idcode.FromBits(jtag.PackBits(tdo))
	if !id.Valid() {
		return id, fmt.Errorf("%w: read IDCODE 0x%08X", ErrNoTarget, id.Raw)
	}
	return id, nil
}

func (s *scanner) ir(tdi []bool) ([]bool, error) {
	return s.scan(tap.StateShiftIR, tdi)
}

func (s *scanner) dr(tdi []bool) ([]bool, error) {
	return s.scan(tap.StateShiftDR, tdi)
}

// scan walks to shift, clocks tdi through with the last bit leaving the
// shift state, and walks back to Run-Test/Idle, all in one adapter call.
// It returns TDO sampled during the shift bits.
func (s *scanner) scan(shift tap.State, tdi []bool) ([]bool, error) {
	if len(tdi) == 0 {
		return nil, nil
	}
	enter, err := s.tap.GoTo(shift)
	if err != nil {
		return nil, err
	}
	tmsBits := append([]bool(nil), enter.TMS...)
	tdiBits := make([]bool, len(enter.TMS), len(enter.TMS)+len(tdi)+2)
	start := len(tmsBits)
	for i, bit := range tdi {
		last := i == len(tdi)-1
		tmsBits = append(tmsBits, last)
		tdiBits = append(tdiBits, bit)
		s.tap.Clock(last)
	}
	leave, err := s.tap.GoTo(tap.StateRunTestIdle)
	if err != nil {
		return nil, err
	}
	tmsBits = append(tmsBits, leave.TMS...)
	tdiBits = append(tdiBits, make([]bool, len(leave.TMS))...)

	shiftFn := s.adapter.ShiftDR
	if shift == tap.StateShiftIR {
		shiftFn = s.adapter.ShiftIR
	}
	tdo, err := shiftFn(jtag.PackBits(tmsBits), jtag.PackBits(tdiBits), len(tmsBits))
	if err != nil {
		return nil, fmt.Errorf("hostlink: %s scan: %w", shift, err)
	}
	return jtag.UnpackBits(tdo, len(tmsBits))[start : start+len(tdi)], nil
}
