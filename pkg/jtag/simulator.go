package jtag

import "fmt"

// ShiftRegion identifies whether a shift operation targets the instruction or
// data register.
type ShiftRegion uint8

const (
	ShiftRegionIR ShiftRegion = iota
	ShiftRegionDR
)

func (r ShiftRegion) String() string {
	if r == ShiftRegionIR {
		return "IR"
	}
	return "DR"
}

// ShiftHook allows the simulator to emulate device-specific TDO behavior.
type ShiftHook func(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error)

// ShiftOp captures one shift invocation for inspection within tests.
type ShiftOp struct {
	Region ShiftRegion
	TMS    []byte
	TDI    []byte
	Bits   int
}

// SimAdapter is an in-memory adapter for tests that need no device model.
// It records every shift. TDO comes from OnShift when set, then from queued
// responses, and otherwise echoes TDI.
type SimAdapter struct {
	InfoData AdapterInfo
	SpeedHz  int

	OnShift ShiftHook

	shifts    []ShiftOp
	responses [][]byte
	resets    int
	hardReset int
}

// NewSimAdapter constructs a simulator configured with the provided AdapterInfo.
func NewSimAdapter(info AdapterInfo) *SimAdapter {
	return &SimAdapter{InfoData: info}
}

// Respond queues TDO vectors returned by the next shifts, in order.
func (s *SimAdapter) Respond(tdo ...[]byte) {
	s.responses = append(s.responses, tdo...)
}

// LastShift returns a copy of the most recent shift request.
func (s *SimAdapter) LastShift() ShiftOp {
	if len(s.shifts) == 0 {
		return ShiftOp{}
	}
	return s.shifts[len(s.shifts)-1]
}

// Shifts returns every recorded shift in order.
func (s *SimAdapter) Shifts() []ShiftOp {
	return append([]ShiftOp(nil), s.shifts...)
}

// ResetCounts reports how many resets have been requested (soft as total,
// hardReset as subset).
func (s *SimAdapter) ResetCounts() (soft, hard int) {
	return s.resets, s.hardReset
}

func (s *SimAdapter) Info() (AdapterInfo, error) {
	return s.InfoData, nil
}

func (s *SimAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionIR, tms, tdi, bits)
}

func (s *SimAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return s.shift(ShiftRegionDR, tms, tdi, bits)
}

func (s *SimAdapter) ResetTAP(hard bool) error {
	s.resets++
	if hard {
		s.hardReset++
	}
	return nil
}

func (s *SimAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	s.SpeedHz = hz
	return nil
}

func (s *SimAdapter) shift(region ShiftRegion, tms, tdi []byte, bits int) ([]byte, error) {
	required, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}

	s.shifts = append(s.shifts, ShiftOp{
		Region: region,
		TMS:    append([]byte(nil), tms...),
		TDI:    append([]byte(nil), tdi...),
		Bits:   bits,
	})

	if s.OnShift != nil {
		return s.OnShift(region, tms, tdi, bits)
	}

	tdo := make([]byte, required)
	if len(s.responses) > 0 {
		copy(tdo, s.responses[0])
		s.responses = s.responses[1:]
		return tdo, nil
	}
	copy(tdo, tdi)
	return tdo, nil
}
