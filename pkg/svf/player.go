package svf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/OpenTraceLab/jtagstream/internal/logging"
	"github.com/OpenTraceLab/jtagstream/pkg/jtag"
	"github.com/OpenTraceLab/jtagstream/pkg/tap"
)

var log = logging.For(logging.ComponentSVF)

// ErrUnsupported is returned for SVF constructs the player does not
// implement, such as non-empty header or trailer scans.
var ErrUnsupported = errors.New("svf: unsupported command")

// maxChunk bounds the cycles sent in one adapter call during RUNTEST.
const maxChunk = 4096

// defaultFrequency is assumed for time-based RUNTEST until FREQUENCY sets
// one.
const defaultFrequency = 1e6

// MismatchError reports TDO that differs from the expected value under the
// mask.
type MismatchError struct {
	Line     int
	Register string
	Length   int
	Got      []byte
	Expected []byte
	Mask     []byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("svf: line %d: S%s TDO mismatch: got %s, expected %s, mask %s",
		e.Line, e.Register, FormatHex(e.Got, e.Length), FormatHex(e.Expected, e.Length), FormatHex(e.Mask, e.Length))
}

// Stats counts what a Player executed.
type Stats struct {
	Commands int
	Scans    int
	Checked  int // scans with a TDO comparison
	Cycles   uint64
}

// scanState holds the operands SVF carries over between scans of the same
// register.
type scanState struct {
	length int
	tdi    []byte
	mask   []byte
	smask  []byte
}

// Player executes SVF commands against an adapter, tracking the TAP state.
// The TAP is assumed to be in Test-Logic-Reset at start.
type Player struct {
	adapter jtag.Adapter
	tap     *tap.StateMachine

	endIR    tap.State
	endDR    tap.State
	runState tap.State
	runEnd   tap.State
	hz       float64

	sir, sdr scanState
	stats    Stats
}

// NewPlayer returns a Player driving a.
func NewPlayer(a jtag.Adapter) *Player {
	return &Player{
		adapter:  a,
		tap:      tap.NewStateMachine(),
		endIR:    tap.StateRunTestIdle,
		endDR:    tap.StateRunTestIdle,
		runState: tap.StateRunTestIdle,
		runEnd:   tap.StateRunTestIdle,
		hz:       defaultFrequency,
	}
}

// State returns the tracked TAP state.
func (p *Player) State() tap.State { return p.tap.State() }

// Stats returns the execution counters.
func (p *Player) Stats() Stats { return p.stats }

// PlayFile parses and plays the SVF file at path.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	parser, err := NewParser()
	if err != nil {
		return err
	}
	f, err := parser.ParseFile(path)
	if err != nil {
		return err
	}
	return p.Play(ctx, f)
}

// Play executes every command of f in order. It stops at the first error.
func (p *Player) Play(ctx context.Context, f *File) error {
	for _, cmd := range f.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.exec(cmd); err != nil {
			return err
		}
		p.stats.Commands++
	}
	log.Debug("svf played", "commands", p.stats.Commands, "scans", p.stats.Scans, "cycles", p.stats.Cycles)
	return nil
}

func (p *Player) exec(c *Command) error {
	line := c.Pos.Line
	switch {
	case c.EndDR != nil:
		s, err := stableState(c.EndDR.State, line)
		if err != nil {
			return err
		}
		p.endDR = s
	case c.EndIR != nil:
		s, err := stableState(c.EndIR.State, line)
		if err != nil {
			return err
		}
		p.endIR = s
	case c.State != nil:
		return p.statePath(c.State.States, line)
	case c.SIR != nil:
		return p.scan(c.SIR, &p.sir, "IR", line)
	case c.SDR != nil:
		return p.scan(c.SDR, &p.sdr, "DR", line)
	case c.HIR != nil, c.HDR != nil, c.TIR != nil, c.TDR != nil:
		return p.headerTrailer(c, line)
	case c.RunTest != nil:
		return p.runTest(c.RunTest, line)
	case c.Frequency != nil:
		return p.frequency(c.Frequency, line)
	case c.TRST != nil:
		return p.trst(c.TRST, line)
	}
	return nil
}

func stableState(name string, line int) (tap.State, error) {
	s, err := tap.ParseState(name)
	if err != nil {
		return 0, fmt.Errorf("svf: line %d: %w", line, err)
	}
	if !s.IsStable() {
		return 0, fmt.Errorf("svf: line %d: %s is not a stable state", line, s.SVFName())
	}
	return s, nil
}

// goTo moves the TAP to s. RESET always clocks the full reset sequence so
// it also works from an unknown state.
func (p *Player) goTo(s tap.State) error {
	var seq tap.Sequence
	if s == tap.StateTestLogicReset {
		seq = p.tap.Reset()
	} else {
		var err error
		if seq, err = p.tap.GoTo(s); err != nil {
			return err
		}
	}
	if len(seq.TMS) == 0 {
		return nil
	}
	_, err := p.clock(jtag.ShiftRegionDR, seq.TMS, nil)
	return err
}

func (p *Player) statePath(names []string, line int) error {
	for i, name := range names {
		s, err := tap.ParseState(name)
		if err != nil {
			return fmt.Errorf("svf: line %d: %w", line, err)
		}
		if i == len(names)-1 && !s.IsStable() {
			return fmt.Errorf("svf: line %d: STATE must end in a stable state, got %s", line, s.SVFName())
		}
		if err := p.goTo(s); err != nil {
			return fmt.Errorf("svf: line %d: %w", line, err)
		}
	}
	return nil
}

func (p *Player) headerTrailer(c *Command, line int) error {
	for _, s := range []*Scan{c.HIR, c.HDR, c.TIR, c.TDR} {
		if s != nil && s.Length != 0 {
			return fmt.Errorf("%w: line %d: header and trailer scans on a multi-device chain", ErrUnsupported, line)
		}
	}
	return nil
}

func (p *Player) scan(s *Scan, st *scanState, reg string, line int) error {
	n := s.Length
	if n != st.length {
		// a length change drops the remembered operands
		*st = scanState{length: n}
	}
	operand := func(name string, keep []byte) ([]byte, error) {
		v, ok := s.Get(name)
		if !ok {
			return keep, nil
		}
		b, err := ParseHex(v, n)
		if err != nil {
			return nil, fmt.Errorf("svf: line %d: %s: %w", line, name, err)
		}
		return b, nil
	}
	var err error
	if st.tdi, err = operand("TDI", st.tdi); err != nil {
		return err
	}
	if st.mask, err = operand("MASK", st.mask); err != nil {
		return err
	}
	if st.smask, err = operand("SMASK", st.smask); err != nil {
		return err
	}
	expected, err := operand("TDO", nil)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if st.tdi == nil {
		return fmt.Errorf("svf: line %d: S%s %d has no TDI", line, reg, n)
	}

	shift, end := tap.StateShiftDR, p.endDR
	region := jtag.ShiftRegionDR
	if reg == "IR" {
		shift, end, region = tap.StateShiftIR, p.endIR, jtag.ShiftRegionIR
	}

	enter, err := p.tap.GoTo(shift)
	if err != nil {
		return err
	}
	tms := append([]bool(nil), enter.TMS...)
	tdi := make([]bool, len(tms), len(tms)+n+4)
	start := len(tms)
	for i := 0; i < n; i++ {
		last := i == n-1
		tms = append(tms, last)
		tdi = append(tdi, jtag.Bit(st.tdi, i))
		p.tap.Clock(last)
	}
	leave, err := p.tap.GoTo(end)
	if err != nil {
		return err
	}
	tms = append(tms, leave.TMS...)
	tdi = append(tdi, make([]bool, len(leave.TMS))...)

	tdo, err := p.clock(region, tms, tdi)
	if err != nil {
		return fmt.Errorf("svf: line %d: %w", line, err)
	}
	p.stats.Scans++
	if expected == nil {
		return nil
	}
	p.stats.Checked++

	got := make([]byte, (n+7)/8)
	jtag.CopyBits(got, 0, jtag.PackBits(tdo), start, n)
	for i := 0; i < n; i++ {
		if st.mask != nil && !jtag.Bit(st.mask, i) {
			continue
		}
		if jtag.Bit(got, i) != jtag.Bit(expected, i) {
			mask := st.mask
			if mask == nil {
				mask = ones(n)
			}
			return &MismatchError{Line: line, Register: reg, Length: n, Got: got, Expected: expected, Mask: mask}
		}
	}
	return nil
}

func (p *Player) runTest(r *RunTest, line int) error {
	if r.RunState != "" {
		s, err := stableState(r.RunState, line)
		if err != nil {
			return err
		}
		p.runState = s
		// the end state defaults to the run state
		p.runEnd = s
	}
	if r.EndState != "" {
		s, err := stableState(r.EndState, line)
		if err != nil {
			return err
		}
		p.runEnd = s
	}

	var cycles uint64
	switch strings.ToUpper(r.Unit) {
	case "TCK":
		cycles = uint64(math.Ceil(r.Count))
	case "SCK":
		return fmt.Errorf("%w: line %d: RUNTEST on SCK", ErrUnsupported, line)
	case "SEC":
		cycles = toCycles(r.Count, p.hz)
	}
	if r.MinTime != nil {
		cycles = max(cycles, toCycles(*r.MinTime, p.hz))
	}

	if err := p.goTo(p.runState); err != nil {
		return fmt.Errorf("svf: line %d: %w", line, err)
	}
	hold := p.runState == tap.StateTestLogicReset
	for left := cycles; left > 0; {
		n := min(left, maxChunk)
		tms := make([]bool, n)
		for i := range tms {
			tms[i] = hold
		}
		if _, err := p.clock(jtag.ShiftRegionDR, tms, nil); err != nil {
			return fmt.Errorf("svf: line %d: %w", line, err)
		}
		left -= n
	}
	if err := p.goTo(p.runEnd); err != nil {
		return fmt.Errorf("svf: line %d: %w", line, err)
	}
	return nil
}

func (p *Player) frequency(f *Frequency, line int) error {
	if f.Hz == nil {
		info, err := p.adapter.Info()
		if err != nil {
			return err
		}
		if info.MaxFrequency > 0 {
			return p.setSpeed(float64(info.MaxFrequency), line)
		}
		return nil
	}
	return p.setSpeed(*f.Hz, line)
}

func (p *Player) setSpeed(hz float64, line int) error {
	if err := p.adapter.SetSpeed(int(hz)); err != nil {
		return fmt.Errorf("svf: line %d: %w", line, err)
	}
	p.hz = hz
	return nil
}

func (p *Player) trst(t *TRST, line int) error {
	if strings.ToUpper(t.Mode) != "ON" {
		return nil
	}
	if err := p.adapter.ResetTAP(true); err != nil {
		return fmt.Errorf("svf: line %d: %w", line, err)
	}
	p.tap.Reset()
	return nil
}

// toCycles rounds a wait up to whole TCK periods, ignoring the error of
// decimal exponents like 1E-3.
func toCycles(sec, hz float64) uint64 {
	return uint64(math.Ceil(sec*hz - 1e-6))
}

func ones(n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		jtag.SetBit(out, i, true)
	}
	return out
}

// clock sends one raw cycle sequence and returns TDO for every cycle.
func (p *Player) clock(region jtag.ShiftRegion, tms, tdi []bool) ([]bool, error) {
	n := len(tms)
	var tdiBytes []byte
	if tdi != nil {
		tdiBytes = jtag.PackBits(tdi)
	}
	var (
		tdo []byte
		err error
	)
	if region == jtag.ShiftRegionIR {
		tdo, err = p.adapter.ShiftIR(jtag.PackBits(tms), tdiBytes, n)
	} else {
		tdo, err = p.adapter.ShiftDR(jtag.PackBits(tms), tdiBytes, n)
	}
	if err != nil {
		return nil, err
	}
	p.stats.Cycles += uint64(n)
	return jtag.UnpackBits(tdo, n), nil
}
