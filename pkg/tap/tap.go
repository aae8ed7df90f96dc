package tap

import (
	"fmt"
	"strings"
)

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	// NumStates is the number of TAP states.
	NumStates = 16
)

// ResetClocks is the number of consecutive TMS=1 clocks that reach
// Test-Logic-Reset from any state.
const ResetClocks = 5

type stateInfo struct {
	camel string // Go-style name, used by String
	name  string // standard hyphenated name
	svf   string // SVF state keyword
}

var stateTable = [NumStates]stateInfo{
	StateTestLogicReset: {"TestLogicReset", "test-logic-reset", "RESET"},
	StateRunTestIdle:    {"RunTestIdle", "run-test-idle", "IDLE"},
	StateSelectDRScan:   {"SelectDRScan", "select-dr-scan", "DRSELECT"},
	StateCaptureDR:      {"CaptureDR", "capture-dr", "DRCAPTURE"},
	StateShiftDR:        {"ShiftDR", "shift-dr", "DRSHIFT"},
	StateExit1DR:        {"Exit1DR", "exit1-dr", "DREXIT1"},
	StatePauseDR:        {"PauseDR", "pause-dr", "DRPAUSE"},
	StateExit2DR:        {"Exit2DR", "exit2-dr", "DREXIT2"},
	StateUpdateDR:       {"UpdateDR", "update-dr", "DRUPDATE"},
	StateSelectIRScan:   {"SelectIRScan", "select-ir-scan", "IRSELECT"},
	StateCaptureIR:      {"CaptureIR", "capture-ir", "IRCAPTURE"},
	StateShiftIR:        {"ShiftIR", "shift-ir", "IRSHIFT"},
	StateExit1IR:        {"Exit1IR", "exit1-ir", "IREXIT1"},
	StatePauseIR:        {"PauseIR", "pause-ir", "IRPAUSE"},
	StateExit2IR:        {"Exit2IR", "exit2-ir", "IREXIT2"},
	StateUpdateIR:       {"UpdateIR", "update-ir", "IRUPDATE"},
}

func (s State) String() string {
	if s.Valid() {
		return stateTable[s].camel
	}
	return fmt.Sprintf("State(%d)", s)
}

// Name returns the standard hyphenated state name, e.g. "shift-dr".
func (s State) Name() string {
	if s.Valid() {
		return stateTable[s].name
	}
	return s.String()
}

// SVFName returns the keyword SVF uses for the state, e.g. "DRSHIFT".
func (s State) SVFName() string {
	if s.Valid() {
		return stateTable[s].svf
	}
	return s.String()
}

// Valid reports whether s is one of the 16 TAP states.
func (s State) Valid() bool {
	return s < NumStates
}

// IsShift reports whether data moves between TDI and TDO in this state.
func (s State) IsShift() bool {
	return s == StateShiftDR || s == StateShiftIR
}

// IsStable reports whether the state can be held with a constant TMS and is
// accepted as an SVF end state.
func (s State) IsStable() bool {
	switch s {
	case StateTestLogicReset, StateRunTestIdle, StatePauseDR, StatePauseIR:
		return true
	}
	return false
}

// ParseState resolves a state from its hyphenated name, its Go name or its SVF
// keyword. Matching ignores case, '-' and '_'.
func ParseState(name string) (State, error) {
	key := normalize(name)
	for i, info := range stateTable {
		if key == normalize(info.camel) || key == normalize(info.name) || key == normalize(info.svf) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("tap: unknown state %q", name)
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "_", "")
}

// Sequence captures the TMS drive pattern and the sequence of states that result
// from applying that pattern to the TAP controller.
type Sequence struct {
	TMS    []bool
	States []State
}

type stateTransitions struct {
	onZero State
	onOne  State
}

var transitions = [NumStates]stateTransitions{
	StateTestLogicReset: {onZero: StateRunTestIdle, onOne: StateTestLogicReset},
	StateRunTestIdle:    {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
	StateSelectDRScan:   {onZero: StateCaptureDR, onOne: StateSelectIRScan},
	StateCaptureDR:      {onZero: StateShiftDR, onOne: StateExit1DR},
	StateShiftDR:        {onZero: StateShiftDR, onOne: StateExit1DR},
	StateExit1DR:        {onZero: StatePauseDR, onOne: StateUpdateDR},
	StatePauseDR:        {onZero: StatePauseDR, onOne: StateExit2DR},
	StateExit2DR:        {onZero: StateShiftDR, onOne: StateUpdateDR},
	StateUpdateDR:       {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
	StateSelectIRScan:   {onZero: StateCaptureIR, onOne: StateTestLogicReset},
	StateCaptureIR:      {onZero: StateShiftIR, onOne: StateExit1IR},
	StateShiftIR:        {onZero: StateShiftIR, onOne: StateExit1IR},
	StateExit1IR:        {onZero: StatePauseIR, onOne: StateUpdateIR},
	StatePauseIR:        {onZero: StatePauseIR, onOne: StateExit2IR},
	StateExit2IR:        {onZero: StateShiftIR, onOne: StateUpdateIR},
	StateUpdateIR:       {onZero: StateRunTestIdle, onOne: StateSelectDRScan},
}

// NextState returns the next TAP state after clocking TCK with the provided TMS
// value. It panics if an invalid state is supplied, which should never happen
// when interacting through the exported API.
func NextState(current State, tms bool) State {
	if !current.Valid() {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	row := transitions[current]
	if tms {
		return row.onOne
	}
	return row.onZero
}

// StateMachine tracks the TAP controller state. It does not perform any I/O:
// the device model clocks it from sampled TMS values, and host code uses it to
// produce the TMS sequences a probe has to drive.
type StateMachine struct {
	state State
	ticks uint16
}

// NewStateMachine creates a TAP state machine initialized to Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the current TAP state tracked by the machine.
func (m *StateMachine) State() State {
	return m.state
}

// In reports whether the machine is currently in s.
func (m *StateMachine) In(s State) bool {
	return m.state == s
}

// OneHot returns the current state as a one-hot mask, bit i set for State(i).
func (m *StateMachine) OneHot() uint16 {
	return 1 << m.state
}

// Ticks returns the number of TCK edges seen since construction, wrapping at
// 16 bits.
func (m *StateMachine) Ticks() uint16 {
	return m.ticks
}

// Clock advances the machine one TCK cycle with the provided TMS bit and
// returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	m.ticks++
	return m.state
}

// Walk clocks every TMS bit in order and returns the realized sequence,
// starting with the state before the first edge.
func (m *StateMachine) Walk(tms []bool) Sequence {
	seq := Sequence{
		TMS:    append([]bool(nil), tms...),
		States: make([]State, 0, len(tms)+1),
	}
	seq.States = append(seq.States, m.state)
	for _, bit := range tms {
		seq.States = append(seq.States, m.Clock(bit))
	}
	return seq
}

// Reset applies the IEEE recommendation of clocking five consecutive TMS=1
// cycles. It returns the sequence for convenience so it can be forwarded to a
// hardware adapter.
func (m *StateMachine) Reset() Sequence {
	tms := make([]bool, ResetClocks)
	for i := range tms {
		tms[i] = true
	}
	return m.Walk(tms)
}

// GoTo computes the minimal sequence of TMS values needed to reach the target
// state from the current state. It updates the machine as a side effect and
// returns the generated sequence.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	path, err := Path(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	for _, bit := range path.TMS {
		m.Clock(bit)
	}
	return path, nil
}

// Path uses BFS across the TAP state diagram to find the shortest set of
// transitions between two states.
func Path(from, to State) (Sequence, error) {
	if !from.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if !to.Valid() {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	type node struct {
		state  State
		tms    []bool
		states []State
	}

	queue := []node{{
		state:  from,
		states: []State{from},
	}}
	var visited [NumStates]bool
	visited[from] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, bit := range [2]bool{false, true} {
			next := NextState(current.state, bit)
			if visited[next] {
				continue
			}

			newTMS := append(append([]bool{}, current.tms...), bit)
			newStates := append(append([]State{}, current.states...), next)

			if next == to {
				return Sequence{
					TMS:    newTMS,
					States: newStates,
				}, nil
			}

			visited[next] = true
			queue = append(queue, node{
				state:  next,
				tms:    newTMS,
				states: newStates,
			})
		}
	}

	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}
