package svf

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// File is a parsed SVF file.
type File struct {
	Commands []*Command `@@*`
}

// Command is one SVF statement. Exactly one field is set.
type Command struct {
	Pos lexer.Position

	EndDR     *EndState  `  "ENDDR" @@`
	EndIR     *EndState  `| "ENDIR" @@`
	State     *StatePath `| "STATE" @@`
	SIR       *Scan      `| "SIR" @@`
	SDR       *Scan      `| "SDR" @@`
	HIR       *Scan      `| "HIR" @@`
	HDR       *Scan      `| "HDR" @@`
	TIR       *Scan      `| "TIR" @@`
	TDR       *Scan      `| "TDR" @@`
	RunTest   *RunTest   `| "RUNTEST" @@`
	Frequency *Frequency `| "FREQUENCY" @@`
	TRST      *TRST      `| "TRST" @@`
}

// EndState is the operand of ENDDR and ENDIR.
type EndState struct {
	State string `@Ident ";"`
}

// StatePath is the operand of STATE: an explicit path ending in a stable
// state.
type StatePath struct {
	States []string `@Ident+ ";"`
}

// Scan is a shift of Length bits with optional TDI, TDO, MASK and SMASK.
type Scan struct {
	Length int      `@Number`
	Params []*Param `@@* ";"`
}

// Param is one named hex operand of a scan.
type Param struct {
	Name  string `@("TDI" | "TDO" | "MASK" | "SMASK")`
	Value string `@Hex`
}

// Get returns the hex operand named name, if present.
func (s *Scan) Get(name string) (string, bool) {
	for _, p := range s.Params {
		if strings.EqualFold(p.Name, name) {
			return p.Value, true
		}
	}
	return "", false
}

// RunTest waits in a stable state for a number of clocks or a time.
type RunTest struct {
	RunState string   `@("RESET" | "IDLE" | "DRPAUSE" | "IRPAUSE")?`
	Count    float64  `@Number`
	Unit     string   `@("TCK" | "SCK" | "SEC")`
	MinTime  *float64 `( @Number "SEC" )?`
	MaxTime  *float64 `( "MAXIMUM" @Number "SEC" )?`
	EndState string   `( "ENDSTATE" @Ident )? ";"`
}

// Frequency sets the TCK rate; without a value it selects full speed.
type Frequency struct {
	Hz *float64 `( @Number "HZ" )? ";"`
}

// TRST drives the optional test reset pin.
type TRST struct {
	Mode string `@("ON" | "OFF" | "Z" | "ABSENT") ";"`
}
