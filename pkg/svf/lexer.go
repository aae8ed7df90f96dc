package svf

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// SVFLexer tokenises Serial Vector Format files. Hex operands keep their
// parentheses and may span lines.
var SVFLexer = lexer.MustSimple([]lexer.SimpleRule{
	// ! and // comments run to end of line
	{Name: "Comment", Pattern: `(?:!|//)[^\n]*`},
	{Name: "Whitespace", Pattern: `[\s\t\n\r]+`},

	{Name: "Hex", Pattern: `\([\s0-9A-Fa-f]*\)`},
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?(?:[eE][-+]?[0-9]+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Semicolon", Pattern: `;`},
})
