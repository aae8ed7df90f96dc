// Package svf parses Serial Vector Format files and plays them through a
// jtag.Adapter.
package svf

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// Parser represents an SVF file parser
type Parser struct {
	parser *participle.Parser[File]
}

// NewParser creates a new SVF parser instance
func NewParser() (*Parser, error) {
	parser, err := participle.Build[File](
		participle.Lexer(SVFLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.CaseInsensitive("Ident"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// Parse parses an SVF file from a reader
func (p *Parser) Parse(name string, r io.Reader) (*File, error) {
	f, err := p.parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("svf: parse error: %w", err)
	}
	return f, nil
}

// ParseString parses SVF text
func (p *Parser) ParseString(input string) (*File, error) {
	f, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("svf: parse error: %w", err)
	}
	return f, nil
}

// ParseFile parses an SVF file from a file path
func (p *Parser) ParseFile(filename string) (*File, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("svf: open: %w", err)
	}
	defer file.Close()

	return p.Parse(filename, file)
}

// ParseHex converts a parenthesised SVF hex operand into an LSB-first bit
// vector of n bits. The rightmost digit holds bits 0..3.
func ParseHex(s string, n int) ([]byte, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	s = strings.Join(strings.Fields(s), "")
	out := make([]byte, (n+7)/8)
	for i := 0; i < len(s); i++ {
		c := s[len(s)-1-i]
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			return nil, fmt.Errorf("svf: bad hex digit %q", c)
		}
		for b := 0; b < 4; b++ {
			bit := i*4 + b
			if v>>uint(b)&1 == 0 {
				continue
			}
			if bit >= n {
				return nil, fmt.Errorf("svf: value %s wider than %d bits", s, n)
			}
			out[bit/8] |= 1 << uint(bit%8)
		}
	}
	return out, nil
}

// FormatHex renders the first n bits of an LSB-first vector as SVF hex.
func FormatHex(v []byte, n int) string {
	const digits = "0123456789ABCDEF"
	var sb strings.Builder
	for d := (n+3)/4 - 1; d >= 0; d-- {
		var x byte
		for b := 0; b < 4; b++ {
			bit := d*4 + b
			if bit < n && bit/8 < len(v) && v[bit/8]>>uint(bit%8)&1 == 1 {
				x |= 1 << uint(b)
			}
		}
		sb.WriteByte(digits[x])
	}
	return sb.String()
}
