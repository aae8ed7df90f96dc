package idcode

import "github.com/OpenTraceLab/jtagstream/pkg/jtag"

// ParseIDCode parses a raw 32-bit IDCODE into its component fields
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8((raw >> 28) & 0xF),
		PartNumber:       uint16((raw >> 12) & 0xFFFF),
		ManufacturerCode: uint16((raw >> 1) & 0x7FF),
		HasIDCode:        (raw & 0x1) == 0x1,
	}
}

// FromBits parses an IDCODE shifted out LSB first, as returned by a DR scan.
func FromBits(tdo []byte) IDCode {
	return ParseIDCode(jtag.Uint32FromBits(tdo, 32))
}
