package idcode

import "fmt"

// IDCode represents a parsed IEEE 1149.1 JTAG IDCODE
type IDCode struct {
	Raw              uint32 // full IDCODE
	Version          uint8  // [31:28]
	PartNumber       uint16 // [27:12]
	ManufacturerCode uint16 // [11:1] JEP106 bank and ID, parity stripped
	HasIDCode        bool   // bit 0 == 1
}

// Bank returns the JEP106 continuation bank (zero based).
func (id IDCode) Bank() int {
	return int(id.ManufacturerCode >> 7)
}

// Valid reports whether the code can be a real IDCODE: bit 0 set, and not
// the all-ones pattern an open TDO line produces.
func (id IDCode) Valid() bool {
	return id.HasIDCode && id.Raw != 0xFFFFFFFF && id.ManufacturerCode&0x7F != 0x7F
}

func (id IDCode) String() string {
	m, _ := LookupManufacturer(id.ManufacturerCode)
	return fmt.Sprintf("0x%08X (%s, part 0x%04X, rev %d)", id.Raw, m.Name, id.PartNumber, id.Version)
}

// Manufacturer represents a JEP106 manufacturer entry
type Manufacturer struct {
	Code         uint16 // IDCODE manufacturer field
	Name         string // "Xilinx"
	Abbreviation string // "XLNX"
}
