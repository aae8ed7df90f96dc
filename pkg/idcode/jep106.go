package idcode

import "fmt"

// manufacturers maps the 11-bit IDCODE manufacturer field (bank in the top
// four bits, ID without parity in the low seven) to a JEP106 entry.
var manufacturers = map[uint16]Manufacturer{
	0x001: {Code: 0x001, Name: "AMD", Abbreviation: "AMD"},
	0x009: {Code: 0x009, Name: "Intel", Abbreviation: "INTC"},
	0x00E: {Code: 0x00E, Name: "Freescale (Motorola)", Abbreviation: "FSL"},
	0x015: {Code: 0x015, Name: "NXP (Philips)", Abbreviation: "NXP"},
	0x017: {Code: 0x017, Name: "Texas Instruments", Abbreviation: "TI"},
	0x01F: {Code: 0x01F, Name: "Atmel", Abbreviation: "ATML"},
	0x020: {Code: 0x020, Name: "STMicroelectronics", Abbreviation: "STM"},
	0x021: {Code: 0x021, Name: "Lattice Semiconductor", Abbreviation: "LSC"},
	0x029: {Code: 0x029, Name: "Microchip Technology", Abbreviation: "MCHP"},
	0x049: {Code: 0x049, Name: "Xilinx", Abbreviation: "XLNX"},
	0x06E: {Code: 0x06E, Name: "Altera (Intel PSG)", Abbreviation: "ALTR"},
	0x23B: {Code: 0x23B, Name: "ARM Ltd", Abbreviation: "ARM"},
}

// LookupManufacturer returns manufacturer info for an IDCODE manufacturer
// field. Unknown codes get a placeholder entry and false.
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	m, ok := manufacturers[code]
	if !ok {
		return Manufacturer{
			Code:         code,
			Name:         fmt.Sprintf("Unknown (0x%03X)", code),
			Abbreviation: "Unknown",
		}, false
	}
	return m, true
}
