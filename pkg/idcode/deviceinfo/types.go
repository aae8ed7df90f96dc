package deviceinfo

import "github.com/OpenTraceLab/jtagstream/pkg/idcode"

// DeviceInfo contains what the link needs to know about a JTAG device
type DeviceInfo struct {
	// Key fields
	IDCode       idcode.IDCode
	Manufacturer idcode.Manufacturer

	// Human-friendly
	Name        string // "XC7A35T"
	Description string // "Artix-7 FPGA"

	// Family is the vendor family name understood by vendor.ParseFamily,
	// empty when the device cannot host a stream link.
	Family string

	// JTAG specifics
	IRLength int
	Known    bool
}
