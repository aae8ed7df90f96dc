package deviceinfo

// Xilinx FPGA entries
func init() {
	const xlnx = 0x049 // Xilinx JEP106 code

	spartan6 := func(part uint16, name string) {
		register(key{ManufacturerCode: xlnx, PartNumber: part}, DeviceInfo{
			Name:        name,
			Description: "Spartan-6 FPGA",
			Family:      "spartan6",
			IRLength:    6,
		})
	}
	spartan6(0x4001, "XC6SLX9")
	spartan6(0x4002, "XC6SLX16")
	spartan6(0x4004, "XC6SLX25")
	spartan6(0x4008, "XC6SLX45")

	series7 := func(part uint16, name, desc string) {
		register(key{ManufacturerCode: xlnx, PartNumber: part}, DeviceInfo{
			Name:        name,
			Description: desc,
			Family:      "series7",
			IRLength:    6,
		})
	}
	series7(0x362D, "XC7A35T", "Artix-7 FPGA")
	series7(0x362C, "XC7A50T", "Artix-7 FPGA")
	series7(0x3631, "XC7A100T", "Artix-7 FPGA")
	series7(0x3636, "XC7A200T", "Artix-7 FPGA")
	series7(0x3651, "XC7K325T", "Kintex-7 FPGA")
	series7(0x3727, "XC7Z020", "Zynq-7000 SoC")

	register(key{ManufacturerCode: xlnx, PartNumber: 0x3822}, DeviceInfo{
		Name:        "XCKU040",
		Description: "Kintex UltraScale FPGA",
		Family:      "ultrascale",
		IRLength:    6,
	})
	register(key{ManufacturerCode: xlnx, PartNumber: 0x3919}, DeviceInfo{
		Name:        "XCKU060",
		Description: "Kintex UltraScale FPGA",
		Family:      "ultrascale",
		IRLength:    6,
	})
}
