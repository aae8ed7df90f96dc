package deviceinfo

// Intel/Altera MAX 10 entries
func init() {
	const altr = 0x06E // Altera JEP106 code

	for _, d := range []struct {
		part uint16
		name string
	}{
		{0x3182, "10M08"},
		{0x3183, "10M16"},
		{0x3105, "10M50"},
	} {
		register(key{ManufacturerCode: altr, PartNumber: d.part}, DeviceInfo{
			Name:        d.name,
			Description: "MAX 10 FPGA",
			Family:      "max10",
			IRLength:    10,
		})
	}
}
