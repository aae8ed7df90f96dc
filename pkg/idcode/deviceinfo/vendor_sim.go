package deviceinfo

// SimIDCode is reported by the software TAP model.
const SimIDCode uint32 = 0x15A5E0FD

func init() {
	register(key{ManufacturerCode: uint16((SimIDCode >> 1) & 0x7FF), PartNumber: uint16((SimIDCode >> 12) & 0xFFFF)}, DeviceInfo{
		Name:        "jtagstream-sim",
		Description: "Software TAP model",
		Family:      "sim",
		IRLength:    4,
	})
}
