package idcode

import "testing"

func TestParseIDCode(t *testing.T) {
	tests := []struct {
		raw     uint32
		version uint8
		part    uint16
		mfg     uint16
		name    string
	}{
		{0x0362D093, 0, 0x362D, 0x049, "Xilinx"},
		{0x04001093, 0, 0x4001, 0x049, "Xilinx"},
		{0x031050DD, 0, 0x3105, 0x06E, "Altera (Intel PSG)"},
		{0x41111043, 4, 0x1111, 0x021, "Lattice Semiconductor"},
		{0x4BA00477, 4, 0xBA00, 0x23B, "ARM Ltd"},
	}
	for _, tt := range tests {
		id := ParseIDCode(tt.raw)
		if id.Version != tt.version || id.PartNumber != tt.part || id.ManufacturerCode != tt.mfg {
			t.Fatalf("ParseIDCode(%#08x) = %+v", tt.raw, id)
		}
		if !id.Valid() {
			t.Fatalf("%#08x reported invalid", tt.raw)
		}
		m, ok := LookupManufacturer(id.ManufacturerCode)
		if !ok || m.Name != tt.name {
			t.Fatalf("manufacturer for %#08x = %q (%v), want %q", tt.raw, m.Name, ok, tt.name)
		}
	}
}

func TestInvalidIDCodes(t *testing.T) {
	for _, raw := range []uint32{0x00000000, 0xFFFFFFFF, 0x0362D092, 0x000000FF} {
		if ParseIDCode(raw).Valid() {
			t.Fatalf("%#08x reported valid", raw)
		}
	}
}

func TestBank(t *testing.T) {
	if got := ParseIDCode(0x4BA00477).Bank(); got != 4 {
		t.Fatalf("ARM bank = %d, want 4", got)
	}
	if got := ParseIDCode(0x0362D093).Bank(); got != 0 {
		t.Fatalf("Xilinx bank = %d, want 0", got)
	}
}

func TestUnknownManufacturer(t *testing.T) {
	m, ok := LookupManufacturer(0x07E)
	if ok {
		t.Fatalf("0x07E unexpectedly known")
	}
	if m.Name != "Unknown (0x07E)" {
		t.Fatalf("placeholder name = %q", m.Name)
	}
}

func TestFromBits(t *testing.T) {
	// 0x0362D093 shifted out LSB first
	bits := []byte{0x93, 0xD0, 0x62, 0x03}
	if got := FromBits(bits).Raw; got != 0x0362D093 {
		t.Fatalf("FromBits = %#08x", got)
	}
}
