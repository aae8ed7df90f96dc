package jtag

import (
	"bytes"
	"testing"
)

func TestValidateShiftBuffers(t *testing.T) {
	if _, err := ValidateShiftBuffers(nil, nil, 0); err == nil {
		t.Fatalf("expected error for zero bits")
	}

	_, err := ValidateShiftBuffers([]byte{0x00}, nil, 16)
	if err == nil {
		t.Fatalf("expected error when TMS buffer too small")
	}

	if _, err := ValidateShiftBuffers(nil, []byte{0x01}, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSimAdapterEchoShift(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "sim"})
	tdo, err := sim.ShiftDR([]byte{0xAA}, []byte{0xCC}, 8)
	if err != nil {
		t.Fatalf("ShiftDR returned error: %v", err)
	}
	if !bytes.Equal(tdo, []byte{0xCC}) {
		t.Fatalf("tdo = %X, want CC", tdo)
	}

	last := sim.LastShift()
	if last.Region != ShiftRegionDR || last.Bits != 8 {
		t.Fatalf("unexpected last shift metadata: %+v", last)
	}
}

func TestSimAdapterHook(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{Name: "sim"})
	sim.OnShift = func(region ShiftRegion, _, _ []byte, bits int) ([]byte, error) {
		if region != ShiftRegionIR || bits != 4 {
			t.Fatalf("unexpected hook args: region=%d bits=%d", region, bits)
		}
		return []byte{0x0F}, nil
	}

	tdo, err := sim.ShiftIR(nil, nil, 4)
	if err != nil {
		t.Fatalf("ShiftIR returned error: %v", err)
	}
	if !bytes.Equal(tdo, []byte{0x0F}) {
		t.Fatalf("tdo = %X, want 0F", tdo)
	}
}

func TestSimAdapterResetsAndSpeed(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	if err := sim.SetSpeed(1_000_000); err != nil {
		t.Fatalf("SetSpeed returned error: %v", err)
	}
	if err := sim.SetSpeed(0); err == nil {
		t.Fatalf("expected error for zero speed")
	}

	if err := sim.ResetTAP(false); err != nil {
		t.Fatalf("ResetTAP returned error: %v", err)
	}
	if err := sim.ResetTAP(true); err != nil {
		t.Fatalf("ResetTAP hard returned error: %v", err)
	}
	if soft, hard := sim.ResetCounts(); soft != 2 || hard != 1 {
		t.Fatalf("ResetCounts = %d soft / %d hard, want 2/1", soft, hard)
	}
}

func TestSimAdapterQueuedResponses(t *testing.T) {
	sim := NewSimAdapter(AdapterInfo{})
	sim.Respond([]byte{0x01}, []byte{0x02, 0x03})

	first, _ := sim.ShiftIR(nil, []byte{0xFF}, 4)
	second, _ := sim.ShiftDR(nil, nil, 16)
	third, _ := sim.ShiftDR(nil, []byte{0x5A}, 8)

	if !bytes.Equal(first, []byte{0x01}) || !bytes.Equal(second, []byte{0x02, 0x03}) {
		t.Fatalf("queued responses = %X, %X", first, second)
	}
	if !bytes.Equal(third, []byte{0x5A}) {
		t.Fatalf("echo after queue drained = %X, want 5A", third)
	}

	shifts := sim.Shifts()
	if len(shifts) != 3 {
		t.Fatalf("recorded %d shifts, want 3", len(shifts))
	}
	if shifts[0].Region != ShiftRegionIR || shifts[0].Region.String() != "IR" {
		t.Fatalf("first shift region = %v", shifts[0].Region)
	}
	if shifts[1].Bits != 16 || shifts[2].Region.String() != "DR" {
		t.Fatalf("unexpected history: %+v", shifts)
	}
}
