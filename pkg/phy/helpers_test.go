package phy_test

import (
	"github.com/OpenTraceLab/jtagstream/pkg/phy"
	"github.com/OpenTraceLab/jtagstream/pkg/tap"
)

// target is anything clocked one TCK edge at a time.
type target interface {
	TickTCK(tms, tdi bool) bool
}

// toIdle resets the TAP and parks it in Run-Test/Idle.
func toIdle(tg target) {
	for i := 0; i < tap.ResetClocks; i++ {
		tg.TickTCK(true, false)
	}
	tg.TickTCK(false, false)
}

// scanIR loads an instruction from Run-Test/Idle and returns there.
func scanIR(tg target, ir uint32, n int) {
	for _, tms := range []bool{true, true, false, false} {
		tg.TickTCK(tms, false)
	}
	for i := 0; i < n; i++ {
		tg.TickTCK(i == n-1, ir>>uint(i)&1 == 1)
	}
	tg.TickTCK(true, false)
	tg.TickTCK(false, false)
}

// scanDR shifts tdi through the data register from Run-Test/Idle and
// returns the bits sampled on TDO.
func scanDR(tg target, tdi []bool) []bool {
	for _, tms := range []bool{true, false, false} {
		tg.TickTCK(tms, false)
	}
	tdo := make([]bool, len(tdi))
	for i, bit := range tdi {
		tdo[i] = tg.TickTCK(i == len(tdi)-1, bit)
	}
	tg.TickTCK(true, false)
	tg.TickTCK(false, false)
	return tdo
}

// selectUser brings the device's port to Run-Test/Idle with its user
// instruction loaded.
func selectUser(tg target, d *phy.Device) {
	desc := d.Port().Descriptor()
	op, _ := desc.UserOpcode(d.Config().Chain)
	toIdle(tg)
	scanIR(tg, op, desc.IRLength)
}

type frame struct {
	ready bool
	data  uint32
	valid bool
}

func encode(width int, frames []frame) []bool {
	bits := make([]bool, 0, len(frames)*(width+2))
	for _, f := range frames {
		bits = append(bits, f.ready)
		for i := 0; i < width; i++ {
			bits = append(bits, f.data>>uint(i)&1 == 1)
		}
		bits = append(bits, f.valid)
	}
	return bits
}

func decode(width int, bits []bool) []frame {
	var out []frame
	for off := 0; off+width+2 <= len(bits); off += width + 2 {
		f := frame{ready: bits[off], valid: bits[off+width+1]}
		for i := 0; i < width; i++ {
			if bits[off+1+i] {
				f.data |= 1 << uint(i)
			}
		}
		out = append(out, f)
	}
	return out
}

// exchange runs one scan of n frames offering out, with the host always
// ready. It returns how many words of out the device accepted and the words
// the device sent.
func exchange(tg target, width int, out []uint32, n int) (int, []uint32) {
	frames := make([]frame, n)
	for i := range frames {
		frames[i].ready = true
		if i < len(out) {
			frames[i].data = out[i]
			frames[i].valid = true
		}
	}
	delivered := 0
	var in []uint32
	accepting := true
	for i, f := range decode(width, scanDR(tg, encode(width, frames))) {
		if frames[i].valid && accepting {
			if f.ready {
				delivered++
			} else {
				accepting = false
			}
		}
		if f.valid {
			in = append(in, f.data)
		}
	}
	return delivered, in
}

func words(s string) []uint32 {
	out := make([]uint32, len(s))
	for i := range s {
		out[i] = uint32(s[i])
	}
	return out
}

func text(ws []uint32) string {
	b := make([]byte, len(ws))
	for i, w := range ws {
		b[i] = byte(w)
	}
	return string(b)
}
