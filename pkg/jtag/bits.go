package jtag

// PackBits packs bools LSB first.
func PackBits(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// UnpackBits expands the first n bits of data. Bits beyond data read as
// zero.
func UnpackBits(data []byte, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = Bit(data, i)
	}
	return out
}

// Bit returns bit i of an LSB-first vector, false past its end.
func Bit(data []byte, i int) bool {
	if i/8 >= len(data) {
		return false
	}
	return data[i/8]>>uint(i%8)&1 == 1
}

// SetBit sets bit i of an LSB-first vector to v.
func SetBit(data []byte, i int, v bool) {
	if v {
		data[i/8] |= 1 << uint(i%8)
	} else {
		data[i/8] &^= 1 << uint(i%8)
	}
}

// Uint32FromBits reads the first n (at most 32) bits as an integer.
func Uint32FromBits(data []byte, n int) uint32 {
	var v uint32
	for i := 0; i < n && i < 32; i++ {
		if Bit(data, i) {
			v |= 1 << uint(i)
		}
	}
	return v
}

// CopyBits copies n bits from src starting at bit srcOff into dst starting
// at bit dstOff.
func CopyBits(dst []byte, dstOff int, src []byte, srcOff, n int) {
	for i := 0; i < n; i++ {
		SetBit(dst, dstOff+i, Bit(src, srcOff+i))
	}
}
