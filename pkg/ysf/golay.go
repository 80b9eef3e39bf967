package ysf

// Golay(23,12) and extended Golay(24,12) block codes used by the FICH and by
// the voice channel re-framing in the codec package.

// golayGenerator is x^11 + x^10 + x^6 + x^5 + x^4 + x^2 + 1
const golayGenerator = 0xC75

var encodingTable23127 [4096]uint32

func init() {
	for data := uint32(0); data < 4096; data++ {
		encodingTable23127[data] = (data << 11) | golayRemainder(data<<11)
	}
}

// golayRemainder returns the 11-bit remainder of a 23-bit word divided by
// the generator polynomial.
func golayRemainder(code uint32) uint32 {
	code &= 0x7FFFFF
	for i := 22; i >= 11; i-- {
		if code&(1<<uint(i)) != 0 {
			code ^= golayGenerator << uint(i-11)
		}
	}
	return code & 0x7FF
}

// Encode23127 encodes 12 data bits into a systematic 23-bit Golay codeword
func Encode23127(data uint32) uint32 {
	return encodingTable23127[data&0xFFF]
}

// Decode23127 returns the 12 data bits of a 23-bit codeword, correcting up
// to three bit errors.
func Decode23127(code uint32) uint32 {
	code &= 0x7FFFFF
	if golayRemainder(code) == 0 {
		return code >> 11
	}

	// Golay(23,12) is perfect: the nearest codeword is always within three bits.
	best, bestDist := uint32(0), 24
	for data := uint32(0); data < 4096; data++ {
		dist := hammingWeight(code ^ encodingTable23127[data])
		if dist < bestDist {
			best, bestDist = data, dist
			if dist <= 3 {
				break
			}
		}
	}
	return best
}

// Encode24128 encodes 12 data bits into a 24-bit extended Golay codeword
// (the 23-bit codeword followed by an even parity bit).
func Encode24128(data uint32) uint32 {
	code := Encode23127(data)
	return (code << 1) | uint32(hammingWeight(code)&1)
}

// Decode24128 decodes a 24-bit codeword held big-endian in the first three bytes
func Decode24128(b []byte) uint32 {
	if len(b) < 3 {
		return 0
	}
	return Decode24128Code(uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]))
}

// Decode24128Code decodes a 24-bit codeword, ignoring the parity bit
func Decode24128Code(code uint32) uint32 {
	return Decode23127(code >> 1)
}

func hammingWeight(x uint32) int {
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}
