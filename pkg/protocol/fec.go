package protocol

import "math/bits"

// Forward error correction used by DMR bursts: BPTC(196,96) for full LC,
// RS(12,9) for the LC checksum, Golay(20,8) for the slot type, QR(16,7) for
// the EMB and Hamming codes inside BPTC and the embedded LC.

func bytesToBits(in []byte, out []bool) {
	for i := range out {
		out[i] = in[i/8]&(0x80>>uint(i%8)) != 0
	}
}

func bitsToBytes(in []bool, out []byte) {
	for i := range out {
		out[i] = 0
	}
	for i, b := range in {
		if b {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
}

func getBit(data []byte, pos int) bool {
	return data[pos/8]&(0x80>>uint(pos%8)) != 0
}

func setBit(data []byte, pos int, v bool) {
	if v {
		data[pos/8] |= 0x80 >> uint(pos%8)
	} else {
		data[pos/8] &^= 0x80 >> uint(pos%8)
	}
}

// Hamming(15,11,3) as used for BPTC rows
func hamming15113(d []bool) {
	d[11] = d[0] != d[1] != d[2] != d[3] != d[5] != d[7] != d[8]
	d[12] = d[1] != d[2] != d[3] != d[4] != d[6] != d[8] != d[9]
	d[13] = d[2] != d[3] != d[4] != d[5] != d[7] != d[9] != d[10]
	d[14] = d[0] != d[1] != d[2] != d[4] != d[6] != d[7] != d[10]
}

// Hamming(13,9,3) as used for BPTC columns
func hamming1393(d []bool) {
	d[9] = d[0] != d[1] != d[3] != d[5] != d[6]
	d[10] = d[0] != d[1] != d[2] != d[4] != d[6] != d[7]
	d[11] = d[0] != d[1] != d[2] != d[3] != d[5] != d[7] != d[8]
	d[12] = d[0] != d[2] != d[4] != d[5] != d[8]
}

// Hamming(16,11,4) as used for embedded LC rows
func hamming16114(d []bool) {
	d[11] = d[0] != d[1] != d[2] != d[3] != d[5] != d[7] != d[8]
	d[12] = d[1] != d[2] != d[3] != d[4] != d[6] != d[8] != d[9]
	d[13] = d[2] != d[3] != d[4] != d[5] != d[7] != d[9] != d[10]
	d[14] = d[0] != d[1] != d[2] != d[4] != d[6] != d[7] != d[10]
	d[15] = d[0] != d[2] != d[5] != d[6] != d[8] != d[9] != d[10]
}

// data bit ranges inside the 13x15 BPTC matrix
var bptcDataRanges = [9][2]int{
	{4, 11}, {16, 26}, {31, 41}, {46, 56}, {61, 71},
	{76, 86}, {91, 101}, {106, 116}, {121, 131},
}

// encodeBPTC19696 encodes 12 bytes into the 196 bit interleaved block
func encodeBPTC19696(in []byte) [196]bool {
	var data [96]bool
	bytesToBits(in[:12], data[:])

	var matrix [196]bool
	pos := 0
	for _, r := range bptcDataRanges {
		for a := r[0]; a <= r[1]; a++ {
			matrix[a] = data[pos]
			pos++
		}
	}

	for r := 0; r < 9; r++ {
		hamming15113(matrix[r*15+1:])
	}

	var col [13]bool
	for c := 0; c < 15; c++ {
		for a := 0; a < 13; a++ {
			col[a] = matrix[c+1+a*15]
		}
		hamming1393(col[:])
		for a := 0; a < 13; a++ {
			matrix[c+1+a*15] = col[a]
		}
	}

	var raw [196]bool
	for a := 0; a < 196; a++ {
		raw[(a*181)%196] = matrix[a]
	}
	return raw
}

// decodeBPTC19696 extracts the 12 data bytes. Single bit errors in the rows
// are corrected.
func decodeBPTC19696(raw [196]bool) []byte {
	var matrix [196]bool
	for a := 0; a < 196; a++ {
		matrix[a] = raw[(a*181)%196]
	}

	for r := 0; r < 9; r++ {
		correctRow15113(matrix[r*15+1 : r*15+16])
	}

	var data [96]bool
	pos := 0
	for _, r := range bptcDataRanges {
		for a := r[0]; a <= r[1]; a++ {
			data[pos] = matrix[a]
			pos++
		}
	}
	out := make([]byte, 12)
	bitsToBytes(data[:], out)
	return out
}

// syndrome of each single bit error position
var hamming15113Syndromes = map[uint8]int{
	0x09: 0, 0x0B: 1, 0x0F: 2, 0x07: 3, 0x0E: 4, 0x05: 5, 0x0A: 6,
	0x0D: 7, 0x03: 8, 0x06: 9, 0x0C: 10,
	0x01: 11, 0x02: 12, 0x04: 13, 0x08: 14,
}

func correctRow15113(d []bool) {
	check := make([]bool, 15)
	copy(check, d)
	hamming15113(check)

	var syndrome uint8
	for i := 0; i < 4; i++ {
		if check[11+i] != d[11+i] {
			syndrome |= 1 << uint(i)
		}
	}
	if p, ok := hamming15113Syndromes[syndrome]; ok {
		d[p] = !d[p]
	}
}

// burst payload bit layout: info[0:98], slot type[98:108], sync/EMB[108:156],
// slot type[156:166], info[166:264]
func writeInfoBits(payload []byte, raw [196]bool) {
	for i := 0; i < 98; i++ {
		setBit(payload, i, raw[i])
	}
	for i := 98; i < 196; i++ {
		setBit(payload, i+68, raw[i])
	}
}

func readInfoBits(payload []byte) [196]bool {
	var raw [196]bool
	for i := 0; i < 98; i++ {
		raw[i] = getBit(payload, i)
	}
	for i := 98; i < 196; i++ {
		raw[i] = getBit(payload, i+68)
	}
	return raw
}

// GF(2^8) with primitive polynomial x^8+x^4+x^3+x^2+1
var (
	gfExp [512]byte
	gfLog [256]byte
)

func init() {
	x := 1
	for i := 0; i < 255; i++ {
		gfExp[i] = byte(x)
		gfLog[x] = byte(i)
		x <<= 1
		if x&0x100 != 0 {
			x ^= 0x11D
		}
	}
	for i := 255; i < 512; i++ {
		gfExp[i] = gfExp[i-255]
	}
}

func gfMul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return gfExp[int(gfLog[a])+int(gfLog[b])]
}

// generator (x+a)(x+a^2)(x+a^3) low order coefficients
var rs129Poly = [3]byte{64, 56, 14}

// rs129Parity returns the three RS(12,9) parity bytes, highest order first
func rs129Parity(msg []byte) [3]byte {
	var p [3]byte
	for _, m := range msg[:9] {
		fb := m ^ p[2]
		p[2] = p[1] ^ gfMul(rs129Poly[2], fb)
		p[1] = p[0] ^ gfMul(rs129Poly[1], fb)
		p[0] = gfMul(rs129Poly[0], fb)
	}
	return [3]byte{p[2], p[1], p[0]}
}

// golay2087 encodes 8 data bits as a 20 bit Golay(20,8) word: the Golay(24,12)
// code shortened by four data bits, parity in the low 12 bits.
func golay2087(d byte) uint32 {
	rem := uint32(d) << 11
	for i := 22; i >= 11; i-- {
		if rem&(1<<uint(i)) != 0 {
			rem ^= 0xC75 << uint(i-11)
		}
	}
	parity := uint32(bits.OnesCount32(uint32(d)<<11|rem) & 1)
	return uint32(d)<<12 | rem<<1 | parity
}

// qr1676 encodes 7 data bits as a 16 bit QR(16,7,6) word: the (17,9) quadratic
// residue code shortened to 7 data bits plus an overall parity bit.
func qr1676(d byte) uint16 {
	d &= 0x7F
	rem := uint32(d) << 8
	for i := 14; i >= 8; i-- {
		if rem&(1<<uint(i)) != 0 {
			rem ^= 0x139 << uint(i-8)
		}
	}
	parity := uint32(bits.OnesCount32(uint32(d)<<8|rem) & 1)
	return uint16(uint32(d)<<9 | rem<<1 | parity)
}
