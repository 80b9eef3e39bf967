package codec

import "github.com/dbehnke/ysf-gateway/pkg/ysf"

// AMBE+2 parameter mapping between DMR bursts and YSF VD mode 2 voice
// channels. Each AMBE frame has an A (24 bit), B (23 bit) and C (25 bit)
// field. DMR carries three frames per 33 byte burst, YSF five frames per
// VD mode 2 payload.

var (
	// dmrATable maps the 24 A bits to positions in a 72 bit DMR frame
	dmrATable = []uint{
		0, 4, 8, 12, 16, 20, 24, 28, 32, 36, 40, 44,
		48, 52, 56, 60, 64, 68, 1, 5, 9, 13, 17, 21,
	}

	// dmrBTable maps the 23 B bits
	dmrBTable = []uint{
		25, 29, 33, 37, 41, 45, 49, 53, 57, 61, 65, 69,
		2, 6, 10, 14, 18, 22, 26, 30, 34, 38, 42,
	}

	// dmrCTable maps the 25 C bits
	dmrCTable = []uint{
		46, 50, 54, 58, 62, 66, 70, 3, 7, 11, 15, 19, 23,
		27, 31, 35, 39, 43, 47, 51, 55, 59, 63, 67, 71,
	}

	// vchInterleave spreads the 104 bits of a voice channel over 26 symbols
	vchInterleave = []uint{
		0, 4, 8, 12, 16, 20, 24, 28, 32, 36, 40, 44, 48, 52, 56, 60, 64, 68, 72, 76, 80, 84, 88, 92, 96, 100,
		1, 5, 9, 13, 17, 21, 25, 29, 33, 37, 41, 45, 49, 53, 57, 61, 65, 69, 73, 77, 81, 85, 89, 93, 97, 101,
		2, 6, 10, 14, 18, 22, 26, 30, 34, 38, 42, 46, 50, 54, 58, 62, 66, 70, 74, 78, 82, 86, 90, 94, 98, 102,
		3, 7, 11, 15, 19, 23, 27, 31, 35, 39, 43, 47, 51, 55, 59, 63, 67, 71, 75, 79, 83, 87, 91, 95, 99, 103,
	}

	// vchWhitening scrambles a voice channel
	vchWhitening = []byte{
		0x93, 0xD7, 0x51, 0x21, 0x9C, 0x2F, 0x6C, 0xD0, 0xEF, 0x0F,
		0xF8, 0x3D, 0xF1, 0x73, 0x20, 0x94, 0xED, 0x1E, 0x7C, 0xD8,
	}
)

// prngTable holds, for every 12 bit A parameter, the 23 bit pseudo random
// mask applied to the B field (stored shifted left by one).
var prngTable [4096]uint32

func init() {
	for u0 := range prngTable {
		pr := uint32(16 * u0)
		var v uint32
		for i := 1; i < 24; i++ {
			pr = (173*pr + 13849) % 65536
			v = v<<1 | pr/32768
		}
		prngTable[u0] = v << 1
	}
}

var bitMaskTable = []byte{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01}

// readBit reads a bit from a byte array at the specified bit position
func readBit(data []byte, pos uint) bool {
	bytePos := pos >> 3
	if int(bytePos) >= len(data) {
		return false
	}
	return (data[bytePos] & bitMaskTable[pos&7]) != 0
}

// writeBit writes a bit to a byte array at the specified bit position
func writeBit(data []byte, pos uint, value bool) {
	bytePos := pos >> 3
	if int(bytePos) >= len(data) {
		return
	}
	if value {
		data[bytePos] |= bitMaskTable[pos&7]
	} else {
		data[bytePos] &^= bitMaskTable[pos&7]
	}
}

// burstBitPos maps a bit position of AMBE frame k (0-2) into a 33 byte DMR
// burst. The second frame straddles the 48 bit sync/embedded field.
func burstBitPos(pos uint, k int) uint {
	switch k {
	case 1:
		pos += 72
		if pos >= 108 {
			pos += 48
		}
	case 2:
		pos += 192
	}
	return pos
}

// readAMBE extracts the A, B and C fields of AMBE frame k of a burst. A
// 9 byte mini frame is read with k = 0.
func readAMBE(data []byte, k int) (a, b, c uint32) {
	for _, pos := range dmrATable {
		a <<= 1
		if readBit(data, burstBitPos(pos, k)) {
			a |= 1
		}
	}
	for _, pos := range dmrBTable {
		b <<= 1
		if readBit(data, burstBitPos(pos, k)) {
			b |= 1
		}
	}
	for _, pos := range dmrCTable {
		c <<= 1
		if readBit(data, burstBitPos(pos, k)) {
			c |= 1
		}
	}
	return a, b, c
}

// writeAMBE stores the A, B and C fields as AMBE frame k of a burst
func writeAMBE(data []byte, k int, a, b, c uint32) {
	for i, pos := range dmrATable {
		writeBit(data, burstBitPos(pos, k), a&(1<<uint(23-i)) != 0)
	}
	for i, pos := range dmrBTable {
		writeBit(data, burstBitPos(pos, k), b&(1<<uint(22-i)) != 0)
	}
	for i, pos := range dmrCTable {
		writeBit(data, burstBitPos(pos, k), c&(1<<uint(24-i)) != 0)
	}
}

// dmrToVCH converts one DMR AMBE frame into a 13 byte YSF voice channel
func dmrToVCH(a, b, c uint32) []byte {
	datA := ysf.Decode24128Code(a)
	datB := ysf.Decode23127(b ^ prngTable[datA]>>1)
	return encodeVCH(datA, datB, c)
}

// vchToDMR converts the voice channel starting at bit offset of data into
// DMR AMBE fields
func vchToDMR(data []byte, offset uint) (a, b, c uint32) {
	datA, datB, datC := decodeVCH(data, offset)
	a = ysf.Encode24128(datA)
	b = ysf.Encode23127(datB) ^ prngTable[datA]>>1
	return a, b, datC
}

// encodeVCH builds a voice channel: A, B and the top 3 bits of C are sent
// three times each, the rest of C once. The result is whitened and
// interleaved.
func encodeVCH(datA, datB, datC uint32) []byte {
	vch := make([]byte, 13)
	triple := func(base uint, v uint32, n uint) {
		for i := uint(0); i < n; i++ {
			bit := v&(1<<(n-1-i)) != 0
			writeBit(vch, base+3*i, bit)
			writeBit(vch, base+3*i+1, bit)
			writeBit(vch, base+3*i+2, bit)
		}
	}
	triple(0, datA, 12)
	triple(36, datB, 12)
	triple(72, datC>>22, 3)
	for i := uint(0); i < 22; i++ {
		writeBit(vch, 81+i, datC&(1<<(21-i)) != 0)
	}

	for i := range vch {
		vch[i] ^= vchWhitening[i]
	}

	out := make([]byte, 13)
	for i := uint(0); i < 104; i++ {
		writeBit(out, vchInterleave[i], readBit(vch, i))
	}
	return out
}

// decodeVCH reverses encodeVCH. Tripled bits are majority voted.
func decodeVCH(data []byte, offset uint) (datA, datB, datC uint32) {
	vch := make([]byte, 13)
	for i := uint(0); i < 104; i++ {
		writeBit(vch, i, readBit(data, offset+vchInterleave[i]))
	}
	for i := range vch {
		vch[i] ^= vchWhitening[i]
	}

	vote := func(base uint, n uint) uint32 {
		var v uint32
		for i := uint(0); i < n; i++ {
			count := 0
			for j := uint(0); j < 3; j++ {
				if readBit(vch, base+3*i+j) {
					count++
				}
			}
			v <<= 1
			if count >= 2 {
				v |= 1
			}
		}
		return v
	}
	datA = vote(0, 12)
	datB = vote(36, 12)
	datC = vote(72, 3)
	for i := uint(0); i < 22; i++ {
		datC <<= 1
		if readBit(vch, 81+i) {
			datC |= 1
		}
	}
	return datA, datB, datC
}
