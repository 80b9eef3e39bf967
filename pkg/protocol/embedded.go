package protocol

// Link control start/stop values carried in the EMB
const (
	LCSSSingle       = 0
	LCSSFirst        = 1
	LCSSLast         = 2
	LCSSContinuation = 3
)

// EmbeddedLC spreads an LC over voice bursts B-E of a superframe. The 72 LC
// bits and a 5 bit checksum fill a 16x8 matrix of Hamming(16,11,4) rows plus
// a column parity row, read out in columns as four 32 bit fragments.
type EmbeddedLC struct {
	raw [128]bool
}

// NewEmbeddedLC encodes lc for embedding
func NewEmbeddedLC(lc *LC) *EmbeddedLC {
	lcBytes := lc.Bytes()
	var lcBits [72]bool
	bytesToBits(lcBytes, lcBits[:])

	var sum uint
	for _, b := range lcBytes {
		sum += uint(b)
	}
	crc := sum % 31

	var data [128]bool
	data[106] = crc&0x01 != 0
	data[90] = crc&0x02 != 0
	data[74] = crc&0x04 != 0
	data[58] = crc&0x08 != 0
	data[42] = crc&0x10 != 0

	b := 0
	for _, r := range [][2]int{{0, 11}, {16, 27}, {32, 42}, {48, 58}, {64, 74}, {80, 90}, {96, 106}} {
		for a := r[0]; a < r[1]; a++ {
			data[a] = lcBits[b]
			b++
		}
	}

	for a := 0; a < 112; a += 16 {
		hamming16114(data[a : a+16])
	}
	for a := 0; a < 16; a++ {
		data[a+112] = data[a] != data[a+16] != data[a+32] != data[a+48] != data[a+64] != data[a+80] != data[a+96]
	}

	e := &EmbeddedLC{}
	pos := 0
	for a := 0; a < 128; a++ {
		e.raw[a] = data[pos]
		pos += 16
		if pos > 127 {
			pos -= 127
		}
	}
	return e
}

// Fragment returns fragment n (1-4, bursts B-E) and its LCSS
func (e *EmbeddedLC) Fragment(n int) ([]byte, byte) {
	if n < 1 || n > 4 {
		return make([]byte, 4), LCSSSingle
	}
	out := make([]byte, 4)
	bitsToBytes(e.raw[(n-1)*32:n*32], out)

	lcss := byte(LCSSContinuation)
	switch n {
	case 1:
		lcss = LCSSFirst
	case 4:
		lcss = LCSSLast
	}
	return out, lcss
}

// WriteEMB encodes the EMB around the embedded signalling field
func WriteEMB(payload []byte, colorCode byte, pi bool, lcss byte) {
	v := colorCode<<3 | lcss&0x03
	if pi {
		v |= 0x04
	}
	word := qr1676(v)
	for i := 0; i < 8; i++ {
		setBit(payload, 108+i, word&(1<<uint(15-i)) != 0)
		setBit(payload, 148+i, word&(1<<uint(7-i)) != 0)
	}
}

// ReadEMB returns the colour code, PI flag and LCSS of a voice burst
func ReadEMB(payload []byte) (colorCode byte, pi bool, lcss byte) {
	var v byte
	for i := 0; i < 7; i++ {
		v <<= 1
		if getBit(payload, 108+i) {
			v |= 1
		}
	}
	return v >> 3, v&0x04 != 0, v & 0x03
}

// WriteEmbeddedFragment places a 32 bit fragment between the EMB halves
func WriteEmbeddedFragment(payload, fragment []byte) {
	for i := 0; i < 32; i++ {
		setBit(payload, 116+i, getBit(fragment, i))
	}
}

// ReadEmbeddedFragment returns the 32 bit embedded signalling field
func ReadEmbeddedFragment(payload []byte) []byte {
	out := make([]byte, 4)
	for i := 0; i < 32; i++ {
		setBit(out, i, getBit(payload, 116+i))
	}
	return out
}

// WriteVoiceSignalling fills the sync or embedded field of voice burst n of
// a superframe (0 is burst A). Burst A gets the audio sync, B-E carry the
// embedded LC and F carries a null fragment.
func WriteVoiceSignalling(payload []byte, n int, colorCode byte, elc *EmbeddedLC) {
	switch {
	case n == 0:
		AddAudioSync(payload)
	case n >= 1 && n <= 4 && elc != nil:
		fragment, lcss := elc.Fragment(n)
		WriteEmbeddedFragment(payload, fragment)
		WriteEMB(payload, colorCode, false, lcss)
	default:
		WriteEmbeddedFragment(payload, make([]byte, 4))
		WriteEMB(payload, colorCode, false, LCSSSingle)
	}
}
