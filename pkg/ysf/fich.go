package ysf

import (
	"fmt"
)

// FICH is the Frame Information Channel: the per-frame descriptor carried
// right after the payload sync, protected by CRC-CCITT, Golay(24,12) and a
// rate 1/2 convolutional code.
type FICH struct {
	FI   byte // frame information
	CS   byte // callsign mode
	CM   byte // call mode
	BN   byte // block number
	BT   byte // block total
	FN   byte // frame number
	FT   byte // frame total
	Dev  byte
	MR   byte // message route
	VoIP byte
	DT   byte // data type
	SQL  byte
	SQ   byte // squelch code, carries the DG-ID
}

// DGID returns the DG-ID sub-channel carried in the squelch code
func (f *FICH) DGID() byte {
	return f.SQ & 0x7F
}

// SetDGID stores the DG-ID sub-channel
func (f *FICH) SetDGID(id byte) {
	f.SQ = id & 0x7F
}

var fichInterleave = [100]uint{
	0, 40, 80, 120, 160,
	2, 42, 82, 122, 162,
	4, 44, 84, 124, 164,
	6, 46, 86, 126, 166,
	8, 48, 88, 128, 168,
	10, 50, 90, 130, 170,
	12, 52, 92, 132, 172,
	14, 54, 94, 134, 174,
	16, 56, 96, 136, 176,
	18, 58, 98, 138, 178,
	20, 60, 100, 140, 180,
	22, 62, 102, 142, 182,
	24, 64, 104, 144, 184,
	26, 66, 106, 146, 186,
	28, 68, 108, 148, 188,
	30, 70, 110, 150, 190,
	32, 72, 112, 152, 192,
	34, 74, 114, 154, 194,
	36, 76, 116, 156, 196,
	38, 78, 118, 158, 198,
}

func (f *FICH) pack() []byte {
	raw := make([]byte, 6)
	raw[0] = (f.FI&0x03)<<6 | (f.CS&0x03)<<4 | (f.CM&0x03)<<2 | f.BN&0x03
	raw[1] = (f.BT&0x03)<<6 | (f.FN&0x07)<<3 | f.FT&0x07
	raw[2] = (f.MR&0x03)<<3 | (f.VoIP&0x01)<<2 | f.DT&0x03
	if f.Dev != 0 {
		raw[2] |= 0x40
	}
	raw[3] = f.SQ & 0x7F
	if f.SQL != 0 {
		raw[3] |= 0x80
	}
	AddCCITT162(raw)
	return raw
}

func (f *FICH) unpack(raw []byte) {
	f.FI = raw[0] >> 6 & 0x03
	f.CS = raw[0] >> 4 & 0x03
	f.CM = raw[0] >> 2 & 0x03
	f.BN = raw[0] & 0x03
	f.BT = raw[1] >> 6 & 0x03
	f.FN = raw[1] >> 3 & 0x07
	f.FT = raw[1] & 0x07
	f.DT = raw[2] & 0x03
	f.MR = raw[2] >> 3 & 0x03
	f.Dev = raw[2] >> 6 & 0x01
	f.VoIP = raw[2] >> 2 & 0x01
	f.SQL = raw[3] >> 7
	f.SQ = raw[3] & 0x7F
}

// Encode writes the FICH into an air payload (sync first, FICH after it)
func (f *FICH) Encode(payload []byte) error {
	if len(payload) < SyncLength+FICHLength {
		return fmt.Errorf("payload too short for FICH encoding: %d", len(payload))
	}

	raw := f.pack()
	conv := make([]byte, 13)
	for i := 0; i < 4; i++ {
		var word uint32
		if i%2 == 0 {
			word = uint32(raw[i/2*3])<<4 | uint32(raw[i/2*3+1])>>4
		} else {
			word = (uint32(raw[i/2*3+1])<<8)&0xF00 | uint32(raw[i/2*3+2])
		}
		code := Encode24128(word)
		conv[i*3] = byte(code >> 16)
		conv[i*3+1] = byte(code >> 8)
		conv[i*3+2] = byte(code)
	}

	convolved := make([]byte, 25)
	newConvolution().Encode(conv, convolved, 100)

	out := payload[SyncLength:]
	j := uint(0)
	for _, n := range fichInterleave {
		writeBit(out, n, readBit(convolved, j))
		writeBit(out, n+1, readBit(convolved, j+1))
		j += 2
	}
	return nil
}

// Decode reads the FICH from an air payload. It returns false when the CRC
// does not match, leaving f unchanged.
func (f *FICH) Decode(payload []byte) (bool, error) {
	if len(payload) < SyncLength+FICHLength {
		return false, fmt.Errorf("payload too short for FICH decoding: %d", len(payload))
	}

	in := payload[SyncLength:]
	viterbi := newConvolution()
	viterbi.Start()
	for _, n := range fichInterleave {
		var s0, s1 uint8
		if readBit(in, n) {
			s0 = 1
		}
		if readBit(in, n+1) {
			s1 = 1
		}
		viterbi.Decode(s0, s1)
	}

	decoded := make([]byte, 13)
	viterbi.Chainback(decoded, 96)

	var words [4]uint32
	for i := range words {
		words[i] = Decode24128(decoded[i*3 : i*3+3])
	}

	raw := []byte{
		byte(words[0] >> 4),
		byte(words[0]<<4) | byte(words[1]>>8&0x0F),
		byte(words[1]),
		byte(words[2] >> 4),
		byte(words[2]<<4) | byte(words[3]>>8&0x0F),
		byte(words[3]),
	}
	if !CheckCCITT162(raw) {
		return false, nil
	}
	f.unpack(raw)
	return true, nil
}

// DecodeFrame decodes the FICH of a complete YSFD network frame
func DecodeFrame(frame []byte) (FICH, bool) {
	var f FICH
	if !IsFrame(frame) {
		return f, false
	}
	ok, err := f.Decode(Payload(frame))
	return f, ok && err == nil
}
