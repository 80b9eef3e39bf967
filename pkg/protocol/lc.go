package protocol

import "fmt"

// FLCO is the full link control opcode
type FLCO uint8

const (
	FLCOGroup    FLCO = 0x00
	FLCOUserUser FLCO = 0x03
)

func (f FLCO) String() string {
	switch f {
	case FLCOGroup:
		return "group"
	case FLCOUserUser:
		return "private"
	default:
		return fmt.Sprintf("flco(%d)", uint8(f))
	}
}

// LCLength is the size of a packed link control word
const LCLength = 9

// RS(12,9) checksum masks per data type
const (
	voiceLCHeaderMask = 0x96
	terminatorLCMask  = 0x99
)

// LC is the link control word of a voice call
type LC struct {
	PF      bool
	FLCO    FLCO
	FID     byte
	Options byte
	DstID   uint32
	SrcID   uint32
}

// NewLC builds a standard feature set LC
func NewLC(flco FLCO, srcID, dstID uint32) *LC {
	return &LC{FLCO: flco, SrcID: srcID, DstID: dstID}
}

// Bytes packs the LC into 9 bytes
func (lc *LC) Bytes() []byte {
	b := make([]byte, LCLength)
	b[0] = byte(lc.FLCO) & 0x3F
	if lc.PF {
		b[0] |= 0x80
	}
	b[1] = lc.FID
	b[2] = lc.Options
	put24(b[3:], lc.DstID)
	put24(b[6:], lc.SrcID)
	return b
}

// ParseLC unpacks a 9 byte LC
func ParseLC(b []byte) (*LC, error) {
	if len(b) < LCLength {
		return nil, fmt.Errorf("LC too short: %d", len(b))
	}
	return &LC{
		PF:      b[0]&0x80 != 0,
		FLCO:    FLCO(b[0] & 0x3F),
		FID:     b[1],
		Options: b[2],
		DstID:   get24(b[3:]),
		SrcID:   get24(b[6:]),
	}, nil
}

func lcMask(dataType byte) (byte, error) {
	switch dataType {
	case DataTypeVoiceLCHeader:
		return voiceLCHeaderMask, nil
	case DataTypeTerminatorWithLC:
		return terminatorLCMask, nil
	default:
		return 0, fmt.Errorf("data type %d does not carry a full LC", dataType)
	}
}

// EncodeFullLC writes the LC, RS(12,9) protected and BPTC(196,96) coded, into
// the info bits of a 33 byte burst. dataType selects the header or
// terminator checksum mask.
func EncodeFullLC(lc *LC, dataType byte, payload []byte) error {
	if len(payload) < PayloadSize {
		return fmt.Errorf("burst too short: %d", len(payload))
	}
	mask, err := lcMask(dataType)
	if err != nil {
		return err
	}

	data := make([]byte, 12)
	copy(data, lc.Bytes())
	parity := rs129Parity(data)
	for i := range parity {
		data[LCLength+i] = parity[i] ^ mask
	}

	writeInfoBits(payload, encodeBPTC19696(data))
	return nil
}

// DecodeFullLC reads the LC of a header or terminator burst and verifies its
// RS(12,9) checksum.
func DecodeFullLC(payload []byte, dataType byte) (*LC, error) {
	if len(payload) < PayloadSize {
		return nil, fmt.Errorf("burst too short: %d", len(payload))
	}
	mask, err := lcMask(dataType)
	if err != nil {
		return nil, err
	}

	data := decodeBPTC19696(readInfoBits(payload))
	parity := rs129Parity(data)
	for i := range parity {
		if data[LCLength+i] != parity[i]^mask {
			return nil, fmt.Errorf("LC checksum mismatch")
		}
	}
	return ParseLC(data)
}

// WriteSlotType encodes the colour code and data type into the burst
func WriteSlotType(payload []byte, colorCode, dataType byte) {
	word := golay2087(colorCode<<4 | dataType&0x0F)
	for i := 0; i < 10; i++ {
		setBit(payload, 98+i, word&(1<<uint(19-i)) != 0)
		setBit(payload, 156+i, word&(1<<uint(9-i)) != 0)
	}
}

// ReadSlotType returns the colour code and data type of a burst
func ReadSlotType(payload []byte) (colorCode, dataType byte) {
	var v byte
	for i := 0; i < 8; i++ {
		v <<= 1
		if getBit(payload, 98+i) {
			v |= 1
		}
	}
	return v >> 4, v & 0x0F
}

// BuildDataBurst builds a complete voice LC header or terminator burst
func BuildDataBurst(lc *LC, dataType, colorCode byte) ([]byte, error) {
	payload := make([]byte, PayloadSize)
	if err := EncodeFullLC(lc, dataType, payload); err != nil {
		return nil, err
	}
	WriteSlotType(payload, colorCode, dataType)
	AddDataSync(payload)
	return payload, nil
}
