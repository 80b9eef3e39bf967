package ysf

// Air payload sub-layouts after the sync and FICH (payload offset 30 on).
//
// Data full rate and header frames carry two 20 byte sub-blocks, each
// followed by a CRC-CCITT: Data1 (CSD1 in headers) and Data2 (CSD2).
//
// Voice/data mode 2 frames interleave five sections of an 5 byte data
// channel (DCH) slice and a 13 byte voice channel (VCH). The 10 byte DCH
// message plus its CRC is spread over the first bytes of the DCH slices.

const (
	dataOffset   = SyncLength + FICHLength
	dataFRLength = 20
	dataFRBlock  = dataFRLength + 2

	sectionLength = 18
	dchSlice      = 5
	// VCHLength is one voice channel slot
	VCHLength = 13
	// VCHCount is the number of voice channel slots in a mode 2 frame
	VCHCount = 5

	// DCHLength is the mode 2 data channel message size
	DCHLength = 10
)

// ReadDataFR returns the two data full rate sub-blocks and whether each
// passed its CRC.
func ReadDataFR(payload []byte) (d1, d2 []byte, ok1, ok2 bool) {
	b1 := payload[dataOffset : dataOffset+dataFRBlock]
	b2 := payload[dataOffset+dataFRBlock : dataOffset+2*dataFRBlock]
	d1 = append([]byte(nil), b1[:dataFRLength]...)
	d2 = append([]byte(nil), b2[:dataFRLength]...)
	return d1, d2, CheckCCITT162(b1), CheckCCITT162(b2)
}

// WriteDataFR writes both data full rate sub-blocks. A nil block is written
// as spaces.
func WriteDataFR(payload, d1, d2 []byte) {
	writeBlock(payload[dataOffset:dataOffset+dataFRBlock], d1)
	writeBlock(payload[dataOffset+dataFRBlock:dataOffset+2*dataFRBlock], d2)
}

// ReadHeader returns CSD1 and CSD2 of a header or terminator frame
func ReadHeader(payload []byte) (csd1, csd2 []byte, ok bool) {
	csd1, csd2, ok1, ok2 := ReadDataFR(payload)
	return csd1, csd2, ok1 && ok2
}

// WriteHeader writes CSD1 and CSD2 of a header or terminator frame
func WriteHeader(payload, csd1, csd2 []byte) {
	WriteDataFR(payload, csd1, csd2)
}

// HeaderSource returns the source callsign carried in CSD1 of a header.
// CSD1 holds the destination then the source, ten bytes each.
func HeaderSource(payload []byte) (string, bool) {
	csd1, _, ok := ReadHeader(payload)
	if !ok {
		return "", false
	}
	return TrimCallsign(string(csd1[CallsignLength:])), true
}

func writeBlock(block, data []byte) {
	for i := 0; i < dataFRLength; i++ {
		if i < len(data) {
			block[i] = data[i]
		} else {
			block[i] = ' '
		}
	}
	AddCCITT162(block)
}

func dchOffset(i int) int {
	return dataOffset + i*sectionLength
}

// ReadVDMode2Data returns the 10 byte mode 2 data channel message
func ReadVDMode2Data(payload []byte) ([]byte, bool) {
	buf := make([]byte, VCHCount*dchSlice)
	for i := 0; i < VCHCount; i++ {
		copy(buf[i*dchSlice:], payload[dchOffset(i):dchOffset(i)+dchSlice])
	}
	ok := CheckCCITT162(buf[:DCHLength+2])
	return buf[:DCHLength], ok
}

// WriteVDMode2Data writes the mode 2 data channel message, space padded
func WriteVDMode2Data(payload, data []byte) {
	buf := make([]byte, VCHCount*dchSlice)
	for i := 0; i < DCHLength; i++ {
		if i < len(data) {
			buf[i] = data[i]
		} else {
			buf[i] = ' '
		}
	}
	AddCCITT162(buf[:DCHLength+2])
	for i := 0; i < VCHCount; i++ {
		copy(payload[dchOffset(i):dchOffset(i)+dchSlice], buf[i*dchSlice:])
	}
}

// VCHOffset returns the payload byte offset of voice channel slot i
func VCHOffset(i int) int {
	return dchOffset(i) + dchSlice
}

// ReadVCH copies the five voice channel slots contiguously into a new slice
func ReadVCH(payload []byte) []byte {
	out := make([]byte, VCHCount*VCHLength)
	for i := 0; i < VCHCount; i++ {
		copy(out[i*VCHLength:], payload[VCHOffset(i):VCHOffset(i)+VCHLength])
	}
	return out
}

// WriteVCH scatters contiguous voice channel slots into the payload
func WriteVCH(payload, vch []byte) {
	for i := 0; i < VCHCount && (i+1)*VCHLength <= len(vch); i++ {
		copy(payload[VCHOffset(i):VCHOffset(i)+VCHLength], vch[i*VCHLength:(i+1)*VCHLength])
	}
}
