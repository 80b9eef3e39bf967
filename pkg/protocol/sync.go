package protocol

// Sync patterns occupy bits 108-155 of a burst: the low nibble of byte 13,
// bytes 14-18 and the high nibble of byte 19. The gateway transmits as a
// mobile station, so the MS sourced patterns are used on transmit and either
// source is accepted on receive.
var (
	MSSourcedAudioSync = []byte{0x07, 0xF7, 0xD5, 0xDD, 0x57, 0xDF, 0xD0}
	MSSourcedDataSync  = []byte{0x0D, 0x5D, 0x7F, 0x77, 0xFD, 0x75, 0x70}
	BSSourcedAudioSync = []byte{0x07, 0x55, 0xFD, 0x7D, 0xF7, 0x5F, 0x70}
	BSSourcedDataSync  = []byte{0x0D, 0xFF, 0x57, 0xD7, 0x5D, 0xF5, 0xD0}

	syncMask = []byte{0x0F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xF0}
)

func addSync(payload, pattern []byte) {
	for i := range syncMask {
		payload[i+13] = (payload[i+13] &^ syncMask[i]) | pattern[i]
	}
}

func hasSync(payload, pattern []byte) bool {
	for i := range syncMask {
		if payload[i+13]&syncMask[i] != pattern[i] {
			return false
		}
	}
	return true
}

// AddAudioSync marks a burst as voice burst A
func AddAudioSync(payload []byte) {
	addSync(payload, MSSourcedAudioSync)
}

// AddDataSync marks a burst as a data burst
func AddDataSync(payload []byte) {
	addSync(payload, MSSourcedDataSync)
}

// HasAudioSync reports whether the burst carries an audio sync pattern
func HasAudioSync(payload []byte) bool {
	return hasSync(payload, MSSourcedAudioSync) || hasSync(payload, BSSourcedAudioSync)
}

// HasDataSync reports whether the burst carries a data sync pattern
func HasDataSync(payload []byte) bool {
	return hasSync(payload, MSSourcedDataSync) || hasSync(payload, BSSourcedDataSync)
}
