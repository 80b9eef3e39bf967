package wiresx

import (
	"fmt"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

// voiceGPS is the position stored with uploaded voice messages
var voiceGPS = []byte{0x53, 0x37, 0x51, 0x52, 0x58, 0x50, 0x7D, 0x5B, 0x70, 0x6C, 0x20, 0x1C, 0x5B, 0x2F, 0x20, 0x20, 0x20, 0x20}

// voiceMark opens the voice message announcement
var voiceMark = []byte{0x5A, 0x4C, 0x5A, 0x5A, 0x5A, 0x4C, 0x76, 0x58, 0x1C, 0x6C, 0x20, 0x1C, 0x30, 0x57}

const voiceSubject = "Uploaded voice  "

// voice is the voice message upload addressed to this node
type voice struct {
	handle string
	frames int
	acks   int
}

// ProcessVoice offers a voice/data mode 1 frame to the control channel. A
// radio records a voice message into a news room by transmitting right after
// selecting that room; when the room is this node the stream is stored and
// Claimed. Everything else passes through.
func (w *WiresX) ProcessVoice(frame []byte, fich ysf.FICH) Verdict {
	if fich.DT != ysf.DTVDMode1 || !ysf.IsFrame(frame) {
		return PassThrough
	}
	if w.lastNews == "" || atoi([]byte(w.lastNews)) != atoi([]byte(w.id)) {
		return PassThrough
	}

	payload := ysf.Payload(frame)
	switch fich.FI {
	case ysf.FIHeader:
		w.voice.frames = 0
		w.voice.handle = ""
		if w.storage != nil {
			rec := &database.NewsRecord{
				Network:  w.network,
				Room:     fmt.Sprintf("%05d", atoi([]byte(w.lastNews))),
				Kind:     string(database.KindVoice),
				Callsign: ysf.Callsign(frame, ysf.OffsetSource),
				GPS:      append([]byte(nil), voiceGPS...),
				Subject:  voiceSubject,
			}
			w.voice.handle = w.storage.BeginUpload(rec)
		}
		w.log.Info("Recording voice message", logger.String("source", ysf.Callsign(frame, ysf.OffsetSource)))
		w.appendVoice(payload)

	case ysf.FICommunication:
		w.appendVoice(payload)

	case ysf.FITerminator:
		w.appendVoice(payload)
		if w.storage != nil && w.voice.handle != "" {
			if _, err := w.storage.FinishUpload(w.voice.handle, true); err != nil {
				w.log.Error("Cannot store voice message", logger.Error(err))
			}
		}
		w.voice.handle = ""
		w.log.Info("Voice message recorded", logger.Int("frames", w.voice.frames))
		w.notify("upload_voice")
		w.setBusy()
		w.schedule(statusVoiceAck)
		w.lastNews = ""
	}
	return Claimed
}

func (w *WiresX) appendVoice(payload []byte) {
	w.voice.frames++
	if w.storage != nil && w.voice.handle != "" {
		w.storage.AppendUpload(w.voice.handle, payload)
	}
}

func (w *WiresX) sendVoiceAck() {
	data := make([]byte, 26)
	data[0] = w.seqNo
	copy(data[1:], respVoiceAck)
	copy(data[5:], "01")
	copy(data[7:], w.id)
	w.voice.acks++
	copy(data[12:], fmt.Sprintf("      %05d", w.voice.acks%100000))
	data[23] = 0x0D
	w.seal(data, 24)

	w.log.Info("Sending voice upload ACK")
	w.createReply(data, w.source[:])
	w.seqNo++
}

// sendVoiceMessage announces a stored voice message and queues its frames
// for playback behind the announcement
func (w *WiresX) sendVoiceMessage(rec *database.NewsRecord) {
	w.pictureEnded = true

	data := make([]byte, 96)
	data[0] = w.seqNo
	copy(data[1:], respVoice)
	copy(data[5:], voiceMark)
	copy(data[19:], fmt.Sprintf("    %05d", atoi([]byte(w.newsSource))))
	copy(data[28:], fmt.Sprintf("     %05d", w.number%100000))
	w.seal(data, 94)
	w.seqNo++

	w.log.Info("Playing voice message",
		logger.Uint("number", w.number),
		logger.String("callsign", rec.Callsign))
	w.createReply(data, w.source[:])
	w.queueVoice(rec.Data)
}

// queueVoice re-addresses stored air payloads from this node and queues them
// as one header..terminator stream
func (w *WiresX) queueVoice(data []byte) {
	n := len(data) / ysf.PayloadLength
	if n == 0 {
		return
	}
	dst := ysf.TrimCallsign(string(w.source[:]))

	var seq byte
	for i := 0; i < n; i++ {
		p := data[i*ysf.PayloadLength : (i+1)*ysf.PayloadLength]
		frame := ysf.NewFrame(ysf.TrimCallsign(w.callsign), ysf.TrimCallsign(w.node), dst, seq)
		payload := ysf.Payload(frame)
		copy(payload, p)

		var fich ysf.FICH
		if ok, err := fich.Decode(payload); !ok || err != nil {
			fich = ysf.FICH{CS: ysf.CSAssigned, DT: ysf.DTVDMode1, FT: 6, FN: byte(i % 7)}
		}
		switch i {
		case 0:
			fich.FI = ysf.FIHeader
		case n - 1:
			fich.FI = ysf.FITerminator
		default:
			fich.FI = ysf.FICommunication
		}
		if err := fich.Encode(payload); err != nil {
			continue
		}
		if i == n-1 {
			frame[ysf.OffsetSequence] = seq | 0x01
		}
		w.queue(frame)
		seq += 2
	}
}
