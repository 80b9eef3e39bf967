package wiresx

import (
	"fmt"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/timer"
)

const (
	// fullPictureBlock is the size of a picture data block that is not the
	// last one
	fullPictureBlock = 1027
	// pictureChunk is the picture bytes carried by one download block
	pictureChunk = 1024
)

// pictureFiller are the block boundary bytes radios insert into picture data
var pictureFiller = []int{250, 510, 770}

// pictureKey is the fixed key announced in picture download headers
var pictureKey = []byte("HE5Gbv")

// upload is the picture upload addressed to this node
type upload struct {
	active  bool
	handle  string
	failed  bool
	lastRef byte
	timeout *timer.Timer
}

type pictureState int

const (
	pictureNone pictureState = iota
	pictureBegin
	pictureData
	pictureEnd
)

// download is the picture being played back to a radio
type download struct {
	state  pictureState
	timer  *timer.Timer
	record *database.NewsRecord
	offset int
	seq    byte
	sum    uint32
}

func (w *WiresX) processUploadPicture(args []byte, src string, gps bool) {
	w.pictureEnded = false
	w.upload.failed = false

	off := 0
	if gps {
		off = gpsFieldOffset
	}
	if !w.newsForMe(args, off+30) {
		w.upload.active = false
		return
	}

	w.verdict = Claimed
	w.upload.timeout.Start()
	w.setBusy()
	w.upload.active = true
	copy(w.serial[:], args[off:off+len(w.serial)])
	w.log.Info("Received picture upload", logger.String("source", src))
	w.notify("upload_picture")

	if w.storage == nil {
		return
	}
	rec := newRecord(args, src, gps)
	rec.Network = w.network
	rec.Kind = string(database.KindPicture)
	rec.Subject = string(args[off+45 : off+61])
	rec.Token = append([]byte(nil), args[off:off+database.TokenLength]...)
	w.upload.handle = w.storage.BeginUpload(rec)
}

func (w *WiresX) processPictureData(cmd []byte, blockSize int) {
	if w.pictureEnded {
		return
	}

	ref := cmd[7]
	if w.upload.lastRef+1 != ref {
		w.log.Warn("Out of order picture block",
			logger.Uint8("want", w.upload.lastRef+1),
			logger.Uint8("got", ref))
		w.upload.failed = true
	}
	w.upload.lastRef = ref

	if !w.upload.active {
		return
	}
	w.verdict = Claimed
	w.upload.timeout.Start()

	if blockSize < 0 {
		blockSize = 0
	}
	if 10+blockSize > len(cmd) {
		blockSize = len(cmd) - 10
	}
	w.log.Debug("Picture data", logger.Int("size", blockSize))
	if w.storage != nil && w.upload.handle != "" {
		w.storage.AppendUpload(w.upload.handle, stripFiller(cmd[10:10+blockSize]))
	}

	if blockSize < fullPictureBlock {
		w.setBusy()
		w.schedule(statusUploadPicture)
		w.upload.timeout.Stop()
	}
}

// stripFiller drops the filler bytes that fall strictly inside the block
func stripFiller(data []byte) []byte {
	out := make([]byte, 0, len(data))
	next := 0
	for i, b := range data {
		if next < len(pictureFiller) && i == pictureFiller[next] {
			next++
			if len(data) > i+1 {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

// finishPicture commits or discards the upload in progress
func (w *WiresX) finishPicture() {
	w.upload.active = false
	if w.storage == nil || w.upload.handle == "" {
		return
	}
	handle := w.upload.handle
	w.upload.handle = ""
	if _, err := w.storage.FinishUpload(handle, !w.upload.failed); err != nil {
		w.log.Error("Cannot store picture", logger.Error(err))
	}
}

func (w *WiresX) sendUploadReply(picture bool) {
	data := make([]byte, 28)
	data[0] = w.seqNo
	copy(data[1:], respUploadAck)

	if picture {
		w.pictureEnded = true
		w.finishPicture()
		if w.upload.failed {
			data[2] = 0x31
		}
	}

	copy(data[5:], w.serial[:])
	copy(data[11:], w.talkyKey[:])
	copy(data[16:], w.source[:])
	w.seal(data, 26)

	w.log.Info("Sending upload ACK", logger.Bool("failed", picture && w.upload.failed))
	w.createReply(data, w.source[:])
	w.seqNo++
}

// sendPicturePreamble announces a stored picture and starts its playback
func (w *WiresX) sendPicturePreamble(rec *database.NewsRecord) {
	data := make([]byte, 81)
	data[0] = w.seqNo
	copy(data[1:], respPictPreamble)

	end := 5
	if rec != nil {
		copy(data[5:], "01")
		copy(data[7:], padRight(w.newsSource, idLength))
		copy(data[12:], "     ")
		copy(data[17:], fmt.Sprintf("%05d", w.number%100000))
		copy(data[22:], fixed([]byte(rec.Callsign), database.CallsignLength, ' '))
		copy(data[32:], fixed([]byte(rec.TimeSend), database.TimeLength, ' '))
		copy(data[44:], fixed(rec.GPS, database.GPSLength, 0))
		copy(data[62:], fixed([]byte(rec.Subject), database.SubjectLength, ' '))
		data[78] = 0x0D
		end = 79
	}
	w.seal(data, end)

	w.log.Info("Sending picture preamble", logger.Uint("number", w.number))
	w.seqNo += 2
	w.createReply(data[:end+2], w.source[:])

	w.download.record = rec
	w.download.seq = 0
	w.download.state = pictureNone
	if rec != nil {
		w.download.state = pictureBegin
	}
	w.download.timer.StartWith(pictureDelay)
}

func (w *WiresX) clockPicture() {
	switch w.download.state {
	case pictureBegin:
		w.sendPictureBegin()
	case pictureData:
		w.sendPictureData()
	case pictureEnd:
		w.sendPictureEnd()
		w.pictureEnded = true
	default:
		w.download.record = nil
		w.download.timer.Stop()
	}
}

func (w *WiresX) sendPictureBegin() {
	rec := w.download.record
	if rec == nil {
		w.download.state = pictureNone
		return
	}

	data := make([]byte, 98)
	data[0] = w.seqNo
	copy(data[1:], respPictBeginGPS)

	gps := fixed(rec.GPS, database.GPSLength, 0)
	copy(data[5:], gps)
	w.download.seq++
	copy(data[23:], []byte{0x50, 0x00, w.download.seq, 0x30, 0x00, 0x00, 0x00})
	size := len(rec.Data)
	data[30] = byte(size >> 8)
	data[31] = byte(size)
	copy(data[32:], "20")
	copy(data[34:], fixed([]byte(rec.TimeRecv), database.TimeLength, ' '))
	copy(data[46:], pictureKey)
	copy(data[52:], fmt.Sprintf("%06d.jpg", w.number%1000000))
	copy(data[62:], gps)
	copy(data[80:], fixed([]byte(rec.Subject), database.SubjectLength, ' '))
	w.seal(data, 96)

	w.log.Debug("Sending picture header", logger.Int("size", size))
	w.seqNo++
	w.createReply(data, w.source[:])

	w.download.offset = 0
	w.download.sum = 0
	w.download.state = pictureData
	w.download.timer.StartWith(pictureDelay)
}

func (w *WiresX) sendPictureData() {
	rec := w.download.record
	if rec == nil {
		w.download.state = pictureNone
		return
	}

	remaining := len(rec.Data) - w.download.offset
	if remaining < 0 {
		remaining = 0
	}
	n := remaining
	if n > pictureChunk {
		n = pictureChunk
	}

	data := make([]byte, n+12)
	data[0] = w.seqNo
	copy(data[1:], respPictData)
	w.download.seq++
	data[5] = 0x50
	data[7] = w.download.seq
	if remaining < pictureChunk {
		data[8] = byte(n >> 8)
		data[9] = byte(n)
	}
	copy(data[10:], rec.Data[w.download.offset:w.download.offset+n])
	for _, b := range data[10 : 10+n] {
		w.download.sum += uint32(b)
	}
	w.download.offset += n
	w.seal(data, n+10)

	w.seqNo++
	w.createReply(data, w.source[:])

	if n == pictureChunk {
		w.download.state = pictureData
	} else {
		w.download.state = pictureEnd
	}
	w.download.timer.StartWith(pictureGap)
}

func (w *WiresX) sendPictureEnd() {
	data := make([]byte, 14)
	data[0] = w.seqNo
	copy(data[1:], respPictEnd)

	sum := w.download.sum
	copy(data[5:], []byte{0x50, 0x00, w.download.seq + 1, 0x00, byte(sum >> 16), byte(sum >> 8), byte(sum)})
	w.seal(data, 12)

	w.log.Info("Picture sent", logger.Uint32("checksum", sum))
	w.seqNo++
	w.createReply(data, w.source[:])

	w.download.state = pictureNone
	w.download.timer.StartWith(pictureRestTime)
}

// fixed pads or truncates v to n bytes
func fixed(v []byte, n int, pad byte) []byte {
	out := make([]byte, n)
	for i := range out {
		if i < len(v) {
			out[i] = v[i]
		} else {
			out[i] = pad
		}
	}
	return out
}
