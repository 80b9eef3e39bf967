package wiresx

import (
	"fmt"
	"strconv"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
)

// Reply opcodes, the four bytes after the sequence number
var (
	respDX           = []byte{0x5D, 0x51, 0x5F, 0x25}
	respConnect      = []byte{0x5D, 0x41, 0x5F, 0x25}
	respDisconnect   = []byte{0x5D, 0x41, 0x5F, 0x25}
	respAll          = []byte{0x5D, 0x46, 0x5F, 0x25}
	respNews         = []byte{0x5D, 0x43, 0x5F, 0x25}
	respList         = []byte{0x5D, 0x4C, 0x5F, 0x25}
	respGetMessage   = []byte{0x5D, 0x54, 0x5F, 0x25}
	respVoice        = []byte{0x5D, 0x56, 0x5F, 0x25}
	respVoiceAck     = []byte{0x5D, 0x30, 0x5F, 0x25}
	respUploadAck    = []byte{0x47, 0x30, 0x5F, 0x25}
	respPictData     = []byte{0x4E, 0x62, 0x5F, 0x25}
	respPictBeginGPS = []byte{0x4E, 0x64, 0x5F, 0x25}
	respPictEnd      = []byte{0x4E, 0x65, 0x5F, 0x25}
	respPictPreamble = []byte{0x5D, 0x50, 0x5F, 0x25}
)

const (
	// listReplyLength is the padded size of directory listings before the
	// terminator
	listReplyLength = 1029
	entryLength     = 50
	maxEntries      = 20
	maxTotal        = 999
)

// seal writes the terminator at end and the checksum after it
func (w *WiresX) seal(data []byte, end int) {
	data[end] = terminator
	data[end+1] = Checksum(data[:end+1])
}

// putIdentity writes the node ID, callsign and name block shared by the DX
// and link replies
func (w *WiresX) putIdentity(data []byte) {
	copy(data[5:], w.id)
	copy(data[10:], w.node)
	copy(data[20:], w.name)
}

// putRoom writes the linked room, or "TGnnnnn" when it is not in the
// directory
func (w *WiresX) putRoom(data []byte) {
	var r *reflectors.Reflector
	if w.reflector != "" && w.dir != nil {
		r = w.dir.FindByName(w.reflector)
	}
	if r == nil {
		copy(data[36:], fmt.Sprintf("%05d", w.dstID%100000))
		copy(data[41:], padRight(fmt.Sprintf("TG%05d", w.dstID), reflectors.NameLength))
		copy(data[57:], "000")
		copy(data[70:], padRight("", reflectors.DescLength))
		return
	}

	id, _ := strconv.Atoi(r.ID)
	copy(data[36:], fmt.Sprintf("%05d", id%100000))
	if w.roomCount != -1 {
		copy(data[41:], padRight(w.roomName, reflectors.NameLength))
		copy(data[57:], fmt.Sprintf("%03d", w.roomCount%1000))
	} else {
		copy(data[41:], padRight(r.Name, reflectors.NameLength))
		copy(data[57:], padRight(r.Count, 3))
	}
	copy(data[70:], padRight(r.Description, reflectors.DescLength))
}

// frequencyField renders the TX frequency and repeater shift
func frequencyField(tx, rx uint32) string {
	sign := byte('-')
	offset := tx - rx
	if tx < rx {
		sign = '+'
		offset = rx - tx
	}
	kHz := (tx%1000000 + 500) / 1000
	return fmt.Sprintf("%05d.%03d000%c%03d.%06d", tx/1000000, kHz, sign, offset/1000000, offset%1000000)
}

func (w *WiresX) sendDXReply() {
	data := make([]byte, 129)
	for i := 0; i < 128; i++ {
		data[i] = ' '
	}
	data[0] = w.seqNo
	copy(data[1:], respDX)
	w.putIdentity(data)
	copy(data[34:], "15")
	w.putRoom(data)
	copy(data[84:], frequencyField(w.txFreq, w.rxFreq))
	w.seal(data, 127)

	w.log.Debug("Sending DX reply")
	w.createReply(data, nil)
	w.seqNo++
}

func (w *WiresX) sendConnectReply() {
	data := make([]byte, 91)
	for i := 0; i < 90; i++ {
		data[i] = ' '
	}
	data[0] = w.seqNo
	copy(data[1:], respConnect)
	w.putIdentity(data)
	copy(data[34:], "15")
	w.putRoom(data)
	copy(data[84:], "00000")
	w.seal(data, 89)

	w.log.Info("Sending connect reply", logger.Int("dst", w.dstID))
	w.createReply(data, nil)
	w.seqNo++
}

func (w *WiresX) sendDisconnectReply() {
	data := make([]byte, 91)
	for i := 0; i < 90; i++ {
		data[i] = ' '
	}
	data[0] = w.seqNo
	copy(data[1:], respDisconnect)
	w.putIdentity(data)
	copy(data[34:], "12")
	copy(data[57:], "000")
	w.seal(data, 89)

	w.log.Info("Sending disconnect reply")
	w.createReply(data, nil)
	w.seqNo++
}

// putEntries writes up to maxEntries directory entries from 29 and pads the
// listing to listReplyLength
func putEntries(data []byte, list []*reflectors.Reflector, marker byte) int {
	off := 29
	for _, r := range list {
		entry := data[off : off+entryLength]
		for i := range entry {
			entry[i] = ' '
		}
		id, _ := strconv.Atoi(r.ID)
		entry[0] = marker
		copy(entry[1:], fmt.Sprintf("%05d", id%100000))
		copy(entry[6:], padRight(r.Name, reflectors.NameLength))
		copy(entry[22:], padRight(r.Count, 3))
		copy(entry[35:], padRight(r.Description, reflectors.DescLength))
		entry[49] = 0x0D
		off += entryLength
	}
	for ; off < listReplyLength; off++ {
		data[off] = ' '
	}
	return off
}

// page returns up to maxEntries of list starting at start
func page(list []*reflectors.Reflector, start int) []*reflectors.Reflector {
	if start >= len(list) {
		return nil
	}
	list = list[start:]
	if len(list) > maxEntries {
		list = list[:maxEntries]
	}
	return list
}

func (w *WiresX) current() []*reflectors.Reflector {
	if w.dir == nil {
		return nil
	}
	return w.dir.Current()
}

func (w *WiresX) sendAllReply() {
	if w.start == 0 && w.dir != nil {
		w.dir.Reload()
	}
	curr := w.current()

	data := make([]byte, listReplyLength+2)
	data[0] = w.seqNo
	copy(data[1:], respAll)
	copy(data[5:], "21")
	copy(data[7:], w.id)
	copy(data[12:], w.node)

	total := len(curr)
	if total > maxTotal {
		total = maxTotal
	}
	entries := page(curr, w.start)
	copy(data[22:], fmt.Sprintf("%03d%03d", len(entries), total))
	data[28] = 0x0D

	end := putEntries(data, entries, '5')
	w.seal(data, end)

	w.log.Debug("Sending ALL reply", logger.Int("entries", len(entries)), logger.Int("total", total))
	w.createReply(data, nil)
	w.seqNo++
}

func (w *WiresX) sendSearchReply() {
	var found []*reflectors.Reflector
	if w.dir != nil {
		found = w.dir.Search(w.search)
	}
	if len(found) == 0 {
		w.sendSearchNotFoundReply()
		return
	}

	data := make([]byte, listReplyLength+2)
	data[0] = w.seqNo
	copy(data[1:], respAll)
	copy(data[5:], "02")
	copy(data[7:], w.id)
	copy(data[12:], w.node)
	data[22] = '1'

	total := len(found)
	if total > maxTotal {
		total = maxTotal
	}
	entries := page(found, w.start)
	copy(data[23:], fmt.Sprintf("%02d%03d", len(entries), total))
	data[28] = 0x0D

	end := putEntries(data, entries, '1')
	w.seal(data, end)

	w.log.Debug("Sending SEARCH reply", logger.Int("entries", len(entries)), logger.Int("total", total))
	w.createReply(data, nil)
	w.seqNo++
}

func (w *WiresX) sendSearchNotFoundReply() {
	data := make([]byte, 31)
	data[0] = w.seqNo
	copy(data[1:], respAll)
	copy(data[5:], "01")
	copy(data[7:], w.id)
	copy(data[12:], w.node)
	copy(data[22:], "100000")
	data[28] = 0x0D
	w.seal(data, 29)

	w.log.Debug("Sending SEARCH not found reply")
	w.createReply(data, nil)
	w.seqNo++
}

func (w *WiresX) sendCategoryReply() {
	data := make([]byte, listReplyLength+2)
	data[0] = w.seqNo
	copy(data[1:], respAll)
	copy(data[5:], "21")
	copy(data[7:], w.id)
	copy(data[12:], w.node)

	entries := page(w.category, 0)
	copy(data[22:], fmt.Sprintf("%03d%03d", len(entries), len(entries)))
	data[28] = 0x0D

	end := putEntries(data, entries, '5')
	w.seal(data, end)

	w.log.Debug("Sending CATEGORY reply", logger.Int("entries", len(entries)))
	w.createReply(data, nil)
	w.seqNo++
}

func (w *WiresX) sendLocalNewsReply() {
	data := make([]byte, 81)
	data[0] = w.seqNo
	copy(data[1:], respAll)
	copy(data[5:], "02")
	copy(data[7:], w.id)
	copy(data[12:], w.node)
	copy(data[22:], "A01001")
	data[28] = 0x0D

	entry := data[29 : 29+entryLength]
	for i := range entry {
		entry[i] = ' '
	}
	entry[0] = '3'
	copy(entry[1:], w.id)
	copy(entry[6:], w.node)
	copy(entry[22:], "001")
	copy(entry[25:], w.callsign)
	copy(entry[35:], w.location)
	entry[49] = 0x0D
	w.seal(data, 79)

	w.log.Info("Sending local news reply")
	w.createReply(data, w.source[:])
	w.seqNo++
}

func (w *WiresX) sendNewsReply() {
	data := make([]byte, 25)
	data[0] = w.seqNo
	copy(data[1:], respNews)
	copy(data[5:], "01")
	copy(data[7:], padRight(w.newsSource, idLength))
	copy(data[12:], "     00000")
	data[22] = 0x0D
	w.seal(data, 23)

	w.log.Info("Sending news reply", logger.String("room", w.newsSource))
	w.createReply(data, w.source[:])
	w.seqNo++
}

func (w *WiresX) sendListReply() {
	var records []database.NewsRecord
	if kind, ok := listKinds[w.listKind]; ok && w.storage != nil {
		var err error
		records, err = w.storage.List(w.network, w.newsSource, kind)
		if err != nil {
			w.log.Error("Cannot list news", logger.Error(err))
		}
	}

	body := renderList(records, w.newsSource, w.start)
	data := make([]byte, 5+len(body)+2)
	data[0] = w.seqNo
	copy(data[1:], respList)
	copy(data[5:], body)
	w.seal(data, 5+len(body))

	w.log.Info("Sending list reply",
		logger.String("kind", string(w.listKind)),
		logger.Int("records", len(records)))
	w.createReply(data, w.source[:])
	w.seqNo++
}

func (w *WiresX) sendGetMessageReply() {
	var rec *database.NewsRecord
	if w.storage != nil {
		var err error
		rec, err = w.storage.Get(w.network, w.newsSource, w.number)
		if err != nil {
			w.log.Warn("News record not found",
				logger.String("room", w.newsSource),
				logger.Uint("number", w.number),
				logger.Error(err))
			rec = nil
		}
	}

	switch {
	case rec != nil && rec.KindLetter() == database.KindPicture:
		w.sendPicturePreamble(rec)
	case rec != nil && rec.KindLetter() == database.KindVoice:
		w.sendVoiceMessage(rec)
	default:
		w.sendTextMessage(rec)
	}
}

func (w *WiresX) sendTextMessage(rec *database.NewsRecord) {
	w.pictureEnded = true

	data := make([]byte, 145)
	data[0] = w.seqNo
	copy(data[1:], respGetMessage)

	end := 5
	if rec != nil {
		copy(data[5:], "01")
		copy(data[7:], padRight(w.newsSource, idLength))
		copy(data[12:], fmt.Sprintf("     %05d", w.number%100000))
		copy(data[22:], rec.TextBytes())
		end = 22 + database.TextRecordLength
	}
	w.seal(data, end)

	w.log.Info("Sending message reply", logger.Uint("number", w.number), logger.Bool("found", rec != nil))
	w.createReply(data[:end+2], w.source[:])
	w.seqNo++
}
