package wiresx

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/dbehnke/ysf-gateway/pkg/logger"
)

// Request opcodes, the three bytes after the sequence number
var (
	opDX          = []byte{0x5D, 0x71, 0x5F}
	opConnect     = []byte{0x5D, 0x23, 0x5F}
	opDisconnect  = []byte{0x5D, 0x2A, 0x5F}
	opAll         = []byte{0x5D, 0x66, 0x5F}
	opNews        = []byte{0x5D, 0x63, 0x5F}
	opCategory    = []byte{0x5D, 0x67, 0x5F}
	opList        = []byte{0x5D, 0x6C, 0x5F}
	opGetResource = []byte{0x5D, 0x72, 0x5F}
	opMessage     = []byte{0x47, 0x65, 0x5F}
	opMessageGPS  = []byte{0x47, 0x66, 0x5F}
	opPicture     = []byte{0x47, 0x67, 0x5F}
	opPictureGPS  = []byte{0x47, 0x68, 0x5F}
	opPictData    = []byte{0x4E, 0x62, 0x5F}
	opPictBegin2  = []byte{0x4E, 0x64, 0x5F}
	opPictEnd     = []byte{0x4E, 0x65, 0x5F}
	opBeaconGPS   = []byte{0x47, 0x64, 0x5F}
	opBeaconNoGPS = []byte{0x47, 0x63, 0x5F}
)

// gpsFieldOffset is the size of the GPS block leading a GPS upload
const gpsFieldOffset = 18

// minCommand is the sequence number, opcode and separator every command
// starts with
const minCommand = 5

// minLengths is the shortest command each opcode can be parsed from
var minLengths = []struct {
	op []byte
	n  int
}{
	{opAll, minCommand + 5},
	{opConnect, minCommand + 6},
	{opCategory, minCommand + 7},
	{opNews, minCommand + idLength},
	{opList, minCommand + 18},
	{opGetResource, minCommand + 15},
	{opMessage, minCommand + 125},
	{opMessageGPS, minCommand + gpsFieldOffset + 125},
	{opPicture, minCommand + 61},
	{opPictureGPS, minCommand + gpsFieldOffset + 61},
	{opPictBegin2, 26},
	{opPictEnd, 8},
	{opPictData, 10},
}

func minLength(op []byte) int {
	for _, m := range minLengths {
		if opEqual(op, m.op) {
			return m.n
		}
	}
	return minCommand
}

func opEqual(op, want []byte) bool {
	return bytes.Equal(op[:3], want)
}

// dispatch runs the handler for a validated command. cmd is the whole
// command buffer; blockSize is the payload size of a picture data block.
func (w *WiresX) dispatch(cmd []byte, blockSize int, source string) Event {
	src := strings.TrimSpace(source)
	if len(cmd) < minCommand {
		w.verdict = Reject
		w.log.Warn("Short Wires-X command",
			logger.Int("length", len(cmd)),
			logger.String("source", src))
		return EventNone
	}

	op := cmd[1:4]
	if len(cmd) < minLength(op) {
		w.verdict = Reject
		if opEqual(op, opPictData) {
			w.upload.failed = true
		}
		w.log.Warn("Truncated Wires-X command",
			logger.Hex("opcode", op),
			logger.Int("length", len(cmd)),
			logger.String("source", src))
		return EventNone
	}
	args := cmd[5:]

	switch {
	case opEqual(op, opDX):
		w.verdict = Claimed
		w.log.Info("Received DX", logger.String("source", src))
		w.notify("dx")
		w.setBusy()
		w.schedule(statusDX)

	case opEqual(op, opAll):
		w.verdict = Claimed
		w.processAll(args, src)

	case opEqual(op, opConnect):
		w.verdict = Claimed
		w.setBusy()
		w.dstID = atoi(args[0:6])
		w.log.Info("Received connect",
			logger.Int("dst", w.dstID),
			logger.String("source", src))
		w.notify("connect")
		return EventConnect

	case opEqual(op, opDisconnect):
		w.verdict = Claimed
		w.setBusy()
		w.status = statusNone
		w.log.Info("Received disconnect", logger.String("source", src))
		w.notify("disconnect")
		return EventDisconnect

	case opEqual(op, opCategory):
		w.verdict = Claimed
		w.processCategory(args, src)

	case opEqual(op, opNews):
		if !w.newsForMe(args, 0) {
			return EventNone
		}
		w.verdict = Claimed
		w.setBusy()
		w.log.Info("Received news request",
			logger.String("room", w.newsSource),
			logger.String("source", src))
		w.notify("news")
		w.schedule(statusNews)

	case opEqual(op, opList):
		if !w.newsForMe(args, 0) {
			return EventNone
		}
		w.verdict = Claimed
		w.setBusy()
		w.listKind = args[10]
		w.start = atoi(args[16:18])
		w.log.Info("Received list request",
			logger.String("kind", string(w.listKind)),
			logger.Int("start", w.start),
			logger.String("source", src))
		w.notify("list")
		w.schedule(statusList)

	case opEqual(op, opGetResource):
		if !w.newsForMe(args, 0) {
			return EventNone
		}
		w.verdict = Claimed
		w.setBusy()
		w.number = uint(atoi(args[10:15]))
		w.pictureEnded = false
		w.log.Info("Received get message",
			logger.Uint("number", w.number),
			logger.String("source", src))
		w.notify("get_message")
		w.schedule(statusGetMessage)

	case opEqual(op, opMessage), opEqual(op, opMessageGPS):
		w.processUploadMessage(args, src, opEqual(op, opMessageGPS))

	case opEqual(op, opPicture), opEqual(op, opPictureGPS):
		w.processUploadPicture(args, src, opEqual(op, opPictureGPS))

	case opEqual(op, opPictBegin2):
		if w.upload.active {
			w.verdict = Claimed
		}
		w.upload.lastRef = cmd[25]

	case opEqual(op, opPictEnd):
		if !w.upload.active {
			return EventNone
		}
		w.verdict = Claimed
		if ref := cmd[7]; w.upload.lastRef+1 != ref {
			w.log.Warn("Out of order picture block",
				logger.Uint8("want", w.upload.lastRef+1),
				logger.Uint8("got", ref))
			w.upload.failed = true
		}

	case opEqual(op, opPictData):
		w.processPictureData(cmd, blockSize)

	case opEqual(op, opBeaconGPS), opEqual(op, opBeaconNoGPS):
		w.verdict = Claimed
		w.log.Debug("Received GPS beacon",
			logger.Bool("gps", opEqual(op, opBeaconGPS)),
			logger.String("source", src))

	default:
		w.log.Debug("Unknown Wires-X command",
			logger.Hex("opcode", op),
			logger.String("source", src))
	}
	return EventNone
}

func (w *WiresX) processAll(args []byte, src string) {
	if args[0] == '1' && args[1] == '1' && len(args) < 21 {
		w.verdict = Reject
		return
	}
	w.setBusy()

	w.start = atoi(args[2:5])
	if w.start > 0 {
		w.start--
	}

	switch {
	case args[0] == '0' && args[1] == '1':
		w.log.Debug("Received ALL", logger.Int("start", w.start), logger.String("source", src))
		w.notify("all")
		w.schedule(statusAll)
	case args[0] == '1' && args[1] == '1':
		w.search = string(args[5:21])
		w.log.Debug("Received SEARCH",
			logger.String("query", strings.TrimSpace(w.search)),
			logger.String("source", src))
		w.notify("search")
		w.schedule(statusSearch)
	case args[0] == 'A' && args[1] == '1':
		w.log.Info("Received local news", logger.String("source", src))
		w.notify("local_news")
		w.schedule(statusLocalNews)
	}
}

func (w *WiresX) processCategory(args []byte, src string) {
	w.setBusy()

	n := atoi(args[5:7])
	if n == 0 || n > 20 {
		return
	}
	if 7+n*5 > len(args) {
		w.verdict = Reject
		return
	}

	w.category = w.category[:0]
	for j := 0; j < n; j++ {
		id := atoi(args[7+j*5 : 12+j*5])
		if w.dir == nil {
			continue
		}
		if r := w.dir.FindByID(strconv.Itoa(id)); r != nil {
			w.category = append(w.category, r)
		}
	}
	w.log.Debug("Received CATEGORY",
		logger.Int("requested", n),
		logger.Int("found", len(w.category)),
		logger.String("source", src))
	w.notify("category")
	w.schedule(statusCategory)
}

// newsForMe records the news room addressed at off and reports whether it
// is this node
func (w *WiresX) newsForMe(args []byte, off int) bool {
	w.newsSource = string(args[off : off+idLength])
	w.lastNews = w.newsSource
	return atoi(args[off:off+idLength]) == atoi([]byte(w.id))
}

func (w *WiresX) processUploadMessage(args []byte, src string, gps bool) {
	w.pictureEnded = false
	w.upload.failed = false

	off := 0
	if gps {
		off = gpsFieldOffset
	}
	if !w.newsForMe(args, off+30) {
		return
	}

	w.verdict = Claimed
	w.setBusy()
	copy(w.serial[:], args[off:off+len(w.serial)])
	w.log.Info("Received text message upload", logger.String("source", src))
	w.notify("upload_text")

	if w.storage != nil {
		rec := newRecord(args, src, gps)
		rec.Network = w.network
		rec.Kind = "T01"
		rec.Text = string(args[off+45 : off+125])
		if err := w.storage.StoreText(rec); err != nil {
			w.log.Error("Cannot store text message", logger.Error(err))
		}
	}
	w.schedule(statusUploadText)
}
