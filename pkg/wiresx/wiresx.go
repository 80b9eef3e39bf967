// Package wiresx implements the Wires-X control channel carried inside YSF
// data full rate frames: command reassembly and checksum validation, the
// request handlers, local news storage, and the paced replies written back
// to the repeater.
package wiresx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/timer"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

// Verdict is the control channel's decision about the data stream a frame
// belongs to
type Verdict int

const (
	// PassThrough releases the stream to the active network
	PassThrough Verdict = iota
	// Claimed means the stream carried a command handled locally
	Claimed
	// Reject drops malformed control traffic
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Claimed:
		return "claimed"
	case Reject:
		return "reject"
	default:
		return "pass-through"
	}
}

// Event is an action a completed command asks of the gateway
type Event int

const (
	EventNone Event = iota
	// EventConnect asks for a link to DstID
	EventConnect
	// EventDisconnect reports a disconnect request from the radio
	EventDisconnect
)

const (
	commandLength = 1100
	blockLength   = 260
	terminator    = 0x03

	replyDelay      = 1500 * time.Millisecond
	busyTime        = time.Second
	uploadTimeout   = 10 * time.Second
	pictureDelay    = 1500 * time.Millisecond
	pictureGap      = 3500 * time.Millisecond
	pictureRestTime = time.Second

	// txInterval is the minimum gap between queued frames, in milliseconds
	txInterval = 90

	firstSeqNo = 20
	idLength   = 5
	infoLength = 14
)

// Config describes this node as Wires-X radios see it
type Config struct {
	// Callsign is the gateway callsign including any suffix
	Callsign string
	// Name is the node name; its hash is the five digit node ID
	Name        string
	Location    string
	TXFrequency uint32
	RXFrequency uint32
}

// Writer sends frames towards the repeater
type Writer interface {
	Write(frame []byte) error
}

// CommandHook is called with the name of every recognized command
type CommandHook func(command string, source string)

type status int

const (
	statusNone status = iota
	statusDX
	statusConnect
	statusDisconnect
	statusAll
	statusSearch
	statusCategory
	statusLocalNews
	statusNews
	statusList
	statusGetMessage
	statusUploadText
	statusUploadPicture
	statusVoiceAck
)

// WiresX is the control channel for one repeater link. It is driven from the
// gateway loop and is not safe for concurrent use.
type WiresX struct {
	log     *logger.Logger
	out     Writer
	storage Storage
	onCmd   CommandHook

	node     string
	callsign string
	id       string
	name     string
	location string
	txFreq   uint32
	rxFreq   uint32
	csd1     []byte
	csd2     []byte
	csd3     []byte
	header   []byte

	dir       *reflectors.Directory
	network   string
	reflector string
	dstID     int
	roomName  string
	roomCount int

	command  [commandLength]byte
	filled   [4]byte // per block, bit fn set once frame fn was read
	totals   [4]byte // per block frame total
	talkyKey [5]byte
	source   [ysf.CallsignLength]byte
	verdict  Verdict

	status     status
	seqNo      byte
	replyTimer *timer.Timer
	busyTimer  *timer.Timer
	busy       bool

	start      int
	search     string
	category   []*reflectors.Reflector
	listKind   byte
	number     uint
	newsSource string
	lastNews   string
	serial     [database.TokenLength]byte

	pictureEnded bool
	upload
	download
	voice

	txQueue   [][]byte
	txElapsed uint
}

// New creates the control channel. out receives every reply frame; storage
// may be nil, in which case news commands are answered with empty lists.
func New(cfg Config, out Writer, storage Storage, log *logger.Logger) *WiresX {
	w := &WiresX{
		log:        log.WithComponent("wiresx"),
		out:        out,
		storage:    storage,
		node:       ysf.PadCallsign(cfg.Callsign),
		callsign:   ysf.PadCallsign(baseCallsign(cfg.Callsign)),
		location:   padRight(cfg.Location, infoLength),
		txFreq:     cfg.TXFrequency,
		rxFreq:     cfg.RXFrequency,
		roomCount:  -1,
		seqNo:      firstSeqNo,
		network:    reflectors.TypeYSF.String(),
		replyTimer: timer.New(replyDelay),
		busyTimer:  timer.New(busyTime),
	}
	w.upload.timeout = timer.New(uploadTimeout)
	w.download.timer = timer.New(pictureDelay)
	w.pictureEnded = true
	w.setInfo(cfg.Name)
	for i := range w.source {
		w.source[i] = ' '
	}
	w.log.Info("Wires-X node ready",
		logger.String("id", w.id),
		logger.String("node", strings.TrimSpace(w.node)),
		logger.String("callsign", strings.TrimSpace(w.callsign)))
	return w
}

func (w *WiresX) setInfo(name string) {
	w.name = padRight(name, infoLength)
	w.id = NodeID(name)

	w.csd1 = make([]byte, 20)
	w.csd2 = make([]byte, 20)
	w.csd3 = make([]byte, 20)
	for i := 0; i < 20; i++ {
		w.csd1[i] = '*'
		w.csd2[i] = ' '
		w.csd3[i] = ' '
	}
	copy(w.csd1[10:], w.node)
	copy(w.csd2, w.callsign)
	copy(w.csd3, w.id)
	copy(w.csd3[15:], w.id)

	w.header = make([]byte, ysf.OffsetSequence)
	copy(w.header, ysf.FrameTag)
	copy(w.header[ysf.OffsetGateway:], w.callsign)
	copy(w.header[ysf.OffsetSource:], w.node)
	copy(w.header[ysf.OffsetDest:], ysf.PadCallsign("ALL"))
}

// NodeID hashes a node name into the five digit Wires-X ID using the
// one-at-a-time hash
func NodeID(name string) string {
	var hash uint32
	for i := 0; i < len(name); i++ {
		hash += uint32(name[i])
		hash += hash << 10
		hash ^= hash >> 6
	}
	hash += hash << 3
	hash ^= hash >> 11
	hash += hash << 15
	return fmt.Sprintf("%05d", hash%100000)
}

// baseCallsign keeps the leading alphanumeric run and drops trailing digits,
// so "G4KLX-2" and "G4KLX2" both become "G4KLX"
func baseCallsign(cs string) string {
	i := 0
	for i < len(cs) && isAlnum(cs[i]) {
		i++
	}
	j := i - 1
	for j > 0 && cs[j] >= '0' && cs[j] <= '9' {
		j--
	}
	if j < 0 {
		return ""
	}
	return cs[:j+1]
}

func isAlnum(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// ID returns the five digit node ID
func (w *WiresX) ID() string {
	return w.id
}

// Callsign returns the base callsign used in reply headers
func (w *WiresX) Callsign() string {
	return strings.TrimSpace(w.callsign)
}

// OnCommand registers a hook called for every recognized command
func (w *WiresX) OnCommand(hook CommandHook) {
	w.onCmd = hook
}

// SetDirectory points listings and lookups at the directory of the active
// network. News records are partitioned by its network type.
func (w *WiresX) SetDirectory(dir *reflectors.Directory) {
	w.dir = dir
	if dir != nil {
		w.network = networkKey(dir.Type())
	}
}

// SetReflector records the linked room for DX and connect replies. An empty
// name reports the raw destination as "TGnnnnn".
func (w *WiresX) SetReflector(name string, dstID int) {
	w.reflector = name
	w.dstID = dstID
	w.roomCount = -1
}

// SetRoomInfo overrides the name and member count reported for the linked
// room, as announced by the remote network
func (w *WiresX) SetRoomInfo(name string, count int) {
	w.roomName = padRight(name, reflectors.NameLength)
	w.roomCount = count
}

// Reflector returns the linked room name
func (w *WiresX) Reflector() string {
	return w.reflector
}

// DstID returns the destination of the last connect request or link
func (w *WiresX) DstID() int {
	return w.dstID
}

// IsBusy reports whether a command exchange is in progress
func (w *WiresX) IsBusy() bool {
	return w.busy
}

// Verdict returns the decision for the data stream currently being received
func (w *WiresX) Verdict() Verdict {
	return w.verdict
}

// PictureEnded reports whether no picture transfer is in progress
func (w *WiresX) PictureEnded() bool {
	return w.pictureEnded
}

// Pending returns the number of reply frames waiting to be sent
func (w *WiresX) Pending() int {
	return len(w.txQueue)
}

func networkKey(t reflectors.NetworkType) string {
	s := t.String()
	if len(s) > 3 {
		s = s[:3]
	}
	return s
}

func (w *WiresX) setBusy() {
	w.busy = true
	w.busyTimer.Start()
}

func (w *WiresX) schedule(s status) {
	w.status = s
	w.replyTimer.Start()
}

func (w *WiresX) notify(command string) {
	src := ysf.TrimCallsign(string(w.source[:]))
	if w.onCmd != nil {
		w.onCmd(command, src)
	}
}

// Process feeds one data full rate frame from the repeater. It returns the
// verdict for the stream the frame belongs to and, when the frame completed
// a command, the event that command asks of the gateway. Frames of other
// data types pass through untouched.
func (w *WiresX) Process(frame []byte, fich ysf.FICH) (Verdict, Event) {
	if fich.DT != ysf.DTDataFR || !ysf.IsFrame(frame) {
		return PassThrough, EventNone
	}

	switch fich.FI {
	case ysf.FIHeader:
		w.verdict = PassThrough
		w.clearSlots()
		return w.verdict, EventNone
	case ysf.FICommunication:
	default:
		return w.verdict, EventNone
	}

	d1, d2, ok1, ok2 := ysf.ReadDataFR(ysf.Payload(frame))
	fn, bn := int(fich.FN), int(fich.BN)

	read := false
	switch fn {
	case 0:
		if bn == 0 {
			w.clearSlots()
		}
		if ok1 {
			copy(w.talkyKey[:], d1[5:10])
			copy(w.source[:], d1[10:20])
		}
		return w.verdict, EventNone
	case 1:
		off := bn * blockLength
		if ok2 && off+20 <= commandLength {
			copy(w.command[off:], d2)
			read = true
		}
	default:
		off := bn*blockLength + (fn-2)*40 + 20
		if ok1 && ok2 && off+40 <= commandLength {
			copy(w.command[off:], d1)
			copy(w.command[off+20:], d2)
			read = true
		}
	}
	if read {
		w.filled[bn] |= 1 << fn
		w.totals[bn] = fich.FT
	}

	if fich.FN != fich.FT || fich.BN != fich.BT {
		return w.verdict, EventNone
	}

	source := string(frame[ysf.OffsetSource : ysf.OffsetSource+ysf.CallsignLength])
	defer w.clearSlots()
	if !w.assembled(bn) {
		w.reject(source)
		return w.verdict, EventNone
	}
	event := w.complete(fn, bn, source)
	return w.verdict, event
}

func (w *WiresX) clearSlots() {
	w.filled = [4]byte{}
	w.totals = [4]byte{}
}

// assembled reports whether every frame of blocks 0 to last was read
func (w *WiresX) assembled(last int) bool {
	for b := 0; b <= last; b++ {
		ft := int(w.totals[b])
		if ft == 0 {
			return false
		}
		want := byte((1<<(ft+1) - 2) & 0xFF)
		if w.filled[b]&want != want {
			return false
		}
	}
	return true
}

// complete validates the reassembled command and dispatches it
func (w *WiresX) complete(fn, bn int, source string) Event {
	length := bn*blockLength + (fn-1)*40 + 20
	if length > commandLength-1 {
		length = commandLength - 1
	}

	end := -1
	for i := length - 1; i > 0; i-- {
		if w.command[i] == terminator {
			if Checksum(w.command[:i+1]) == w.command[i+1] {
				end = i
			}
			break
		}
	}
	if end < minCommand-2 {
		w.reject(source)
		return EventNone
	}

	w.verdict = PassThrough
	return w.dispatch(w.command[:end+2], end-10, source)
}

// reject drops a command that did not arrive whole
func (w *WiresX) reject(source string) {
	w.verdict = Reject
	if opEqual(w.command[1:4], opPictData) {
		w.upload.failed = true
	}
	w.log.Warn("Invalid Wires-X block", logger.String("source", strings.TrimSpace(source)))
}

// Checksum is the byte sum used to close every Wires-X block
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Clock advances the reply, picture and busy timers and drains at most one
// queued frame per txInterval.
func (w *WiresX) Clock(ms uint) {
	w.replyTimer.Clock(ms)
	w.download.timer.Clock(ms)
	w.upload.timeout.Clock(ms)
	w.busyTimer.Clock(ms)

	if w.replyTimer.HasExpired() {
		w.sendReply()
		w.status = statusNone
		w.replyTimer.Stop()
	}

	if w.download.timer.HasExpired() {
		w.clockPicture()
	}

	if w.upload.active && w.upload.timeout.HasExpired() {
		w.log.Warn("Timed out receiving picture")
		w.pictureEnded = true
		w.upload.failed = true
		w.finishPicture()
		w.upload.timeout.Stop()
	}

	w.txElapsed += ms
	if w.txElapsed > txInterval {
		if len(w.txQueue) > 0 {
			frame := w.txQueue[0]
			w.txQueue[0] = nil
			w.txQueue = w.txQueue[1:]
			if err := w.out.Write(frame); err != nil {
				w.log.Debug("Dropped Wires-X frame", logger.Error(err))
			}
		}
		w.txElapsed = 0
	}

	if w.busyTimer.HasExpired() {
		w.busy = false
		w.busyTimer.Stop()
	}
}

func (w *WiresX) sendReply() {
	switch w.status {
	case statusDX:
		w.sendDXReply()
	case statusConnect:
		w.sendConnectReply()
	case statusDisconnect:
		w.sendDisconnectReply()
	case statusAll:
		w.sendAllReply()
	case statusSearch:
		w.sendSearchReply()
	case statusCategory:
		w.sendCategoryReply()
	case statusLocalNews:
		w.sendLocalNewsReply()
	case statusNews:
		w.sendNewsReply()
	case statusList:
		w.sendListReply()
	case statusGetMessage:
		w.sendGetMessageReply()
	case statusUploadPicture:
		w.sendUploadReply(true)
	case statusUploadText:
		w.sendUploadReply(false)
	case statusVoiceAck:
		w.sendVoiceAck()
	}
}

// SendConnectReply schedules the "connected" reply for the current link
func (w *WiresX) SendConnectReply() {
	w.setBusy()
	w.schedule(statusConnect)
}

// SendDisconnectReply schedules the "disconnected" reply
func (w *WiresX) SendDisconnectReply() {
	w.setBusy()
	w.schedule(statusDisconnect)
}

// defaultFICH is the FICH of every synthesized data frame
func defaultFICH() ysf.FICH {
	return ysf.FICH{CS: ysf.CSAssigned, DT: ysf.DTDataFR}
}

// frameTotal returns the frame total announced for the rest of a reply
func frameTotal(remaining int, bn int) byte {
	if bn > 0 {
		remaining++
	}
	switch {
	case remaining > 220:
		return 7
	case remaining > 180:
		return 6
	case remaining > 140:
		return 5
	case remaining > 100:
		return 4
	case remaining > 60:
		return 3
	case remaining > 20:
		return 2
	}
	return 1
}

// createReply splits data into a header, communication frames carrying the
// block layout Process reassembles, and a terminator, and queues them. dst
// overrides the destination field; nil addresses the reply to ALL.
func (w *WiresX) createReply(data []byte, dst []byte) {
	for _, frame := range w.frames(data, dst) {
		w.queue(frame)
	}
}

// ConnectRequest builds the frames of a connect command for dstID as a radio
// sends it. NXDN and P25 bridges are Wires-X nodes themselves and are
// switched this way.
func (w *WiresX) ConnectRequest(dstID int) [][]byte {
	data := []byte{w.seqNo}
	data = append(data, opConnect...)
	data = append(data, 0x25)
	data = append(data, fmt.Sprintf("%06d", dstID%1000000)...)
	if Checksum(append(data, terminator)) == terminator {
		data = append(data, ' ')
	}
	data = append(data, terminator)
	data = append(data, Checksum(data))
	w.seqNo++

	w.log.Debug("Building remote connect", logger.Int("dst", dstID))
	return w.frames(data, nil)
}

func (w *WiresX) frames(data []byte, dst []byte) [][]byte {
	length := len(data)
	var bt byte
	if length > blockLength {
		bt = 1 + byte((length-blockLength)/(blockLength-1))
	}
	ft := frameTotal(length, 0)

	var out [][]byte
	add := func(f []byte) {
		if f != nil {
			out = append(out, f)
		}
	}

	var seq byte
	frame := make([]byte, ysf.FrameLength)
	copy(frame, w.header)
	if dst != nil {
		copy(frame[ysf.OffsetDest:ysf.OffsetSequence], dst)
	}
	payload := ysf.Payload(frame)
	copy(payload, ysf.SyncBytes)

	fich := defaultFICH()
	fich.FI = ysf.FIHeader
	fich.BT = bt
	fich.FT = ft
	add(w.encodeFrame(frame, &fich, seq, w.csd1, w.csd2))
	seq += 2

	fich.FI = ysf.FICommunication
	var fn, bn byte
	offset := 0
	for offset < length {
		var d1, d2 []byte
		switch fn {
		case 0:
			ft = frameTotal(length-offset, int(bn))
			d1, d2 = w.csd1, w.csd2
		case 1:
			d1 = w.csd3
			if bn == 0 {
				d2 = chunk(data, offset, 20)
				offset += 20
			} else {
				d2 = append([]byte{0x00}, chunk(data, offset, 19)...)
				offset += 19
			}
		default:
			d1 = chunk(data, offset, 20)
			d2 = chunk(data, offset+20, 20)
			offset += 40
		}

		fich.FT = ft
		fich.FN = fn
		fich.BT = bt
		fich.BN = bn
		add(w.encodeFrame(frame, &fich, seq, d1, d2))
		seq += 2

		fn++
		if fn >= 8 {
			fn = 0
			bn++
		}
	}

	fich.FI = ysf.FITerminator
	fich.FN = fn
	fich.BN = bn
	add(w.encodeFrame(frame, &fich, seq|0x01, w.csd1, w.csd2))
	return out
}

// chunk returns n bytes of data from off, zero filled past the end
func chunk(data []byte, off, n int) []byte {
	out := make([]byte, n)
	if off < len(data) {
		copy(out, data[off:])
	}
	return out
}

// encodeFrame fills the FICH, data channels and sequence of frame and
// returns a copy, nil when the FICH cannot be encoded
func (w *WiresX) encodeFrame(frame []byte, fich *ysf.FICH, seq byte, d1, d2 []byte) []byte {
	payload := ysf.Payload(frame)
	if err := fich.Encode(payload); err != nil {
		w.log.Error("Cannot encode reply FICH", logger.Error(err))
		return nil
	}
	ysf.WriteDataFR(payload, d1, d2)
	frame[ysf.OffsetSequence] = seq
	return append([]byte(nil), frame...)
}

func (w *WiresX) queue(frame []byte) {
	w.txQueue = append(w.txQueue, frame)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// atoi parses a fixed-width numeric field, ignoring padding; junk reads as 0
func atoi(b []byte) int {
	s := strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
