package gateway

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/codec"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/protocol"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/timer"
)

const (
	dmrWatchdog     = 1500 * time.Millisecond
	dmrHeaderBursts = 3
	superframe      = 6

	// Transmissions shorter than minTxBlocks voice blocks are padded with
	// silence so the network keeps them
	minTxBlocks  = 21
	padTxBlocks  = 30
	dmrFrameRate = 16.667
)

// connector is implemented by DMR transports that report their login
type connector interface {
	IsConnected() bool
}

// dmrLeg is the DMR side of the gateway: the transmit stream built from
// the converter and the receive state of the network stream
type dmrLeg struct {
	net DMRTransport
	cfg DMRConfig
	log *logger.Logger

	enabled bool
	srcID   uint32
	dstID   uint32
	flco    protocol.FLCO

	pttDst        uint32
	pttFLCO       protocol.FLCO
	unlinkPending bool

	// transmit
	txWatchdog *timer.Timer
	txCallsign string
	txElapsed  uint
	txCount    uint
	streamID   uint32
	elc        *protocol.EmbeddedLC
	filling    bool
	fillStep   uint
	fillTotal  uint

	// receive
	watchdog   *timer.Timer
	rxFrames   uint
	rxInfo     bool
	firstSync  bool
	lastHeader bool
}

func newDMRLeg(net DMRTransport, cfg DMRConfig, log *logger.Logger) *dmrLeg {
	return &dmrLeg{
		net:        net,
		cfg:        cfg,
		log:        log.WithComponent("dmr"),
		srcID:      cfg.ID,
		flco:       protocol.FLCOGroup,
		watchdog:   timer.New(dmrWatchdog),
		txWatchdog: timer.New(dmrWatchdog),
	}
}

func (d *dmrLeg) ready() bool {
	if c, ok := d.net.(connector); ok {
		return c.IsConnected()
	}
	return true
}

func (d *dmrLeg) setDestination(dst uint32, flco protocol.FLCO) {
	d.dstID = dst
	d.flco = flco
}

func (d *dmrLeg) unlinkFLCO() protocol.FLCO {
	if d.cfg.UnlinkPrivate {
		return protocol.FLCOUserUser
	}
	return protocol.FLCOGroup
}

func (d *dmrLeg) sendUnlink() {
	d.unlinkPending = false
	d.log.Info("Sending DMR disconnect",
		logger.Uint32("src_id", d.srcID),
		logger.Uint32("dst_id", d.cfg.UnlinkID),
		logger.String("call_type", d.unlinkFLCO().String()))
	d.sendDummy(d.cfg.UnlinkID, d.unlinkFLCO())
}

// sendDummy keys a call with no voice: three headers and a terminator
func (d *dmrLeg) sendDummy(dst uint32, flco protocol.FLCO) {
	lc := protocol.NewLC(flco, d.srcID, dst)
	streamID := rand.Uint32()
	for i := 0; i < dmrHeaderBursts; i++ {
		d.writeData(lc, protocol.DataTypeVoiceLCHeader, streamID)
	}
	d.writeData(lc, protocol.DataTypeTerminatorWithLC, streamID)
}

func (d *dmrLeg) packet(lc *protocol.LC, frameType, dataType byte, streamID uint32, payload []byte) *protocol.DMRDPacket {
	callType := protocol.CallTypeGroup
	if lc.FLCO == protocol.FLCOUserUser {
		callType = protocol.CallTypePrivate
	}
	return &protocol.DMRDPacket{
		SourceID:      lc.SrcID,
		DestinationID: lc.DstID,
		Timeslot:      protocol.Timeslot2,
		CallType:      callType,
		FrameType:     frameType,
		DataType:      dataType,
		StreamID:      streamID,
		Payload:       payload,
	}
}

func (d *dmrLeg) write(p *protocol.DMRDPacket) {
	if err := d.net.Write(p); err != nil {
		d.log.Debug("Dropped DMR packet", logger.Error(err))
	}
}

func (d *dmrLeg) writeData(lc *protocol.LC, dataType byte, streamID uint32) {
	burst, err := protocol.BuildDataBurst(lc, dataType, d.cfg.ColorCode)
	if err != nil {
		d.log.Error("Failed to build DMR burst", logger.Error(err))
		return
	}
	d.write(d.packet(lc, protocol.FrameTypeDataSync, dataType, streamID, burst))
}

func (d *dmrLeg) lc() *protocol.LC {
	return protocol.NewLC(d.flco, d.srcID, d.dstID)
}

func (d *dmrLeg) writeHeader() {
	lc := d.lc()
	d.streamID = rand.Uint32()
	for i := 0; i < dmrHeaderBursts; i++ {
		d.writeData(lc, protocol.DataTypeVoiceLCHeader, d.streamID)
	}
	d.txCount = dmrHeaderBursts
	d.elc = protocol.NewEmbeddedLC(lc)
}

// writeVoice sends the next burst of the superframe, adding the audio
// sync or the embedded LC fragment for its position
func (d *dmrLeg) writeVoice(burst []byte) {
	if d.elc == nil {
		d.elc = protocol.NewEmbeddedLC(d.lc())
	}
	n := int((d.txCount - dmrHeaderBursts) % superframe)
	protocol.WriteVoiceSignalling(burst, n, d.cfg.ColorCode, d.elc)

	frameType, dataType := byte(protocol.FrameTypeVoice), byte(n)
	if n == 0 {
		frameType, dataType = protocol.FrameTypeVoiceSync, 0
	}
	d.write(d.packet(d.lc(), frameType, dataType, d.streamID, burst))
	d.txCount++
}

// endTransmission closes the stream, padding short transmissions with
// silence first
func (d *dmrLeg) endTransmission() {
	blocks := d.txCount * 3 / 5
	if blocks < minTxBlocks {
		d.filling = true
		d.fillStep = 0
		d.fillTotal = ((padTxBlocks-blocks)/superframe + 1) * superframe
		return
	}
	d.writeTerminator()
}

func (d *dmrLeg) writeTerminator() {
	for (d.txCount-dmrHeaderBursts)%superframe != 0 {
		d.writeVoice(codec.SilenceBurst())
	}
	d.log.Info("DMR transmission sent",
		logger.Float64("duration_seconds", float64(d.txCount)/dmrFrameRate))
	d.writeData(d.lc(), protocol.DataTypeTerminatorWithLC, d.streamID)
	d.elc = nil
	d.filling = false
}

// sendDMR sends one paced burst from the converter to the DMR network
func (g *Gateway) sendDMR() {
	d := g.dmr
	if d == nil || !d.enabled || g.state == StateDisabled {
		return
	}
	if d.txElapsed <= codec.DMRFramePer {
		return
	}

	burst := make([]byte, protocol.PayloadSize)
	tag := g.conv.GetDMR(burst)
	if d.filling {
		if tag == codec.TagHeader {
			// a new transmission continues the padded stream
			d.filling = false
			d.txElapsed = 0
			return
		}
		if d.fillStep < d.fillTotal {
			d.writeVoice(codec.SilenceBurst())
			d.fillStep++
			d.txElapsed = 0
		} else {
			d.writeTerminator()
		}
	}

	switch tag {
	case codec.TagHeader:
		d.writeHeader()
		d.txElapsed = 0
	case codec.TagData:
		d.writeVoice(burst)
		d.txElapsed = 0
		g.relayed(ToNetwork, reflectors.TypeDMR)
	case codec.TagEOT:
		d.endTransmission()
		d.txElapsed = 0
	}
}

// readDMR drains the DMR network. Streams are taken only while DMR is
// active and no talkgroup change is being acknowledged.
func (g *Gateway) readDMR() {
	d := g.dmr
	if d == nil {
		return
	}
	for p := d.net.Read(); p != nil; p = d.net.Read() {
		if g.active != reflectors.TypeDMR || g.wx.IsBusy() {
			continue
		}
		if g.state != StateIdle && g.state != StateWaitingUnlink {
			continue
		}
		g.fromDMR(p)
	}
}

func (g *Gateway) fromDMR(p *protocol.DMRDPacket) {
	d := g.dmr
	d.watchdog.Start()

	if p.IsTerminator() {
		if d.rxFrames == 0 {
			d.resetRx()
			return
		}
		if p.SourceID == d.cfg.UnlinkID || p.SourceID == d.dstID {
			g.unlinkSeen = true
		}
		d.log.Info("DMR transmission received",
			logger.Float64("duration_seconds", float64(d.rxFrames)/dmrFrameRate))
		g.conv.PutDMREOT()
		g.rx.open = true
		g.transmission(ToRepeater, g.rx.callsign, false)
		d.resetRx()
		return
	}

	if p.IsVoiceHeader() && !d.lastHeader {
		g.dmrStreamInfo(p)
		g.conv.PutDMRHeader()
		g.rx.open = true
		g.rx.started = false
		d.rxFrames = 0
		d.firstSync = false
		g.notBusy = false
		d.log.Info("DMR audio received",
			logger.String("source", g.rx.callsign),
			logger.String("destination", g.rx.netDst))
		g.transmission(ToRepeater, g.rx.callsign, true)
	}
	d.lastHeader = p.IsVoiceHeader()

	if p.FrameType == protocol.FrameTypeVoiceSync {
		d.firstSync = true
	}
	if p.IsVoice() && d.firstSync {
		if !d.rxInfo {
			g.dmrStreamInfo(p)
			d.log.Info("DMR audio late entry",
				logger.String("source", g.rx.callsign),
				logger.String("destination", g.rx.netDst))
		}
		g.rx.silence = 0
		g.conv.PutDMR(p.Payload)
		g.rx.open = true
		g.notBusy = false
		d.rxFrames++
		g.relayed(ToRepeater, reflectors.TypeDMR)
	}
}

// dmrStreamInfo names the source and destination of a received stream
func (g *Gateway) dmrStreamInfo(p *protocol.DMRDPacket) {
	src := strconv.FormatUint(uint64(p.SourceID), 10)
	if g.lookup != nil {
		src = g.lookup.FindCallsign(p.SourceID)
	}

	dst := ""
	if dir := g.dirs[reflectors.TypeDMR]; dir != nil {
		if r := dir.FindByID(strconv.FormatUint(uint64(p.DestinationID), 10)); r != nil {
			dst = r.TrimmedName()
		}
	}
	if dst == "" {
		switch {
		case p.CallType == protocol.CallTypeGroup:
			dst = fmt.Sprintf("TG %d", p.DestinationID)
		case g.lookup != nil:
			dst = g.lookup.FindCallsign(p.DestinationID)
		default:
			dst = strconv.FormatUint(uint64(p.DestinationID), 10)
		}
	}

	g.rx.callsign = src
	g.rx.netDst = dst
	g.rx.dgid = 0
	g.rx.radioID = noRadioID
	g.rx.gps = defaultGPS
	g.dmr.rxInfo = true
}

func (d *dmrLeg) resetRx() {
	d.watchdog.Stop()
	d.rxFrames = 0
	d.rxInfo = false
	d.firstSync = false
}

// clockDMR runs the watchdogs of both directions
func (g *Gateway) clockDMR(ms uint) {
	d := g.dmr
	if d == nil {
		return
	}

	d.txWatchdog.Clock(ms)
	if d.txWatchdog.HasExpired() {
		d.txWatchdog.Stop()
		d.log.Debug("Repeater watchdog expired",
			logger.String("source", d.txCallsign),
			logger.Uint("frames", g.txFrames))
		g.conv.PutYSFEOT()
		g.transmission(ToNetwork, d.txCallsign, false)
	}

	d.watchdog.Clock(ms)
	if d.watchdog.HasExpired() {
		d.log.Debug("Network watchdog expired",
			logger.Float64("duration_seconds", float64(d.rxFrames)/dmrFrameRate))
		g.conv.Reset()
		d.resetRx()
		g.notBusy = true
	}
}
