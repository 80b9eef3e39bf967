package gateway

import (
	"bytes"

	"github.com/dbehnke/ysf-gateway/pkg/codec"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/wiresx"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

const (
	// playbackStall is how long playback waits for audio before inserting
	// silence
	playbackStall = 130
	maxSilence    = 5

	// playbackFT is the frame total of synthesized VD mode 2 frames
	playbackFT = 7
	radioIDLen = 5

	allCallsign = "ALL"
)

var (
	noRadioID = [radioIDLen]byte{'*', '*', '*', '*', '*'}

	// defaultGPS is sent in the data channel when the talker sent no
	// position
	defaultGPS = [20]byte{
		0x31, 0x22, 0x62, 0x5F, 0x29, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x6C, 0x20, 0x1C, 0x20, 0x03, 0x08,
	}
)

// rxStream is the network stream being played back to the repeater
type rxStream struct {
	open     bool
	started  bool
	callsign string
	netDst   string
	alien    string
	radioID  [radioIDLen]byte
	dgid     byte
	gps      [20]byte
	gpsHead  [ysf.DCHLength]byte
	count    uint
	silence  int
	elapsed  uint
}

func (s *rxStream) reset() {
	elapsed := s.elapsed
	*s = rxStream{radioID: noRadioID, gps: defaultGPS, elapsed: elapsed}
}

// readRepeater takes every frame the repeater sent since the last tick
func (g *Gateway) readRepeater() {
	for frame := g.repeater.Read(); frame != nil; frame = g.repeater.Read() {
		g.fromRepeater(frame)
	}
}

func (g *Gateway) fromRepeater(frame []byte) {
	if g.state == StateDisabled || !ysf.IsFrame(frame) {
		return
	}
	fich, ok := ysf.DecodeFrame(frame)
	if !ok {
		return
	}
	g.restartInactivity()

	callsign := ysf.Callsign(frame, ysf.OffsetSource)
	if fich.FI == ysf.FIHeader {
		g.notBusy = false
	}
	if g.cfg.NoChange {
		fich.SetDGID(g.cfg.DGID)
		if err := fich.Encode(ysf.Payload(frame)); err != nil {
			g.log.Debug("Cannot rewrite DG-ID", logger.Error(err))
		}
	}
	dmr := g.active == reflectors.TypeDMR

	switch fich.DT {
	case ysf.DTVDMode1:
		if g.wx.ProcessVoice(frame, fich) == wiresx.PassThrough && !dmr {
			g.voiceToNetwork(frame, fich, callsign)
		}
	case ysf.DTVoiceFR:
		if !dmr {
			g.voiceToNetwork(frame, fich, callsign)
		}
	case ysf.DTVDMode2:
		if dmr {
			g.toDMR(frame, fich, callsign)
		} else {
			g.voiceToNetwork(frame, fich, callsign)
		}
	case ysf.DTDataFR:
		g.dataFromRepeater(frame, fich, callsign, dmr)
	}
	if fich.FI == ysf.FITerminator {
		g.notBusy = true
	}
}

// voiceToNetwork queues a voice frame and reports the transmission edges
func (g *Gateway) voiceToNetwork(frame []byte, fich ysf.FICH, callsign string) {
	switch fich.FI {
	case ysf.FIHeader:
		if !g.ready {
			// the data stream never ended
			g.dropHeld()
			g.ready = true
		}
		g.txFrames = 0
		g.log.Info("Repeater transmission",
			logger.String("source", callsign),
			logger.String("network", g.active.String()),
			logger.Uint8("dgid", fich.DGID()))
		g.transmission(ToNetwork, callsign, true)
	case ysf.FITerminator:
		g.log.Info("Repeater transmission ended",
			logger.String("source", callsign),
			logger.Uint("frames", g.txFrames))
		g.transmission(ToNetwork, callsign, false)
	default:
		g.txFrames++
	}
	g.enqueue(frame, false)
}

// dataFromRepeater holds a data stream back from the network until the
// control channel decides whether it carried a command
func (g *Gateway) dataFromRepeater(frame []byte, fich ysf.FICH, callsign string, dmr bool) {
	if !dmr {
		if fich.FI == ysf.FIHeader {
			g.releaseHold()
			g.enqueue(nil, true)
			g.ready = false
		}
		g.enqueue(frame, false)
	}

	verdict, event := g.wx.Process(frame, fich)
	g.handleEvent(event, callsign)

	if fich.FI == ysf.FITerminator {
		if verdict == wiresx.PassThrough {
			g.releaseHold()
		} else {
			g.dropHeld()
		}
		g.ready = true
	}
}

func (g *Gateway) handleEvent(event wiresx.Event, source string) {
	switch event {
	case wiresx.EventConnect:
		g.wiresXConnect(source)
	case wiresx.EventDisconnect:
		g.log.Info("Wires-X disconnect", logger.String("source", source))
		g.Disconnect()
		g.wx.SendDisconnectReply()
	}
}

// toDMR feeds a VD mode 2 frame to the transcoder
func (g *Gateway) toDMR(frame []byte, fich ysf.FICH, callsign string) {
	if g.dmr == nil || g.state != StateIdle {
		return
	}
	switch fich.FI {
	case ysf.FIHeader:
		g.dmr.srcID = g.dmrSource(callsign)
		g.dmr.txCallsign = callsign
		g.dmr.txWatchdog.Start()
		g.txFrames = 0
		g.conv.PutYSFHeader()
		g.log.Info("Repeater transmission",
			logger.String("source", callsign),
			logger.Uint32("src_id", g.dmr.srcID),
			logger.Uint32("dst_id", g.dmr.dstID))
		g.transmission(ToNetwork, callsign, true)
	case ysf.FICommunication:
		if !g.dmr.txWatchdog.IsRunning() {
			// stream already closed by the watchdog
			return
		}
		g.dmr.txWatchdog.Start()
		g.conv.PutYSF(ysf.Payload(frame))
		g.txFrames++
	case ysf.FITerminator:
		if !g.dmr.txWatchdog.IsRunning() {
			return
		}
		g.dmr.txWatchdog.Stop()
		g.conv.PutYSFEOT()
		g.log.Info("Repeater transmission ended",
			logger.String("source", callsign),
			logger.Uint("frames", g.txFrames))
		g.transmission(ToNetwork, callsign, false)
	}
}

func (g *Gateway) enqueue(frame []byte, hold bool) {
	if frame != nil {
		ysf.SetCallsign(frame, ysf.OffsetGateway, g.cfg.Callsign)
	}
	g.outq = append(g.outq, queued{frame: frame, hold: hold})
}

// clearQueue drops queued frames. A data stream still being decided keeps
// its hold so the rest of it is not released by a link change.
func (g *Gateway) clearQueue() {
	g.outq = nil
	if !g.ready {
		g.outq = append(g.outq, queued{hold: true})
	}
}

// releaseHold lets the frames behind a hold marker through
func (g *Gateway) releaseHold() {
	out := g.outq[:0]
	for _, q := range g.outq {
		if !q.hold {
			out = append(out, q)
		}
	}
	g.outq = out
}

// dropHeld discards everything from the first hold marker on
func (g *Gateway) dropHeld() {
	for i, q := range g.outq {
		if q.hold {
			g.outq = g.outq[:i]
			return
		}
	}
}

// flush writes queued frames to the linked network up to the first hold
func (g *Gateway) flush() {
	for len(g.outq) > 0 {
		q := g.outq[0]
		if q.hold {
			return
		}
		g.outq = g.outq[1:]
		if g.linked == nil {
			continue
		}
		if err := g.linked.Write(q.frame); err != nil {
			g.log.Debug("Failed to write frame",
				logger.String("network", g.active.String()),
				logger.Error(err))
			continue
		}
		g.relayed(ToNetwork, g.active)
	}
	if len(g.outq) == 0 {
		g.outq = nil
	}
}

// readNetworks takes frames from the linked network and discards what the
// others received
func (g *Gateway) readNetworks() {
	if g.linked != nil {
		for frame := g.linked.Read(); frame != nil; frame = g.linked.Read() {
			g.fromNetwork(frame)
		}
	}
	for _, a := range g.order {
		if a == g.linked {
			continue
		}
		for a.Read() != nil {
		}
	}
}

func (g *Gateway) fromNetwork(frame []byte) {
	if g.state == StateDisabled || g.wx.IsBusy() || !ysf.IsFrame(frame) {
		return
	}
	fich, ok := ysf.DecodeFrame(frame)
	if !ok {
		return
	}

	switch fich.DT {
	case ysf.DTDataFR, ysf.DTVoiceFR, ysf.DTVDMode1:
		if err := g.repeater.Write(frame); err != nil {
			g.log.Debug("Failed to write to repeater", logger.Error(err))
			return
		}
		g.relayed(ToRepeater, g.active)
	case ysf.DTVDMode2:
		g.vd2FromNetwork(frame, fich)
	}
}

// vd2FromNetwork queues network voice for paced playback. A second
// talker starting over an open stream is ignored until that stream ends.
func (g *Gateway) vd2FromNetwork(frame []byte, fich ysf.FICH) {
	callsign := ysf.Callsign(frame, ysf.OffsetSource)
	payload := ysf.Payload(frame)

	switch fich.FI {
	case ysf.FIHeader:
		if g.rx.open {
			if callsign != g.rx.callsign {
				g.rx.alien = callsign
				g.log.Debug("Ignoring second talker", logger.String("source", callsign))
			}
			return
		}
		g.openStream(callsign, fich)
		if csd1, _, ok := ysf.ReadHeader(payload); ok &&
			bytes.Equal(csd1[:radioIDLen], noRadioID[:]) && csd1[radioIDLen] != '*' {
			copy(g.rx.radioID[:], csd1[radioIDLen:2*radioIDLen])
		}
		g.log.Info("Network transmission",
			logger.String("source", callsign),
			logger.String("destination", g.rx.netDst),
			logger.String("radio_id", string(g.rx.radioID[:])),
			logger.Uint8("dgid", g.rx.dgid))

	case ysf.FICommunication:
		if g.rx.alien != "" && callsign == g.rx.alien {
			return
		}
		if !g.rx.open {
			g.openStream(callsign, fich)
			g.log.Info("Network transmission late entry",
				logger.String("source", callsign),
				logger.Uint8("dgid", g.rx.dgid))
		}
		g.rx.callsign = callsign
		g.rx.silence = 0
		g.captureGPS(payload, fich)
		g.conv.PutVCH(payload)
		g.relayed(ToRepeater, g.active)

	case ysf.FITerminator:
		if g.rx.alien != "" && callsign == g.rx.alien {
			return
		}
		g.conv.PutDMREOT()
		g.rx.open = true
	}
}

func (g *Gateway) openStream(callsign string, fich ysf.FICH) {
	g.rx.reset()
	g.rx.callsign = callsign
	g.rx.netDst = g.name
	g.rx.dgid = fich.DGID()
	g.rx.open = true
	g.notBusy = false
	g.conv.PutDMRHeader()
	g.transmission(ToRepeater, callsign, true)
}

// captureGPS keeps the position the talker's radio sends in frames 6 and 7
// of each voice superframe
func (g *Gateway) captureGPS(payload []byte, fich ysf.FICH) {
	if fich.FT == 6 && fich.FN == 6 {
		g.rx.gps = defaultGPS
		return
	}
	if fich.FT != playbackFT || (fich.FN != 6 && fich.FN != 7) {
		return
	}
	data, ok := ysf.ReadVDMode2Data(payload)
	if !ok {
		return
	}
	if fich.FN == 6 {
		copy(g.rx.gpsHead[:], data)
		if emptyGPS(g.rx.gpsHead[:]) {
			g.rx.gps = defaultGPS
		}
		return
	}
	if !emptyGPS(g.rx.gpsHead[:]) {
		copy(g.rx.gps[:ysf.DCHLength], g.rx.gpsHead[:])
		copy(g.rx.gps[ysf.DCHLength:], data)
	}
}

// emptyGPS matches the placeholder a transcoding radio sends
func emptyGPS(head []byte) bool {
	return head[5] == 0x00 && head[2] == 0x62
}

// playback writes the next paced frame of the open stream to the repeater
func (g *Gateway) playback() {
	if !g.rx.open || g.rx.elapsed <= codec.YSFFramePer {
		return
	}

	vch := make([]byte, codec.VCHBytes)
	switch g.conv.GetYSF(vch) {
	case codec.TagHeader:
		g.rx.started = true
		g.rx.count = 0
		g.rx.silence = 0
		frame := g.playbackFrame(0, g.playbackFICH(ysf.FIHeader, 0))
		ysf.WriteHeader(ysf.Payload(frame), g.csd1(), nil)
		g.writeRepeater(frame)
		g.rx.count++
		g.rx.elapsed = 0

	case codec.TagEOT:
		seq := byte((g.rx.count&0x7F)<<1) | 0x01
		frame := g.playbackFrame(seq, g.playbackFICH(ysf.FITerminator, 0))
		ysf.WriteHeader(ysf.Payload(frame), g.csd1(), nil)
		g.writeRepeater(frame)

		g.log.Info("Network transmission ended",
			logger.String("source", g.rx.callsign),
			logger.Uint("frames", g.rx.count))
		g.transmission(ToRepeater, g.rx.callsign, false)
		g.rx.reset()
		g.notBusy = true
		g.conv.Reset()

	case codec.TagData:
		fn := byte((g.rx.count - 1) % 8)
		frame := g.playbackFrame(byte((g.rx.count&0x7F)<<1), g.playbackFICH(ysf.FICommunication, fn))
		payload := ysf.Payload(frame)
		ysf.WriteVDMode2Data(payload, g.dch(fn))
		ysf.WriteVCH(payload, vch)
		g.writeRepeater(frame)
		g.rx.count++
		g.rx.elapsed = 0

	default:
		if g.rx.started && g.rx.elapsed > playbackStall {
			g.conv.PutDummyDMR()
			g.rx.silence++
			if g.rx.silence > maxSilence {
				g.log.Warn("Network stream lost", logger.String("source", g.rx.callsign))
				g.conv.PutDMREOT()
			}
		}
	}
}

// playbackFrame builds a frame addressed from the stream's talker. The
// FICH is encoded before the payload sections are written.
func (g *Gateway) playbackFrame(seq byte, fich ysf.FICH) []byte {
	frame := ysf.NewFrame(g.rx.netDst, g.rx.callsign, allCallsign, seq)
	if err := fich.Encode(ysf.Payload(frame)); err != nil {
		g.log.Debug("Cannot encode FICH", logger.Error(err))
	}
	return frame
}

func (g *Gateway) playbackFICH(fi, fn byte) ysf.FICH {
	f := ysf.FICH{
		FI: fi,
		CS: ysf.CSAssigned,
		FN: fn,
		FT: playbackFT,
		DT: ysf.DTVDMode2,
	}
	if g.rx.radioID[0] != '*' {
		f.CM = 1
	}
	f.SetDGID(g.rx.dgid)
	return f
}

// csd1 is the header callsign field: radio ID then source
func (g *Gateway) csd1() []byte {
	csd1 := make([]byte, 0, 2*ysf.CallsignLength)
	csd1 = append(csd1, noRadioID[:]...)
	csd1 = append(csd1, g.rx.radioID[:]...)
	return append(csd1, ysf.PadCallsign(g.rx.callsign)...)
}

// dch returns the data channel message for frame fn of a superframe
func (g *Gateway) dch(fn byte) []byte {
	switch fn {
	case 0:
		return append(append([]byte(nil), noRadioID[:]...), g.rx.radioID[:]...)
	case 1:
		return []byte(ysf.PadCallsign(g.rx.callsign))
	case 5:
		if g.rx.radioID[0] != '*' {
			return append([]byte("     "), g.rx.radioID[:]...)
		}
		return nil
	case 6:
		return g.rx.gps[:ysf.DCHLength]
	case 7:
		return g.rx.gps[ysf.DCHLength:]
	}
	return nil
}

func (g *Gateway) writeRepeater(frame []byte) {
	if err := g.repeater.Write(frame); err != nil {
		g.log.Debug("Failed to write to repeater", logger.Error(err))
	}
}
