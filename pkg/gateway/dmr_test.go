package gateway

import (
	"testing"

	"github.com/dbehnke/ysf-gateway/pkg/protocol"
	"github.com/dbehnke/ysf-gateway/pkg/wiresx"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

// dmrCall builds a network call: a header, voice bursts in superframe
// order and a terminator
func dmrCall(src, dst uint32, callType int, voice int) []*protocol.DMRDPacket {
	packet := func(frameType, dataType byte) *protocol.DMRDPacket {
		return &protocol.DMRDPacket{
			SourceID:      src,
			DestinationID: dst,
			Timeslot:      protocol.Timeslot2,
			CallType:      callType,
			FrameType:     frameType,
			DataType:      dataType,
			StreamID:      0xCAFE,
			Payload:       make([]byte, protocol.PayloadSize),
		}
	}
	call := []*protocol.DMRDPacket{packet(protocol.FrameTypeDataSync, protocol.DataTypeVoiceLCHeader)}
	for i := 0; i < voice; i++ {
		if i%6 == 0 {
			call = append(call, packet(protocol.FrameTypeVoiceSync, 0))
		} else {
			call = append(call, packet(protocol.FrameTypeVoice, byte(i%6)))
		}
	}
	return append(call, packet(protocol.FrameTypeDataSync, protocol.DataTypeTerminatorWithLC))
}

// linkedDMR returns a gateway linked to talkgroup 31665 with the change
// handshake finished
func linkedDMR(t *testing.T) *testGateway {
	t.Helper()
	g := newDMRGateway(t, Config{})
	g.Connect(SelectDMR)
	g.Connect(31665)
	tickUntil(t, g, 100, 100, func() bool { return g.State() == StateIdle })
	// let the connect reply finish
	for i := 0; i < 40 || g.WiresX().Pending() > 0; i++ {
		g.Tick(100)
	}
	g.dmr.take()
	g.rep.take()
	return g
}

// transmit queues a repeater VD mode 2 transmission of n voice frames
func transmit(t *testing.T, g *testGateway, n int) {
	t.Helper()
	g.rep.push(frame(t, "N0CALL", ysf.FIHeader, ysf.DTVDMode2, 0, 0))
	for i := 0; i < n; i++ {
		g.rep.push(frame(t, "N0CALL", ysf.FICommunication, ysf.DTVDMode2, byte(i%8), 0))
	}
	g.rep.push(frame(t, "N0CALL", ysf.FITerminator, ysf.DTVDMode2, 0, 0))
}

// sent runs the loop until the DMR terminator goes out
func sent(t *testing.T, g *testGateway) []*protocol.DMRDPacket {
	t.Helper()
	var out []*protocol.DMRDPacket
	for i := 0; i < 500; i++ {
		g.Tick(60)
		out = append(out, g.dmr.take()...)
		if n := len(out); n > 0 && out[n-1].IsTerminator() {
			return out
		}
	}
	t.Fatalf("no terminator after %d packets", len(out))
	return nil
}

func countVoice(packets []*protocol.DMRDPacket) int {
	n := 0
	for _, p := range packets {
		if p.IsVoice() {
			n++
		}
	}
	return n
}

func TestSendDMR_HeaderAndSuperframes(t *testing.T) {
	g := linkedDMR(t)
	transmit(t, g, 36)
	out := sent(t, g)

	for i := 0; i < 3; i++ {
		if !out[i].IsVoiceHeader() {
			t.Fatalf("packet %d is not a voice header", i)
		}
	}
	stream := out[0].StreamID
	for i, p := range out {
		if p.StreamID != stream {
			t.Fatalf("packet %d changed stream", i)
		}
		if p.DestinationID != 31665 || p.SourceID != 1234567 || p.Timeslot != protocol.Timeslot2 {
			t.Fatalf("packet %d addressed %d -> %d on TS%d", i, p.SourceID, p.DestinationID, p.Timeslot)
		}
	}

	voice := out[3 : len(out)-1]
	if len(voice) != 60 {
		t.Fatalf("voice bursts = %d, want 60", len(voice))
	}
	for i, p := range voice {
		n := i % 6
		if n == 0 && p.FrameType != protocol.FrameTypeVoiceSync {
			t.Errorf("burst %d should carry the voice sync", i)
		}
		if n != 0 && (p.FrameType != protocol.FrameTypeVoice || int(p.DataType) != n) {
			t.Errorf("burst %d: frame type %d data type %d", i, p.FrameType, p.DataType)
		}
	}
}

func TestSendDMR_ShortTransmissionIsPadded(t *testing.T) {
	g := linkedDMR(t)
	transmit(t, g, 2)
	out := sent(t, g)

	if n := countVoice(out); n != 36 {
		t.Errorf("voice bursts = %d, want 36 after padding", n)
	}
	if g.Gateway.dmr.filling {
		t.Error("still filling after the terminator")
	}
}

func TestSendDMR_WatchdogClosesLostTransmission(t *testing.T) {
	g := linkedDMR(t)
	g.rep.push(frame(t, "N0CALL", ysf.FIHeader, ysf.DTVDMode2, 0, 0))
	for i := 0; i < 4; i++ {
		g.rep.push(frame(t, "N0CALL", ysf.FICommunication, ysf.DTVDMode2, byte(i), 0))
	}
	g.Tick(5)
	if !g.Gateway.dmr.txWatchdog.IsRunning() {
		t.Fatal("transmit watchdog not started")
	}

	// no terminator ever arrives from the repeater
	out := sent(t, g)
	if !out[0].IsVoiceHeader() {
		t.Error("stream did not start with a voice header")
	}
	if g.Gateway.dmr.txWatchdog.IsRunning() {
		t.Error("transmit watchdog still running")
	}

	// the late terminator of the lost stream is ignored
	g.rep.push(frame(t, "N0CALL", ysf.FITerminator, ysf.DTVDMode2, 0, 0))
	for i := 0; i < 20; i++ {
		g.Tick(60)
	}
	if n := len(g.dmr.take()); n != 0 {
		t.Errorf("%d packets sent for a stream already closed", n)
	}
}

func TestSendDMR_NothingWhileOtherNetworkActive(t *testing.T) {
	g := newDMRGateway(t, Config{})
	transmit(t, g, 4)
	for i := 0; i < 20; i++ {
		g.Tick(60)
	}
	if n := len(g.dmr.take()); n != 0 {
		t.Errorf("%d packets sent without DMR selected", n)
	}
}

func TestReceiveDMR_PlaysBackToRepeater(t *testing.T) {
	g := linkedDMR(t)
	g.dmr.in = dmrCall(3120001, 91, protocol.CallTypeGroup, 6)

	var frames [][]byte
	for i := 0; i < 20; i++ {
		g.Tick(100)
		frames = append(frames, g.rep.take()...)
	}
	if len(frames) != 6 {
		t.Fatalf("frames = %d, want header, 4 voice frames and terminator", len(frames))
	}

	for i, f := range frames {
		fich, ok := ysf.DecodeFrame(f)
		if !ok {
			t.Fatalf("frame %d has no valid FICH", i)
		}
		if fich.DT != ysf.DTVDMode2 {
			t.Errorf("frame %d DT = %d", i, fich.DT)
		}
		if got := ysf.Callsign(f, ysf.OffsetSource); got != "3120001" {
			t.Errorf("frame %d source = %q", i, got)
		}
		if got := ysf.Callsign(f, ysf.OffsetGateway); got != "TG 91" {
			t.Errorf("frame %d gateway field = %q", i, got)
		}
		switch {
		case i == 0 && fich.FI != ysf.FIHeader:
			t.Error("first frame is not a header")
		case i == len(frames)-1 && fich.FI != ysf.FITerminator:
			t.Error("last frame is not a terminator")
		case i > 0 && i < len(frames)-1 && fich.FN != byte((i-1)%8):
			t.Errorf("frame %d FN = %d", i, fich.FN)
		}
	}
	if !g.notBusy {
		t.Error("gateway still busy after playback")
	}
}

func TestReceiveDMR_WatchdogClosesStream(t *testing.T) {
	g := linkedDMR(t)
	call := dmrCall(3120001, 31665, protocol.CallTypeGroup, 3)
	g.dmr.in = call[:len(call)-1]
	g.Tick(5)
	if !g.rx.open {
		t.Fatal("stream not opened")
	}
	tickUntil(t, g, 100, 100, func() bool { return !g.rx.open })
	if !g.notBusy {
		t.Error("gateway still busy after the watchdog")
	}
}

func TestReceiveDMR_IgnoredDuringTalkgroupChange(t *testing.T) {
	g := newDMRGateway(t, Config{})
	g.Connect(SelectDMR)
	g.Connect(31665)
	if g.State() != StateSendReply {
		t.Fatalf("State = %v", g.State())
	}
	g.dmr.in = dmrCall(3120001, 31665, protocol.CallTypeGroup, 3)
	g.Tick(5)
	if g.rx.open {
		t.Error("stream accepted while the change is acknowledged")
	}
	if len(g.dmr.in) != 0 {
		t.Error("packets were not drained")
	}
}

func TestReceiveDMR_DestinationEchoCompletesUnlink(t *testing.T) {
	g := newDMRGateway(t, Config{DMR: DMRConfig{EnableUnlink: true}})
	g.Connect(SelectDMR)
	g.Connect(31665)
	g.dmr.take()

	g.dmr.in = dmrCall(31665, g.Gateway.dmr.srcID, protocol.CallTypePrivate, 2)
	g.Tick(5)
	g.Tick(5)
	if g.State() != StateSendReply {
		t.Errorf("State = %v, want send_reply", g.State())
	}
}

func TestReceiveDMR_EmptyCallIsIgnored(t *testing.T) {
	g := newDMRGateway(t, Config{DMR: DMRConfig{EnableUnlink: true}})
	g.Connect(SelectDMR)
	g.Connect(31665)

	g.dmr.in = dmrCall(4000, g.Gateway.dmr.srcID, protocol.CallTypePrivate, 0)
	g.Tick(5)
	g.Tick(5)
	if g.State() != StateWaitingUnlink {
		t.Errorf("State = %v, a call without voice is not an unlink", g.State())
	}
}

func TestReceiveDMR_RadioCommandInSameTickWins(t *testing.T) {
	g := linkedDMR(t)
	radio := wiresx.New(wiresx.Config{Callsign: "N0CALL", Name: "radio"}, &fakeRepeater{}, nil, testLogger())
	g.rep.push(radio.ConnectRequest(31665)...)
	g.dmr.in = dmrCall(3120001, 31665, protocol.CallTypeGroup, 3)

	g.Tick(5)
	if !g.WiresX().IsBusy() {
		t.Fatal("radio command not seen")
	}
	if g.rx.open {
		t.Error("network call accepted in the tick the radio sent a command")
	}
	if n := len(g.rep.take()); n != 0 {
		t.Errorf("%d network frames reached the repeater", n)
	}
}
