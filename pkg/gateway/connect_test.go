package gateway

import (
	"testing"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/protocol"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/wiresx"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

// tickUntil runs the loop in steps of ms until done reports true
func tickUntil(t *testing.T, g *testGateway, ms uint, limit int, done func() bool) {
	t.Helper()
	for i := 0; i < limit; i++ {
		if done() {
			return
		}
		g.Tick(ms)
	}
	if !done() {
		t.Fatalf("condition not reached after %d ticks", limit)
	}
}

func TestConnect_Parrot(t *testing.T) {
	g := newYSFGateway(t, Config{})

	if !g.Connect(SelectParrot) {
		t.Fatal("Connect(parrot) failed")
	}
	network, dst := g.Active()
	if network != reflectors.TypeYSF || dst != parrotID {
		t.Errorf("Active = %v %d, want YSF 1", network, dst)
	}
	if g.ysf.dest == nil || g.ysf.dest.Port != parrotAddr.Port {
		t.Errorf("destination = %v, want parrot", g.ysf.dest)
	}
	if g.ysf.polls != 1 {
		t.Errorf("polls = %d", g.ysf.polls)
	}
	if g.LastTG(reflectors.TypeYSF) != 0 {
		t.Error("the parrot must not be remembered as the last destination")
	}
}

func TestConnect_SelectorRelinksLastDestination(t *testing.T) {
	g := newYSFGateway(t, Config{LastTG: map[reflectors.NetworkType]int{reflectors.TypeYSF: 23456}})

	if !g.Connect(SelectYSF) {
		t.Fatal("Connect(selector) failed")
	}
	if _, dst := g.Active(); dst != 23456 {
		t.Errorf("dst = %d, want remembered 23456", dst)
	}
	if g.ysf.dest == nil || g.ysf.dest.Port != 42001 {
		t.Errorf("destination = %v", g.ysf.dest)
	}
}

func TestConnect_SelectorWithoutHistorySelectsOnly(t *testing.T) {
	g := newYSFGateway(t, Config{})

	if !g.Connect(SelectYSF) {
		t.Fatal("Connect(selector) failed")
	}
	network, dst := g.Active()
	if network != reflectors.TypeYSF || dst != 0 {
		t.Errorf("Active = %v %d", network, dst)
	}
	if g.ysf.dest != nil {
		t.Error("nothing should be linked")
	}
	if n := len(g.obs.links); n == 0 || g.obs.links[n-1].Network != "YSF" {
		t.Errorf("observer not told about the selection: %+v", g.obs.links)
	}
}

func TestConnect_DisabledNetwork(t *testing.T) {
	g := newYSFGateway(t, Config{})
	if g.Connect(SelectFCS) || g.Connect(SelectDMR) {
		t.Error("selecting an unconfigured network should fail")
	}
	if network, _ := g.Active(); network != reflectors.TypeNone {
		t.Errorf("active network changed to %v", network)
	}
}

func TestConnect_UnknownDestinationChangesNothing(t *testing.T) {
	g := newYSFGateway(t, Config{})
	g.Connect(SelectYSF)
	g.Connect(12345)
	links := len(g.obs.links)

	if g.Connect(99999) {
		t.Fatal("Connect(unknown) succeeded")
	}
	if _, dst := g.Active(); dst != 12345 {
		t.Errorf("dst = %d, want 12345 kept", dst)
	}
	if g.ysf.dest == nil || g.ysf.dest.Port != 42000 {
		t.Errorf("destination changed to %v", g.ysf.dest)
	}
	if g.ysf.unlinks != 0 {
		t.Error("unknown destination must not unlink")
	}
	if len(g.obs.links) != links {
		t.Error("unknown destination published a link change")
	}
}

func TestConnect_SwitchingReflectorUnlinksFirst(t *testing.T) {
	g := newYSFGateway(t, Config{})
	g.Connect(SelectYSF)
	g.Connect(12345)
	g.Connect(23456)

	if g.ysf.unlinks != 1 {
		t.Errorf("unlinks = %d, want 1", g.ysf.unlinks)
	}
	if g.LastTG(reflectors.TypeYSF) != 23456 {
		t.Errorf("LastTG = %d", g.LastTG(reflectors.TypeYSF))
	}
}

func TestDisable_RefusesChanges(t *testing.T) {
	g := newYSFGateway(t, Config{})
	g.Connect(SelectYSF)
	g.Connect(12345)

	g.Disable()
	if g.State() != StateDisabled {
		t.Fatalf("State = %v", g.State())
	}
	if g.Connect(23456) {
		t.Error("Connect succeeded while disabled")
	}
	g.rep.push(frame(t, "N0CALL", ysf.FIHeader, ysf.DTVDMode2, 0, 0))
	g.Tick(5)
	if len(g.ysf.take()) != 0 {
		t.Error("frames relayed while disabled")
	}

	g.Enable()
	if g.State() != StateIdle || !g.Connect(23456) {
		t.Error("Enable did not restore link changes")
	}
}

func TestRevert_ReturnsToStartupAfterInactivity(t *testing.T) {
	g := newYSFGateway(t, Config{
		StartupType:       reflectors.TypeYSF,
		StartupID:         "ALPHA",
		Revert:            true,
		InactivityTimeout: time.Second,
	})
	if !g.StartupLink() {
		t.Fatal("StartupLink failed")
	}
	if _, dst := g.Active(); dst != 12345 {
		t.Fatalf("startup dst = %d, want 12345 by name", dst)
	}

	g.Connect(23456)
	g.Tick(600)
	if _, dst := g.Active(); dst != 23456 {
		t.Fatalf("reverted too early")
	}
	g.Tick(600)
	if _, dst := g.Active(); dst != 12345 {
		t.Errorf("dst = %d, want reverted to 12345", dst)
	}
}

func TestRevert_DisabledByConfig(t *testing.T) {
	g := newYSFGateway(t, Config{
		StartupType:       reflectors.TypeYSF,
		StartupID:         "12345",
		InactivityTimeout: time.Second,
	})
	g.StartupLink()
	g.Connect(23456)
	g.Tick(1500)
	if _, dst := g.Active(); dst != 23456 {
		t.Errorf("dst = %d, revert is off", dst)
	}
}

func TestWiresXConnect_FromRadio(t *testing.T) {
	g := newYSFGateway(t, Config{})
	g.Connect(SelectYSF)

	radio := wiresx.New(wiresx.Config{Callsign: "N0CALL", Name: "radio"}, &fakeRepeater{}, nil, testLogger())
	g.rep.push(radio.ConnectRequest(23456)...)
	g.Tick(5)

	if _, dst := g.Active(); dst != 23456 {
		t.Fatalf("dst = %d, want 23456", dst)
	}
	if len(g.obs.commands) == 0 || g.obs.commands[0] != "connect" {
		t.Errorf("commands = %v", g.obs.commands)
	}
	// the command stream is claimed, not relayed to the new reflector
	g.Tick(5)
	if frames := g.ysf.take(); len(frames) != 0 {
		t.Errorf("%d command frames leaked to the network", len(frames))
	}
}

func TestConnect_DMRWithoutUnlink(t *testing.T) {
	g := newDMRGateway(t, Config{})
	g.Connect(SelectDMR)

	if !g.Connect(31665) {
		t.Fatal("Connect failed")
	}
	if g.State() != StateSendReply {
		t.Fatalf("State = %v, want send_reply", g.State())
	}
	if g.LastTG(reflectors.TypeDMR) != 31665 {
		t.Errorf("LastTG = %d", g.LastTG(reflectors.TypeDMR))
	}

	tickUntil(t, g, 100, 100, func() bool { return g.State() == StateIdle })

	ptt := g.dmr.take()
	if len(ptt) != 4 {
		t.Fatalf("PTT packets = %d, want 3 headers and a terminator", len(ptt))
	}
	last := ptt[3]
	if !last.IsTerminator() || last.DestinationID != 31665 || last.CallType != protocol.CallTypeGroup {
		t.Errorf("unexpected PTT terminator %+v", last)
	}
	if last.SourceID != 1234567 {
		t.Errorf("PTT source = %d", last.SourceID)
	}
}

func TestConnect_DMRUnlinkHandshake(t *testing.T) {
	g := newDMRGateway(t, Config{DMR: DMRConfig{EnableUnlink: true, UnlinkID: 4000}})
	g.Connect(SelectDMR)

	if !g.Connect(31665) {
		t.Fatal("Connect failed")
	}
	if g.State() != StateWaitingUnlink {
		t.Fatalf("State = %v, want waiting_unlink", g.State())
	}
	unlink := g.dmr.take()
	if len(unlink) != 4 || unlink[0].DestinationID != 4000 || !unlink[3].IsTerminator() {
		t.Fatalf("unexpected unlink call %+v", unlink)
	}
	if g.LastTG(reflectors.TypeDMR) != 0 {
		t.Error("LastTG must wait for the unlink to complete")
	}

	// the network answers from the unlink ID
	src := g.Gateway.dmr.srcID
	g.dmr.in = dmrCall(4000, src, protocol.CallTypePrivate, 1)
	g.Tick(5)
	g.Tick(5)
	if g.State() != StateSendReply {
		t.Fatalf("State = %v, want send_reply", g.State())
	}
	if g.LastTG(reflectors.TypeDMR) != 31665 {
		t.Errorf("LastTG = %d", g.LastTG(reflectors.TypeDMR))
	}

	tickUntil(t, g, 100, 200, func() bool { return g.State() == StateIdle })
	if n := len(g.dmr.take()); n != 4 {
		t.Errorf("PTT packets = %d", n)
	}
}

func TestConnect_DMRHandshakeTimeout(t *testing.T) {
	g := newDMRGateway(t, Config{DMR: DMRConfig{EnableUnlink: true}})
	g.Connect(SelectDMR)
	g.Connect(31665)

	for i := 0; i < 29; i++ {
		g.Tick(1000)
	}
	if g.State() != StateWaitingUnlink {
		t.Fatalf("State = %v before the timeout", g.State())
	}
	tickUntil(t, g, 1000, 5, func() bool { return g.State() == StateIdle })
	if g.obs.timeouts != 1 {
		t.Errorf("timeouts = %d", g.obs.timeouts)
	}

	// the radio is told the change failed
	g.rep.take()
	for i := 0; i < 50; i++ {
		g.Tick(100)
	}
	if len(g.rep.take()) == 0 {
		t.Error("expected a disconnect reply to the repeater")
	}
}

func TestConnect_DMRUnlinkWaitsForLogin(t *testing.T) {
	g := newDMRGateway(t, Config{DMR: DMRConfig{EnableUnlink: true}})
	g.dmr.connected = false
	g.Connect(SelectDMR)
	g.Connect(31665)

	if n := len(g.dmr.take()); n != 0 {
		t.Fatalf("unlink sent before login: %d packets", n)
	}
	g.dmr.connected = true
	g.Tick(5)
	if n := len(g.dmr.take()); n != 4 {
		t.Errorf("unlink packets after login = %d", n)
	}
}

func TestConnect_DMROptions(t *testing.T) {
	g := newDMRGateway(t, Config{})
	g.Connect(SelectDMR)
	leg := g.Gateway.dmr

	g.Connect(2001)
	if leg.dstID != dmrReflectorTG || leg.flco != protocol.FLCOGroup {
		t.Errorf("reflector option: dst %d flco %v", leg.dstID, leg.flco)
	}
	if leg.pttDst != 2001 || leg.pttFLCO != protocol.FLCOUserUser {
		t.Errorf("reflector PTT: dst %d flco %v", leg.pttDst, leg.pttFLCO)
	}

	g.Connect(4321)
	if leg.dstID != 4321 || leg.flco != protocol.FLCOUserUser || leg.pttDst != 0 {
		t.Errorf("private option: dst %d flco %v ptt %d", leg.dstID, leg.flco, leg.pttDst)
	}
}

func TestConnect_DMRFiveDigitID(t *testing.T) {
	g := newDMRGateway(t, Config{})
	g.Connect(SelectDMR)

	g.Connect(31234)
	if _, dst := g.Active(); dst != 231234 {
		t.Errorf("dst = %d, want 231234", dst)
	}
	if g.Status().Name != "MULTI" {
		t.Errorf("name = %q", g.Status().Name)
	}
}

func TestConnect_DMRUnknownTalkgroupIsGroupCall(t *testing.T) {
	g := newDMRGateway(t, Config{})
	g.Connect(SelectDMR)

	if !g.Connect(777) {
		t.Fatal("Connect failed")
	}
	if g.Gateway.dmr.dstID != 777 || g.Gateway.dmr.flco != protocol.FLCOGroup {
		t.Errorf("dst %d flco %v", g.Gateway.dmr.dstID, g.Gateway.dmr.flco)
	}
	if g.Status().Name != "TG 777" {
		t.Errorf("name = %q", g.Status().Name)
	}
}

func TestLinkState_String(t *testing.T) {
	tests := map[LinkState]string{
		StateIdle:          "idle",
		StateWaitingUnlink: "waiting_unlink",
		StateSendReply:     "send_reply",
		StateSendPTT:       "send_ptt",
		StateDisabled:      "disabled",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
