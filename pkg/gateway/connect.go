package gateway

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/protocol"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

// LinkState is the progress of a talkgroup change
type LinkState int

const (
	StateIdle LinkState = iota
	// StateWaitingUnlink waits for the DMR network to confirm the unlink
	StateWaitingUnlink
	// StateSendReply acknowledges the change on the control channel
	StateSendReply
	// StateSendPTT keys the trailing transmission on the new talkgroup
	StateSendPTT
	// StateDisabled refuses link changes and relays nothing
	StateDisabled
)

func (s LinkState) String() string {
	switch s {
	case StateWaitingUnlink:
		return "waiting_unlink"
	case StateSendReply:
		return "send_reply"
	case StateSendPTT:
		return "send_ptt"
	case StateDisabled:
		return "disabled"
	default:
		return "idle"
	}
}

// Network selectors. Connecting to one switches the active network.
const (
	SelectParrot = 1
	SelectYSF    = 2
	SelectFCS    = 3
	SelectDMR    = 4
	// SelectBridge picks NXDN or P25, whichever Config.BridgeType names
	SelectBridge = 5
)

const (
	// parrotID is the directory ID of the YSF parrot
	parrotID = 1

	// Wires-X IDs have five digits. Longer DMR IDs are found by adding
	// multiples of dmrIDStep.
	dmrIDStep     = 100000
	dmrIDMaxSteps = 9

	// dmrReflectorTG carries the traffic of a linked DMR reflector
	dmrReflectorTG = 9
	// dmrNoUnlinkTG never gets an unlink call before it
	dmrNoUnlinkTG = 5000

	replySettle = 600 * time.Millisecond
)

// pendingLink is the DMR destination committed once the unlink completes
type pendingLink struct {
	dst  int
	name string
}

// Connect links dst on the active network. IDs 1 to 5 are network
// selectors. It reports false when the network is disabled or dst is not
// known; a failed lookup changes nothing.
func (g *Gateway) Connect(dst int) bool {
	if g.state == StateDisabled {
		g.log.Warn("Link changes are disabled", logger.Int("dst_id", dst))
		return false
	}
	if dst >= SelectParrot && dst <= SelectBridge {
		return g.selectNetwork(dst)
	}
	if dst <= 0 {
		return false
	}
	return g.link(g.active, dst)
}

// Disconnect drops the link on the active network. The network stays
// selected.
func (g *Gateway) Disconnect() {
	if g.linked != nil {
		g.linked.Unlink()
		g.linked = nil
	}
	if g.active == reflectors.TypeDMR && g.dmr != nil && g.dmr.cfg.EnableUnlink {
		g.dmr.sendUnlink()
	}
	g.clearQueue()
	g.log.Info("Disconnected",
		logger.String("network", g.active.String()),
		logger.Int("dst_id", g.dstID))
	g.dstID = 0
	g.name = ""
	g.wx.SetReflector("", 0)
	g.publish()
}

// Disable locks the gateway: link changes are refused and nothing is
// relayed until Enable
func (g *Gateway) Disable() {
	g.setState(StateDisabled)
	g.outq = nil
	g.ready = true
	g.conv.Reset()
	g.rx.reset()
	g.log.Info("Link changes disabled")
}

// Enable lifts Disable
func (g *Gateway) Enable() {
	if g.state == StateDisabled {
		g.setState(StateIdle)
		g.log.Info("Link changes enabled")
	}
}

func (g *Gateway) setState(s LinkState) {
	if g.state == s {
		return
	}
	g.log.Debug("Link state",
		logger.String("from", g.state.String()),
		logger.String("to", s.String()))
	g.state = s
	g.updateStatus(func(st *Status) { st.State = s.String() })
}

func (g *Gateway) selectorType(sel int) reflectors.NetworkType {
	switch sel {
	case SelectParrot, SelectYSF:
		return reflectors.TypeYSF
	case SelectFCS:
		return reflectors.TypeFCS
	case SelectDMR:
		return reflectors.TypeDMR
	case SelectBridge:
		return g.cfg.BridgeType
	}
	return reflectors.TypeNone
}

func (g *Gateway) selectorFor(t reflectors.NetworkType) int {
	switch t {
	case reflectors.TypeYSF:
		return SelectYSF
	case reflectors.TypeFCS:
		return SelectFCS
	case reflectors.TypeDMR:
		return SelectDMR
	case g.cfg.BridgeType:
		return SelectBridge
	}
	return 0
}

func (g *Gateway) enabled(t reflectors.NetworkType) bool {
	if t == reflectors.TypeDMR {
		return g.dmr != nil
	}
	return g.adapters[t] != nil && g.dirs[t] != nil
}

// selectNetwork switches to the network behind a selector and relinks the
// destination remembered for it
func (g *Gateway) selectNetwork(sel int) bool {
	t := g.selectorType(sel)
	if !g.enabled(t) {
		g.log.Warn("Network is disabled", logger.String("network", t.String()))
		return false
	}
	if t != g.active {
		g.switchNetwork(t)
	}
	if sel == SelectParrot {
		return g.link(t, parrotID)
	}
	if tg := g.lastTG[t]; tg > SelectBridge {
		return g.link(t, tg)
	}
	g.log.Info("Network selected", logger.String("network", t.String()))
	g.publish()
	return true
}

// switchNetwork tears down the active network and makes t active
func (g *Gateway) switchNetwork(t reflectors.NetworkType) {
	if g.linked != nil {
		g.linked.Unlink()
		g.linked = nil
	}
	if g.active == reflectors.TypeDMR || t == reflectors.TypeDMR {
		g.conv.Reset()
		g.rx.reset()
		if g.state != StateDisabled {
			g.setState(StateIdle)
		}
	}
	if g.dmr != nil {
		g.dmr.enabled = t == reflectors.TypeDMR
	}
	g.clearQueue()

	g.log.Info("Network changed",
		logger.String("from", g.active.String()),
		logger.String("to", t.String()))
	g.active = t
	g.dstID = 0
	g.name = ""
	if dir := g.dirs[t]; dir != nil {
		g.wx.SetDirectory(dir)
	}
}

func (g *Gateway) link(t reflectors.NetworkType, dst int) bool {
	switch t {
	case reflectors.TypeNone:
		g.log.Warn("No network selected", logger.Int("dst_id", dst))
		return false
	case reflectors.TypeDMR:
		return g.linkDMR(dst)
	default:
		return g.linkFramed(t, dst)
	}
}

// linkFramed links a YSF reflector, FCS room or bridged NXDN/P25 talkgroup
func (g *Gateway) linkFramed(t reflectors.NetworkType, dst int) bool {
	a, dir := g.adapters[t], g.dirs[t]
	if a == nil || dir == nil {
		return false
	}
	r := dir.FindByID(strconv.Itoa(dst))
	if r == nil {
		g.log.Warn("Unknown destination",
			logger.String("network", t.String()),
			logger.Int("dst_id", dst))
		return false
	}

	if t != g.active {
		g.switchNetwork(t)
	} else if g.linked != nil {
		g.linked.Unlink()
		g.linked = nil
	}
	if err := a.Link(r); err != nil {
		g.log.Error("Failed to link",
			logger.String("network", t.String()),
			logger.String("name", r.TrimmedName()),
			logger.Error(err))
		return false
	}
	g.linked = a
	g.clearQueue()
	g.wx.SetReflector(r.TrimmedName(), dst)
	g.commit(t, dst, r.TrimmedName())
	g.restartInactivity()
	return true
}

// findDMR resolves a DMR destination, retrying the five digit Wires-X form
// of longer IDs
func (g *Gateway) findDMR(dst int) (*reflectors.Reflector, int) {
	dir := g.dirs[reflectors.TypeDMR]
	if dir == nil {
		return nil, dst
	}
	for k := 0; k <= dmrIDMaxSteps; k++ {
		id := dst + k*dmrIDStep
		if r := dir.FindByID(strconv.Itoa(id)); r != nil {
			return r, id
		}
	}
	return nil, dst
}

// linkDMR starts a talkgroup change on the DMR network. Unknown IDs are
// linked as plain group calls.
func (g *Gateway) linkDMR(dst int) bool {
	if g.dmr == nil {
		return false
	}

	option := reflectors.OptionGroup
	name := fmt.Sprintf("TG %d", dst)
	if r, id := g.findDMR(dst); r != nil {
		option = r.Option
		name = r.TrimmedName()
		dst = id
	} else {
		g.log.Info("Talkgroup not in directory, using group call", logger.Int("dst_id", dst))
	}

	if g.active != reflectors.TypeDMR {
		g.switchNetwork(reflectors.TypeDMR)
	}
	d := g.dmr
	switch option {
	case reflectors.OptionGroupPTTPC:
		d.setDestination(dmrReflectorTG, protocol.FLCOGroup)
		d.pttDst, d.pttFLCO = uint32(dst), protocol.FLCOUserUser
	case reflectors.OptionPrivateCall:
		d.setDestination(uint32(dst), protocol.FLCOUserUser)
		d.pttDst = 0
	default:
		d.setDestination(uint32(dst), protocol.FLCOGroup)
		d.pttDst, d.pttFLCO = uint32(dst), protocol.FLCOGroup
	}

	prev := g.lastTG[reflectors.TypeDMR]
	g.pending = pendingLink{dst: dst, name: name}
	g.wx.SetReflector(name, dst)
	g.tgChange.Start()
	g.log.Info("Changing talkgroup",
		logger.Int("from", prev),
		logger.Int("to", dst),
		logger.String("name", name))

	if d.cfg.EnableUnlink && (prev == 0 || prev != dst) &&
		uint32(dst) != d.cfg.UnlinkID && dst != dmrNoUnlinkTG {
		g.unlinkSeen = false
		d.unlinkPending = true
		g.setState(StateWaitingUnlink)
		if d.ready() {
			d.sendUnlink()
		}
	} else {
		g.enterSendReply()
	}
	g.restartInactivity()
	return true
}

func (g *Gateway) enterSendReply() {
	g.tgChange.Start()
	g.setState(StateSendReply)
	g.commit(reflectors.TypeDMR, g.pending.dst, g.pending.name)
}

// commit records a completed link
func (g *Gateway) commit(t reflectors.NetworkType, dst int, name string) {
	g.active = t
	g.dstID = dst
	g.name = name
	if dst > SelectBridge {
		g.lastTG[t] = dst
	}
	g.log.Info("Linked",
		logger.String("network", t.String()),
		logger.Int("dst_id", dst),
		logger.String("name", name))
	g.publish()
}

// clockLink advances the DMR talkgroup change handshake
func (g *Gateway) clockLink() {
	d := g.dmr
	if d == nil || g.active != reflectors.TypeDMR {
		return
	}

	switch g.state {
	case StateWaitingUnlink:
		if d.unlinkPending {
			if d.ready() {
				d.sendUnlink()
				g.tgChange.Start()
			}
			break
		}
		if g.unlinkSeen {
			g.log.Info("Unlink received")
			g.unlinkSeen = false
			g.enterSendReply()
		}
	case StateSendReply:
		if g.tgChange.Elapsed() > replySettle && g.notBusy {
			g.tgChange.Start()
			g.setState(StateSendPTT)
			g.wx.SendConnectReply()
		}
	case StateSendPTT:
		if g.notBusy && !g.wx.IsBusy() {
			g.tgChange.Start()
			g.setState(StateIdle)
			if d.pttDst != 0 {
				g.log.Info("Sending PTT",
					logger.Uint32("dst_id", d.pttDst),
					logger.String("call_type", d.pttFLCO.String()))
				d.sendDummy(d.pttDst, d.pttFLCO)
			}
		}
	default:
		return
	}

	if g.state != StateIdle && g.tgChange.HasExpired() {
		g.log.Warn("Timeout changing talkgroup", logger.String("state", g.state.String()))
		g.tgChange.Stop()
		d.unlinkPending = false
		g.setState(StateIdle)
		g.wx.SendDisconnectReply()
		g.notBusy = true
		for _, o := range g.observers {
			o.LinkTimeout()
		}
	}
}

// wiresXConnect handles a connect request from a radio
func (g *Gateway) wiresXConnect(source string) {
	dst := g.wx.DstID()
	if g.dmr != nil {
		g.dmr.srcID = g.dmrSource(source)
	}
	if !g.Connect(dst) {
		g.wx.SendDisconnectReply()
		return
	}
	// DMR replies once the handshake completes
	if g.active != reflectors.TypeDMR || g.state == StateIdle {
		g.wx.SendConnectReply()
	}
}

// StartupLink links the configured startup network and destination
func (g *Gateway) StartupLink() bool {
	t := g.cfg.StartupType
	if !g.enabled(t) {
		g.log.Warn("Startup network is disabled", logger.String("network", t.String()))
		return false
	}
	if t != g.active {
		g.switchNetwork(t)
	}
	id := g.startupID()
	if id == 0 {
		g.publish()
		return false
	}
	return g.Connect(id)
}

// startupID resolves the startup destination, numeric or by name
func (g *Gateway) startupID() int {
	s := strings.TrimSpace(g.cfg.StartupID)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if dir := g.dirs[g.cfg.StartupType]; dir != nil {
		if r := dir.FindByName(s); r != nil {
			if n, err := strconv.Atoi(r.ID); err == nil {
				return n
			}
		}
	}
	g.log.Warn("Unknown startup destination", logger.String("name", s))
	return 0
}

// revert returns to the startup link after inactivity, switching network
// through its selector first
func (g *Gateway) revert() {
	if !g.cfg.Revert || g.state == StateDisabled {
		return
	}
	t := g.cfg.StartupType
	id := g.startupID()
	if id == 0 || (g.active == t && g.dstID == id) {
		return
	}
	g.log.Info("Inactivity, reverting to startup link",
		logger.String("network", t.String()),
		logger.Int("dst_id", id))
	if g.active != t {
		sel := g.selectorFor(t)
		if sel == 0 || !g.Connect(sel) {
			return
		}
		if g.dstID == id {
			return
		}
	}
	g.Connect(id)
}

// dmrSource returns the DMR source ID for a YSF callsign
func (g *Gateway) dmrSource(callsign string) uint32 {
	var id uint32
	if g.lookup != nil {
		id = g.lookup.FindID(ysf.TrimCallsign(callsign))
	}
	if id == 0 {
		return g.cfg.DMR.ID
	}
	if id > 9999999 {
		id /= 100
	}
	return id
}
