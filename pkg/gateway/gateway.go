// Package gateway links a local YSF repeater to one remote network at a
// time. It owns the talkgroup connection state machine, relays frames in
// both directions, transcodes voice for the DMR leg and hands data frames
// to the Wires-X control channel.
//
// A Gateway is driven by a single loop (Run, or Tick in tests). Only Status
// may be called from other goroutines.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/codec"
	"github.com/dbehnke/ysf-gateway/pkg/dmrid"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/timer"
	"github.com/dbehnke/ysf-gateway/pkg/wiresx"
)

// ErrNoRepeater is returned by New without a repeater link
var ErrNoRepeater = errors.New("repeater link is required")

const (
	tickInterval = 5 * time.Millisecond

	// DefaultTGChangeTimeout bounds a talkgroup change handshake
	DefaultTGChangeTimeout = 30 * time.Second
)

// DMRConfig describes the gateway on the DMR network
type DMRConfig struct {
	// ID is the source ID used when a callsign has no DMR ID
	ID        uint32
	ColorCode byte
	// EnableUnlink sends a call to UnlinkID before changing talkgroup
	EnableUnlink  bool
	UnlinkID      uint32
	UnlinkPrivate bool
}

// Config holds the gateway behaviour
type Config struct {
	// Callsign is the gateway callsign sent to the networks
	Callsign string
	WiresX   wiresx.Config

	// StartupType and StartupID are linked at start and on revert. The
	// ID is numeric or a directory name.
	StartupType reflectors.NetworkType
	StartupID   string
	// LastTG seeds the destination a network selector relinks to
	LastTG map[reflectors.NetworkType]int

	// InactivityTimeout reverts to the startup link after this long
	// without repeater traffic; zero disables it
	InactivityTimeout time.Duration
	Revert            bool
	TGChangeTimeout   time.Duration

	// BridgeType is the network behind selector 5, NXDN or P25
	BridgeType reflectors.NetworkType

	// NoChange rewrites the DG-ID of repeater frames to DGID
	NoChange bool
	DGID     byte

	DMR DMRConfig
}

// Networks are the links and lookups a gateway is built from. Nil members
// disable what they serve.
type Networks struct {
	Repeater Repeater
	YSF      YSFTransport
	FCS      FCSTransport
	DMR      DMRTransport

	// NXDNBridge and P25Bridge are the YSF addresses of the bridges
	NXDNBridge *net.UDPAddr
	P25Bridge  *net.UDPAddr

	Directories map[reflectors.NetworkType]*reflectors.Directory
	Lookup      *dmrid.Lookup
	Storage     wiresx.Storage
}

type namedTransport struct {
	name string
	t    Transport
}

// queued is a repeater frame waiting for the network. A held entry stops
// the flush until the control channel releases the stream.
type queued struct {
	frame []byte
	hold  bool
}

// Gateway relays one repeater to the active remote network
type Gateway struct {
	cfg Config
	log *logger.Logger

	repeater   Repeater
	transports []namedTransport
	adapters   map[reflectors.NetworkType]Adapter
	order      []Adapter
	dirs       map[reflectors.NetworkType]*reflectors.Directory
	lookup     *dmrid.Lookup
	wx         *wiresx.WiresX
	conv       *codec.Converter
	dmr        *dmrLeg

	// link
	active     reflectors.NetworkType
	linked     Adapter
	dstID      int
	name       string
	lastTG     map[reflectors.NetworkType]int
	state      LinkState
	pending    pendingLink
	unlinkSeen bool
	tgChange   *timer.Timer
	inactivity *timer.Timer

	// relay
	outq     []queued
	ready    bool
	notBusy  bool
	talker   string
	rx       rxStream
	txFrames uint

	observers []Observer

	mu     sync.RWMutex
	status Status
}

// New builds a gateway; call Open before Run
func New(cfg Config, nets Networks, log *logger.Logger) (*Gateway, error) {
	if nets.Repeater == nil {
		return nil, ErrNoRepeater
	}
	if cfg.TGChangeTimeout <= 0 {
		cfg.TGChangeTimeout = DefaultTGChangeTimeout
	}
	if cfg.DMR.UnlinkID == 0 {
		cfg.DMR.UnlinkID = dmrid.DefaultUnlinkID
	}
	if cfg.BridgeType == reflectors.TypeNone {
		cfg.BridgeType = reflectors.TypeNXDN
		if nets.NXDNBridge == nil && nets.P25Bridge != nil {
			cfg.BridgeType = reflectors.TypeP25
		}
	}

	g := &Gateway{
		cfg:        cfg,
		log:        log.WithComponent("gateway"),
		repeater:   nets.Repeater,
		adapters:   make(map[reflectors.NetworkType]Adapter),
		dirs:       make(map[reflectors.NetworkType]*reflectors.Directory),
		lookup:     nets.Lookup,
		conv:       codec.NewConverter(),
		lastTG:     make(map[reflectors.NetworkType]int),
		tgChange:   timer.New(cfg.TGChangeTimeout),
		inactivity: timer.New(cfg.InactivityTimeout),
		ready:      true,
		notBusy:    true,
	}
	g.rx.reset()
	for t, d := range nets.Directories {
		if d != nil {
			g.dirs[t] = d
		}
	}
	for t, tg := range cfg.LastTG {
		g.lastTG[t] = tg
	}

	g.wx = wiresx.New(cfg.WiresX, nets.Repeater, nets.Storage, log)
	g.wx.OnCommand(func(command, source string) {
		for _, o := range g.observers {
			o.WiresXCommand(command, source)
		}
	})

	g.transports = append(g.transports, namedTransport{"repeater", nets.Repeater})
	if nets.YSF != nil {
		g.transports = append(g.transports, namedTransport{"ysf", nets.YSF})
		g.addAdapter(&ysfAdapter{net: nets.YSF})
		if nets.NXDNBridge != nil {
			g.addAdapter(&bridgeAdapter{kind: reflectors.TypeNXDN, net: nets.YSF, addr: nets.NXDNBridge, request: g.wx.ConnectRequest})
		}
		if nets.P25Bridge != nil {
			g.addAdapter(&bridgeAdapter{kind: reflectors.TypeP25, net: nets.YSF, addr: nets.P25Bridge, request: g.wx.ConnectRequest})
		}
	}
	if nets.FCS != nil {
		g.transports = append(g.transports, namedTransport{"fcs", nets.FCS})
		g.addAdapter(&fcsAdapter{net: nets.FCS})
	}
	if nets.DMR != nil {
		g.transports = append(g.transports, namedTransport{"dmr", nets.DMR})
		g.dmr = newDMRLeg(nets.DMR, cfg.DMR, g.log)
	}

	g.status = Status{State: g.state.String(), Network: reflectors.TypeNone.String(), Since: time.Now()}
	return g, nil
}

func (g *Gateway) addAdapter(a Adapter) {
	g.adapters[a.Type()] = a
	g.order = append(g.order, a)
}

// AddObserver registers o for gateway activity. Call before Run.
func (g *Gateway) AddObserver(o Observer) {
	g.observers = append(g.observers, o)
}

// WiresX returns the control channel
func (g *Gateway) WiresX() *wiresx.WiresX {
	return g.wx
}

// Open opens every transport. A failure closes the ones already open.
func (g *Gateway) Open() error {
	for i, nt := range g.transports {
		if err := nt.t.Open(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.transports[j].t.Close()
			}
			return fmt.Errorf("failed to open %s: %w", nt.name, err)
		}
		g.log.Debug("Transport open", logger.String("name", nt.name))
	}
	return nil
}

// Close unlinks the active network and closes every transport
func (g *Gateway) Close() error {
	if g.linked != nil {
		g.linked.Unlink()
		g.linked = nil
	}
	var errs []error
	for i := len(g.transports) - 1; i >= 0; i-- {
		nt := g.transports[i]
		if err := nt.t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", nt.name, err))
		}
	}
	return errors.Join(errs...)
}

// Run links the startup destination and drives the gateway until ctx is
// cancelled
func (g *Gateway) Run(ctx context.Context) error {
	if !g.StartupLink() {
		g.log.Warn("Startup link failed",
			logger.String("network", g.cfg.StartupType.String()),
			logger.String("id", g.cfg.StartupID))
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			g.log.Info("Gateway loop stopped")
			return nil
		case now := <-ticker.C:
			ms := now.Sub(last) / time.Millisecond
			last = last.Add(ms * time.Millisecond)
			g.Tick(uint(ms))
		}
	}
}

// Tick runs one loop iteration with ms milliseconds elapsed since the last
func (g *Gateway) Tick(ms uint) {
	g.rx.elapsed += ms
	if g.dmr != nil {
		g.dmr.txElapsed += ms
	}

	g.clockLink()
	// the repeater goes first so link changes apply to this tick's traffic
	g.readRepeater()
	g.flush()
	g.sendDMR()
	g.readDMR()
	g.readNetworks()
	g.playback()

	g.clock(ms)
}

func (g *Gateway) clock(ms uint) {
	for _, nt := range g.transports {
		nt.t.Clock(ms)
	}
	for _, d := range g.dirs {
		d.Clock(ms)
	}
	g.wx.Clock(ms)
	g.tgChange.Clock(ms)
	g.clockDMR(ms)

	g.inactivity.Clock(ms)
	if g.inactivity.HasExpired() {
		g.inactivity.Stop()
		g.revert()
		g.restartInactivity()
	}
}

// Status returns a snapshot of the active link. Safe for concurrent use.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// State returns the talkgroup change state
func (g *Gateway) State() LinkState {
	return g.state
}

// Active returns the selected network and the linked destination
func (g *Gateway) Active() (reflectors.NetworkType, int) {
	return g.active, g.dstID
}

// LastTG returns the destination remembered for a network
func (g *Gateway) LastTG(t reflectors.NetworkType) int {
	return g.lastTG[t]
}

func (g *Gateway) updateStatus(fn func(s *Status)) Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.status)
	return g.status
}

// publish reports a link change to the status snapshot and observers
func (g *Gateway) publish() {
	s := g.updateStatus(func(s *Status) {
		s.Network = g.active.String()
		s.DstID = g.dstID
		s.Name = g.name
		s.State = g.state.String()
		s.Since = time.Now()
	})
	for _, o := range g.observers {
		o.LinkChanged(s)
	}
}

func (g *Gateway) relayed(dir Direction, t reflectors.NetworkType) {
	for _, o := range g.observers {
		o.FrameRelayed(dir, t)
	}
}

func (g *Gateway) transmission(dir Direction, callsign string, active bool) {
	g.updateStatus(func(s *Status) {
		if active {
			s.Talker = callsign
		} else {
			s.Talker = ""
		}
	})
	for _, o := range g.observers {
		o.Transmission(dir, callsign, active)
	}
}

func (g *Gateway) restartInactivity() {
	g.inactivity.Start()
}
