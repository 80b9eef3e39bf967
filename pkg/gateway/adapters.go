package gateway

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/dbehnke/ysf-gateway/pkg/protocol"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

// Transport is the lifecycle shared by every network link
type Transport interface {
	Open() error
	Close() error
	Clock(ms uint)
}

// Repeater is the link to the local repeater; *ysf.Network satisfies it
type Repeater interface {
	Transport
	Read() []byte
	Write(frame []byte) error
}

// YSFTransport is a YSF reflector link; *ysf.Network satisfies it. The
// NXDN and P25 bridges are reached through the same transport.
type YSFTransport interface {
	Repeater
	SetDestination(addr *net.UDPAddr)
	ClearDestination()
	WritePoll() error
	WriteUnlink() error
}

// FCSTransport is an FCS room link; *ysf.FCSNetwork satisfies it
type FCSTransport interface {
	Repeater
	WriteLink(room string) error
	WriteUnlink() error
}

// DMRTransport is a homebrew DMR master link; *network.Client satisfies it
type DMRTransport interface {
	Transport
	Read() *protocol.DMRDPacket
	Write(p *protocol.DMRDPacket) error
}

// Adapter is one remote network that carries YSF frames. Linking an
// adapter points its transport at a directory entry.
type Adapter interface {
	Type() reflectors.NetworkType
	Link(r *reflectors.Reflector) error
	Unlink()
	Write(frame []byte) error
	Read() []byte
}

var errNoAddress = errors.New("reflector has no address")

type ysfAdapter struct {
	net YSFTransport
}

func (a *ysfAdapter) Type() reflectors.NetworkType { return reflectors.TypeYSF }

func (a *ysfAdapter) Link(r *reflectors.Reflector) error {
	if r.Addr == nil {
		return fmt.Errorf("%s: %w", r.ID, errNoAddress)
	}
	a.net.SetDestination(r.Addr)
	return a.net.WritePoll()
}

func (a *ysfAdapter) Unlink() {
	_ = a.net.WriteUnlink()
	a.net.ClearDestination()
}

func (a *ysfAdapter) Write(frame []byte) error { return a.net.Write(frame) }
func (a *ysfAdapter) Read() []byte             { return a.net.Read() }

type fcsAdapter struct {
	net FCSTransport
}

func (a *fcsAdapter) Type() reflectors.NetworkType { return reflectors.TypeFCS }

func (a *fcsAdapter) Link(r *reflectors.Reflector) error {
	id, err := strconv.Atoi(r.ID)
	if err != nil {
		return fmt.Errorf("invalid FCS room %q: %w", r.ID, err)
	}
	return a.net.WriteLink(ysf.FCSRoomName(id))
}

func (a *fcsAdapter) Unlink()                  { _ = a.net.WriteUnlink() }
func (a *fcsAdapter) Write(frame []byte) error { return a.net.Write(frame) }
func (a *fcsAdapter) Read() []byte             { return a.net.Read() }

// bridgeAdapter reaches NXDN and P25 talkgroups through a YSF bridge. The
// YSF transport is pointed at the bridge and the talkgroup is selected with
// a Wires-X connect request.
type bridgeAdapter struct {
	kind    reflectors.NetworkType
	net     YSFTransport
	addr    *net.UDPAddr
	request func(dstID int) [][]byte
}

func (a *bridgeAdapter) Type() reflectors.NetworkType { return a.kind }

func (a *bridgeAdapter) Link(r *reflectors.Reflector) error {
	if a.addr == nil {
		return fmt.Errorf("%s bridge: %w", a.kind, errNoAddress)
	}
	id, err := strconv.Atoi(r.ID)
	if err != nil {
		return fmt.Errorf("invalid %s talkgroup %q: %w", a.kind, r.ID, err)
	}
	a.net.SetDestination(a.addr)
	if err := a.net.WritePoll(); err != nil {
		return err
	}
	for _, frame := range a.request(id) {
		if err := a.net.Write(frame); err != nil {
			return fmt.Errorf("failed to send connect request: %w", err)
		}
	}
	return nil
}

func (a *bridgeAdapter) Unlink() {
	_ = a.net.WriteUnlink()
	a.net.ClearDestination()
}

func (a *bridgeAdapter) Write(frame []byte) error { return a.net.Write(frame) }
func (a *bridgeAdapter) Read() []byte             { return a.net.Read() }
