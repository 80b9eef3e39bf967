package ysf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/timer"
)

// FCS rooms are addressed as "FCS" + 3 digit server + 2 digit room, e.g.
// FCS00290. On the wire a frame is the bare 120 byte air payload followed by
// the sequence byte and the room name.
const (
	FCSFrameLength = 130
	FCSDefaultPort = 62500

	fcsPingLength = 25
	fcsLinkWait   = 60 * time.Second
)

var (
	fcsPingTag  = []byte("PING")
	fcsCloseMsg = []byte("CLOSE      ")
)

// FCSConfig configures the FCS transport
type FCSConfig struct {
	Callsign  string
	LocalPort int
	// ServerPort is the UDP port of every FCS server
	ServerPort int
	Debug      bool
}

// FCSNetwork links to one FCS room at a time
type FCSNetwork struct {
	cfg      FCSConfig
	callsign string
	log      *logger.Logger

	conn *net.UDPConn
	dest *net.UDPAddr
	room string

	ping    *timer.Timer
	timeout *timer.Timer
	linked  bool

	rx     chan []byte
	cancel context.CancelFunc
	mu     sync.RWMutex

	// resolve maps a server name such as "FCS002" to an address
	resolve func(server string, port int) (*net.UDPAddr, error)
}

// NewFCSNetwork creates an unlinked FCS transport
func NewFCSNetwork(cfg FCSConfig, log *logger.Logger) *FCSNetwork {
	if cfg.ServerPort == 0 {
		cfg.ServerPort = FCSDefaultPort
	}
	return &FCSNetwork{
		cfg:      cfg,
		callsign: cfg.Callsign,
		log:      log,
		ping:     timer.New(DefaultPollInterval),
		timeout:  timer.New(fcsLinkWait),
		rx:       make(chan []byte, RxBufferSize),
		resolve:  resolveFCSServer,
	}
}

func resolveFCSServer(server string, port int) (*net.UDPAddr, error) {
	host := strings.ToLower(server) + ".xreflector.net"
	return net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// FCSRoomName formats a numeric room id, e.g. 290 becomes FCS00290
func FCSRoomName(id int) string {
	return fmt.Sprintf("FCS%05d", id)
}

// Open binds the socket and starts the receive goroutine
func (n *FCSNetwork) Open() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		return fmt.Errorf("FCS network already open")
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: n.cfg.LocalPort})
	if err != nil {
		return fmt.Errorf("failed to create FCS socket: %w", err)
	}
	n.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.receiveLoop(ctx, conn)

	n.log.Info("FCS network opened", logger.String("local", conn.LocalAddr().String()))
	return nil
}

func (n *FCSNetwork) receiveLoop(ctx context.Context, conn *net.UDPConn) {
	buffer := make([]byte, 1500)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return
		}
		length, remote, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.log.Error("Error reading from FCS socket", logger.Error(err))
			continue
		}

		n.mu.RLock()
		dest := n.dest
		n.mu.RUnlock()
		if dest == nil || !remote.IP.Equal(dest.IP) {
			continue
		}

		data := make([]byte, length)
		copy(data, buffer[:length])
		select {
		case n.rx <- data:
		default:
			n.log.Warn("FCS RX buffer full, dropping packet")
		}
	}
}

// WriteLink links to a room such as "FCS00290", unlinking any current room
func (n *FCSNetwork) WriteLink(room string) error {
	if len(room) != 8 || !strings.HasPrefix(room, "FCS") {
		return fmt.Errorf("invalid FCS room %q", room)
	}
	if n.Linked() {
		_ = n.WriteUnlink()
	}

	addr, err := n.resolve(room[:6], n.cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("cannot resolve FCS server %s: %w", room[:6], err)
	}

	n.mu.Lock()
	n.dest = addr
	n.room = room
	n.linked = false
	n.mu.Unlock()

	n.log.Info("Linking to FCS room", logger.String("room", room[:6]+"-"+room[6:]))
	n.ping.Start()
	n.timeout.Start()
	return n.writePing()
}

// WriteUnlink sends the close message and forgets the room
func (n *FCSNetwork) WriteUnlink() error {
	err := n.send(fcsCloseMsg)

	n.mu.Lock()
	n.dest = nil
	n.room = ""
	n.linked = false
	n.mu.Unlock()

	n.ping.Stop()
	n.timeout.Stop()
	return err
}

func (n *FCSNetwork) writePing() error {
	n.mu.RLock()
	room := n.room
	n.mu.RUnlock()

	msg := bytes.Repeat([]byte{' '}, fcsPingLength)
	copy(msg[0:4], fcsPingTag)
	copy(msg[4:10], PadCallsign(n.callsign)[:6])
	copy(msg[10:18], room)
	return n.send(msg)
}

// Write converts a YSFD frame to FCS framing and sends it to the room
func (n *FCSNetwork) Write(frame []byte) error {
	if !IsFrame(frame) {
		return fmt.Errorf("invalid YSF frame length: %d", len(frame))
	}
	n.mu.RLock()
	room := n.room
	n.mu.RUnlock()

	out := bytes.Repeat([]byte{' '}, FCSFrameLength)
	copy(out[0:PayloadLength], Payload(frame))
	out[PayloadLength] = frame[OffsetSequence]
	copy(out[PayloadLength+1:], room)
	return n.send(out)
}

func (n *FCSNetwork) send(data []byte) error {
	n.mu.RLock()
	conn, dest := n.conn, n.dest
	n.mu.RUnlock()
	if conn == nil {
		return ErrNotOpen
	}
	if dest == nil {
		return nil
	}
	if _, err := conn.WriteToUDP(data, dest); err != nil {
		return fmt.Errorf("failed to write to FCS socket: %w", err)
	}
	return nil
}

// Read returns the next room frame converted to a YSFD frame, or nil.
// Keepalive replies mark the link as established and are consumed.
func (n *FCSNetwork) Read() []byte {
	for {
		var data []byte
		select {
		case data = <-n.rx:
		default:
			return nil
		}

		n.timeout.Start()
		n.mu.Lock()
		if !n.linked {
			n.linked = true
			n.log.Info("FCS room linked", logger.String("room", n.room))
		}
		room := n.room
		n.mu.Unlock()

		if len(data) != FCSFrameLength {
			continue
		}

		frame := NewFrame(room, room, "ALL", data[PayloadLength])
		copy(Payload(frame), data[:PayloadLength])
		return frame
	}
}

// Clock keeps the link alive and drops it when the room stops answering
func (n *FCSNetwork) Clock(ms uint) {
	n.ping.Clock(ms)
	if n.ping.HasExpired() {
		if err := n.writePing(); err != nil {
			n.log.Warn("Failed to send FCS ping", logger.Error(err))
		}
		n.ping.Start()
	}

	n.timeout.Clock(ms)
	if n.timeout.HasExpired() {
		n.log.Warn("FCS room timed out")
		n.mu.Lock()
		n.linked = false
		n.mu.Unlock()
		n.timeout.Start()
	}
}

// Linked reports whether the room has answered since the last link
func (n *FCSNetwork) Linked() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.linked
}

// Room returns the linked room name
func (n *FCSNetwork) Room() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.room
}

// Close unlinks and closes the socket
func (n *FCSNetwork) Close() error {
	if n.Room() != "" {
		_ = n.WriteUnlink()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	n.cancel()
	err := n.conn.Close()
	n.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close FCS socket: %w", err)
	}
	n.log.Info("FCS network closed")
	return nil
}
