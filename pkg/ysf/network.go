package ysf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/timer"
)

const (
	// DefaultPollInterval is the time between keepalive polls
	DefaultPollInterval = 5 * time.Second

	// RxBufferSize is the size of the receive queue
	RxBufferSize = 100
)

// ErrNotOpen is returned by writes on a closed transport
var ErrNotOpen = errors.New("network not open")

// NetworkConfig configures a YSF UDP transport
type NetworkConfig struct {
	Callsign string
	// LocalAddr/LocalPort bind the socket; port 0 picks any free port
	LocalAddr string
	LocalPort int
	// Destination is the initial peer, may be nil
	Destination *net.UDPAddr
	// Poll enables YSFP keepalives to the destination
	Poll         bool
	PollInterval time.Duration
	Debug        bool
}

// Network is a YSF UDP transport: the repeater link or a reflector link.
// Reads never block: a receive goroutine queues datagrams and Read pops one
// per call.
type Network struct {
	callsign string
	cfg      NetworkConfig
	log      *logger.Logger

	conn *net.UDPConn
	dest *net.UDPAddr
	poll *timer.Timer

	rx     chan []byte
	cancel context.CancelFunc

	pollMsg   []byte
	unlinkMsg []byte

	mu sync.RWMutex
}

// NewNetwork creates a YSF transport; call Open to bind it
func NewNetwork(cfg NetworkConfig, log *logger.Logger) *Network {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	callsign := PadCallsign(cfg.Callsign)

	n := &Network{
		callsign:  callsign,
		cfg:       cfg,
		log:       log,
		dest:      cfg.Destination,
		poll:      timer.New(cfg.PollInterval),
		rx:        make(chan []byte, RxBufferSize),
		pollMsg:   append(append([]byte{}, PollTag...), callsign...),
		unlinkMsg: append(append([]byte{}, UnlinkTag...), callsign...),
	}
	return n
}

// Open binds the socket and starts the receive goroutine
func (n *Network) Open() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		return fmt.Errorf("network already open")
	}

	local := &net.UDPAddr{IP: net.IPv4zero, Port: n.cfg.LocalPort}
	if n.cfg.LocalAddr != "" {
		ip := net.ParseIP(n.cfg.LocalAddr)
		if ip == nil {
			return fmt.Errorf("invalid local address %q", n.cfg.LocalAddr)
		}
		local.IP = ip
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return fmt.Errorf("failed to create UDP socket: %w", err)
	}
	n.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.receiveLoop(ctx, conn)

	if n.cfg.Poll && n.dest != nil {
		n.poll.Start()
	}

	n.log.Info("YSF network opened",
		logger.String("local", conn.LocalAddr().String()),
		logger.String("callsign", TrimCallsign(n.callsign)))
	return nil
}

// LocalAddr returns the bound address, nil when closed
func (n *Network) LocalAddr() *net.UDPAddr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.conn == nil {
		return nil
	}
	return n.conn.LocalAddr().(*net.UDPAddr)
}

func (n *Network) receiveLoop(ctx context.Context, conn *net.UDPConn) {
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
			n.log.Error("Error reading from UDP socket", logger.Error(err))
			continue
		}

		dest := n.Destination()
		if dest != nil && !remote.IP.Equal(dest.IP) {
			if n.cfg.Debug {
				n.log.Debug("Packet from unexpected address",
					logger.String("addr", remote.String()),
					logger.String("expected", dest.String()))
			}
			continue
		}

		data := make([]byte, length)
		copy(data, buffer[:length])

		select {
		case n.rx <- data:
		default:
			n.log.Warn("RX buffer full, dropping packet")
		}
	}
}

// SetDestination points the transport at a new peer and restarts polling
func (n *Network) SetDestination(addr *net.UDPAddr) {
	n.mu.Lock()
	n.dest = addr
	n.mu.Unlock()

	n.drain()
	if n.cfg.Poll && addr != nil {
		n.poll.Start()
	}
}

// ClearDestination forgets the peer and stops polling
func (n *Network) ClearDestination() {
	n.mu.Lock()
	n.dest = nil
	n.mu.Unlock()
	n.poll.Stop()
}

// Destination returns the current peer
func (n *Network) Destination() *net.UDPAddr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dest
}

// drain drops frames queued from the previous peer
func (n *Network) drain() {
	for {
		select {
		case <-n.rx:
		default:
			return
		}
	}
}

// Read returns the next received datagram, or nil when none is queued
func (n *Network) Read() []byte {
	select {
	case data := <-n.rx:
		return data
	default:
		return nil
	}
}

// Write sends a YSFD frame to the destination
func (n *Network) Write(frame []byte) error {
	if len(frame) != FrameLength {
		return fmt.Errorf("invalid YSF frame length: %d (expected %d)", len(frame), FrameLength)
	}
	return n.send(frame)
}

// WritePoll sends a YSFP keepalive
func (n *Network) WritePoll() error {
	return n.send(n.pollMsg)
}

// WriteUnlink sends a YSFU disconnect
func (n *Network) WriteUnlink() error {
	n.log.Debug("Sending unlink")
	return n.send(n.unlinkMsg)
}

func (n *Network) send(data []byte) error {
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
		return fmt.Errorf("failed to write to UDP socket: %w", err)
	}
	return nil
}

// Clock sends a poll each time the poll interval elapses
func (n *Network) Clock(ms uint) {
	n.poll.Clock(ms)
	if n.poll.HasExpired() {
		if err := n.WritePoll(); err != nil {
			n.log.Warn("Failed to send poll", logger.Error(err))
		}
		n.poll.Start()
	}
}

// Close stops the receive goroutine and closes the socket
func (n *Network) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn == nil {
		return nil
	}
	n.cancel()
	err := n.conn.Close()
	n.conn = nil
	n.poll.Stop()
	if err != nil {
		return fmt.Errorf("failed to close UDP socket: %w", err)
	}
	n.log.Info("YSF network closed")
	return nil
}

// Callsign returns the padded callsign used in polls
func (n *Network) Callsign() string {
	return n.callsign
}
