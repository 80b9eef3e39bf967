package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/protocol"
	"github.com/dbehnke/ysf-gateway/pkg/timer"
)

// ConnectionState is the login progress with the DMR master
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateWaitingLogin
	StateWaitingAuth
	StateWaitingConfig
	StateWaitingOptions
	StateRunning
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateWaitingLogin:
		return "waiting_login"
	case StateWaitingAuth:
		return "waiting_auth"
	case StateWaitingConfig:
		return "waiting_config"
	case StateWaitingOptions:
		return "waiting_options"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

const (
	retryInterval = 10 * time.Second
	pingInterval  = 10 * time.Second
	linkTimeout   = 60 * time.Second
	rxQueueSize   = 100
)

// ErrNotConnected is returned when writing before the login completed
var ErrNotConnected = errors.New("not connected to DMR master")

// ClientConfig describes the master and the station announced to it
type ClientConfig struct {
	Address   string
	Port      int
	LocalPort int
	ID        uint32
	Password  string
	// Options is sent in an RPTO packet after the login when not empty
	Options string

	Callsign    string
	RXFreq      uint
	TXFreq      uint
	TXPower     uint
	ColorCode   uint
	Latitude    float64
	Longitude   float64
	Height      int
	Location    string
	Description string
	URL         string
	SoftwareID  string
	PackageID   string

	Debug bool
}

// Client is a homebrew protocol peer of a DMR master. Reads never block: a
// receive goroutine handles the login exchange and queues voice packets.
type Client struct {
	config     ClientConfig
	log        *logger.Logger
	conn       *net.UDPConn
	masterAddr *net.UDPAddr
	state      ConnectionState
	stateMu    sync.RWMutex

	retry   *timer.Timer
	ping    *timer.Timer
	timeout *timer.Timer

	// mu serialises the login exchange between the receive goroutine and Clock
	mu sync.Mutex

	rx     chan *protocol.DMRDPacket
	cancel context.CancelFunc
	seq    byte
	onState func(ConnectionState)
}

// NewClient creates a DMR network client; call Open to start the login
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	return &Client{
		config:  cfg,
		log:     log.WithComponent("dmr.client"),
		state:   StateDisconnected,
		retry:   timer.New(retryInterval),
		ping:    timer.New(pingInterval),
		timeout: timer.New(linkTimeout),
		rx:      make(chan *protocol.DMRDPacket, rxQueueSize),
	}
}

// OnStateChange registers a callback for login state changes. Call before
// Open.
func (c *Client) OnStateChange(fn func(ConnectionState)) {
	c.onState = fn
}

// Open binds the socket and sends the login request
func (c *Client) Open() error {
	masterAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.config.Address, strconv.Itoa(c.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to resolve master address: %w", err)
	}
	c.masterAddr = masterAddr

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: c.config.LocalPort})
	if err != nil {
		return fmt.Errorf("failed to create UDP connection: %w", err)
	}
	c.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.receiveLoop(ctx, conn)

	c.log.Info("DMR network opened",
		logger.String("master", c.masterAddr.String()),
		logger.String("local", conn.LocalAddr().String()),
		logger.Uint32("id", c.config.ID))

	c.mu.Lock()
	c.startLogin()
	c.mu.Unlock()
	return nil
}

func (c *Client) startLogin() {
	c.setState(StateWaitingLogin)
	c.ping.Stop()
	c.timeout.Stop()
	c.retry.Start()
	c.sendLogin()
}

func (c *Client) sendLogin() {
	data, _ := (&protocol.RPTLPacket{RepeaterID: c.config.ID}).Encode()
	c.send(data, "RPTL")
}

func (c *Client) sendConfig() {
	cfg := c.config
	rptc := &protocol.RPTCPacket{
		RepeaterID:  cfg.ID,
		Callsign:    cfg.Callsign,
		RXFreq:      fmt.Sprintf("%09d", cfg.RXFreq),
		TXFreq:      fmt.Sprintf("%09d", cfg.TXFreq),
		TXPower:     fmt.Sprintf("%02d", cfg.TXPower),
		ColorCode:   fmt.Sprintf("%02d", cfg.ColorCode),
		Latitude:    fmt.Sprintf("%08.4f", cfg.Latitude),
		Longitude:   fmt.Sprintf("%09.4f", cfg.Longitude),
		Height:      fmt.Sprintf("%03d", cfg.Height),
		Location:    cfg.Location,
		Description: cfg.Description,
		Slots:       "4",
		URL:         cfg.URL,
		SoftwareID:  cfg.SoftwareID,
		PackageID:   cfg.PackageID,
	}
	data, _ := rptc.Encode()
	c.send(data, "RPTC")
}

func (c *Client) sendOptions() {
	data, _ := (&protocol.RPTOPacket{RepeaterID: c.config.ID, Options: c.config.Options}).Encode()
	c.send(data, "RPTO")
}

func (c *Client) send(data []byte, what string) {
	if c.conn == nil {
		return
	}
	if _, err := c.conn.WriteToUDP(data, c.masterAddr); err != nil {
		c.log.Error("Failed to send "+what, logger.Error(err))
		return
	}
	if c.config.Debug {
		c.log.Debug("Sent " + what)
	}
}

// receiveLoop continuously receives and processes packets
func (c *Client) receiveLoop(ctx context.Context, conn *net.UDPConn) {
	buffer := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return
		}
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.log.Error("Read error", logger.Error(err))
			continue
		}
		if !addr.IP.Equal(c.masterAddr.IP) || addr.Port != c.masterAddr.Port {
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		c.mu.Lock()
		c.handlePacket(data)
		c.mu.Unlock()
	}
}

// handlePacket processes a received packet
func (c *Client) handlePacket(data []byte) {
	if len(data) < 4 {
		return
	}

	switch {
	case string(data[0:4]) == protocol.PacketTypeDMRD:
		if c.getState() != StateRunning {
			return
		}
		packet, err := protocol.ParseDMRD(data)
		if err != nil {
			c.log.Error("Failed to parse DMRD packet", logger.Error(err))
			return
		}
		select {
		case c.rx <- packet:
		default:
			c.log.Warn("DMR RX queue full, dropping packet")
		}

	case len(data) >= 6 && string(data[0:6]) == protocol.PacketTypeRPTACK:
		ack, err := protocol.ParseRPTACK(data)
		if err != nil {
			c.log.Warn("Bad RPTACK", logger.Error(err))
			return
		}
		c.handleACK(ack)

	case len(data) >= 6 && string(data[0:6]) == protocol.PacketTypeMSTNAK:
		c.log.Warn("Login rejected by master, retrying", logger.String("state", c.getState().String()))
		c.startLogin()

	case len(data) >= 7 && string(data[0:7]) == protocol.PacketTypeMSTPONG:
		c.timeout.Start()

	case len(data) >= 5 && string(data[0:5]) == protocol.PacketTypeMSTCL:
		c.log.Warn("Master closed the connection, logging in again")
		c.startLogin()

	default:
		if c.config.Debug {
			c.log.Debug("Received unknown packet", logger.String("type", string(data[0:4])))
		}
	}
}

func (c *Client) handleACK(ack *protocol.RPTACKPacket) {
	switch c.getState() {
	case StateWaitingLogin:
		c.setState(StateWaitingAuth)
		data, err := protocol.NewRPTK(c.config.ID, ack.Salt(), c.config.Password).Encode()
		if err != nil {
			c.log.Error("Failed to encode RPTK", logger.Error(err))
			return
		}
		c.send(data, "RPTK")
		c.retry.Start()

	case StateWaitingAuth:
		c.setState(StateWaitingConfig)
		c.sendConfig()
		c.retry.Start()

	case StateWaitingConfig:
		if c.config.Options != "" {
			c.setState(StateWaitingOptions)
			c.sendOptions()
			c.retry.Start()
			return
		}
		c.loggedIn()

	case StateWaitingOptions:
		c.loggedIn()
	}
}

func (c *Client) loggedIn() {
	c.setState(StateRunning)
	c.retry.Stop()
	c.ping.Start()
	c.timeout.Start()
	c.log.Info("Logged into the DMR master", logger.Uint32("id", c.config.ID))
}

// Clock drives login retries, keepalives and the link timeout
func (c *Client) Clock(ms uint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.getState()
	if state == StateDisconnected {
		return
	}

	c.retry.Clock(ms)
	if c.retry.HasExpired() {
		switch state {
		case StateWaitingLogin, StateWaitingAuth:
			// the salt is single use, start over
			c.startLogin()
		case StateWaitingConfig:
			c.sendConfig()
			c.retry.Start()
		case StateWaitingOptions:
			c.sendOptions()
			c.retry.Start()
		}
	}

	c.ping.Clock(ms)
	if c.ping.HasExpired() {
		data, _ := (&protocol.ControlPacket{Type: protocol.PacketTypeRPTPING, RepeaterID: c.config.ID}).Encode()
		c.send(data, "RPTPING")
		c.ping.Start()
	}

	c.timeout.Clock(ms)
	if c.timeout.HasExpired() {
		c.log.Warn("DMR master link timed out, logging in again")
		c.startLogin()
	}
}

// Read returns the next received DMRD packet, or nil when none is queued
func (c *Client) Read() *protocol.DMRDPacket {
	select {
	case p := <-c.rx:
		return p
	default:
		return nil
	}
}

// Write sends a DMRD packet stamped with this peer's ID
func (c *Client) Write(packet *protocol.DMRDPacket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getState() != StateRunning || c.conn == nil {
		return ErrNotConnected
	}

	packet.RepeaterID = c.config.ID
	packet.Sequence = c.seq
	c.seq++

	data, err := packet.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode DMRD: %w", err)
	}
	if _, err := c.conn.WriteToUDP(data, c.masterAddr); err != nil {
		return fmt.Errorf("failed to send DMRD: %w", err)
	}
	return nil
}

// IsConnected reports whether the login completed
func (c *Client) IsConnected() bool {
	return c.getState() == StateRunning
}

// State returns the login state
func (c *Client) State() ConnectionState {
	return c.getState()
}

// Close sends RPTCL and closes the socket
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if c.getState() == StateRunning {
		data, _ := (&protocol.ControlPacket{Type: protocol.PacketTypeRPTCL, RepeaterID: c.config.ID}).Encode()
		c.send(data, "RPTCL")
	}
	c.setState(StateDisconnected)
	c.cancel()
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close DMR socket: %w", err)
	}
	c.log.Info("DMR network closed")
	return nil
}

// Helper methods for state management
func (c *Client) setState(state ConnectionState) {
	c.stateMu.Lock()
	changed := c.state != state
	c.state = state
	c.stateMu.Unlock()
	if changed && c.onState != nil {
		c.onState(state)
	}
}

func (c *Client) getState() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}
