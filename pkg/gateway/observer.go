package gateway

import (
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
)

// Direction says which way a frame or transmission flows
type Direction int

const (
	// ToNetwork is repeater to the active network
	ToNetwork Direction = iota
	// ToRepeater is the active network to the repeater
	ToRepeater
)

func (d Direction) String() string {
	if d == ToRepeater {
		return "to_repeater"
	}
	return "to_network"
}

// Status is a snapshot of the active link
type Status struct {
	Network string    `json:"network"`
	DstID   int       `json:"dst_id"`
	Name    string    `json:"name"`
	State   string    `json:"state"`
	Talker  string    `json:"talker,omitempty"`
	Since   time.Time `json:"since"`
}

// Observer receives gateway activity. Calls are made from the gateway loop
// and must not block.
type Observer interface {
	LinkChanged(s Status)
	FrameRelayed(dir Direction, network reflectors.NetworkType)
	Transmission(dir Direction, callsign string, active bool)
	WiresXCommand(command, source string)
	LinkTimeout()
}
