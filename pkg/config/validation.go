package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

const maxCallsign = 10

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// Validate checks the configuration for values the gateway cannot run with
func (c *Config) Validate() error {
	cs := strings.TrimSpace(c.General.Callsign)
	if cs == "" {
		return invalid("general.callsign is required")
	}
	if len(cs) > maxCallsign {
		return invalid("general.callsign %q is longer than %d characters", cs, maxCallsign)
	}
	if !validPort(c.General.RptPort) {
		return invalid("general.rpt_port must be between 1 and 65535")
	}
	if c.General.MyPort < 0 || c.General.MyPort > 65535 {
		return invalid("general.my_port must be between 0 and 65535")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q must be debug, info, warn or error", c.Log.Level)
	}

	t, err := reflectors.ParseNetworkType(c.Network.TypeStartup)
	if err != nil {
		return invalid("network.type_startup: %v", err)
	}
	if t != reflectors.TypeNone && !c.enabled(t) {
		return invalid("network.type_startup %s is not enabled", t)
	}
	if c.Network.InactivityTimeout < 0 || c.Network.ReloadTime < 0 {
		return invalid("network timeouts must not be negative")
	}
	if c.Network.TGChangeTimeout < 0 {
		return invalid("network.tg_change_timeout must not be negative")
	}

	if c.YSF.Enabled {
		if c.YSF.Hosts == "" {
			return invalid("ysf.hosts is required when ysf is enabled")
		}
		if c.YSF.Port < 0 || c.YSF.Port > 65535 {
			return invalid("ysf.port must be between 0 and 65535")
		}
	}
	if c.YSF.DGID < 0 || c.YSF.DGID > 127 {
		return invalid("ysf.dgid must be between 0 and 127")
	}
	if c.NXDN.Enabled && (!c.YSF.Enabled || c.YSF.YSF2NXDNAddress == "") {
		return invalid("nxdn needs ysf enabled and ysf.ysf2nxdn_address")
	}
	if c.P25.Enabled && (!c.YSF.Enabled || c.YSF.YSF2P25Address == "") {
		return invalid("p25 needs ysf enabled and ysf.ysf2p25_address")
	}
	if c.FCS.Enabled && c.FCS.Rooms == "" {
		return invalid("fcs.rooms is required when fcs is enabled")
	}

	if c.DMR.Enabled {
		if c.DMR.Address == "" {
			return invalid("dmr.address is required when dmr is enabled")
		}
		if !validPort(c.DMR.Port) {
			return invalid("dmr.port must be between 1 and 65535")
		}
		if c.DMR.Password == "" {
			return invalid("dmr.password is required when dmr is enabled")
		}
		if c.General.ID == 0 {
			return invalid("general.id is required when dmr is enabled")
		}
		if c.DMR.ColorCode > 15 {
			return invalid("dmr.color_code must be between 0 and 15")
		}
	}

	if c.Activity.MinDuration < 0 || c.Activity.Retention < 0 {
		return invalid("activity durations must not be negative")
	}

	if c.Web.Enabled && !validPort(c.Web.Port) {
		return invalid("web.port must be between 1 and 65535")
	}
	if c.Metrics.Enabled {
		if !validPort(c.Metrics.Port) {
			return invalid("metrics.port must be between 1 and 65535")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path must start with /")
		}
	}
	return nil
}

func (c *Config) enabled(t reflectors.NetworkType) bool {
	switch t {
	case reflectors.TypeYSF:
		return c.YSF.Enabled
	case reflectors.TypeFCS:
		return c.FCS.Enabled
	case reflectors.TypeDMR:
		return c.DMR.Enabled
	case reflectors.TypeNXDN:
		return c.NXDN.Enabled
	case reflectors.TypeP25:
		return c.P25.Enabled
	}
	return false
}

// Callsign returns the gateway callsign, trimmed and upper-cased
func (c *Config) Callsign() string {
	return strings.ToUpper(strings.TrimSpace(c.General.Callsign))
}

// StartupType is the network linked at start
func (c *Config) StartupType() reflectors.NetworkType {
	t, _ := reflectors.ParseNetworkType(c.Network.TypeStartup)
	return t
}

// StartupIDs returns the per-network startup destinations that are set.
// They seed the destination each network selector relinks to.
func (c *Config) StartupIDs() map[reflectors.NetworkType]int {
	ids := make(map[reflectors.NetworkType]int)
	add := func(t reflectors.NetworkType, id int) {
		if c.enabled(t) && id > 0 {
			ids[t] = id
		}
	}
	add(reflectors.TypeYSF, c.YSF.Startup)
	add(reflectors.TypeFCS, c.FCS.Startup)
	add(reflectors.TypeDMR, c.DMR.Startup)
	add(reflectors.TypeNXDN, c.NXDN.Startup)
	add(reflectors.TypeP25, c.P25.Startup)
	return ids
}
