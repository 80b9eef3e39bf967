package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/config"
	"github.com/dbehnke/ysf-gateway/pkg/gateway"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/network"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
	"github.com/dbehnke/ysf-gateway/pkg/wiresx"
	"github.com/dbehnke/ysf-gateway/pkg/ysf"
)

const softwareID = "YSFGateway"

func resolve(host string, port int) (*net.UDPAddr, error) {
	if host == "" || port == 0 {
		return nil, nil
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s:%d: %w", host, port, err)
	}
	return addr, nil
}

// loadDirectories reads the reflector list of every enabled network. An
// empty list for the startup network is fatal; any other list that fails to
// load stays empty until a later reload fills it.
func loadDirectories(cfg *config.Config, log *logger.Logger) (map[reflectors.NetworkType]*reflectors.Directory, error) {
	startType := cfg.StartupType()
	reload := time.Duration(cfg.Network.ReloadTime) * time.Minute
	files := map[reflectors.NetworkType]string{}
	if cfg.YSF.Enabled {
		files[reflectors.TypeYSF] = cfg.YSF.Hosts
	}
	if cfg.FCS.Enabled {
		files[reflectors.TypeFCS] = cfg.FCS.Rooms
	}
	if cfg.DMR.Enabled {
		files[reflectors.TypeDMR] = cfg.DMR.File
	}
	if cfg.NXDN.Enabled {
		files[reflectors.TypeNXDN] = cfg.NXDN.File
	}
	if cfg.P25.Enabled {
		files[reflectors.TypeP25] = cfg.P25.File
	}

	dirs := make(map[reflectors.NetworkType]*reflectors.Directory, len(files))
	for t, path := range files {
		d := reflectors.New(reflectors.Config{
			Path:       path,
			Type:       t,
			ReloadTime: reload,
			MakeUpper:  cfg.General.WiresXMakeUpper,
		}, log)
		if t == reflectors.TypeYSF {
			parrot, err := resolve(cfg.YSF.ParrotAddress, cfg.YSF.ParrotPort)
			if err != nil {
				log.Warn("Parrot disabled", logger.Error(err))
			}
			if parrot != nil {
				d.SetParrot(parrot)
			}
		}
		if err := d.Load(); err != nil {
			if t == startType {
				return nil, fmt.Errorf("startup network %s: %w", t, err)
			}
			log.Warn("Reflector list empty",
				logger.String("network", t.String()),
				logger.Error(err))
		} else {
			d.Reload()
		}
		dirs[t] = d
	}
	return dirs, nil
}

// buildNetworks creates the transports of the enabled networks. Disabled
// networks leave their interface fields nil.
func buildNetworks(cfg *config.Config, dirs map[reflectors.NetworkType]*reflectors.Directory, log *logger.Logger) (gateway.Networks, error) {
	var nets gateway.Networks
	callsign := cfg.Callsign()

	rpt, err := resolve(cfg.General.RptAddress, cfg.General.RptPort)
	if err != nil {
		return nets, err
	}
	nets.Repeater = ysf.NewNetwork(ysf.NetworkConfig{
		Callsign:    callsign,
		LocalAddr:   cfg.General.MyAddress,
		LocalPort:   cfg.General.MyPort,
		Destination: rpt,
		Debug:       cfg.Network.Debug,
	}, log.WithComponent("repeater"))

	if cfg.YSF.Enabled {
		nets.YSF = ysf.NewNetwork(ysf.NetworkConfig{
			Callsign:  callsign,
			LocalPort: cfg.YSF.Port,
			Poll:      true,
			Debug:     cfg.Network.Debug,
		}, log.WithComponent("ysf"))

		if cfg.NXDN.Enabled {
			if nets.NXDNBridge, err = resolve(cfg.YSF.YSF2NXDNAddress, cfg.YSF.YSF2NXDNPort); err != nil {
				return nets, err
			}
		}
		if cfg.P25.Enabled {
			if nets.P25Bridge, err = resolve(cfg.YSF.YSF2P25Address, cfg.YSF.YSF2P25Port); err != nil {
				return nets, err
			}
		}
	}

	if cfg.FCS.Enabled {
		nets.FCS = ysf.NewFCSNetwork(ysf.FCSConfig{
			Callsign:  callsign,
			LocalPort: cfg.FCS.Port,
			Debug:     cfg.Network.Debug,
		}, log.WithComponent("fcs"))
	}

	if cfg.DMR.Enabled {
		nets.DMR = network.NewClient(network.ClientConfig{
			Address:     cfg.DMR.Address,
			Port:        cfg.DMR.Port,
			LocalPort:   cfg.DMR.Local,
			ID:          cfg.General.ID,
			Password:    cfg.DMR.Password,
			Options:     cfg.DMR.Options,
			Callsign:    callsign,
			RXFreq:      uint(cfg.Info.RXFrequency),
			TXFreq:      uint(cfg.Info.TXFrequency),
			TXPower:     cfg.Info.Power,
			ColorCode:   cfg.DMR.ColorCode,
			Latitude:    cfg.Info.Latitude,
			Longitude:   cfg.Info.Longitude,
			Height:      cfg.Info.Height,
			Location:    cfg.Info.Location,
			Description: cfg.Info.Description,
			URL:         cfg.Info.URL,
			SoftwareID:  softwareID,
			PackageID:   softwareID + "-" + version,
			Debug:       cfg.Network.Debug,
		}, log)
	}

	return nets, nil
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	startType := cfg.StartupType()
	ids := cfg.StartupIDs()

	startID := cfg.Network.Startup
	if startID == "" && ids[startType] > 0 {
		startID = strconv.Itoa(ids[startType])
	}

	var bridge reflectors.NetworkType
	switch {
	case cfg.NXDN.Enabled:
		bridge = reflectors.TypeNXDN
	case cfg.P25.Enabled:
		bridge = reflectors.TypeP25
	}

	name := cfg.Info.Name
	if name == "" {
		name = cfg.Callsign()
	}

	return gateway.Config{
		Callsign: cfg.Callsign(),
		WiresX: wiresx.Config{
			Callsign:    cfg.Callsign(),
			Name:        name,
			Location:    cfg.Info.Location,
			TXFrequency: cfg.Info.TXFrequency,
			RXFrequency: cfg.Info.RXFrequency,
		},
		StartupType:       startType,
		StartupID:         startID,
		LastTG:            ids,
		InactivityTimeout: time.Duration(cfg.Network.InactivityTimeout) * time.Minute,
		Revert:            cfg.Network.Revert,
		TGChangeTimeout:   cfg.Network.TGChangeTimeout,
		BridgeType:        bridge,
		NoChange:          cfg.Network.NoChange,
		DGID:              byte(cfg.YSF.DGID),
		DMR: gateway.DMRConfig{
			ID:            cfg.General.ID,
			ColorCode:     byte(cfg.DMR.ColorCode),
			EnableUnlink:  cfg.DMR.EnableUnlink,
			UnlinkID:      cfg.DMR.IDUnlink,
			UnlinkPrivate: cfg.DMR.PCUnlink,
		},
	}
}
