package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. YSFGW_GENERAL_CALLSIGN
const EnvPrefix = "YSFGW"

// Config represents the gateway configuration
type Config struct {
	General  GeneralConfig  `mapstructure:"general"`
	Info     InfoConfig     `mapstructure:"info"`
	Log      LogConfig      `mapstructure:"log"`
	Network  NetworkConfig  `mapstructure:"network"`
	YSF      YSFConfig      `mapstructure:"ysf"`
	FCS      FCSConfig      `mapstructure:"fcs"`
	DMR      DMRConfig      `mapstructure:"dmr"`
	NXDN     BridgeConfig   `mapstructure:"nxdn"`
	P25      BridgeConfig   `mapstructure:"p25"`
	Database DatabaseConfig `mapstructure:"database"`
	RadioID  RadioIDConfig  `mapstructure:"radioid"`
	Activity ActivityConfig `mapstructure:"activity"`
	Web      WebConfig      `mapstructure:"web"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// GeneralConfig identifies the gateway and its repeater link
type GeneralConfig struct {
	Callsign string `mapstructure:"callsign"`
	// ID is the DMR ID used for callsigns without one
	ID         uint32 `mapstructure:"id"`
	RptAddress string `mapstructure:"rpt_address"`
	RptPort    int    `mapstructure:"rpt_port"`
	MyAddress  string `mapstructure:"my_address"`
	MyPort     int    `mapstructure:"my_port"`
	// WiresXMakeUpper upper-cases directory names and searches
	WiresXMakeUpper bool `mapstructure:"wiresx_make_upper"`
}

// InfoConfig describes the station to Wires-X and the DMR master
type InfoConfig struct {
	RXFrequency uint32  `mapstructure:"rx_frequency"`
	TXFrequency uint32  `mapstructure:"tx_frequency"`
	Power       uint    `mapstructure:"power"`
	Latitude    float64 `mapstructure:"latitude"`
	Longitude   float64 `mapstructure:"longitude"`
	Height      int     `mapstructure:"height"`
	Name        string  `mapstructure:"name"`
	Location    string  `mapstructure:"location"`
	Description string  `mapstructure:"description"`
	URL         string  `mapstructure:"url"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File is appended to instead of stdout when set
	File string `mapstructure:"file"`
}

// NetworkConfig holds the link behaviour shared by every network
type NetworkConfig struct {
	// Startup is the destination linked at start, by ID or name
	Startup     string `mapstructure:"startup"`
	TypeStartup string `mapstructure:"type_startup"`
	// InactivityTimeout is in minutes; zero disables it
	InactivityTimeout int  `mapstructure:"inactivity_timeout"`
	Revert            bool `mapstructure:"revert"`
	// ReloadTime is in minutes; zero disables directory reloads
	ReloadTime      int           `mapstructure:"reload_time"`
	NoChange        bool          `mapstructure:"no_change"`
	TGChangeTimeout time.Duration `mapstructure:"tg_change_timeout"`
	Debug           bool          `mapstructure:"debug"`
}

// YSFConfig holds the YSF reflector network and its bridges
type YSFConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Startup int    `mapstructure:"startup"`
	DGID    int    `mapstructure:"dgid"`
	Port    int    `mapstructure:"port"`
	Hosts   string `mapstructure:"hosts"`

	ParrotAddress   string `mapstructure:"parrot_address"`
	ParrotPort      int    `mapstructure:"parrot_port"`
	YSF2NXDNAddress string `mapstructure:"ysf2nxdn_address"`
	YSF2NXDNPort    int    `mapstructure:"ysf2nxdn_port"`
	YSF2P25Address  string `mapstructure:"ysf2p25_address"`
	YSF2P25Port     int    `mapstructure:"ysf2p25_port"`
}

// FCSConfig holds the FCS room network
type FCSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Startup int    `mapstructure:"startup"`
	Rooms   string `mapstructure:"rooms"`
	Port    int    `mapstructure:"port"`
}

// DMRConfig holds the homebrew DMR master link
type DMRConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Startup   int    `mapstructure:"startup"`
	File      string `mapstructure:"file"`
	Address   string `mapstructure:"address"`
	Port      int    `mapstructure:"port"`
	Local     int    `mapstructure:"local"`
	Password  string `mapstructure:"password"`
	Options   string `mapstructure:"options"`
	ColorCode uint   `mapstructure:"color_code"`

	EnableUnlink bool   `mapstructure:"enable_unlink"`
	IDUnlink     uint32 `mapstructure:"id_unlink"`
	PCUnlink     bool   `mapstructure:"pc_unlink"`
}

// BridgeConfig holds a network reached through a YSF bridge (NXDN, P25)
type BridgeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Startup int    `mapstructure:"startup"`
	File    string `mapstructure:"file"`
}

// DatabaseConfig holds the sqlite database location
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RadioIDConfig controls the DMR user list download
type RadioIDConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
}

// ActivityConfig controls the last heard log
type ActivityConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MinDuration time.Duration `mapstructure:"min_duration"`
	// Retention is how long records are kept; zero keeps them forever
	Retention time.Duration `mapstructure:"retention"`
}

// WebConfig holds the status API configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("ysfgateway")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/ysf-gateway")
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// defaults and environment only
		} else if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %w", err)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.callsign", "")
	viper.SetDefault("general.id", 0)
	viper.SetDefault("general.rpt_address", "127.0.0.1")
	viper.SetDefault("general.rpt_port", 3200)
	viper.SetDefault("general.my_address", "127.0.0.1")
	viper.SetDefault("general.my_port", 4200)
	viper.SetDefault("general.wiresx_make_upper", true)

	viper.SetDefault("info.rx_frequency", 0)
	viper.SetDefault("info.tx_frequency", 0)
	viper.SetDefault("info.power", 1)
	viper.SetDefault("info.latitude", 0.0)
	viper.SetDefault("info.longitude", 0.0)
	viper.SetDefault("info.height", 0)
	viper.SetDefault("info.name", "")
	viper.SetDefault("info.location", "")
	viper.SetDefault("info.description", "")
	viper.SetDefault("info.url", "")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.file", "")

	viper.SetDefault("network.startup", "")
	viper.SetDefault("network.type_startup", "YSF")
	viper.SetDefault("network.inactivity_timeout", 0)
	viper.SetDefault("network.revert", false)
	viper.SetDefault("network.reload_time", 60)
	viper.SetDefault("network.no_change", false)
	viper.SetDefault("network.tg_change_timeout", "30s")
	viper.SetDefault("network.debug", false)

	viper.SetDefault("ysf.enabled", true)
	viper.SetDefault("ysf.startup", 0)
	viper.SetDefault("ysf.dgid", 0)
	viper.SetDefault("ysf.port", 42000)
	viper.SetDefault("ysf.hosts", "YSFHosts.txt")
	viper.SetDefault("ysf.parrot_address", "")
	viper.SetDefault("ysf.parrot_port", 42012)
	viper.SetDefault("ysf.ysf2nxdn_address", "")
	viper.SetDefault("ysf.ysf2nxdn_port", 42013)
	viper.SetDefault("ysf.ysf2p25_address", "")
	viper.SetDefault("ysf.ysf2p25_port", 42014)

	viper.SetDefault("fcs.enabled", false)
	viper.SetDefault("fcs.startup", 0)
	viper.SetDefault("fcs.rooms", "FCSRooms.txt")
	viper.SetDefault("fcs.port", 42001)

	viper.SetDefault("dmr.enabled", false)
	viper.SetDefault("dmr.startup", 0)
	viper.SetDefault("dmr.file", "TGList_BM.txt")
	viper.SetDefault("dmr.address", "")
	viper.SetDefault("dmr.port", 62031)
	viper.SetDefault("dmr.local", 0)
	viper.SetDefault("dmr.password", "")
	viper.SetDefault("dmr.options", "")
	viper.SetDefault("dmr.color_code", 1)
	viper.SetDefault("dmr.enable_unlink", true)
	viper.SetDefault("dmr.id_unlink", 4000)
	viper.SetDefault("dmr.pc_unlink", false)

	viper.SetDefault("nxdn.enabled", false)
	viper.SetDefault("nxdn.startup", 0)
	viper.SetDefault("nxdn.file", "TGList_NXDN.txt")
	viper.SetDefault("p25.enabled", false)
	viper.SetDefault("p25.startup", 0)
	viper.SetDefault("p25.file", "TGList_P25.txt")

	viper.SetDefault("database.path", "data/ysf-gateway.db")

	viper.SetDefault("radioid.enabled", true)
	viper.SetDefault("radioid.url", "https://radioid.net/static/users.csv")
	viper.SetDefault("radioid.interval", "24h")

	viper.SetDefault("activity.enabled", true)
	viper.SetDefault("activity.min_duration", "500ms")
	viper.SetDefault("activity.retention", "720h")

	viper.SetDefault("web.enabled", true)
	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8080)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.host", "0.0.0.0")
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")
}
