// Package reflectors holds the directory of known remote rooms/talkgroups
// for one network type. Entries are loaded into a pending list and swapped
// into the active list in one step, so lookups never observe a partial load.
package reflectors

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/timer"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// NameLength is the fixed width of a reflector name
	NameLength = 16
	// DescLength is the fixed width of a reflector description
	DescLength = 14

	// ParrotID is the synthetic echo entry appended to the YSF directory
	ParrotID = "1"
	// ParrotName is the padded name of the synthetic echo entry
	ParrotName = "ZZ PARROT       "
	parrotDesc = "PARROT        "
)

// ErrEmpty is returned when a load produces no entries
var ErrEmpty = errors.New("reflector list is empty")

// NetworkType identifies the network family a directory belongs to
type NetworkType int

const (
	TypeNone NetworkType = iota
	TypeYSF
	TypeFCS
	TypeDMR
	TypeNXDN
	TypeP25
)

func (t NetworkType) String() string {
	switch t {
	case TypeYSF:
		return "YSF"
	case TypeFCS:
		return "FCS"
	case TypeDMR:
		return "DMR"
	case TypeNXDN:
		return "NXDN"
	case TypeP25:
		return "P25"
	default:
		return "NONE"
	}
}

// ParseNetworkType maps a configuration string to a NetworkType
func ParseNetworkType(s string) (NetworkType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YSF":
		return TypeYSF, nil
	case "FCS":
		return TypeFCS, nil
	case "DMR":
		return TypeDMR, nil
	case "NXDN":
		return TypeNXDN, nil
	case "P25":
		return TypeP25, nil
	case "", "NONE":
		return TypeNone, nil
	}
	return TypeNone, fmt.Errorf("unknown network type %q", s)
}

// DMR routing options carried in the DMR directory
const (
	OptionGroup       = 0
	OptionGroupPTTPC  = 1
	OptionPrivateCall = 2
)

// Reflector is one directory entry
type Reflector struct {
	ID          string
	Name        string // NameLength characters, space padded
	Description string // DescLength characters, space padded
	Count       string // 3 digit member count
	Addr        *net.UDPAddr
	Type        NetworkType
	Option      int
}

// TrimmedName returns the name without its padding
func (r *Reflector) TrimmedName() string {
	return strings.TrimRight(r.Name, " ")
}

// Config configures a Directory
type Config struct {
	Path       string
	Type       NetworkType
	ReloadTime time.Duration // zero disables automatic reload
	MakeUpper  bool
}

// Directory is the reflector list for one network type
type Directory struct {
	cfg     Config
	log     *logger.Logger
	timer   *timer.Timer
	parrot  *net.UDPAddr
	pending []*Reflector
	current atomic.Pointer[[]*Reflector]

	// resolve turns a host and port from a YSF hosts file into an address
	resolve func(host string, port int) (*net.UDPAddr, error)
}

// New creates an empty directory; call Load then Reload to populate it.
func New(cfg Config, log *logger.Logger) *Directory {
	d := &Directory{
		cfg:     cfg,
		log:     log.WithComponent("reflectors." + strings.ToLower(cfg.Type.String())),
		timer:   timer.New(cfg.ReloadTime),
		resolve: resolveUDP,
	}
	empty := make([]*Reflector, 0)
	d.current.Store(&empty)
	if cfg.ReloadTime > 0 {
		d.timer.Start()
	}
	return d
}

func resolveUDP(host string, port int) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
}

// Type returns the network type served by the directory
func (d *Directory) Type() NetworkType {
	return d.cfg.Type
}

// SetParrot makes Load append the synthetic echo entry pointing at addr
func (d *Directory) SetParrot(addr *net.UDPAddr) {
	d.parrot = addr
}

// Load reads the backing file into the pending list. The active list is not
// touched; Reload publishes the result.
func (d *Directory) Load() error {
	d.pending = nil

	entries, err := d.readFile()
	if err != nil {
		d.log.Warn("Cannot read reflector file", logger.String("path", d.cfg.Path), logger.Error(err))
	}
	d.log.Info("Loaded reflectors", logger.Int("count", len(entries)))

	if d.parrot != nil {
		entries = append(entries, &Reflector{
			ID:          ParrotID,
			Name:        ParrotName,
			Description: parrotDesc,
			Count:       "000",
			Addr:        d.parrot,
			Type:        TypeYSF,
		})
	}

	if len(entries) == 0 {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEmpty, err)
		}
		return ErrEmpty
	}

	if d.cfg.MakeUpper {
		upper := cases.Upper(language.Und)
		for _, r := range entries {
			r.Name = pad(upper.String(r.Name), NameLength)
			r.Description = pad(upper.String(r.Description), DescLength)
		}
	}

	sortByName(entries)
	d.pending = entries
	return nil
}

// Reload swaps the pending list in as the active list. It fails, leaving the
// active list unchanged, when nothing is pending.
func (d *Directory) Reload() bool {
	if len(d.pending) == 0 {
		return false
	}
	next := d.pending
	d.pending = nil
	d.current.Store(&next)
	return true
}

// Current returns the active list. Callers must not modify it.
func (d *Directory) Current() []*Reflector {
	return *d.current.Load()
}

// Len returns the number of active entries
func (d *Directory) Len() int {
	return len(d.Current())
}

// FindByID returns the active entry with the given id, or nil
func (d *Directory) FindByID(id string) *Reflector {
	for _, r := range d.Current() {
		if r.ID == id {
			return r
		}
	}
	d.log.Info("Reflector id not found", logger.String("id", id))
	return nil
}

// FindByName returns the active entry whose padded name equals name, or nil
func (d *Directory) FindByName(name string) *Reflector {
	full := name
	if d.cfg.MakeUpper {
		full = cases.Upper(language.Und).String(full)
	}
	full = pad(full, NameLength)

	for _, r := range d.Current() {
		if r.Name == full {
			return r
		}
	}
	d.log.Info("Reflector name not found", logger.String("name", name))
	return nil
}

// Search returns the active entries whose folded name contains the folded,
// right-trimmed query anywhere. An empty query matches nothing.
func (d *Directory) Search(query string) []*Reflector {
	upper := cases.Upper(language.Und)
	q := upper.String(strings.TrimRight(query, " \t\r\n"))
	if q == "" {
		return nil
	}

	var found []*Reflector
	for _, r := range d.Current() {
		name := upper.String(strings.TrimRight(r.Name, " \t\r\n"))
		if strings.Contains(name, q) {
			found = append(found, r)
		}
	}
	sortByName(found)
	return found
}

// Clock advances the reload timer; on expiry the file is re-read and, when
// it produced entries, published.
func (d *Directory) Clock(ms uint) {
	d.timer.Clock(ms)
	if !d.timer.HasExpired() {
		return
	}
	if err := d.Load(); err != nil {
		d.log.Warn("Reload skipped", logger.Error(err))
	} else {
		d.Reload()
	}
	d.timer.Start()
}

func (d *Directory) readFile() ([]*Reflector, error) {
	if d.cfg.Path == "" {
		return nil, nil
	}
	f, err := os.Open(d.cfg.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []*Reflector
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		if r := d.parseLine(line); r != nil {
			entries = append(entries, r)
		}
	}
	return entries, scanner.Err()
}

// parseLine splits on ';' collapsing empty fields, the way the host files
// have always been tokenized.
func (d *Directory) parseLine(line string) *Reflector {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ';' || r == '\r' || r == '\n'
	})

	switch d.cfg.Type {
	case TypeYSF:
		if len(fields) < 6 {
			return nil
		}
		port, _ := strconv.Atoi(fields[4])
		addr, err := d.resolve(fields[3], port)
		if err != nil {
			d.log.Debug("Cannot resolve reflector host", logger.String("host", fields[3]), logger.Error(err))
			return nil
		}
		return &Reflector{
			ID:          strconv.Itoa(atoi(fields[0])),
			Name:        pad(fields[1], NameLength),
			Description: pad(fields[2], DescLength),
			Count:       "000",
			Addr:        addr,
			Type:        TypeYSF,
		}
	case TypeFCS:
		if len(fields) < 3 || len(fields[0]) < 3 {
			return nil
		}
		return &Reflector{
			ID:          strconv.Itoa(atoi(fields[0][3:])),
			Name:        pad(fields[1], NameLength),
			Description: pad(fields[2], DescLength),
			Count:       "000",
			Type:        TypeFCS,
		}
	case TypeNXDN, TypeP25:
		if len(fields) < 3 {
			return nil
		}
		return &Reflector{
			ID:          fields[0],
			Name:        pad(fields[1], NameLength),
			Description: pad(fields[2], DescLength),
			Count:       "000",
			Type:        d.cfg.Type,
		}
	case TypeDMR:
		if len(fields) < 5 {
			return nil
		}
		return &Reflector{
			ID:          fields[0],
			Option:      atoi(fields[1]),
			Count:       fmt.Sprintf("%03d", atoi(fields[2])),
			Name:        pad(fields[3], NameLength),
			Description: pad(fields[4], DescLength),
			Type:        TypeDMR,
		}
	}
	return nil
}

func sortByName(list []*Reflector) {
	sort.SliceStable(list, func(i, j int) bool {
		return compareNames(list[i].Name, list[j].Name) < 0
	})
}

// compareNames compares the first NameLength bytes case-insensitively
func compareNames(a, b string) int {
	a, b = pad(a, NameLength), pad(b, NameLength)
	for i := 0; i < NameLength; i++ {
		if c := int(upperByte(a[i])) - int(upperByte(b[i])); c != 0 {
			return c
		}
	}
	return 0
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// pad right-pads s with spaces, or truncates it, to exactly n bytes
func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// atoi parses the leading decimal digits of s, returning 0 when there are none
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
