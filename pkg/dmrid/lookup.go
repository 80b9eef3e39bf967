// Package dmrid resolves DMR radio IDs to callsigns and back using the
// RadioID user table.
package dmrid

import (
	"strconv"
	"strings"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
)

// Well known network IDs that never appear in the user table
const (
	ParrotID = 9990
	LocalID  = 9
	// DefaultUnlinkID is the BrandMeister disconnect target
	DefaultUnlinkID = 4000
)

// UserStore is the part of the user repository the lookup needs
type UserStore interface {
	GetByRadioID(radioID uint32) (*database.DMRUser, error)
	GetByCallsign(callsign string) (*database.DMRUser, error)
}

// Lookup maps callsigns to DMR IDs and DMR IDs to display callsigns
type Lookup struct {
	store    UserStore
	unlinkID uint32
	logger   *logger.Logger
}

// NewLookup creates a lookup. unlinkID names the ID shown as UNLINK; zero
// selects DefaultUnlinkID.
func NewLookup(store UserStore, unlinkID uint32, log *logger.Logger) *Lookup {
	if unlinkID == 0 {
		unlinkID = DefaultUnlinkID
	}
	return &Lookup{
		store:    store,
		unlinkID: unlinkID,
		logger:   log.WithComponent("dmrid"),
	}
}

// FindID returns the DMR ID registered to a YSF callsign, 0 if unknown.
// Suffixes after '-' or '/' are ignored.
func (l *Lookup) FindID(callsign string) uint32 {
	cs := BaseCallsign(callsign)
	if cs == "" {
		return 0
	}

	user, err := l.store.GetByCallsign(cs)
	if err != nil || user == nil {
		l.logger.Debug("No DMR ID for callsign", logger.String("callsign", cs))
		return 0
	}
	l.logger.Debug("DMR ID found",
		logger.String("callsign", cs),
		logger.Uint32("dmr_id", user.RadioID))
	return user.RadioID
}

// FindCallsign returns the callsign shown for a source ID. The parrot, local
// and unlink IDs get fixed names; unknown IDs are shown as the number.
func (l *Lookup) FindCallsign(dmrID uint32) string {
	switch dmrID {
	case ParrotID:
		return "PARROT"
	case LocalID:
		return "LOCAL"
	case l.unlinkID:
		return "UNLINK"
	case 0:
		return ""
	}

	user, err := l.store.GetByRadioID(dmrID)
	if err != nil || user == nil || user.Callsign == "" {
		return strconv.FormatUint(uint64(dmrID), 10)
	}
	return user.Callsign
}

// FindName returns the operator name of a DMR ID, "Unknown" if there is none
func (l *Lookup) FindName(dmrID uint32) string {
	if dmrID == 0 {
		return "Unknown"
	}
	user, err := l.store.GetByRadioID(dmrID)
	if err != nil || user == nil {
		return "Unknown"
	}
	if name := user.FullName(); name != "" {
		return name
	}
	return "Unknown"
}

// Exists reports whether a DMR ID is in the user table
func (l *Lookup) Exists(dmrID uint32) bool {
	if dmrID == 0 {
		return false
	}
	user, err := l.store.GetByRadioID(dmrID)
	return err == nil && user != nil
}

// BaseCallsign trims padding, upper-cases and strips a '-' or '/' suffix:
//   - "kb3efe-n  " -> "KB3EFE"
//   - "KB3EFE/M" -> "KB3EFE"
func BaseCallsign(cs string) string {
	cs = strings.ToUpper(strings.TrimSpace(cs))
	if idx := strings.IndexAny(cs, "-/"); idx != -1 {
		cs = strings.TrimSpace(cs[:idx])
	}
	return cs
}
