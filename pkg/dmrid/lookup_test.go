package dmrid

import (
	"path/filepath"
	"testing"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
)

func newTestLookup(t *testing.T) *Lookup {
	t.Helper()
	log := logger.New(logger.Config{Level: "error"})
	db, err := database.NewDB(database.Config{Path: filepath.Join(t.TempDir(), "ids.db")}, log)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	users := []database.DMRUser{
		{RadioID: 3120001, Callsign: "KB3EFE", FirstName: "Ann", LastName: "Smith"},
		{RadioID: 3120002, Callsign: "N0CALL"},
	}
	if err := db.Users().UpsertBatch(users, 10); err != nil {
		t.Fatal(err)
	}
	return NewLookup(db.Users(), 0, log)
}

func TestBaseCallsign(t *testing.T) {
	tests := map[string]string{
		"KB3EFE":     "KB3EFE",
		"kb3efe-n  ": "KB3EFE",
		"KB3EFE/M":   "KB3EFE",
		"   ":        "",
		"-ABC":       "",
	}
	for in, want := range tests {
		if got := BaseCallsign(in); got != want {
			t.Errorf("BaseCallsign(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookup_FindID(t *testing.T) {
	l := newTestLookup(t)
	if id := l.FindID("KB3EFE-7   "); id != 3120001 {
		t.Errorf("FindID = %d", id)
	}
	if id := l.FindID("NOBODY"); id != 0 {
		t.Errorf("unknown callsign resolved to %d", id)
	}
	if id := l.FindID("          "); id != 0 {
		t.Errorf("blank callsign resolved to %d", id)
	}
}

func TestLookup_FindCallsign(t *testing.T) {
	l := newTestLookup(t)
	tests := map[uint32]string{
		ParrotID:        "PARROT",
		LocalID:         "LOCAL",
		DefaultUnlinkID: "UNLINK",
		3120002:         "N0CALL",
		1234567:         "1234567",
	}
	for id, want := range tests {
		if got := l.FindCallsign(id); got != want {
			t.Errorf("FindCallsign(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestLookup_CustomUnlinkID(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	l := NewLookup(newTestLookup(t).store, 5000, log)
	if l.FindCallsign(5000) != "UNLINK" {
		t.Error("custom unlink ID not named")
	}
}

func TestLookup_FindNameAndExists(t *testing.T) {
	l := newTestLookup(t)
	if name := l.FindName(3120001); name != "Ann Smith" {
		t.Errorf("FindName = %q", name)
	}
	if name := l.FindName(3120002); name != "Unknown" {
		t.Errorf("nameless user = %q", name)
	}
	if !l.Exists(3120002) || l.Exists(42) || l.Exists(0) {
		t.Error("Exists mismatch")
	}
}
