package activity

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/gateway"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
)

type memStore struct {
	mu      sync.Mutex
	records []database.Transmission
	pruned  []time.Time
}

func (m *memStore) Create(tx *database.Transmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *tx)
	return nil
}

func (m *memStore) DeleteOlderThan(before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, before)
	return 0, nil
}

func (m *memStore) saved() []database.Transmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.Transmission(nil), m.records...)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func newTestLog(store Store, cfg Config) (*Logger, *clock) {
	c := &clock{t: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)}
	l := New(store, cfg, testLogger())
	l.now = c.now
	return l, c
}

// drain runs the writer until the queue is flushed
func drain(l *Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)
}

func TestLogger_RecordsTransmission(t *testing.T) {
	store := &memStore{}
	l, c := newTestLog(store, Config{})

	l.LinkChanged(gateway.Status{Network: "YSF", DstID: 12345, Name: "ALPHA           "})
	l.Transmission(gateway.ToNetwork, "N1XYZ     ", true)
	for i := 0; i < 10; i++ {
		c.advance(100 * time.Millisecond)
		l.FrameRelayed(gateway.ToNetwork, reflectors.TypeYSF)
	}
	l.Transmission(gateway.ToNetwork, "N1XYZ", false)
	drain(l)

	recs := store.saved()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Callsign != "N1XYZ" || r.Network != "YSF" || r.DstID != 12345 || r.DstName != "ALPHA" {
		t.Errorf("unexpected record %+v", r)
	}
	if r.Direction != "to_network" || r.Frames != 10 {
		t.Errorf("direction %q frames %d", r.Direction, r.Frames)
	}
	if r.Duration != 1.0 {
		t.Errorf("duration = %v", r.Duration)
	}
}

func TestLogger_SkipsShortKeyUps(t *testing.T) {
	store := &memStore{}
	l, c := newTestLog(store, Config{})

	l.Transmission(gateway.ToRepeater, "G4ABC", true)
	c.advance(200 * time.Millisecond)
	l.Transmission(gateway.ToRepeater, "G4ABC", false)
	drain(l)

	if n := len(store.saved()); n != 0 {
		t.Errorf("expected short transmission skipped, got %d records", n)
	}
}

func TestLogger_DirectionsAreIndependent(t *testing.T) {
	store := &memStore{}
	l, c := newTestLog(store, Config{})

	l.Transmission(gateway.ToNetwork, "N1XYZ", true)
	l.Transmission(gateway.ToRepeater, "G4ABC", true)
	if l.ActiveCount() != 2 {
		t.Fatalf("expected 2 active streams, got %d", l.ActiveCount())
	}
	c.advance(time.Second)
	l.Transmission(gateway.ToRepeater, "G4ABC", false)
	drain(l)

	recs := store.saved()
	if len(recs) != 1 || recs[0].Callsign != "G4ABC" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if l.ActiveCount() != 1 {
		t.Errorf("network stream should still be active")
	}
}

func TestLogger_StaleStreamEndsAtLastFrame(t *testing.T) {
	store := &memStore{}
	l, c := newTestLog(store, Config{StaleAfter: 2 * time.Second})

	l.Transmission(gateway.ToRepeater, "G4ABC", true)
	c.advance(time.Second)
	l.FrameRelayed(gateway.ToRepeater, reflectors.TypeFCS)
	c.advance(time.Second)
	l.CleanupStaleStreams()
	if l.ActiveCount() != 1 {
		t.Fatal("stream ended before going stale")
	}

	c.advance(5 * time.Second)
	l.CleanupStaleStreams()
	drain(l)

	recs := store.saved()
	if len(recs) != 1 {
		t.Fatalf("expected stale stream recorded, got %d", len(recs))
	}
	if recs[0].Duration != 1.0 {
		t.Errorf("stale stream should end at its last frame, duration %v", recs[0].Duration)
	}
}

func TestLogger_PrunesWithRetention(t *testing.T) {
	store := &memStore{}
	l, c := newTestLog(store, Config{Retention: 24 * time.Hour})
	drain(l)

	if len(store.pruned) != 1 || !store.pruned[0].Equal(c.t.Add(-24*time.Hour)) {
		t.Errorf("unexpected prune calls %v", store.pruned)
	}
}

func TestLogger_WithDatabase(t *testing.T) {
	db, err := database.NewDB(database.Config{Path: filepath.Join(t.TempDir(), "gw.db")}, testLogger())
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := db.Transmissions()
	l, c := newTestLog(repo, Config{})
	l.Transmission(gateway.ToNetwork, "N1XYZ", true)
	c.advance(3 * time.Second)
	l.Transmission(gateway.ToNetwork, "N1XYZ", false)
	drain(l)

	recent, err := repo.GetRecent(5)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != 1 || recent[0].Duration != 3 {
		t.Errorf("unexpected records %+v", recent)
	}
}
