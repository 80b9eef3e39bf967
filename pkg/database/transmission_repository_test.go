package database

import (
	"testing"
	"time"
)

func TestTransmissionRepository_RecentAndPrune(t *testing.T) {
	repo := openTestDB(t).Transmissions()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, call := range []string{"N1XYZ", "G4ABC", "N1XYZ"} {
		tx := &Transmission{
			Callsign:  call,
			Direction: "to_network",
			Network:   "YSF",
			DstID:     12345,
			Duration:  2.5,
			StartTime: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Create(tx); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if !tx.EndTime.Equal(tx.StartTime) {
			t.Errorf("EndTime not defaulted: %v", tx.EndTime)
		}
	}

	recent, err := repo.GetRecent(2)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) != 2 || !recent[0].StartTime.After(recent[1].StartTime) {
		t.Fatalf("expected 2 records newest first, got %+v", recent)
	}

	mine, err := repo.GetByCallsign("N1XYZ", 10)
	if err != nil {
		t.Fatalf("GetByCallsign: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 records for N1XYZ, got %d", len(mine))
	}

	n, err := repo.DeleteOlderThan(base.Add(90 * time.Minute))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	left, _ := repo.GetRecent(10)
	if len(left) != 1 || left[0].Callsign != "N1XYZ" {
		t.Errorf("unexpected remaining records %+v", left)
	}
}
