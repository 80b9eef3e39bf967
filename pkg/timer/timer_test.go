package timer

import (
	"testing"
	"time"
)

func TestTimer_ExpiresAfterClock(t *testing.T) {
	tm := New(100 * time.Millisecond)
	if tm.IsRunning() {
		t.Fatal("new timer should be stopped")
	}

	tm.Start()
	tm.Clock(60)
	if tm.HasExpired() {
		t.Fatal("timer expired too early")
	}
	if got := tm.Remaining(); got != 40*time.Millisecond {
		t.Errorf("Remaining = %v, want 40ms", got)
	}
	tm.Clock(40)
	if !tm.HasExpired() {
		t.Fatal("timer should have expired at 100ms")
	}
}

func TestTimer_StoppedNeverExpires(t *testing.T) {
	tm := New(10 * time.Millisecond)
	tm.Clock(1000)
	if tm.HasExpired() {
		t.Fatal("stopped timer must not expire")
	}

	tm.Start()
	tm.Clock(20)
	tm.Stop()
	if tm.HasExpired() {
		t.Fatal("Stop should clear expiry")
	}
}

func TestTimer_ZeroTimeoutDoesNotStart(t *testing.T) {
	var tm Timer
	tm.Start()
	if tm.IsRunning() {
		t.Fatal("zero timeout timer should stay stopped")
	}
}

func TestTimer_StartWithResets(t *testing.T) {
	tm := New(time.Second)
	tm.Start()
	tm.Clock(900)
	tm.StartWith(1500 * time.Millisecond)
	tm.Clock(900)
	if tm.HasExpired() {
		t.Fatal("restart should reset elapsed time")
	}
	if tm.Timeout() != 1500*time.Millisecond {
		t.Errorf("Timeout = %v", tm.Timeout())
	}
}
