package tracker

import (
	"testing"
	"time"
)

var accBase = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return accBase.Add(time.Duration(seconds * float64(time.Second)))
}

func TestAccumulatorStartStop(t *testing.T) {
	var acc Accumulator

	acc.Start(at(0), true)

	if !acc.Enabled() {
		t.Fatal("expected accumulator to be enabled after Start")
	}

	total := acc.Stop(at(10))
	if total != 10 {
		t.Fatalf("expected total of 10s, got %v", total)
	}

	if acc.Enabled() {
		t.Fatal("expected accumulator to be disabled after Stop")
	}
}

func TestAccumulatorCarriesOverAfterStop(t *testing.T) {
	var acc Accumulator

	acc.Start(at(0), true)
	acc.Stop(at(5))

	// restarting mid-session resumes from the last stop total
	acc.Start(at(20), true)

	total := acc.Stop(at(23))
	if total != 8 {
		t.Fatalf("expected carried-over total of 8s, got %v", total)
	}
}

func TestAccumulatorStartWithoutAudio(t *testing.T) {
	var acc Accumulator

	acc.Start(at(0), false)

	if got := acc.SnapshotTotal(at(30)); got != 0 {
		t.Fatalf("expected no accumulation without audio, got %v", got)
	}
}

func TestNoteAudioPresenceIdempotent(t *testing.T) {
	var acc Accumulator

	acc.Start(at(0), false)

	acc.NoteAudioPresence(at(10), true)
	// a repeated audible poll must not reset the open interval
	acc.NoteAudioPresence(at(12), true)

	flushed := acc.NoteAudioPresence(at(15), false)
	if !flushed {
		t.Fatal("expected flush when audio stops")
	}

	if got := acc.SnapshotTotal(at(15)); got != 5 {
		t.Fatalf("expected total of 5s, got %v", got)
	}

	// repeated silent polls are no-ops
	if acc.NoteAudioPresence(at(16), false) {
		t.Fatal("expected no flush on repeated silent poll")
	}
}

func TestSnapshotTotalIsNonDestructive(t *testing.T) {
	var acc Accumulator

	acc.Start(at(0), true)

	if got := acc.SnapshotTotal(at(4)); got != 4 {
		t.Fatalf("expected snapshot of 4s, got %v", got)
	}

	// the interval must still be open and accumulating
	if got := acc.SnapshotTotal(at(6)); got != 6 {
		t.Fatalf("expected snapshot of 6s, got %v", got)
	}
}

func TestPauseKeepsTrackingEnabled(t *testing.T) {
	var acc Accumulator

	acc.Start(at(0), true)
	acc.Pause(at(7))

	if !acc.Enabled() {
		t.Fatal("expected accumulator to remain enabled after Pause")
	}

	if got := acc.SnapshotTotal(at(20)); got != 7 {
		t.Fatalf("expected paused total of 7s, got %v", got)
	}
}

func TestResetForNewSession(t *testing.T) {
	var acc Accumulator

	acc.Start(at(0), true)
	acc.Stop(at(9))

	acc.ResetForNewSession()

	acc.Start(at(10), false)

	if got := acc.SnapshotTotal(at(20)); got != 0 {
		t.Fatalf("expected zero total after reset, got %v", got)
	}
}
