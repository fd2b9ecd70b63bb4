package tracker

import "time"

// Accumulator tracks cumulative audio-active seconds across
// start/pause/resume/stop transitions, independent of session
// boundaries. All instants are supplied by the caller, and the caller
// is responsible for serializing access.
type Accumulator struct {
	enabled       bool
	total         float64
	lastStopTotal float64
	intervalStart time.Time // zero while no interval is open
}

// Enabled reports whether audio tracking is currently on.
func (a *Accumulator) Enabled() bool {
	return a.enabled
}

// Start enables audio tracking. The running total resumes from the
// value carried over from the last Stop, so stopping and restarting
// audio tracking mid-session continues counting instead of restarting.
// An interval is opened only if audio is audible right now.
func (a *Accumulator) Start(now time.Time, audible bool) {
	a.enabled = true
	a.total = a.lastStopTotal
	a.intervalStart = time.Time{}

	if audible {
		a.intervalStart = now
	}
}

// Stop flushes any open interval, disables audio tracking, and returns
// the final total for the caller to attach to the current session.
func (a *Accumulator) Stop(now time.Time) float64 {
	a.flush(now)

	a.enabled = false
	a.lastStopTotal = a.total

	return a.total
}

// NoteAudioPresence records the result of an audio poll. It opens an
// interval on the first audible poll and flushes it on the first silent
// one; repeated identical calls are no-ops. It reports whether a flush
// occurred, which is the caller's cue to persist the new total.
func (a *Accumulator) NoteAudioPresence(now time.Time, audible bool) bool {
	if !a.enabled {
		return false
	}

	if audible {
		if a.intervalStart.IsZero() {
			a.intervalStart = now
		}

		return false
	}

	if a.intervalStart.IsZero() {
		return false
	}

	a.flush(now)

	return true
}

// SnapshotTotal returns the running total including any open interval's
// elapsed time, without closing the interval.
func (a *Accumulator) SnapshotTotal(now time.Time) float64 {
	t := a.total

	if !a.intervalStart.IsZero() {
		t += now.Sub(a.intervalStart).Seconds()
	}

	return t
}

// Pause flushes any open interval into the running total but leaves the
// enabled flag alone so a subsequent resume continues counting.
func (a *Accumulator) Pause(now time.Time) {
	a.flush(now)
}

// ResetTotal zeroes the running total in preparation for the next
// session, without touching the enabled flag.
func (a *Accumulator) ResetTotal() {
	a.total = 0
	a.lastStopTotal = 0
}

// ResetForNewSession zeroes all accumulated state. Called exactly once,
// at the moment a brand-new session record is created.
func (a *Accumulator) ResetForNewSession() {
	a.total = 0
	a.lastStopTotal = 0
	a.intervalStart = time.Time{}
}

// SetCarryOver seeds the stop total restored from the store on startup.
func (a *Accumulator) SetCarryOver(total float64) {
	a.lastStopTotal = total
}

func (a *Accumulator) flush(now time.Time) {
	if a.intervalStart.IsZero() {
		return
	}

	a.total += now.Sub(a.intervalStart).Seconds()
	a.intervalStart = time.Time{}
}
