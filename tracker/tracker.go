// Package tracker implements the session lifecycle state machine that
// turns activity and audio signals into durable usage records
package tracker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ayoisaiah/tally/internal/record"
	"github.com/ayoisaiah/tally/internal/timeutil"
	"github.com/ayoisaiah/tally/platform"
	"github.com/ayoisaiah/tally/store"
)

// phase is the controller's coarse position in the session lifecycle.
type phase int

const (
	// phaseDisabled: tracking off, no open session.
	phaseDisabled phase = iota
	// phaseActive: tracking on, a session may be open.
	phaseActive
	// phaseLocked: the machine locked (or all displays went dark) and
	// the open session has been finalized. Guards against a duplicate
	// lock signal finalizing twice.
	phaseLocked
)

// Config adjusts tracker behaviour.
type Config struct {
	// IdleThreshold is how long without input the machine must be before
	// it counts as idle.
	IdleThreshold time.Duration
	// Clock overrides the time source. Defaults to time.Now.
	Clock func() time.Time
}

// Tracker owns the session lifecycle. Every exported method acquires
// the tracker's lock for the whole read-decide-persist transition, so
// the poller, the platform watcher, and daemon commands can all call in
// concurrently.
type Tracker struct {
	db       store.DB
	querier  platform.Querier
	notifier Notifier
	now      func() time.Time

	idleThreshold time.Duration

	mu                   sync.Mutex
	phase                phase
	trackingEnabled      bool
	audioTrackingEnabled bool
	current              *record.Record
	firstActiveAfterWake bool
	acc                  Accumulator
	pending              []pendingNotice
}

// pendingNotice is a finalized session awaiting delivery to the
// notifier once the lock is released.
type pendingNotice struct {
	rec      *record.Record
	duration string
}

// New creates a tracker. The querier may be a platform.NopQuerier and
// the notifier may be nil when completed-session delivery is unwanted.
func New(
	db store.DB,
	querier platform.Querier,
	notifier Notifier,
	cfg Config,
) *Tracker {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if querier == nil {
		querier = platform.NopQuerier{}
	}

	t := &Tracker{
		db:                   db,
		querier:              querier,
		notifier:             notifier,
		now:                  cfg.Clock,
		idleThreshold:        cfg.IdleThreshold,
		firstActiveAfterWake: true,
	}

	return t
}

// SetNotifier installs the completed-session notifier. The daemon
// server both receives commands from the tracker's owner and emits its
// events, so it is wired in after construction.
func (t *Tracker) SetNotifier(n Notifier) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.notifier = n
}

// Rehydrate restores the tracking configuration from the store and, if
// tracking was enabled, starts a fresh session. Open sessions never
// survive a restart by construction, so none is looked for.
func (t *Tracker) Rehydrate() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.db.GetTrackingState()
	if err != nil {
		return err
	}

	t.trackingEnabled = st.TrackingEnabled
	t.audioTrackingEnabled = st.AudioTrackingEnabled
	t.acc.SetCarryOver(st.AudioTotal)
	t.firstActiveAfterWake = true

	// open sessions do not survive a restart: drop whatever a previous
	// process left unfinished so the new session is never a duplicate
	records, err := t.db.GetRecords()
	if err != nil {
		return err
	}

	for i := range records {
		if !records[i].Open() {
			continue
		}

		err = t.db.DeleteRecord(records[i].StartTime)
		if err != nil {
			return err
		}
	}

	now := t.now()

	if t.trackingEnabled {
		t.phase = phaseActive

		err = t.openSession(now)
		if err != nil {
			return err
		}
	}

	if t.audioTrackingEnabled {
		t.acc.Start(now, t.audible())
	}

	return nil
}

// EnableTracking turns tracking on and opens a session if none is open.
func (t *Tracker) EnableTracking() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.trackingEnabled = true
	t.phase = phaseActive

	err := t.persistState()
	if err != nil {
		return err
	}

	if t.current != nil {
		return nil
	}

	return t.openSession(t.now())
}

// DisableTracking turns tracking off and finalizes any open session.
func (t *Tracker) DisableTracking() error {
	t.mu.Lock()
	defer t.deliverPending()

	t.trackingEnabled = false
	t.phase = phaseDisabled

	err := t.persistState()
	if err != nil {
		return err
	}

	// tracking is being turned off entirely, not merely interrupted, so
	// the wake guard and the accumulator's enabled flag stay untouched
	return t.finalizeSession(t.now())
}

// EnableAudioTracking starts accumulating audio-active time.
func (t *Tracker) EnableAudioTracking() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.audioTrackingEnabled = true
	t.acc.Start(t.now(), t.audible())

	return t.persistState()
}

// DisableAudioTracking stops the accumulator and writes its final total
// into the open session, if any.
func (t *Tracker) DisableAudioTracking() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.acc.Stop(t.now())
	t.audioTrackingEnabled = false

	if t.current != nil {
		t.current.AudioActiveDuration = total

		err := t.db.UpdateRecord(t.current)
		if err != nil {
			return err
		}
	}

	return t.persistState()
}

// HandleActivity feeds a coarse activity state change through the state
// machine. Both the event-driven subscription and the reconciliation
// poll deliver through here, so duplicates are expected and harmless.
func (t *Tracker) HandleActivity(state platform.State) error {
	t.mu.Lock()
	defer t.deliverPending()

	return t.handleActivity(state)
}

// HandleDisplaysOff treats a displays-all-off signal as a lock, as a
// fallback for platforms that fail to deliver lock notifications. The
// phase guard ensures both signals firing for one physical lock event
// finalize only once.
func (t *Tracker) HandleDisplaysOff() error {
	t.mu.Lock()
	defer t.deliverPending()

	return t.handleActivity(platform.StateLocked)
}

// Poll re-derives the true platform state and reconciles the state
// machine with it, catching anything the event-driven path missed.
func (t *Tracker) Poll() error {
	t.mu.Lock()
	defer t.deliverPending()

	if !t.trackingEnabled {
		return nil
	}

	state, err := t.querier.QueryState(t.idleThreshold)
	if err != nil {
		slog.Warn("activity query failed", slog.Any("error", err))
	} else {
		if off, derr := t.querier.DisplaysAllOff(); derr == nil && off {
			state = platform.StateLocked
		}

		err = t.handleActivity(state)
		if err != nil {
			return err
		}
	}

	now := t.now()

	flushed := t.acc.NoteAudioPresence(now, t.audible())
	if flushed && t.current != nil {
		t.current.AudioActiveDuration = t.acc.SnapshotTotal(now)

		err = t.db.UpdateRecord(t.current)
		if err != nil {
			return err
		}

		return t.persistState()
	}

	return nil
}

// ClearRecords empties the ledger and zeroes the accumulator and the
// persisted audio total. The open-session pointer and the tracking
// flags are deliberately left alone: tracking continues.
func (t *Tracker) ClearRecords() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.db.DeleteAllRecords()
	if err != nil {
		return err
	}

	t.acc.ResetForNewSession()

	return t.persistState()
}

// Records returns the full session ledger in start-time order.
func (t *Tracker) Records() ([]record.Record, error) {
	return t.db.GetRecords()
}

// Status reports the current tracking flags.
func (t *Tracker) Status() (tracking, audioTracking bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.trackingEnabled, t.audioTrackingEnabled
}

func (t *Tracker) handleActivity(state platform.State) error {
	if !t.trackingEnabled {
		return nil
	}

	now := t.now()

	switch state {
	case platform.StateActive:
		return t.handleActive(now)
	case platform.StateLocked:
		return t.handleLocked(now)
	case platform.StateIdle:
		// idle does not interrupt a session; only a lock or a display
		// power-down closes it
		return nil
	}

	return nil
}

func (t *Tracker) handleActive(now time.Time) error {
	t.phase = phaseActive

	// only the first activation after a wake/lock boundary opens a new
	// session; later redundant notifications are no-ops
	if !t.firstActiveAfterWake || t.current != nil {
		t.firstActiveAfterWake = false
		return nil
	}

	t.firstActiveAfterWake = false

	return t.openSession(now)
}

func (t *Tracker) handleLocked(now time.Time) error {
	if t.phase == phaseLocked {
		// duplicate lock signal while already finalizing
		return nil
	}

	t.phase = phaseLocked

	err := t.finalizeSession(now)
	if err != nil {
		return err
	}

	// pause rather than stop: a resume after wake continues counting
	// instead of restarting tracking state
	t.acc.Pause(now)
	// each session's audio duration is independent
	t.acc.ResetTotal()
	t.firstActiveAfterWake = true

	return t.persistState()
}

// openSession creates a fresh record and registers it as the open
// session. The accumulator starts the session at zero.
func (t *Tracker) openSession(now time.Time) error {
	rec := &record.Record{StartTime: now}

	t.acc.ResetForNewSession()

	if t.audioTrackingEnabled {
		if t.acc.Enabled() {
			// resuming after a lock: audio already playing at this
			// instant starts counting now, not at the next poll
			t.acc.NoteAudioPresence(now, t.audible())
		} else {
			t.acc.Start(now, t.audible())
		}
	}

	err := t.persistState()
	if err != nil {
		return err
	}

	err = t.db.UpdateRecord(rec)
	if err != nil {
		return err
	}

	t.current = rec

	return nil
}

// finalizeSession closes the open session, if any. Sessions of zero (or
// negative) length are removed from the ledger rather than kept, and
// never announced.
func (t *Tracker) finalizeSession(now time.Time) error {
	if t.current == nil {
		return nil
	}

	rec := t.current
	t.current = nil

	rec.Finalize(now, t.acc.SnapshotTotal(now))

	if rec.Duration() <= 0 {
		return t.db.DeleteRecord(rec.StartTime)
	}

	err := t.db.UpdateRecord(rec)
	if err != nil {
		return err
	}

	// delivery waits until the lock is released; the record is already
	// durable regardless
	t.pending = append(t.pending, pendingNotice{
		rec:      rec,
		duration: timeutil.FormatSeconds(rec.Duration().Seconds()),
	})

	return nil
}

// deliverPending releases the lock and hands any sessions finalized
// during the critical section to the notifier. A slow notifier can
// therefore never stall the state machine.
func (t *Tracker) deliverPending() {
	pending := t.pending
	t.pending = nil
	notifier := t.notifier

	t.mu.Unlock()

	if notifier == nil {
		return
	}

	for _, p := range pending {
		notifier.RecordCompleted(p.rec, p.duration)
	}
}

func (t *Tracker) persistState() error {
	return t.db.SaveTrackingState(&record.TrackingState{
		TrackingEnabled:      t.trackingEnabled,
		AudioTrackingEnabled: t.audioTrackingEnabled,
		AudioTotal:           t.acc.SnapshotTotal(t.now()),
	})
}

func (t *Tracker) audible() bool {
	audible, err := t.querier.QueryAudiblePresence()
	if err != nil {
		slog.Warn("audio presence query failed", slog.Any("error", err))
		return false
	}

	return audible
}
