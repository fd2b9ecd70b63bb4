package tracker

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ayoisaiah/tally/internal/record"
	"github.com/ayoisaiah/tally/internal/timeutil"
	"github.com/ayoisaiah/tally/platform"
	"github.com/ayoisaiah/tally/store"
)

// memDB is an in-memory stand-in for the Bolt-backed store.
type memDB struct {
	mu            sync.Mutex
	state         map[string][]byte
	trackingState record.TrackingState
	records       map[string]record.Record
}

var _ store.DB = (*memDB)(nil)

func newMemDB() *memDB {
	return &memDB{
		state:   make(map[string][]byte),
		records: make(map[string]record.Record),
	}
}

func (d *memDB) GetState(keys ...string) (map[string][]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := make(map[string][]byte)

	for _, k := range keys {
		if v, ok := d.state[k]; ok {
			m[k] = append([]byte(nil), v...)
		}
	}

	return m, nil
}

func (d *memDB) SetState(mapping map[string][]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, v := range mapping {
		d.state[k] = append([]byte(nil), v...)
	}

	return nil
}

func (d *memDB) GetTrackingState() (*record.TrackingState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.trackingState

	return &s, nil
}

func (d *memDB) SaveTrackingState(s *record.TrackingState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.trackingState = *s

	return nil
}

func (d *memDB) UpdateRecord(r *record.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.records[string(timeutil.ToKey(r.StartTime))] = *r

	return nil
}

func (d *memDB) GetRecords() ([]record.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.records))
	for k := range d.records {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	records := make([]record.Record, 0, len(keys))
	for _, k := range keys {
		records = append(records, d.records[k])
	}

	return records, nil
}

func (d *memDB) DeleteRecord(startTime time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.records, string(timeutil.ToKey(startTime)))

	return nil
}

func (d *memDB) DeleteAllRecords() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.records = make(map[string]record.Record)

	return nil
}

func (d *memDB) Close() error { return nil }

func (d *memDB) Open() error { return nil }

// fakeQuerier returns whatever the test sets.
type fakeQuerier struct {
	mu          sync.Mutex
	state       platform.State
	audible     bool
	displaysOff bool
}

func (q *fakeQuerier) QueryState(_ time.Duration) (platform.State, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == "" {
		return platform.StateActive, nil
	}

	return q.state, nil
}

func (q *fakeQuerier) QueryAudiblePresence() (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.audible, nil
}

func (q *fakeQuerier) DisplaysAllOff() (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.displaysOff, nil
}

func (q *fakeQuerier) set(state platform.State, audible bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.state = state
	q.audible = audible
}

type notification struct {
	rec      record.Record
	duration string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *fakeNotifier) RecordCompleted(r *record.Record, formattedDuration string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, notification{rec: *r, duration: formattedDuration})
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.calls)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

func newTestTracker(t *testing.T) (*Tracker, *memDB, *fakeQuerier, *fakeNotifier, *testClock) {
	t.Helper()

	db := newMemDB()
	q := &fakeQuerier{state: platform.StateActive}
	n := &fakeNotifier{}
	clk := &testClock{t: time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)}

	trk := New(db, q, n, Config{
		IdleThreshold: time.Minute,
		Clock:         clk.Now,
	})

	return trk, db, q, n, clk
}

func openCount(t *testing.T, db *memDB) int {
	t.Helper()

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	var n int

	for i := range records {
		if records[i].Open() {
			n++
		}
	}

	return n
}

func TestAtMostOneOpenSession(t *testing.T) {
	trk, db, _, _, clk := newTestTracker(t)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	// redundant and duplicated activity notifications must never open a
	// second session
	for i := 0; i < 5; i++ {
		clk.advance(time.Second)

		if err := trk.HandleActivity(platform.StateActive); err != nil {
			t.Fatal(err)
		}

		if err := trk.Poll(); err != nil {
			t.Fatal(err)
		}
	}

	if got := openCount(t, db); got != 1 {
		t.Fatalf("expected exactly 1 open session, got %d", got)
	}
}

func TestAudioAccumulationScenario(t *testing.T) {
	trk, db, q, _, clk := newTestTracker(t)

	start := clk.Now()

	// enable tracking at t=0, with audio tracking on but nothing playing
	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	if err := trk.EnableAudioTracking(); err != nil {
		t.Fatal(err)
	}

	// at t=10 audio starts
	clk.advance(10 * time.Second)
	q.set(platform.StateActive, true)

	if err := trk.Poll(); err != nil {
		t.Fatal(err)
	}

	// at t=15 audio stops
	clk.advance(5 * time.Second)
	q.set(platform.StateActive, false)

	if err := trk.Poll(); err != nil {
		t.Fatal(err)
	}

	// at t=20 the machine locks
	clk.advance(5 * time.Second)

	if err := trk.HandleActivity(platform.StateLocked); err != nil {
		t.Fatal(err)
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	stop := start.Add(20 * time.Second)

	want := record.Record{
		StartTime:           start,
		StopTime:            &stop,
		AudioActiveDuration: 5,
	}

	if diff := cmp.Diff(want, records[0]); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	if records[0].AudioActiveDuration > records[0].Duration().Seconds() {
		t.Fatal("audio duration exceeds session duration")
	}
}

func TestAudioCountsFromWakeWhenStillPlaying(t *testing.T) {
	trk, db, q, _, clk := newTestTracker(t)

	q.set(platform.StateActive, true)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	if err := trk.EnableAudioTracking(); err != nil {
		t.Fatal(err)
	}

	// lock at t=10 while audio is playing
	clk.advance(10 * time.Second)

	if err := trk.HandleActivity(platform.StateLocked); err != nil {
		t.Fatal(err)
	}

	// wake at t=20, audio still playing; counting must resume at the
	// wake instant, not at the next poll
	clk.advance(10 * time.Second)

	if err := trk.HandleActivity(platform.StateActive); err != nil {
		t.Fatal(err)
	}

	clk.advance(10 * time.Second)

	if err := trk.HandleActivity(platform.StateLocked); err != nil {
		t.Fatal(err)
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if got := records[0].AudioActiveDuration; got != 10 {
		t.Fatalf("expected 10s of audio in the first session, got %v", got)
	}

	if got := records[1].AudioActiveDuration; got != 10 {
		t.Fatalf("expected 10s of audio counted from wake, got %v", got)
	}
}

// reentrantNotifier calls back into the tracker from its delivery
// callback, which only works if delivery happens outside the tracker's
// critical section.
type reentrantNotifier struct {
	trk   *Tracker
	calls int
}

func (n *reentrantNotifier) RecordCompleted(_ *record.Record, _ string) {
	n.trk.Status()
	n.calls++
}

func TestNotifierRunsOutsideStateMachineLock(t *testing.T) {
	trk, _, _, _, clk := newTestTracker(t)

	n := &reentrantNotifier{trk: trk}
	trk.SetNotifier(n)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	clk.advance(30 * time.Second)

	if err := trk.DisableTracking(); err != nil {
		t.Fatal(err)
	}

	if n.calls != 1 {
		t.Fatalf("expected 1 notification, got %d", n.calls)
	}
}

func TestZeroDurationSessionNotPersistedOrNotified(t *testing.T) {
	trk, db, _, n, _ := newTestTracker(t)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	// lock at the same instant tracking was enabled
	if err := trk.HandleActivity(platform.StateLocked); err != nil {
		t.Fatal(err)
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 0 {
		t.Fatalf("expected no records for a zero-length session, got %d", len(records))
	}

	if n.count() != 0 {
		t.Fatalf("expected no notifications, got %d", n.count())
	}
}

func TestLockAndDisplaysOffFinalizeOnce(t *testing.T) {
	trk, db, _, n, clk := newTestTracker(t)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	clk.advance(30 * time.Second)

	// both signals fire for the same physical lock event
	if err := trk.HandleActivity(platform.StateLocked); err != nil {
		t.Fatal(err)
	}

	if err := trk.HandleDisplaysOff(); err != nil {
		t.Fatal(err)
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 finalized record, got %d", len(records))
	}

	if records[0].Open() {
		t.Fatal("expected the record to be closed")
	}

	if n.count() != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", n.count())
	}
}

func TestNewSessionOpensOnFirstActiveAfterLock(t *testing.T) {
	trk, db, _, _, clk := newTestTracker(t)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	clk.advance(10 * time.Second)

	if err := trk.HandleActivity(platform.StateLocked); err != nil {
		t.Fatal(err)
	}

	clk.advance(time.Minute)

	if err := trk.HandleActivity(platform.StateActive); err != nil {
		t.Fatal(err)
	}

	if got := openCount(t, db); got != 1 {
		t.Fatalf("expected a fresh open session after wake, got %d open", got)
	}

	// a second active notification must not open another session
	if err := trk.HandleActivity(platform.StateActive); err != nil {
		t.Fatal(err)
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records (1 closed, 1 open), got %d", len(records))
	}
}

func TestDisableTrackingFinalizesSession(t *testing.T) {
	trk, db, _, n, clk := newTestTracker(t)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	clk.advance(45 * time.Second)

	if err := trk.DisableTracking(); err != nil {
		t.Fatal(err)
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 1 || records[0].Open() {
		t.Fatalf("expected a single closed record, got %+v", records)
	}

	if got := records[0].Duration(); got != 45*time.Second {
		t.Fatalf("expected 45s duration, got %v", got)
	}

	if n.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", n.count())
	}
}

func TestStopAudioTrackingPersistsTotal(t *testing.T) {
	trk, db, q, _, clk := newTestTracker(t)

	q.set(platform.StateActive, true)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	if err := trk.EnableAudioTracking(); err != nil {
		t.Fatal(err)
	}

	clk.advance(12 * time.Second)

	if err := trk.DisableAudioTracking(); err != nil {
		t.Fatal(err)
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	if got := records[0].AudioActiveDuration; got != 12 {
		t.Fatalf("expected 12s of audio on the open record, got %v", got)
	}
}

func TestClearRecordsKeepsTrackingGoing(t *testing.T) {
	trk, db, q, _, clk := newTestTracker(t)

	q.set(platform.StateActive, true)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	if err := trk.EnableAudioTracking(); err != nil {
		t.Fatal(err)
	}

	clk.advance(20 * time.Second)

	if err := trk.ClearRecords(); err != nil {
		t.Fatal(err)
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 0 {
		t.Fatalf("expected an empty ledger, got %d records", len(records))
	}

	tracking, _ := trk.Status()
	if !tracking {
		t.Fatal("expected tracking to remain enabled")
	}

	if trk.current == nil {
		t.Fatal("expected the open-session pointer to be unaffected")
	}

	if got := trk.acc.SnapshotTotal(clk.Now()); got != 0 {
		t.Fatalf("expected accumulator reset to zero, got %v", got)
	}

	// the session continues: a later lock records it afresh
	clk.advance(10 * time.Second)

	if err := trk.HandleActivity(platform.StateLocked); err != nil {
		t.Fatal(err)
	}

	records, err = db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 1 || records[0].Open() {
		t.Fatalf("expected a single closed record after lock, got %+v", records)
	}
}

func TestRehydrateOpensExactlyOneSession(t *testing.T) {
	trk, db, q, _, clk := newTestTracker(t)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	// the process dies with a session still open; a new tracker comes up
	// against the same store
	clk.advance(5 * time.Minute)

	trk2 := New(db, q, &fakeNotifier{}, Config{
		IdleThreshold: time.Minute,
		Clock:         clk.Now,
	})

	if err := trk2.Rehydrate(); err != nil {
		t.Fatal(err)
	}

	tracking, _ := trk2.Status()
	if !tracking {
		t.Fatal("expected tracking to be restored from the store")
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record after rehydrate, got %d", len(records))
	}

	if !records[0].Open() || !records[0].StartTime.Equal(clk.Now()) {
		t.Fatalf("expected a fresh open session at restart time, got %+v", records[0])
	}
}

func TestRehydrateDisabledDoesNothing(t *testing.T) {
	trk, db, _, _, _ := newTestTracker(t)

	if err := trk.Rehydrate(); err != nil {
		t.Fatal(err)
	}

	tracking, audio := trk.Status()
	if tracking || audio {
		t.Fatal("expected tracking to default to disabled")
	}

	records, err := db.GetRecords()
	if err != nil {
		t.Fatal(err)
	}

	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestIdleDoesNotCloseSession(t *testing.T) {
	trk, db, q, _, clk := newTestTracker(t)

	if err := trk.EnableTracking(); err != nil {
		t.Fatal(err)
	}

	clk.advance(2 * time.Minute)
	q.set(platform.StateIdle, false)

	if err := trk.Poll(); err != nil {
		t.Fatal(err)
	}

	if got := openCount(t, db); got != 1 {
		t.Fatalf("expected the session to stay open through idle, got %d open", got)
	}
}
