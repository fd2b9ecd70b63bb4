package store

import (
	"time"

	"github.com/ayoisaiah/tally/internal/record"
)

// State bucket keys.
const (
	KeyTrackingEnabled      = "tracking_enabled"
	KeyAudioTrackingEnabled = "audio_tracking_enabled"
	KeyAudioTotal           = "audio_total"
)

// DB is the database storage interface.
//
// GetState and SetState are the raw key-value contract: writes are
// last-write-wins per key and are not transactional across keys. The
// record methods are the only sanctioned write path to the session
// ledger; callers must not issue overlapping record writes.
type DB interface {
	// GetState returns the last-written value for each requested key.
	// Missing keys are absent from the returned map.
	GetState(keys ...string) (map[string][]byte, error)
	// SetState writes each entry independently, last write wins per key.
	SetState(mapping map[string][]byte) error
	// GetTrackingState loads the durable tracking configuration,
	// defaulting anything missing or malformed to the zero value.
	GetTrackingState() (*record.TrackingState, error)
	// SaveTrackingState persists the tracking configuration.
	SaveTrackingState(s *record.TrackingState) error
	// UpdateRecord upserts a session record keyed by its start time.
	UpdateRecord(r *record.Record) error
	// GetRecords returns all session records in start-time order.
	GetRecords() ([]record.Record, error)
	// DeleteRecord removes the record with the given start time, if any.
	DeleteRecord(startTime time.Time) error
	// DeleteAllRecords empties the session ledger.
	DeleteAllRecords() error
	// Close ends the database connection
	Close() error
	// Open begins a database connection
	Open() error
}
