// Package record defines usage session records
package record

import "time"

// Record is a single usage session. StartTime doubles as the record's
// identity within the ledger; no two records share a start time.
type Record struct {
	StartTime time.Time `json:"start_time"`
	// StopTime is nil while the session is still open.
	StopTime *time.Time `json:"stop_time"`
	// AudioActiveDuration is the cumulative number of seconds within the
	// session during which an audio source was detected as playing.
	AudioActiveDuration float64 `json:"audio_active_duration"`
}

// Open reports whether the session is still in progress.
func (r *Record) Open() bool {
	return r.StopTime == nil
}

// Duration returns the wall-clock length of a closed session, or zero
// while the session is open.
func (r *Record) Duration() time.Duration {
	if r.StopTime == nil {
		return 0
	}

	return r.StopTime.Sub(r.StartTime)
}

// Finalize stamps the stop time and the accumulated audio duration.
func (r *Record) Finalize(stopTime time.Time, audioSeconds float64) {
	t := stopTime
	r.StopTime = &t
	r.AudioActiveDuration = audioSeconds
}

// TrackingState holds the durable tracking configuration and the
// carried-over audio total. It is the source of truth on startup.
type TrackingState struct {
	TrackingEnabled      bool    `json:"tracking_enabled"`
	AudioTrackingEnabled bool    `json:"audio_tracking_enabled"`
	AudioTotal           float64 `json:"audio_total"`
}
