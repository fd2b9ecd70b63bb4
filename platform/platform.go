// Package platform defines the narrow interfaces through which the
// tracker consumes host activity, audio, and display signals
package platform

import (
	"context"
	"time"
)

// State is the coarse activity state of the machine.
type State string

const (
	StateActive State = "active"
	StateIdle   State = "idle"
	StateLocked State = "locked"
)

// Querier answers point-in-time questions about the host. Results are
// best-effort; a failed query is reported as an error and the caller is
// expected to carry on with its last-known state.
type Querier interface {
	// QueryState reports the coarse activity state. The machine counts
	// as idle once no input has been received for the given threshold.
	QueryState(threshold time.Duration) (State, error)
	// QueryAudiblePresence reports whether any audio-producing source is
	// currently playing.
	QueryAudiblePresence() (bool, error)
	// DisplaysAllOff reports whether every display is powered down.
	DisplaysAllOff() (bool, error)
}

// Watcher delivers event-driven activity state changes. Deliveries may
// be duplicated or missed entirely; the poller reconciles either way.
type Watcher interface {
	// Watch emits state changes until ctx is cancelled. The returned
	// channel is closed when the watch ends.
	Watch(ctx context.Context) (<-chan State, error)
}

// NopQuerier reports a permanently active, silent machine with its
// displays on. It stands in on hosts without a supported signal source
// and in tests.
type NopQuerier struct{}

func (NopQuerier) QueryState(_ time.Duration) (State, error) { return StateActive, nil }

func (NopQuerier) QueryAudiblePresence() (bool, error) { return false, nil }

func (NopQuerier) DisplaysAllOff() (bool, error) { return false, nil }
