// Package daemon provides the Unix-socket NDJSON protocol, server, and
// client for controlling the tally tracker
package daemon

import "github.com/ayoisaiah/tally/internal/record"

// Command names accepted by the daemon.
const (
	CmdStartTracking      = "startTracking"
	CmdStopTracking       = "stopTracking"
	CmdStartAudioTracking = "startAudioTracking"
	CmdStopAudioTracking  = "stopAudioTracking"
	CmdClearRecords       = "clearRecords"
	CmdGetRecords         = "getRecords"
	CmdStatus             = "status"
	CmdSubscribe          = "subscribe"
)

// EventRecordCompleted is pushed to subscribers when a session with
// positive duration is finalized.
const EventRecordCompleted = "recordCompleted"

// Command is sent from a client to the daemon, one JSON object per line.
type Command struct {
	Cmd string `json:"cmd"`
}

// Response is returned by the daemon after processing a command.
type Response struct {
	OK            bool            `json:"ok"`
	Error         string          `json:"error,omitempty"`
	Tracking      *bool           `json:"tracking,omitempty"`
	AudioTracking *bool           `json:"audioTracking,omitempty"`
	Records       []record.Record `json:"records,omitempty"`
}

// Event is streamed from the daemon to subscribed clients.
type Event struct {
	Event string `json:"event"`
	// Record is the finalized session.
	Record *record.Record `json:"record,omitempty"`
	// Duration is a human-readable rendering of the session length.
	Duration string `json:"duration,omitempty"`
}

// BoolPtr returns a pointer to a bool value. Convenience for building
// responses.
func BoolPtr(b bool) *bool { return &b }
