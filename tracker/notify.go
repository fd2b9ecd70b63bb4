package tracker

import (
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/gen2brain/beeep"
	"github.com/kballard/go-shellquote"

	"github.com/ayoisaiah/tally/internal/record"
)

// Notifier receives completed sessions. Delivery is fire-and-forget:
// implementations must not block the tracker and have no way to signal
// failure back to it. The record's durability is guaranteed by the
// ledger regardless of delivery.
type Notifier interface {
	RecordCompleted(r *record.Record, formattedDuration string)
}

// MultiNotifier fans a completed session out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) RecordCompleted(r *record.Record, formattedDuration string) {
	for _, n := range m {
		n.RecordCompleted(r, formattedDuration)
	}
}

// DesktopNotifier raises a desktop notification for each completed
// session and optionally runs a user-configured hook command.
type DesktopNotifier struct {
	// Enabled gates the desktop notification itself; the hook command
	// runs either way.
	Enabled bool
	// IconPath may be empty.
	IconPath string
	// SessionCmd is run after each completed session, shell-quoted.
	SessionCmd string
}

func (d *DesktopNotifier) RecordCompleted(r *record.Record, formattedDuration string) {
	if d.Enabled {
		msg := fmt.Sprintf(
			"Tracked %s of activity (%s of audio)",
			formattedDuration,
			fmt.Sprintf("%.0fs", r.AudioActiveDuration),
		)

		err := beeep.Notify("Session complete", msg, d.IconPath)
		if err != nil {
			slog.Warn("unable to display notification", slog.Any("error", err))
		}
	}

	// the hook may be arbitrarily slow; never wait on it
	go func() {
		if err := d.runSessionCmd(); err != nil {
			slog.Warn("session command failed", slog.Any("error", err))
		}
	}()
}

// runSessionCmd executes the configured command.
func (d *DesktopNotifier) runSessionCmd() error {
	if d.SessionCmd == "" {
		return nil
	}

	cmdSlice, err := shellquote.Split(d.SessionCmd)
	if err != nil {
		return fmt.Errorf("unable to parse session_cmd option: %w", err)
	}

	if len(cmdSlice) == 0 {
		return nil
	}

	name := cmdSlice[0]
	args := cmdSlice[1:]

	cmd := exec.Command(name, args...)

	return cmd.Run()
}
