package platform

import (
	"context"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	login1Service     = "org.freedesktop.login1"
	login1SessionPath = "/org/freedesktop/login1/session/auto"
	login1SessionIfc  = "org.freedesktop.login1.Session"

	mprisPrefix    = "org.mpris.MediaPlayer2."
	mprisPath      = "/org/mpris/MediaPlayer2"
	mprisPlayerIfc = "org.mpris.MediaPlayer2.Player"

	mutterDisplayService = "org.gnome.Mutter.DisplayConfig"
	mutterDisplayPath    = "/org/gnome/Mutter/DisplayConfig"

	propertiesIfc = "org.freedesktop.DBus.Properties"
)

// DBusQuerier reads activity state from systemd-logind, audible
// presence from MPRIS media players, and display power state from
// Mutter, all over D-Bus.
type DBusQuerier struct {
	system  *dbus.Conn
	session *dbus.Conn
}

// NewDBusQuerier connects to the system and session buses.
func NewDBusQuerier() (*DBusQuerier, error) {
	system, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, err
	}

	session, err := dbus.ConnectSessionBus()
	if err != nil {
		_ = system.Close()
		return nil, err
	}

	return &DBusQuerier{system: system, session: session}, nil
}

func (q *DBusQuerier) Close() error {
	err := q.system.Close()

	serr := q.session.Close()
	if err == nil {
		err = serr
	}

	return err
}

// QueryState derives the coarse activity state from the logind session
// hints. LockedHint wins over idleness.
func (q *DBusQuerier) QueryState(threshold time.Duration) (State, error) {
	obj := q.system.Object(login1Service, login1SessionPath)

	locked, err := obj.GetProperty(login1SessionIfc + ".LockedHint")
	if err != nil {
		return StateActive, err
	}

	if v, ok := locked.Value().(bool); ok && v {
		return StateLocked, nil
	}

	idle, err := obj.GetProperty(login1SessionIfc + ".IdleHint")
	if err != nil {
		return StateActive, err
	}

	if v, ok := idle.Value().(bool); ok && v {
		since, err := obj.GetProperty(login1SessionIfc + ".IdleSinceHint")
		if err != nil {
			return StateIdle, nil
		}

		// IdleSinceHint is a realtime timestamp in microseconds; only
		// report idle once the threshold has elapsed
		if usec, ok := since.Value().(uint64); ok {
			idleFor := time.Since(time.UnixMicro(int64(usec)))
			if idleFor < threshold {
				return StateActive, nil
			}
		}

		return StateIdle, nil
	}

	return StateActive, nil
}

// QueryAudiblePresence reports whether any MPRIS media player on the
// session bus is currently playing.
func (q *DBusQuerier) QueryAudiblePresence() (bool, error) {
	var names []string

	err := q.session.BusObject().
		Call("org.freedesktop.DBus.ListNames", 0).
		Store(&names)
	if err != nil {
		return false, err
	}

	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}

		status, err := q.session.Object(name, mprisPath).
			GetProperty(mprisPlayerIfc + ".PlaybackStatus")
		if err != nil {
			// the player may have vanished between ListNames and here
			continue
		}

		if s, ok := status.Value().(string); ok && s == "Playing" {
			return true, nil
		}
	}

	return false, nil
}

// DisplaysAllOff reports whether the compositor has powered down the
// displays. A non-zero Mutter PowerSaveMode covers standby, suspend,
// and off.
func (q *DBusQuerier) DisplaysAllOff() (bool, error) {
	mode, err := q.session.Object(mutterDisplayService, mutterDisplayPath).
		GetProperty(mutterDisplayService + ".PowerSaveMode")
	if err != nil {
		return false, err
	}

	if v, ok := mode.Value().(int32); ok {
		return v > 0, nil
	}

	return false, nil
}

// Watch subscribes to logind session property changes and emits the
// resulting coarse state. Signals carry no payload worth trusting, so
// each one triggers a fresh query.
func (q *DBusQuerier) Watch(ctx context.Context) (<-chan State, error) {
	err := q.system.AddMatchSignal(
		dbus.WithMatchObjectPath(login1SessionPath),
		dbus.WithMatchInterface(propertiesIfc),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		return nil, err
	}

	signals := make(chan *dbus.Signal, 16)
	q.system.Signal(signals)

	states := make(chan State, 1)

	go func() {
		defer close(states)
		defer q.system.RemoveSignal(signals)

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}

				if sig == nil {
					continue
				}

				state, err := q.QueryState(0)
				if err != nil {
					continue
				}

				select {
				case states <- state:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return states, nil
}
