package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/ayoisaiah/tally/internal/record"
	"github.com/ayoisaiah/tally/tracker"
)

const (
	maxLineSize = 1024 * 1024

	// eventWriteTimeout bounds a broadcast write so a subscriber that
	// stopped reading cannot hold up delivery to the others.
	eventWriteTimeout = 5 * time.Second
)

// Server accepts command connections on a Unix socket and pushes
// completed-session events to subscribed clients. It implements
// tracker.Notifier: event delivery is fire-and-forget, a slow or dead
// subscriber is dropped rather than retried.
type Server struct {
	tracker *tracker.Tracker
	ln      net.Listener

	mu          sync.Mutex
	subscribers map[net.Conn]struct{}
}

// NewServer creates a server listening on socketPath. A stale socket
// file from a previous run is removed first.
func NewServer(socketPath string, t *tracker.Tracker) (*Server, error) {
	_ = os.Remove(socketPath)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	return &Server{
		tracker:     t,
		ln:          ln,
		subscribers: make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		go s.handleConn(conn)
	}
}

// RecordCompleted broadcasts a finalized session to all subscribers.
func (s *Server) RecordCompleted(r *record.Record, formattedDuration string) {
	ev := Event{
		Event:    EventRecordCompleted,
		Record:   r,
		Duration: formattedDuration,
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.subscribers {
		_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))

		_, err = conn.Write(data)
		if err != nil {
			// no listener, no retry: the ledger already has the record
			delete(s.subscribers, conn)
			_ = conn.Close()
		}
	}
}

func (s *Server) handleConn(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, maxLineSize), maxLineSize)

	for scanner.Scan() {
		var cmd Command

		err := json.Unmarshal(scanner.Bytes(), &cmd)
		if err != nil {
			s.respond(conn, Response{OK: false, Error: "malformed command"})
			continue
		}

		slog.Debug("daemon command", slog.String("dump", spew.Sdump(cmd)))

		if cmd.Cmd == CmdSubscribe {
			s.mu.Lock()
			s.subscribers[conn] = struct{}{}
			s.mu.Unlock()

			s.respond(conn, Response{OK: true})

			// the connection now belongs to the event stream; stop
			// reading commands from it
			return
		}

		s.respond(conn, s.dispatch(cmd))
	}

	s.mu.Lock()
	delete(s.subscribers, conn)
	s.mu.Unlock()

	_ = conn.Close()
}

func (s *Server) dispatch(cmd Command) Response {
	var err error

	switch cmd.Cmd {
	case CmdStartTracking:
		err = s.tracker.EnableTracking()
	case CmdStopTracking:
		err = s.tracker.DisableTracking()
	case CmdStartAudioTracking:
		err = s.tracker.EnableAudioTracking()
	case CmdStopAudioTracking:
		err = s.tracker.DisableAudioTracking()
	case CmdClearRecords:
		err = s.tracker.ClearRecords()
	case CmdGetRecords:
		var records []record.Record

		records, err = s.tracker.Records()
		if err == nil {
			return Response{OK: true, Records: records}
		}
	case CmdStatus:
		tracking, audio := s.tracker.Status()

		return Response{
			OK:            true,
			Tracking:      BoolPtr(tracking),
			AudioTracking: BoolPtr(audio),
		}
	default:
		return Response{OK: false, Error: "unknown command: " + cmd.Cmd}
	}

	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}

	return Response{OK: true}
}

func (s *Server) respond(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}

	data = append(data, '\n')

	_, _ = conn.Write(data)
}
