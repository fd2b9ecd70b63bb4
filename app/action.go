package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ayoisaiah/tally/config"
	"github.com/ayoisaiah/tally/daemon"
	"github.com/ayoisaiah/tally/internal/record"
	"github.com/ayoisaiah/tally/platform"
	"github.com/ayoisaiah/tally/report"
	"github.com/ayoisaiah/tally/store"
	"github.com/ayoisaiah/tally/tracker"
)

const (
	envNoColor      = "NO_COLOR"
	envTallyNoColor = "TALLY_NO_COLOR"
)

var errDaemonNotRunning = errors.New(
	"unable to reach the tally daemon: is it running? Start it with 'tally daemon'",
)

// initLogger routes the daemon's structured logs to a rotated file.
func initLogger(logPath string) {
	w := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, nil)))
}

// daemonAction runs the tracking daemon in the foreground until it is
// interrupted.
func daemonAction(ctx *cli.Context) error {
	cfg, err := config.New(config.WithViperConfig())
	if err != nil {
		return err
	}

	initLogger(cfg.System.LogPath)

	db, err := store.NewClient(cfg.System.DBPath)
	if err != nil {
		return err
	}

	defer func() {
		_ = db.Close()
	}()

	var (
		querier platform.Querier
		watcher platform.Watcher
	)

	dq, err := platform.NewDBusQuerier()
	if err != nil {
		slog.Warn(
			"D-Bus unavailable, platform signals disabled",
			slog.Any("error", err),
		)

		querier = platform.NopQuerier{}
	} else {
		querier = dq
		watcher = dq

		defer func() {
			_ = dq.Close()
		}()
	}

	trk := tracker.New(db, querier, nil, tracker.Config{
		IdleThreshold: cfg.Settings.IdleThreshold,
	})

	srv, err := daemon.NewServer(cfg.System.SocketPath, trk)
	if err != nil {
		return err
	}

	defer func() {
		_ = os.Remove(cfg.System.SocketPath)
	}()

	trk.SetNotifier(tracker.MultiNotifier{
		&tracker.DesktopNotifier{
			Enabled:    cfg.Notification.Enabled,
			SessionCmd: cfg.Settings.SessionCmd,
		},
		srv,
	})

	err = trk.Rehydrate()
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(
		ctx.Context,
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	poller := tracker.NewPoller(trk, watcher, cfg.Settings.PollInterval)

	go func() {
		_ = poller.Run(sigCtx)
	}()

	slog.Info(
		"tally daemon started",
		slog.String("socket", cfg.System.SocketPath),
		slog.String("db", cfg.System.DBPath),
	)

	err = srv.Serve(sigCtx)
	if errors.Is(err, sigCtx.Err()) {
		err = nil
	}

	slog.Info("exiting tally")

	return err
}

// dial connects to the daemon socket.
func dial() (*daemon.Client, *config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	client, err := daemon.Connect(cfg.System.SocketPath)
	if err != nil {
		return nil, nil, errDaemonNotRunning
	}

	return client, cfg, nil
}

// send issues a single command to the daemon and surfaces its result.
func send(cmdName string) error {
	client, _, err := dial()
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	resp, err := client.Send(daemon.Command{Cmd: cmdName})
	if err != nil {
		return err
	}

	if !resp.OK {
		return errors.New(resp.Error)
	}

	return nil
}

func startAction(_ *cli.Context) error {
	err := send(daemon.CmdStartTracking)
	if err != nil {
		return err
	}

	pterm.Success.Println("Usage tracking started")

	return nil
}

func stopAction(_ *cli.Context) error {
	err := send(daemon.CmdStopTracking)
	if err != nil {
		return err
	}

	pterm.Success.Println("Usage tracking stopped")

	return nil
}

func audioStartAction(_ *cli.Context) error {
	err := send(daemon.CmdStartAudioTracking)
	if err != nil {
		return err
	}

	pterm.Success.Println("Audio tracking started")

	return nil
}

func audioStopAction(_ *cli.Context) error {
	err := send(daemon.CmdStopAudioTracking)
	if err != nil {
		return err
	}

	pterm.Success.Println("Audio tracking stopped")

	return nil
}

func clearAction(_ *cli.Context) error {
	err := send(daemon.CmdClearRecords)
	if err != nil {
		return err
	}

	pterm.Success.Println("All session records deleted")

	return nil
}

// fetchRecords retrieves the ledger through the daemon, falling back to
// reading the database directly when the daemon is not running (in
// which case the database file is not locked).
func fetchRecords() ([]record.Record, error) {
	client, _, err := dial()
	if err == nil {
		defer func() {
			_ = client.Close()
		}()

		resp, serr := client.Send(daemon.Command{Cmd: daemon.CmdGetRecords})
		if serr != nil {
			return nil, serr
		}

		if !resp.OK {
			return nil, errors.New(resp.Error)
		}

		return resp.Records, nil
	}

	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	db, err := store.NewClient(cfg.System.DBPath)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = db.Close()
	}()

	return db.GetRecords()
}

// listAction prints recorded sessions as a table, JSON, or CSV.
func listAction(ctx *cli.Context) error {
	records, err := fetchRecords()
	if err != nil {
		return err
	}

	records, err = report.FilterSince(records, ctx.String("since"), time.Now())
	if err != nil {
		return err
	}

	if ctx.Bool("json") {
		return report.JSON(records, os.Stdout)
	}

	if ctx.Bool("csv") {
		return report.CSV(records, os.Stdout)
	}

	report.Table(records, os.Stdout)

	return nil
}

// watchAction subscribes to the daemon and prints sessions as they
// complete.
func watchAction(_ *cli.Context) error {
	client, _, err := dial()
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	err = client.Subscribe()
	if err != nil {
		return err
	}

	pterm.Info.Println("Waiting for completed sessions. Press Ctrl-C to stop.")

	for {
		ev, err := client.ReadEvent()
		if err != nil {
			return err
		}

		if ev.Event != daemon.EventRecordCompleted || ev.Record == nil {
			continue
		}

		pterm.Success.Printfln(
			"Session complete: %s tracked (%.0fs of audio)",
			ev.Duration,
			ev.Record.AudioActiveDuration,
		)
	}
}

// statusAction reports whether tracking is active.
func statusAction(_ *cli.Context) error {
	client, _, err := dial()
	if err != nil {
		pterm.Info.Println("The tally daemon is not running.")
		return nil
	}

	defer func() {
		_ = client.Close()
	}()

	resp, err := client.Send(daemon.Command{Cmd: daemon.CmdStatus})
	if err != nil {
		return err
	}

	if !resp.OK {
		return errors.New(resp.Error)
	}

	onOff := func(b *bool) string {
		if b != nil && *b {
			return pterm.Green("on")
		}

		return pterm.Red("off")
	}

	fmt.Fprintf(
		os.Stdout,
		"Usage tracking: %s\nAudio tracking: %s\n",
		onOff(resp.Tracking),
		onOff(resp.AudioTracking),
	)

	return nil
}

func beforeAction(ctx *cli.Context) error {
	pterm.Error.MessageStyle = pterm.NewStyle(pterm.FgRed)
	pterm.Error.Prefix = pterm.Prefix{
		Text:  "ERROR",
		Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack),
	}

	// Disable colour output if NO_COLOR is set
	if _, exists := os.LookupEnv(envNoColor); exists {
		disableStyling()
	}

	// Disable colour output if TALLY_NO_COLOR is set
	if _, exists := os.LookupEnv(envTallyNoColor); exists {
		disableStyling()
	}

	if ctx.Bool("no-color") {
		disableStyling()
	}

	return nil
}
