// Package app defines the tally command-line application
package app

import (
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/ayoisaiah/tally/config"
)

// disableStyling disables all styling provided by pterm.
func disableStyling() {
	pterm.DisableColor()
	pterm.DisableStyling()
	pterm.Debug.Prefix.Text = ""
	pterm.Info.Prefix.Text = ""
	pterm.Success.Prefix.Text = ""
	pterm.Warning.Prefix.Text = ""
	pterm.Error.Prefix.Text = ""
	pterm.Fatal.Prefix.Text = ""
}

// Get retrieves the tally app instance.
func Get() *cli.App {
	tallyApp := &cli.App{
		Name: "tally",
		Authors: []*cli.Author{
			{
				Name:  "Ayooluwa Isaiah",
				Email: "ayo@freshman.tech",
			},
		},
		Usage: `
		Tally is a background usage tracker. Its daemon watches your
		machine's activity and keeps a durable log of usage sessions,
		each annotated with how long audio was playing.`,
		UsageText:            "[COMMAND] [OPTIONS]",
		Version:              config.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:   "daemon",
				Usage:  "Run the tracking daemon in the foreground",
				Action: daemonAction,
			},
			{
				Name:   "start",
				Usage:  "Start tracking usage sessions",
				Action: startAction,
			},
			{
				Name:   "stop",
				Usage:  "Stop tracking and finalize the open session",
				Action: stopAction,
			},
			{
				Name:  "audio",
				Usage: "Control audio-active time tracking",
				Subcommands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "Start accumulating audio-active time",
						Action: audioStartAction,
					},
					{
						Name:   "stop",
						Usage:  "Stop accumulating audio-active time",
						Action: audioStopAction,
					},
				},
			},
			{
				Name:   "list",
				Usage:  "Print recorded sessions",
				Action: listAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output in JSON format",
					},
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "Output in CSV format",
					},
					&cli.StringFlag{
						Name:  "since",
						Usage: "Only show sessions started after `DATE` (natural language accepted)",
					},
				},
			},
			{
				Name:   "clear",
				Usage:  "Delete all recorded sessions",
				Action: clearAction,
			},
			{
				Name:   "watch",
				Usage:  "Print completed sessions as they are recorded",
				Action: watchAction,
			},
			{
				Name:   "status",
				Usage:  "Print the tracking status",
				Action: statusAction,
			},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable coloured output",
			},
		},
		Action: statusAction,
		Before: beforeAction,
	}

	return tallyApp
}
