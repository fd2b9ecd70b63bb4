// Package report renders the session ledger for the command line
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/markusmobius/go-dateparser"
	"github.com/pterm/pterm"

	"github.com/ayoisaiah/tally/internal/record"
	"github.com/ayoisaiah/tally/internal/timeutil"
)

const timeFormat = "Jan 02 2006 15:04:05"

var tableHeader = []string{
	"#",
	"Start",
	"Stop",
	"Duration",
	"Audio active",
}

// FilterSince drops records that started before the instant described
// by expr, which may be natural language ("yesterday", "2 weeks ago").
// An empty expr keeps everything.
func FilterSince(
	records []record.Record,
	expr string,
	now time.Time,
) ([]record.Record, error) {
	if expr == "" {
		return records, nil
	}

	cfg := &dateparser.Configuration{
		CurrentTime: now,
	}

	dt, err := dateparser.Parse(cfg, expr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse date expression %q: %w", expr, err)
	}

	var out []record.Record

	for _, r := range records {
		if r.StartTime.Before(dt.Time) {
			continue
		}

		out = append(out, r)
	}

	return out, nil
}

// Table renders the records as a boxed table followed by totals.
func Table(records []record.Record, w io.Writer) {
	data := [][]string{tableHeader}

	for i, r := range records {
		stop := "ongoing"
		duration := "ongoing"

		if !r.Open() {
			stop = r.StopTime.Format(timeFormat)
			duration = timeutil.FormatSeconds(r.Duration().Seconds())
		}

		data = append(data, []string{
			strconv.Itoa(i + 1),
			r.StartTime.Format(timeFormat),
			stop,
			duration,
			timeutil.FormatSeconds(r.AudioActiveDuration),
		})
	}

	printTable(data, w)

	total, audio := Totals(records)

	fmt.Fprintf(
		w,
		"Total: %s tracked, %s with audio\n",
		timeutil.FormatSeconds(total),
		timeutil.FormatSeconds(audio),
	)
}

// CSV writes the records in the same column layout the table uses, with
// machine-readable timestamps and raw seconds.
func CSV(records []record.Record, w io.Writer) error {
	cw := csv.NewWriter(w)

	err := cw.Write([]string{
		"start_time",
		"stop_time",
		"duration_seconds",
		"audio_active_seconds",
	})
	if err != nil {
		return err
	}

	for _, r := range records {
		stop := ""
		duration := ""

		if !r.Open() {
			stop = r.StopTime.Format(time.RFC3339)
			duration = strconv.FormatFloat(r.Duration().Seconds(), 'f', 3, 64)
		}

		err = cw.Write([]string{
			r.StartTime.Format(time.RFC3339),
			stop,
			duration,
			strconv.FormatFloat(r.AudioActiveDuration, 'f', 3, 64),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// JSON writes the records verbatim.
func JSON(records []record.Record, w io.Writer) error {
	b, err := json.Marshal(records)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))

	return err
}

// Totals sums the closed sessions' wall-clock and audio-active seconds.
// Open sessions contribute their audio time but not their duration.
func Totals(records []record.Record) (totalSeconds, audioSeconds float64) {
	for _, r := range records {
		totalSeconds += r.Duration().Seconds()
		audioSeconds += r.AudioActiveDuration
	}

	return totalSeconds, audioSeconds
}

func printTable(data [][]string, w io.Writer) {
	table := pterm.DefaultTable
	table.Boxed = true

	str, err := table.WithHasHeader().WithData(data).Srender()
	if err != nil {
		pterm.Error.Printfln("Failed to output session table: %s", err.Error())
		return
	}

	fmt.Fprintln(w, str)
}
