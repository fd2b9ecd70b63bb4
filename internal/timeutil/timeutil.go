// Package timeutil provides utility functions for working with
// time-related operations.
package timeutil

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	secondsInAMinute = 60
	secondsInAnHour  = 3600
)

// Round rounds a time value in seconds to the nearest integer.
func Round(t float64) int {
	return int(math.Round(t))
}

// ToKey converts a time value to a database key for Bolt.
func ToKey(t time.Time) []byte {
	return []byte(t.Format(time.RFC3339Nano))
}

// FromKey parses a Bolt key back into a time value.
func FromKey(key []byte) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, string(key))
}

// FormatSeconds expresses a seconds value as a human-readable duration
// such as "1h 02m 05s". Values under a minute render as seconds only.
func FormatSeconds(seconds float64) string {
	total := Round(seconds)
	if total < 0 {
		total = 0
	}

	hrs := total / secondsInAnHour
	mins := (total % secondsInAnHour) / secondsInAMinute
	secs := total % secondsInAMinute

	var b strings.Builder

	if hrs > 0 {
		fmt.Fprintf(&b, "%dh ", hrs)
	}

	if hrs > 0 || mins > 0 {
		fmt.Fprintf(&b, "%02dm ", mins)
	}

	fmt.Fprintf(&b, "%02ds", secs)

	return b.String()
}
