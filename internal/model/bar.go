package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedSeries is returned when a bar series violates its ordering or price contract.
var ErrMalformedSeries = errors.New("malformed bar series")

// Bar is a single closing price observation for one instrument.
// Only the timestamp and close are consumed by the backtest core.
type Bar struct {
	TS    time.Time `json:"ts"`
	Close float64   `json:"close"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// ValidateSeries checks that timestamps are strictly increasing and every
// close is positive. An empty series is valid here; callers decide whether
// they need a minimum length.
func ValidateSeries(series []Bar) error {
	for i, b := range series {
		if !(b.Close > 0) {
			return fmt.Errorf("%w: bar %d has non-positive close %v", ErrMalformedSeries, i, b.Close)
		}
		if i > 0 && !b.TS.After(series[i-1].TS) {
			return fmt.Errorf("%w: bar %d at %s is not after %s", ErrMalformedSeries, i,
				b.TS.Format(time.RFC3339), series[i-1].TS.Format(time.RFC3339))
		}
	}
	return nil
}

// Closes extracts the close prices of a series.
func Closes(series []Bar) []float64 {
	out := make([]float64, len(series))
	for i, b := range series {
		out[i] = b.Close
	}
	return out
}
