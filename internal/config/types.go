package config

import (
	"math"
	"time"
)

// DefaultFrequencyMinutes is used when the document omits frequencyMinutes.
const DefaultFrequencyMinutes = 0.5

// maxFrequencyMinutes is where frequencyMinutes*60s reaches the time.Duration
// limit. Validate rejects it and anything whose rounded interval does not fit.
var maxFrequencyMinutes = float64(math.MaxInt64) / float64(time.Minute)

// intervalFits reports whether minutesToDuration(f) stays below math.MaxInt64.
// float64(math.MaxInt64) is exactly 1<<63, the first value that overflows.
func intervalFits(f float64) bool {
	return math.Round(f*60*float64(time.Second)) < float64(math.MaxInt64)
}

// Document is the task runner's configuration document.
//
// Only frequencyMinutes is recognized; any other key is ignored so the same
// file can be shared with the task itself.
//
// Example:
//
//	{ "frequencyMinutes": 15 }
type Document struct {
	// FrequencyMinutes is the pause between task runs, in minutes.
	// nil means "absent" (or JSON null) and selects DefaultFrequencyMinutes.
	FrequencyMinutes *float64 `json:"frequencyMinutes,omitempty"`
}

// Frequency returns the configured frequency in minutes, or the default.
func (d *Document) Frequency() float64 {
	if d == nil || d.FrequencyMinutes == nil {
		return DefaultFrequencyMinutes
	}
	return *d.FrequencyMinutes
}

// Interval returns Frequency()*60 seconds as a Duration.
func (d *Document) Interval() time.Duration {
	return minutesToDuration(d.Frequency())
}

// minutesToDuration converts fractional minutes to a Duration, rounded to the nanosecond.
func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(math.Round(minutes * 60 * float64(time.Second)))
}

// Validate rejects values that cannot describe a pause between runs.
func (d *Document) Validate() error {
	if d == nil || d.FrequencyMinutes == nil {
		return nil
	}
	f := *d.FrequencyMinutes
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return errorf("frequencyMinutes must be a finite number")
	case f <= 0:
		return errorf("frequencyMinutes must be > 0 (got %v)", f)
	case f >= maxFrequencyMinutes || !intervalFits(f):
		return errorf("frequencyMinutes too large (got %v)", f)
	}
	return nil
}
