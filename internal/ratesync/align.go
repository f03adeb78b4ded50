package ratesync

import (
	"fmt"
	"time"
)

const (
	// DefaultStep is the spacing of backfilled samples.
	DefaultStep = time.Hour
	// DefaultAlignOffset is how far past the hour samples are taken.
	DefaultAlignOffset = 5 * time.Minute
)

// AlignToHour snaps t to offset past the start of its UTC hour.
func AlignToHour(t time.Time, offset time.Duration) time.Time {
	return t.UTC().Truncate(time.Hour).Add(offset)
}

// NextSampleTime is the first sample instant after last: offset past the hour
// that results from adding step to last.
func NextSampleTime(last time.Time, step, offset time.Duration) time.Time {
	return AlignToHour(last.Add(step), offset)
}

// ValidStep reports whether step is a positive whole number of hours, the
// only spacing that keeps samples on the aligned grid.
func ValidStep(step time.Duration) bool {
	return step > 0 && step%time.Hour == 0
}

// SampleTimes lists the sample instants strictly after last up to and
// including until.
func SampleTimes(last, until time.Time, step, offset time.Duration) ([]time.Time, error) {
	if !ValidStep(step) {
		return nil, fmt.Errorf("step must be a positive multiple of one hour: %s", step)
	}
	if offset < 0 || offset >= time.Hour {
		return nil, fmt.Errorf("align offset must be within the hour: %s", offset)
	}

	ts := NextSampleTime(last, step, offset)
	for !ts.After(last) {
		ts = ts.Add(step)
	}

	times := make([]time.Time, 0)
	for ; !ts.After(until); ts = ts.Add(step) {
		times = append(times, ts)
	}
	return times, nil
}

// SameHour reports whether a and b fall in the same UTC clock hour.
func SameHour(a, b time.Time) bool {
	return a.UTC().Truncate(time.Hour).Equal(b.UTC().Truncate(time.Hour))
}
