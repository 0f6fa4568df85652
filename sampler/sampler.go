// Package sampler downsamples measurements into fixed-width time intervals,
// keeping the latest measurement per interval and measurement type.
package sampler

import (
	"sort"
	"time"
)

// DefaultInterval is the width of a sampling interval
const DefaultInterval = 5 * time.Minute

// Config represents the config of the Sampler
type Config struct {
	Interval time.Duration `yaml:"interval"`
}

// Result maps each measurement type to its sampled measurements, ordered by
// MeasuredAt. Types without eligible measurements have no entry.
type Result map[MeasurementType][]Measurement

// Len returns the number of measurements over all types
func (r Result) Len() int {
	n := 0
	for _, measurements := range r {
		n += len(measurements)
	}

	return n
}

// Latest returns the latest MeasuredAt in the Result, or the zero time when
// the Result is empty
func (r Result) Latest() time.Time {
	var latest time.Time
	for _, measurements := range r {
		if len(measurements) == 0 {
			continue
		}

		last := measurements[len(measurements)-1].MeasuredAt
		if last.After(latest) {
			latest = last
		}
	}

	return latest
}

// Sampler selects one measurement per interval and type. It holds no state
// between calls and is safe for concurrent use.
type Sampler struct {
	interval time.Duration
}

// Sample samples the measurements using DefaultInterval
func Sample(startOfSampling time.Time, measurements []Measurement) Result {
	return NewSampler(Config{}).Sample(startOfSampling, measurements)
}

// Sample drops measurements at or before startOfSampling, groups the rest by
// type and keeps the latest measurement of every interval. Intervals are
// counted from startOfSampling. When measurements in an interval share the
// latest time, the first one in input order is kept.
func (s *Sampler) Sample(startOfSampling time.Time, measurements []Measurement) Result {
	intervals := make(map[MeasurementType]map[int64]Measurement)

	for _, m := range measurements {
		if !m.MeasuredAt.After(startOfSampling) {
			continue
		}

		byInterval, ok := intervals[m.Type]
		if !ok {
			byInterval = make(map[int64]Measurement)
			intervals[m.Type] = byInterval
		}

		index := s.IntervalIndex(startOfSampling, m.MeasuredAt)

		kept, ok := byInterval[index]
		if !ok || m.MeasuredAt.After(kept.MeasuredAt) {
			byInterval[index] = m
		}
	}

	result := make(Result, len(intervals))
	for measurementType, byInterval := range intervals {
		result[measurementType] = collect(byInterval)
	}

	return result
}

// Interval returns the width of a sampling interval
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// IntervalIndex returns the index of the interval measuredAt falls into,
// counted from startOfSampling. measuredAt must be after startOfSampling.
func (s *Sampler) IntervalIndex(startOfSampling, measuredAt time.Time) int64 {
	return int64(measuredAt.Sub(startOfSampling) / s.interval)
}

// IntervalStart returns the start of the interval with the given index
func (s *Sampler) IntervalStart(startOfSampling time.Time, index int64) time.Time {
	return startOfSampling.Add(time.Duration(index) * s.interval)
}

// Interval indices grow with time, so ordering by index orders by MeasuredAt
func collect(byInterval map[int64]Measurement) []Measurement {
	indices := make([]int64, 0, len(byInterval))
	for index := range byInterval {
		indices = append(indices, index)
	}

	sort.Slice(indices, func(i, j int) bool {
		return indices[i] < indices[j]
	})

	measurements := make([]Measurement, 0, len(indices))
	for _, index := range indices {
		measurements = append(measurements, byInterval[index])
	}

	return measurements
}

// NewSampler creates a new Sampler
func NewSampler(config Config) *Sampler {
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Sampler{
		interval: interval,
	}
}
