package sampler

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MeasurementType is the category of a Measurement. The set is open: any
// non-empty value forms its own group when sampling.
type MeasurementType string

// Known measurement types
const (
	Temperature MeasurementType = "TEMPERATURE"
	SpO2        MeasurementType = "SPO2"
	HeartRate   MeasurementType = "HEART_RATE"
)

// ErrInvalidMeasurement is returned when a Measurement cannot be sampled
var ErrInvalidMeasurement = errors.New("invalid measurement")

// Measurement represents a single timestamped sensor reading
type Measurement struct {
	MeasuredAt time.Time
	Value      float64
	Type       MeasurementType
}

// Validate checks that the Measurement is well-formed. It is meant to be
// called where measurements enter the system, before they are sampled.
func (m Measurement) Validate() error {
	if m.MeasuredAt.IsZero() {
		return fmt.Errorf("%w: missing measurement time", ErrInvalidMeasurement)
	}

	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return fmt.Errorf("%w: value %v is not finite", ErrInvalidMeasurement, m.Value)
	}

	if m.Type == "" {
		return fmt.Errorf("%w: missing measurement type", ErrInvalidMeasurement)
	}

	return nil
}
