package aggregator

import (
	"github.com/raymondelooff/amqp-measurement-sampler/sampler"
)

// MeasurementUpdate represents a single measurement received from a station
type MeasurementUpdate struct {
	StationID   string
	Measurement sampler.Measurement
}
