package aggregator

import (
	"fmt"
	"time"

	"github.com/raymondelooff/amqp-measurement-sampler/sampler"
	"github.com/segmentio/encoding/json"
)

// MeasurementMessage represents the payload of a measurement message
type MeasurementMessage struct {
	Type       string    `json:"type"`
	Value      *float64  `json:"value"`
	MeasuredAt time.Time `json:"measured_at"`
}

// DecodeMeasurementMessage decodes a JSON message body
func DecodeMeasurementMessage(body []byte) (*MeasurementMessage, error) {
	var message MeasurementMessage

	if err := json.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("Message: %w", err)
	}

	return &message, nil
}

// ToMeasurementUpdate converts the message into a validated MeasurementUpdate.
// The measurement type falls back to the one in the Topic when the message
// does not carry it.
func (m *MeasurementMessage) ToMeasurementUpdate(topic *Topic) (*MeasurementUpdate, error) {
	stationID, err := topic.GetStationID()
	if err != nil {
		return nil, err
	}

	measurementType := m.Type
	if measurementType == "" {
		measurementType, err = topic.GetMeasurementType()
		if err != nil {
			return nil, err
		}
	}

	if m.Value == nil {
		return nil, fmt.Errorf("Message: %w: missing value", sampler.ErrInvalidMeasurement)
	}

	measurement := sampler.Measurement{
		MeasuredAt: m.MeasuredAt.UTC(),
		Value:      *m.Value,
		Type:       sampler.MeasurementType(measurementType),
	}
	if err := measurement.Validate(); err != nil {
		return nil, fmt.Errorf("Message: %w", err)
	}

	return &MeasurementUpdate{
		StationID:   stationID,
		Measurement: measurement,
	}, nil
}
