package aggregator

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/avast/retry-go"
	"github.com/raymondelooff/amqp-measurement-sampler/sampler"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type deliverySource interface {
	Subscribe() (<-chan amqp.Delivery, error)
	Shutdown() error
}

type measurementStore interface {
	Checkpoints() (map[string]time.Time, error)
	Write(stationID string, result sampler.Result, until time.Time) error
}

// Aggregator buffers measurement updates per station and periodically
// samples and stores them
type Aggregator struct {
	config     Config
	subscriber deliverySource
	store      measurementStore
	sampler    *sampler.Sampler
	logger     *zap.SugaredLogger

	// Only touched from the Run loop
	pending     map[string][]sampler.Measurement
	checkpoints map[string]time.Time
}

// Run the Aggregator until the context is cancelled. All buffered
// measurements, including those of open intervals, are flushed before
// returning.
func (a *Aggregator) Run(ctx context.Context) error {
	checkpoints, err := a.store.Checkpoints()
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	if checkpoints != nil {
		a.checkpoints = checkpoints
	}

	deliveries, err := a.subscriber.Subscribe()
	if err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}

	defer func() {
		if err := a.subscriber.Shutdown(); err != nil {
			a.logger.Errorf("aggregator: %s", err)
		}
	}()

	ticker := time.NewTicker(a.config.Sampler.FlushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flush(true)

			return nil
		case <-ticker.C:
			a.flush(false)
		case delivery, ok := <-deliveries:
			if !ok {
				a.flush(true)

				return fmt.Errorf("aggregator: delivery channel closed")
			}

			a.handleDelivery(delivery)
		}
	}
}

// Handles the given delivery and acknowledges it
func (a *Aggregator) handleDelivery(delivery amqp.Delivery) {
	if err := a.handleMessage(delivery.RoutingKey, delivery.Body); err != nil {
		a.logger.Warnw("aggregator: rejecting message", "routing_key", delivery.RoutingKey, "error", err)

		if err := delivery.Nack(false, false); err != nil {
			a.logger.Errorf("aggregator: %s", err)
		}

		return
	}

	if err := delivery.Ack(false); err != nil {
		a.logger.Errorf("aggregator: %s", err)
	}
}

// Decodes the given message and buffers its measurement
func (a *Aggregator) handleMessage(routingKey string, body []byte) error {
	message, err := DecodeMeasurementMessage(body)
	if err != nil {
		return err
	}

	update, err := message.ToMeasurementUpdate(NewTopic(routingKey))
	if err != nil {
		return err
	}

	a.pending[update.StationID] = append(a.pending[update.StationID], update.Measurement)

	return nil
}

// Returns the origin of the station's interval grid and the checkpoint
// before which its measurements are stale. A checkpoint always lies on the
// grid, so stepping back one interval keeps the grid in place while still
// admitting measurements taken exactly at the checkpoint.
func (a *Aggregator) startOfSampling(stationID string) (time.Time, time.Time) {
	if checkpoint, ok := a.checkpoints[stationID]; ok {
		return checkpoint.Add(-a.sampler.Interval()), checkpoint
	}

	start := a.config.Sampler.StartOfSampling

	return start, start.Add(time.Nanosecond)
}

// Samples and stores the completed intervals of every station. With final
// set, the interval still open is completed as well.
func (a *Aggregator) flush(final bool) {
	stationIDs := make([]string, 0, len(a.pending))
	for stationID := range a.pending {
		stationIDs = append(stationIDs, stationID)
	}
	sort.Strings(stationIDs)

	for _, stationID := range stationIDs {
		a.flushStation(stationID, final)
	}
}

// A station whose write fails keeps its buffer and checkpoint for the next
// flush. Measurements of the open interval stay buffered.
func (a *Aggregator) flushStation(stationID string, final bool) {
	origin, checkpoint := a.startOfSampling(stationID)

	var live []sampler.Measurement
	stale := 0
	for _, m := range a.pending[stationID] {
		if m.MeasuredAt.Before(checkpoint) {
			stale++

			continue
		}

		live = append(live, m)
	}

	if stale > 0 {
		a.logger.Warnw("aggregator: dropping stale measurements",
			"station", stationID,
			"measurements", stale,
			"checkpoint", checkpoint,
		)
	}

	if len(live) == 0 {
		delete(a.pending, stationID)

		return
	}
	a.pending[stationID] = live

	var latest time.Time
	for _, m := range live {
		if m.MeasuredAt.After(latest) {
			latest = m.MeasuredAt
		}
	}

	open := a.sampler.IntervalIndex(origin, latest)
	if final {
		open++
	}
	until := a.sampler.IntervalStart(origin, open)

	var completed, remaining []sampler.Measurement
	for _, m := range live {
		if m.MeasuredAt.Before(until) {
			completed = append(completed, m)
		} else {
			remaining = append(remaining, m)
		}
	}

	if len(completed) == 0 {
		return
	}

	result := a.sampler.Sample(origin, completed)
	err := retry.Do(
		func() error {
			return a.store.Write(stationID, result, until)
		},
		a.config.Retry.options("aggregator: write", a.logger)...,
	)
	if err != nil {
		a.logger.Errorw("aggregator: flush failed", "station", stationID, "error", err)

		return
	}

	a.logger.Infow("aggregator: flushed",
		"station", stationID,
		"received", len(completed),
		"sampled", result.Len(),
		"until", until,
	)

	a.checkpoints[stationID] = until
	if len(remaining) == 0 {
		delete(a.pending, stationID)
	} else {
		a.pending[stationID] = remaining
	}
}

func newAggregator(config Config, subscriber deliverySource, store measurementStore, logger *zap.SugaredLogger) *Aggregator {
	if config.Sampler.StartOfSampling.IsZero() {
		config.Sampler.StartOfSampling = time.Now().UTC()
	}

	return &Aggregator{
		config:      config,
		subscriber:  subscriber,
		store:       store,
		sampler:     sampler.NewSampler(config.Sampler.Config),
		logger:      logger,
		pending:     make(map[string][]sampler.Measurement),
		checkpoints: make(map[string]time.Time),
	}
}

// NewAggregator creates a new Aggregator
func NewAggregator(config Config, db *sql.DB, logger *zap.SugaredLogger) *Aggregator {
	config.setDefaults()

	return newAggregator(
		config,
		NewSubscriber(config.AMQP, config.Retry, config.Topics, logger),
		NewWriter(config.Writer, db, logger),
		logger,
	)
}
