package aggregator

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/raymondelooff/amqp-measurement-sampler/sampler"
	"go.uber.org/zap"
)

const (
	upsertMeasurementQuery = "INSERT INTO `sampled_measurement` (`station_id`, `type`, `measured_at`, `value`) " +
		"VALUES (?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE " +
		"`value` = VALUES(`value`)"

	upsertCheckpointQuery = "INSERT INTO `sampling_checkpoint` (`station_id`, `sampled_until`) " +
		"VALUES (?, ?) " +
		"ON DUPLICATE KEY UPDATE " +
		"`sampled_until` = VALUES(`sampled_until`)"

	selectCheckpointsQuery = "SELECT `station_id`, `sampled_until` FROM `sampling_checkpoint`"
)

// WriterConfig represents the config of the Writer
type WriterConfig struct {
}

// Writer stores sampled measurements and sampling checkpoints
type Writer struct {
	config WriterConfig
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Checkpoints returns the time each station has been sampled until
func (w *Writer) Checkpoints() (map[string]time.Time, error) {
	rows, err := w.db.Query(selectCheckpointsQuery)
	if err != nil {
		return nil, fmt.Errorf("Writer: %w", err)
	}
	defer rows.Close()

	checkpoints := make(map[string]time.Time)
	for rows.Next() {
		var stationID string
		var sampledUntil time.Time

		if err := rows.Scan(&stationID, &sampledUntil); err != nil {
			return nil, fmt.Errorf("Writer: %w", err)
		}

		checkpoints[stationID] = sampledUntil.UTC()
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Writer: %w", err)
	}

	return checkpoints, nil
}

// Write inserts or updates the sampled measurements of a station and moves
// its checkpoint to until, in a single transaction
func (w *Writer) Write(stationID string, result sampler.Result, until time.Time) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("Writer: %w", err)
	}

	if err := w.write(tx, stationID, result, until); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			w.logger.Errorw("Writer: rollback failed", "station", stationID, "error", rollbackErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Writer: %w", err)
	}

	w.logger.Debugw("Writer: wrote sampled measurements",
		"station", stationID,
		"measurements", result.Len(),
		"until", until,
	)

	return nil
}

func (w *Writer) write(tx *sql.Tx, stationID string, result sampler.Result, until time.Time) error {
	stmt, err := tx.Prepare(upsertMeasurementQuery)
	if err != nil {
		return fmt.Errorf("Writer: %w", err)
	}
	defer stmt.Close()

	for _, measurementType := range sortedTypes(result) {
		for _, m := range result[measurementType] {
			_, err := stmt.Exec(stationID, string(m.Type), m.MeasuredAt.UTC(), m.Value)
			if err != nil {
				return fmt.Errorf("Writer: %w", err)
			}
		}
	}

	if _, err := tx.Exec(upsertCheckpointQuery, stationID, until.UTC()); err != nil {
		return fmt.Errorf("Writer: %w", err)
	}

	return nil
}

func sortedTypes(result sampler.Result) []sampler.MeasurementType {
	types := make([]sampler.MeasurementType, 0, len(result))
	for measurementType := range result {
		types = append(types, measurementType)
	}

	sort.Slice(types, func(i, j int) bool {
		return types[i] < types[j]
	})

	return types
}

// NewWriter creates a new Writer
func NewWriter(config WriterConfig, db *sql.DB, logger *zap.SugaredLogger) *Writer {
	return &Writer{
		config: config,
		db:     db,
		logger: logger,
	}
}
