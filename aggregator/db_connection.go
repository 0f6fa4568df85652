package aggregator

import (
	"database/sql"
	"fmt"

	"github.com/avast/retry-go"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"go.uber.org/zap"
)

// MySQLConfig is represents the MySQL configuration
type MySQLConfig struct {
	DSN string `yaml:"dsn"`
}

// NewDbConnection opens a new connection using the configured DSN and waits
// until the database is reachable
func NewDbConnection(config MySQLConfig, retryConfig RetryConfig, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("mysql", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}

	err = retry.Do(db.Ping, retryConfig.options("database ping", logger)...)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("database connection error: %w", err)
	}

	return db, nil
}
