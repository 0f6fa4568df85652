package aggregator

import (
	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

// options returns the retry options for an operation, logging every failed
// attempt
func (c RetryConfig) options(operation string, logger *zap.SugaredLogger) []retry.Option {
	return []retry.Option{
		retry.Attempts(c.Attempts),
		retry.Delay(c.Delay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnw(operation+" failed, retrying", "attempt", n+1, "error", err)
		}),
	}
}
