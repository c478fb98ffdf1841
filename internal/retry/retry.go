package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Do runs op up to attempts times, sleeping delay between failures.
// op receives the zero-based attempt number so callers can widen their
// tolerance (slippage etc.) on each retry. The last error is returned
// once attempts are exhausted; a cancelled context cuts retries short.
func Do(ctx context.Context, attempts int, delay time.Duration, op func(attempt int) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = op(i); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Dur("delay", delay).Msg("Retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
