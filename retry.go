package haystack

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/denysvitali/haystack-go/model"
)

// RefreshWithRetry retries RefreshLocations on timeouts and upstream failures with
// exponential backoff, making at most attempts calls. Each attempt gets a fresh deadline
// and fresh credentials.
func (l *Locator) RefreshWithRetry(ctx context.Context, accessories []model.Accessory, w model.TimeWindow, deadline time.Duration, attempts int) (*RefreshSummary, error) {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts-1)),
		ctx,
	)

	var summary *RefreshSummary
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		s, err := l.RefreshLocations(ctx, accessories, w, deadline)
		if err == nil {
			summary = s
			return nil
		}
		var fe *FetchError
		if errors.As(err, &fe) && fe.Retryable() {
			logger.Warnf("refresh attempt %d/%d failed: %v", attempt, attempts, err)
			return err
		}
		return backoff.Permanent(err)
	}, b)
	return summary, err
}
