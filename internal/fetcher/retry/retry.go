// Package retry decorates a Fetcher with bounded exponential backoff.
//
// Page and asset fetches are idempotent GETs, so transient failures are
// retried; deterministic failures (4xx) are not.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/webvault/webvault/internal/archive"
)

// Config bounds the retry schedule.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Fetcher wraps another Fetcher and retries retryable failures.
type Fetcher struct {
	next   archive.Fetcher
	cfg    Config
	logger *zap.Logger
}

// New builds a retrying Fetcher around next.
func New(next archive.Fetcher, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	return &Fetcher{next: next, cfg: cfg, logger: logger}
}

// Fetch delegates to the wrapped Fetcher, retrying up to MaxRetries times.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (archive.FetchResult, error) {
	var result archive.FetchResult

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.InitialBackoff
	bo.MaxInterval = f.cfg.MaxBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(f.cfg.MaxRetries)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		res, err := f.next.Fetch(ctx, rawURL)
		if err != nil {
			var fe *archive.FetchError
			if errors.As(err, &fe) && !fe.Retryable() {
				return backoff.Permanent(err)
			}
			f.logger.Debug("fetch attempt failed",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		result = res
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return archive.FetchResult{}, err
	}
	return result, nil
}
