package hazards

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"hazardsync/internal/bootstrap/logging"
	"hazardsync/internal/errs"
)

type WatchOptions struct {
	// PollInterval triggers a sync even without change signals. Zero
	// disables polling.
	PollInterval   time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// MaxRetries bounds attempts per sync round. Zero means unlimited.
	MaxRetries uint
	OnSync     func(SyncResult)
}

// Watch syncs once, then again on every change signal or poll tick, until
// ctx is done. Transient failures are retried with exponential backoff;
// an authentication failure ends the watch.
func (s *Service) Watch(ctx context.Context, opts WatchOptions) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	ctx = logging.WithComponent(ctx, "hazards.watch")

	var wake <-chan struct{}
	if s.signals != nil {
		ch, cancel, err := s.signals.Subscribe(ctx)
		if err != nil {
			return errs.Wrap(err, "subscribe change signals")
		}
		defer cancel()
		wake = ch
	}

	var tick <-chan time.Time
	if opts.PollInterval > 0 {
		ticker := time.NewTicker(opts.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if err := s.syncWithRetry(ctx, opts); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, errs.ErrAuth) {
				logging.Error(ctx, "sync stopped, authentication failed", slog.Any("err", errs.Loggable(err)))
				return err
			}
			logging.Error(ctx, "sync round failed", slog.Any("err", errs.Loggable(err)))
		}

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		case <-tick:
		}
	}
}

func (s *Service) syncWithRetry(ctx context.Context, opts WatchOptions) error {
	policy := backoff.NewExponentialBackOff()
	if opts.BackoffInitial > 0 {
		policy.InitialInterval = opts.BackoffInitial
	}
	if opts.BackoffMax > 0 {
		policy.MaxInterval = opts.BackoffMax
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Warn(ctx, "sync failed, retrying",
				slog.Duration("retry_in", next),
				slog.Any("err", errs.Loggable(err)),
			)
		}),
	}
	if opts.MaxRetries > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(opts.MaxRetries))
	}

	result, err := backoff.Retry(ctx, func() (SyncResult, error) {
		result, err := s.SyncOnce(ctx)
		if err != nil {
			if !errs.IsRetryable(err) {
				return SyncResult{}, backoff.Permanent(err)
			}
			return SyncResult{}, err
		}
		return result, nil
	}, retryOpts...)
	if err != nil {
		return err
	}

	if len(result.Events) > 0 {
		logging.Info(ctx, "synced remote changes", slog.Int("events", len(result.Events)))
	}
	if opts.OnSync != nil {
		opts.OnSync(result)
	}
	return nil
}
