package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/eugener/feedcache/internal/cache"
)

// Validator deletes a stale or unreadable cache.
type Validator interface {
	Validate(ctx context.Context) (cache.ValidationResult, error)
}

// CacheValidator runs cache validation once at startup and then on every
// tick, so a stale snapshot does not linger until the next load.
type CacheValidator struct {
	validator Validator
	interval  time.Duration
}

// NewCacheValidator creates a CacheValidator.
func NewCacheValidator(v Validator, interval time.Duration) *CacheValidator {
	return &CacheValidator{validator: v, interval: interval}
}

// Name returns the worker identifier.
func (w *CacheValidator) Name() string { return "cache_validator" }

// Run validates until ctx is cancelled. Failures are logged, never fatal.
func (w *CacheValidator) Run(ctx context.Context) error {
	w.validate(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.validate(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *CacheValidator) validate(ctx context.Context) {
	res, err := w.validator.Validate(ctx)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		slog.LogAttrs(ctx, slog.LevelError, "cache validation failed",
			slog.String("error", err.Error()),
		)
	case res.Deleted:
		slog.LogAttrs(ctx, slog.LevelInfo, "cache snapshot deleted",
			slog.String("reason", res.Reason),
		)
	}
}
