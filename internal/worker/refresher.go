package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/eugener/feedcache/internal/app"
)

// Refresher fetches the remote feed and caches it.
type Refresher interface {
	Refresh(ctx context.Context) (app.RefreshResult, error)
}

// FeedRefresher fetches the remote feed into the cache on an interval.
type FeedRefresher struct {
	svc      Refresher
	interval time.Duration
}

// NewFeedRefresher creates a FeedRefresher.
func NewFeedRefresher(svc Refresher, interval time.Duration) *FeedRefresher {
	return &FeedRefresher{svc: svc, interval: interval}
}

// Name returns the worker identifier.
func (w *FeedRefresher) Name() string { return "feed_refresher" }

// Run refreshes at startup and then on every tick until ctx is cancelled.
func (w *FeedRefresher) Run(ctx context.Context) error {
	w.run(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.run(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *FeedRefresher) run(ctx context.Context) {
	res, err := w.svc.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.LogAttrs(ctx, slog.LevelError, "feed refresh failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "feed refreshed",
		slog.String("source", string(res.Source)),
		slog.Int("items", len(res.Images)),
	)
}
