package worker

import (
	"context"
	"time"

	"github.com/rs/dnscache"

	"github.com/eugener/feedcache/internal/remote"
)

// DNSRefresher keeps the feed API's cached DNS entries current.
type DNSRefresher struct {
	resolver *dnscache.Resolver
	interval time.Duration
}

// NewDNSRefresher creates a DNSRefresher.
func NewDNSRefresher(resolver *dnscache.Resolver, interval time.Duration) *DNSRefresher {
	return &DNSRefresher{resolver: resolver, interval: interval}
}

// Name returns the worker identifier.
func (w *DNSRefresher) Name() string { return "dns_refresh" }

// Run refreshes until ctx is cancelled.
func (w *DNSRefresher) Run(ctx context.Context) error {
	remote.RefreshDNS(ctx, w.resolver, w.interval)
	return nil
}
