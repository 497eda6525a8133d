// Package remote fetches the feed from the remote feed API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	feed "github.com/eugener/feedcache/internal"
	"github.com/eugener/feedcache/internal/circuitbreaker"
	"github.com/eugener/feedcache/internal/telemetry"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 16 << 20
)

// Options configures a Client. Only URL is required.
type Options struct {
	URL          string
	Timeout      time.Duration     // per fetch, default 10s
	MaxBodyBytes int64             // default 16 MiB
	Transport    http.RoundTripper // default NewTransport(nil)
	Breaker      *circuitbreaker.Breaker
	Metrics      *telemetry.Metrics
}

// Client implements feed.Loader over HTTP.
type Client struct {
	url     string
	timeout time.Duration
	maxBody int64
	http    *http.Client
	breaker *circuitbreaker.Breaker
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

var _ feed.Loader = (*Client)(nil)

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid feed URL %q", opts.URL)
	}
	c := &Client{
		url:     opts.URL,
		timeout: opts.Timeout,
		maxBody: opts.MaxBodyBytes,
		breaker: opts.Breaker,
		metrics: opts.Metrics,
		tracer:  telemetry.Tracer("feedcache/remote"),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.maxBody <= 0 {
		c.maxBody = defaultMaxBodyBytes
	}
	rt := opts.Transport
	if rt == nil {
		rt = NewTransport(nil)
	}
	c.http = &http.Client{Transport: rt}
	return c, nil
}

// Load fetches and maps the feed. Transport failures and an open breaker
// wrap feed.ErrConnectivity; non-200 responses and malformed bodies wrap
// feed.ErrInvalidData.
func (c *Client) Load(ctx context.Context) ([]feed.Image, error) {
	ctx, span := c.tracer.Start(ctx, "remote.load", trace.WithAttributes(attribute.String("feed.url", c.url)))
	defer span.End()
	start := time.Now()

	var images []feed.Image
	fetch := func() error {
		var err error
		images, err = c.fetch(ctx)
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Do(fetch)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			err = fmt.Errorf("%w: %w", feed.ErrConnectivity, err)
		}
	} else {
		err = fetch()
	}

	outcome := "ok"
	switch {
	case errors.Is(err, feed.ErrInvalidData):
		outcome = "invalid_data"
	case err != nil:
		outcome = "connectivity"
	}
	if c.metrics != nil {
		c.metrics.RemoteFetches.WithLabelValues(outcome).Inc()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		slog.LogAttrs(ctx, slog.LevelWarn, "feed fetch failed",
			slog.String("outcome", outcome),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	span.SetAttributes(attribute.Int("feed.items", len(images)))
	slog.LogAttrs(ctx, slog.LevelDebug, "feed fetched",
		slog.Int("items", len(images)),
		slog.Duration("duration", time.Since(start)),
	)
	return images, nil
}

func (c *Client) fetch(ctx context.Context) ([]feed.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrConnectivity, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", feed.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", feed.ErrInvalidData, parseStatusError(resp))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", feed.ErrConnectivity, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", feed.ErrInvalidData, c.maxBody)
	}
	return mapItems(body)
}
