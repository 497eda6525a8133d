package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	feed "github.com/eugener/feedcache/internal"
	"github.com/eugener/feedcache/internal/app"
	"github.com/eugener/feedcache/internal/auth"
	"github.com/eugener/feedcache/internal/cache"
	"github.com/eugener/feedcache/internal/ratelimit"
	"github.com/eugener/feedcache/internal/storage/memory"
	"github.com/eugener/feedcache/internal/testutil"
)

// fakeFeed is a configurable FeedService.
type fakeFeed struct {
	images      []feed.Image
	loadErr     error
	refresh     app.RefreshResult
	refreshErr  error
	validate    cache.ValidationResult
	clearErr    error
	clearCalled bool
}

func (f *fakeFeed) Load(context.Context) ([]feed.Image, error) { return f.images, f.loadErr }
func (f *fakeFeed) Refresh(context.Context) (app.RefreshResult, error) {
	return f.refresh, f.refreshErr
}
func (f *fakeFeed) Validate(context.Context) (cache.ValidationResult, error) {
	return f.validate, f.validate.Err
}
func (f *fakeFeed) Clear(context.Context) error {
	f.clearCalled = true
	return f.clearErr
}

const adminKey = "test-admin-key"

func newTestHandler(f FeedService) http.Handler {
	return New(Deps{Feed: f, Admin: auth.NewAdminKeys([]string{adminKey})})
}

func do(t *testing.T, h http.Handler, method, path string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+adminKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestHandler(&fakeFeed{}), http.MethodGet, "/healthz", false)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", rec.Code, rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		check ReadyChecker
		want  int
	}{
		{"no check", nil, http.StatusOK},
		{"passing", func(context.Context) error { return nil }, http.StatusOK},
		{"failing", func(context.Context) error { return errors.New("db down") }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(Deps{Feed: &fakeFeed{}, ReadyCheck: tt.check})
			if rec := do(t, h, http.MethodGet, "/readyz", false); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	h := newTestHandler(&fakeFeed{})

	rec := do(t, h, http.MethodGet, "/healthz", false)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "caller-id" {
		t.Errorf("X-Request-ID = %q, want caller-id", got)
	}
}

func TestLoadFeed(t *testing.T) {
	t.Parallel()

	images := testutil.UniqueFeed()
	rec := do(t, newTestHandler(&fakeFeed{images: images}), http.MethodGet, "/v1/feed", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}

	resp := decode[feedResponse](t, rec)
	if len(resp.Items) != len(images) {
		t.Fatalf("items = %d, want %d", len(resp.Items), len(images))
	}
	if resp.Items[0].ID != images[0].ID || resp.Items[0].Image != images[0].URL {
		t.Errorf("item[0] = %+v, want %+v", resp.Items[0], images[0])
	}
	if resp.Items[1].Description != nil {
		t.Errorf("item[1].Description = %v, want nil", resp.Items[1].Description)
	}
}

func TestLoadFeed_EmptyIsEmptyArray(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestHandler(&fakeFeed{images: []feed.Image{}}), http.MethodGet, "/v1/feed", false)
	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("body = %s, want empty items array", rec.Body.String())
	}
}

func TestLoadFeed_ErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{feed.ErrInvalidData, http.StatusBadGateway},
		{fmt.Errorf("wrap: %w", feed.ErrConnectivity), http.StatusBadGateway},
		{feed.ErrStoreClosed, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()
			rec := do(t, newTestHandler(&fakeFeed{loadErr: tt.err}), http.MethodGet, "/v1/feed", false)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "disk on fire") {
				t.Error("internal error detail leaked to client")
			}
		})
	}
}

func TestOperatorEndpoints_RequireAdminKey(t *testing.T) {
	t.Parallel()

	routes := []struct{ method, path string }{
		{http.MethodPost, "/v1/feed/refresh"},
		{http.MethodPost, "/v1/feed/validate"},
		{http.MethodDelete, "/v1/feed"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			t.Parallel()
			f := &fakeFeed{}
			rec := do(t, newTestHandler(f), rt.method, rt.path, false)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if f.clearCalled {
				t.Error("handler ran without authentication")
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{refresh: app.RefreshResult{
		Images:  testutil.UniqueFeed(),
		Source:  app.SourceRemote,
		SaveErr: errors.New("disk full"),
	}}
	rec := do(t, newTestHandler(f), http.MethodPost, "/v1/feed/refresh", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[refreshResponse](t, rec)
	if resp.Source != "remote" || len(resp.Items) != 2 || resp.SaveError != "disk full" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRefresh_RateLimited(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{refresh: app.RefreshResult{Source: app.SourceCache}}
	h := New(Deps{
		Feed:         f,
		Admin:        auth.NewAdminKeys([]string{adminKey}),
		RefreshLimit: ratelimit.New(1),
	})

	// Unauthenticated calls must not spend the budget.
	if rec := do(t, h, http.MethodPost, "/v1/feed/refresh", false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/v1/feed/refresh", true); rec.Code != http.StatusOK {
		t.Fatalf("first refresh status = %d, want 200", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/v1/feed/refresh", true)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second refresh status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got == "" || got == "0" {
		t.Errorf("Retry-After = %q, want positive seconds", got)
	}

	// Reads are never throttled.
	if rec := do(t, h, http.MethodGet, "/v1/feed", false); rec.Code != http.StatusOK {
		t.Errorf("load status = %d, want 200", rec.Code)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{validate: cache.ValidationResult{Deleted: true, Reason: "stale"}}
	rec := do(t, newTestHandler(f), http.MethodPost, "/v1/feed/validate", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if resp := decode[validateResponse](t, rec); !resp.Deleted || resp.Reason != "stale" {
		t.Errorf("response = %+v, want deleted stale", resp)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	f := &fakeFeed{}
	rec := do(t, newTestHandler(f), http.MethodDelete, "/v1/feed", true)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if !f.clearCalled {
		t.Error("Clear not called")
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	h := New(Deps{Feed: &panicFeed{}})
	rec := do(t, h, http.MethodGet, "/v1/feed", false)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

type panicFeed struct{ fakeFeed }

func (panicFeed) Load(context.Context) ([]feed.Image, error) { panic("boom") }

func TestEndToEnd_RefreshThenLoad(t *testing.T) {
	t.Parallel()

	store, err := memory.New()
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	loader := cache.NewLocalFeedLoader(store, time.Now)
	t.Cleanup(func() {
		loader.Close()
		store.Close()
	})
	remote := testutil.UniqueFeed()
	svc := app.NewFeedService(loader, store, &testutil.FakeLoader{LoadFn: func(context.Context) ([]feed.Image, error) {
		return remote, nil
	}})
	h := New(Deps{Feed: svc})

	if rec := do(t, h, http.MethodGet, "/v1/feed", false); !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Fatalf("initial load = %s, want empty", rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/v1/feed/refresh", false); rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d; body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[feedResponse](t, do(t, h, http.MethodGet, "/v1/feed", false))
	if len(resp.Items) != len(remote) || resp.Items[0].ID != remote[0].ID {
		t.Errorf("load after refresh = %+v, want %+v", resp.Items, remote)
	}
	if rec := do(t, h, http.MethodDelete, "/v1/feed", false); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/feed", false); !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("load after delete = %s, want empty", rec.Body.String())
	}
}
