package cloudauth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/google"
)

// TokenTransport injects a bearer token from an oauth2.TokenSource on every
// request. Tokens are cached and refreshed by the source.
type TokenTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
	label  string // for error messages
}

func newTokenTransport(base http.RoundTripper, ts oauth2.TokenSource, label string) *TokenTransport {
	return &TokenTransport{
		base:   base,
		source: oauth2.ReuseTokenSource(nil, ts),
		label:  label,
	}
}

// NewClientCredentialsTransport exchanges a client ID and secret for tokens
// at opts.TokenURL. Token requests go through base as well.
func NewClientCredentialsTransport(ctx context.Context, base http.RoundTripper, opts Options) (*TokenTransport, error) {
	if opts.TokenURL == "" || opts.ClientID == "" {
		return nil, fmt.Errorf("cloudauth: oauth2 auth requires token_url and client_id")
	}
	cc := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     opts.TokenURL,
		Scopes:       opts.Scopes,
	}
	// The source outlives the startup context.
	tctx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, &http.Client{Transport: baseOrDefault(base)})
	return newTokenTransport(base, cc.TokenSource(tctx), "oauth2"), nil
}

// NewGCPOAuthTransport obtains credentials via Application Default
// Credentials, for feeds served behind Google-fronted endpoints.
func NewGCPOAuthTransport(ctx context.Context, base http.RoundTripper, scopes ...string) (*TokenTransport, error) {
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("cloudauth: find GCP credentials: %w", err)
	}
	return newTokenTransport(base, creds.TokenSource, "GCP"), nil
}

// RoundTrip obtains a token and injects it as a Bearer header.
func (t *TokenTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.source.Token()
	if err != nil {
		return nil, fmt.Errorf("cloudauth: obtain %s token: %w", t.label, err)
	}
	r2 := r.Clone(r.Context())
	r2.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return baseOrDefault(t.base).RoundTrip(r2)
}
