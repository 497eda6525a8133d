// Package cloudauth provides http.RoundTripper decorators that authenticate
// requests to the remote feed API: a static API key, OAuth2 client
// credentials, GCP identity (ADC), or AWS SigV4 for IAM-protected gateways.
package cloudauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Auth kinds accepted by Wrap.
const (
	KindNone    = ""
	KindAPIKey  = "api_key"
	KindOAuth2  = "oauth2"
	KindGCP     = "gcp"
	KindAWSSig4 = "aws_sigv4"
)

// Options selects and configures one authentication scheme.
type Options struct {
	Kind string

	// api_key
	APIKey string
	Header string // default "Authorization"
	Prefix string // default "Bearer " when Header is Authorization

	// oauth2
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string // also used by gcp

	// aws_sigv4
	Region  string
	Service string // default "execute-api"
}

// Wrap returns base decorated with the scheme named by opts.Kind.
func Wrap(ctx context.Context, base http.RoundTripper, opts Options) (http.RoundTripper, error) {
	switch strings.ToLower(opts.Kind) {
	case KindNone:
		return base, nil
	case KindAPIKey:
		if opts.APIKey == "" {
			return nil, fmt.Errorf("cloudauth: api_key auth requires a key")
		}
		header, prefix := opts.Header, opts.Prefix
		if header == "" {
			header, prefix = "Authorization", "Bearer "
		}
		return &APIKeyTransport{Key: opts.APIKey, HeaderName: header, Prefix: prefix, Base: base}, nil
	case KindOAuth2:
		return NewClientCredentialsTransport(ctx, base, opts)
	case KindGCP:
		return NewGCPOAuthTransport(ctx, base, opts.Scopes...)
	case KindAWSSig4:
		return NewAWSSigV4TransportFromEnv(ctx, base, opts.Region, opts.Service)
	default:
		return nil, fmt.Errorf("cloudauth: unknown auth kind %q", opts.Kind)
	}
}

// APIKeyTransport is an http.RoundTripper that injects a static API key
// header on every outbound request. Prefix is prepended to Key
// (e.g. "Bearer " for Authorization headers).
type APIKeyTransport struct {
	Key        string
	HeaderName string
	Prefix     string
	Base       http.RoundTripper
}

// RoundTrip clones the request and sets the auth header.
func (t *APIKeyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	r2.Header.Set(t.HeaderName, t.Prefix+t.Key)
	return baseOrDefault(t.Base).RoundTrip(r2)
}

func baseOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt != nil {
		return rt
	}
	return http.DefaultTransport
}
