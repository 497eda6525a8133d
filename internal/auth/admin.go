// Package auth guards the operator endpoints (refresh, validate, delete)
// with static admin keys presented as Bearer tokens.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	feed "github.com/eugener/feedcache/internal"
)

// AdminKeys holds SHA-256 digests of the configured keys. Plaintext keys are
// not retained.
type AdminKeys struct {
	digests [][sha256.Size]byte
}

// NewAdminKeys hashes keys, skipping empty ones. With no keys, every
// request is rejected.
func NewAdminKeys(keys []string) *AdminKeys {
	a := &AdminKeys{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.digests = append(a.digests, sha256.Sum256([]byte(k)))
		}
	}
	return a
}

// Len reports how many keys are configured.
func (a *AdminKeys) Len() int { return len(a.digests) }

// Authenticate checks the Bearer token on r. Every configured digest is
// compared so the time taken does not depend on which key matched.
func (a *AdminKeys) Authenticate(r *http.Request) error {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return feed.ErrUnauthorized
	}
	sum := sha256.Sum256([]byte(raw))
	match := 0
	for i := range a.digests {
		match |= subtle.ConstantTimeCompare(sum[:], a.digests[i][:])
	}
	if match != 1 {
		return feed.ErrUnauthorized
	}
	return nil
}
