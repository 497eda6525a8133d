// Package cache implements the local feed cache: the staleness policy and the
// loader that coordinates a storage.FeedStore.
package cache

import "time"

// DefaultMaxAgeDays is how long a snapshot stays valid.
const DefaultMaxAgeDays = 7

// Policy decides whether a snapshot is still fresh. Max age is added in
// calendar days in Location, so a day spanning a DST change still counts as
// one day rather than 24 hours.
type Policy struct {
	MaxAgeDays int
	Location   *time.Location
}

// DefaultPolicy returns a 7-day policy evaluated in UTC.
func DefaultPolicy() Policy {
	return Policy{MaxAgeDays: DefaultMaxAgeDays, Location: time.UTC}
}

// Validate reports whether a snapshot taken at timestamp is valid at now:
// now must be strictly before timestamp plus the max age. An expiry that
// cannot be represented is treated as invalid.
func (p Policy) Validate(timestamp, now time.Time) bool {
	expiry, ok := p.expiry(timestamp)
	if !ok {
		return false
	}
	return now.Before(expiry)
}

// expiry returns timestamp plus MaxAgeDays calendar days.
func (p Policy) expiry(timestamp time.Time) (time.Time, bool) {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	if p.MaxAgeDays <= 0 {
		return time.Time{}, false
	}
	expiry := timestamp.In(loc).AddDate(0, 0, p.MaxAgeDays)

	// AddDate wraps silently at the edge of the representable range. A
	// calendar day is 24h give or take a DST shift, so anything outside
	// one day of slack means the addition overflowed.
	days := time.Duration(p.MaxAgeDays) * 24 * time.Hour
	if d := expiry.Sub(timestamp); d <= days-24*time.Hour || d >= days+24*time.Hour {
		return time.Time{}, false
	}
	return expiry, true
}
