package feed

import "errors"

// Sentinel errors for the feed domain.
var (
	ErrConnectivity = errors.New("connectivity")
	ErrInvalidData  = errors.New("invalid data")
	ErrStoreClosed  = errors.New("store closed")
	ErrLoaderClosed = errors.New("cache loader closed")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)
