package domain

import "errors"

var (
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrUnknownRegion      = errors.New("unknown region")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrNotWatching        = errors.New("region not on watchlist")
	ErrInvalidInterval    = errors.New("invalid interval")
	ErrTooFewCandidates   = errors.New("at least two candidates are required")
	ErrNoSnapshot         = errors.New("no snapshot available yet")
	ErrRegionNotReported  = errors.New("region not reported upstream")
	ErrDeliveryFailed     = errors.New("report delivery failed")
)
