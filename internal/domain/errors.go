package domain

import "errors"

// Sentinel errors used throughout the application.
var (
	ErrNotFound = errors.New("not found")

	// ErrSubscriptionGone is returned by push adapters when the push service
	// reports the endpoint no longer exists (HTTP 404 / 410). It is a cleanup
	// signal for the dispatcher, not a reportable failure.
	ErrSubscriptionGone = errors.New("push subscription gone")

	ErrChannelNotConfigured = errors.New("channel adapter not configured")
	ErrMalformedInstanceID  = errors.New("malformed chat backlog instance id")
)
