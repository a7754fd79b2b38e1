package app

import "errors"

// Sentinel errors mapped to HTTP status codes by the server layer.
var (
	// ErrNotReady means upstream data (transcript, plan card, dossier) has not
	// arrived yet. The condition clears on its own, so callers may retry.
	ErrNotReady = errors.New("required data not ready")

	// ErrPaymentRequired means the user's payment has not been verified.
	ErrPaymentRequired = errors.New("payment not verified")

	// ErrForbidden means the resource belongs to a different user.
	ErrForbidden = errors.New("resource owned by another user")

	// ErrNotFound means the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrGenerationInProgress means another request holds the per-user
	// generation lease. Retryable once the lease is released or expires.
	ErrGenerationInProgress = errors.New("generation already in progress")

	// ErrInvalidModule means the module number is outside 1..ModuleCount.
	ErrInvalidModule = errors.New("invalid module number")

	// ErrEmptyMessage means a chat endpoint received a blank message.
	ErrEmptyMessage = errors.New("empty message")
)
