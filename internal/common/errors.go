// Package common defines shared constants and sentinel errors used across
// ThreadCraft components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDayConflict      = errors.New("day conflict")

	// Service-level errors (generic/internal flow control).
	ErrInternal   = errors.New("internal error")
	ErrValidation = errors.New("validation error")

	// Session lifecycle. An expired session is reported with the same error
	// as a missing one; only operator logs distinguish them.
	ErrSessionInvalid = errors.New("session invalid or expired")

	// Vault errors.
	ErrNoCredentials    = errors.New("no credentials stored")
	ErrDecryptionFailed = errors.New("decryption failed")

	// Remote platform errors.
	ErrAuthInvalid       = errors.New("platform credentials invalid")
	ErrPermissionDenied  = errors.New("platform permission denied")
	ErrRateLimited       = errors.New("platform rate limited")
	ErrRemoteUnavailable = errors.New("platform unavailable")
	ErrDuplicatePost     = errors.New("duplicate post")

	// Thread progress errors.
	ErrNoActiveThread = errors.New("no active thread")
)

// ErrPostTooLong is a specialization of ErrValidation; errors.Is matches both.
var ErrPostTooLong = fmt.Errorf("%w: post exceeds the length limit", ErrValidation)
