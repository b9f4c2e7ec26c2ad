package types

import "errors"

// Errors shared by the store, the gateway, the sync engine and the
// mutation service.
//
// Check them with errors.Is; every layer wraps them with context:
//
//	if errors.Is(err, types.ErrRemoteUnavailable) {
//	    // the write was staged locally and will be retried
//	}
var (
	// ErrRemoteUnavailable is returned when the remote store cannot be
	// reached or refuses the request (network, auth, throttling, 5xx).
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrNotFound is returned when an id is unknown, either remotely on
	// update or locally on get/edit.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for a missing id or invalid item fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRejected is returned when the remote store refuses a record it
	// will keep refusing (a 4xx other than auth or throttling). Retrying
	// the same fields cannot succeed.
	ErrRejected = errors.New("rejected by remote store")

	// ErrLocalStore is returned when a local store transaction fails.
	ErrLocalStore = errors.New("local store failure")
)

// IsRetryable returns true if the error is transient and the operation
// should be retried by the next Reconcile.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRemoteUnavailable)
}

// IsUserError returns true if the error was caused by the caller's input
// and retrying without changes cannot succeed.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrRejected)
}
