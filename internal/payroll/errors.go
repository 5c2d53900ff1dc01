package payroll

import "errors"

// Every precondition violation fails the triggering call with one of
// these named errors and no partial state mutation, so callers and
// external tooling can branch on cause.
var (
	// ErrNotAdmin is returned when the caller lacks the admin capability.
	ErrNotAdmin = errors.New("caller is not an admin")

	// ErrNotProvider is returned when the caller lacks the provider capability.
	ErrNotProvider = errors.New("caller is not a provider")

	// ErrPaused is returned while the system is paused.
	ErrPaused = errors.New("system is paused")

	// ErrCooldown is returned when an operation's cooldown has not elapsed.
	ErrCooldown = errors.New("cooldown has not elapsed")

	// ErrInvalidBatch is returned when the target batch is in the wrong
	// state for the requested operation (open where closed is required,
	// or vice versa) or does not exist.
	ErrInvalidBatch = errors.New("batch is in an invalid state")

	// ErrInvalidBatchState is returned by CloseBatch when no batch is
	// open or the current batch is already closed.
	ErrInvalidBatchState = errors.New("no open batch to close")

	// ErrDuplicate is returned on a repeat contribution for the same
	// identity within the same batch.
	ErrDuplicate = errors.New("identity already contributed to this batch")

	// ErrUnknownRequest is returned for a callback naming no known
	// decryption request.
	ErrUnknownRequest = errors.New("unknown decryption request")

	// ErrReplay is returned when a callback targets an already
	// processed decryption request.
	ErrReplay = errors.New("decryption request already processed")

	// ErrStateMismatch is returned when the recomputed commitment does
	// not match the one recorded at request time.
	ErrStateMismatch = errors.New("aggregate state changed since request")

	// ErrProofVerification is returned when the oracle's correctness
	// proof fails verification.
	ErrProofVerification = errors.New("decryption proof verification failed")
)
