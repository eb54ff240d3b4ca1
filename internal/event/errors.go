package event

import "errors"

// Run-level error taxonomy. Per-record failures never surface as errors;
// they become Rejections.
var (
	// ErrSourceUnavailable: the upstream event store could not be reached
	// after the SDK's own retries. Fatal for the run, retryable by the
	// caller.
	ErrSourceUnavailable = errors.New("event source unavailable")

	// ErrEmptyBatch: no events exist for the unit. Not a failure — callers
	// treat it as a valid zero-row outcome.
	ErrEmptyBatch = errors.New("no events for batch unit")

	// ErrLoadFailed: the warehouse transaction could not commit. Fatal for
	// the run; always safe to retry because the staged load is idempotent.
	ErrLoadFailed = errors.New("warehouse load failed")
)
