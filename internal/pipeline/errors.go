package pipeline

import "errors"

// Session-fatal sentinels. Stage-local degradable failures never surface
// here; those resolve to stubs or excluded modalities inside the stages.
var (
	// ErrDiarizationFailed aborts the session; no fallback exists for
	// speaker isolation.
	ErrDiarizationFailed = errors.New("diarization failed")

	// ErrSessionCancelled marks a cooperative cancellation requested by
	// the caller.
	ErrSessionCancelled = errors.New("session cancelled")
)
