package analyzer

import "fmt"

// InsufficientAudioError reports a diarized segment below the minimum
// duration. The modality is excluded and its confidence penalized; the
// session continues.
type InsufficientAudioError struct {
	DurationSec float64
	MinSec      float64
}

func (e *InsufficientAudioError) Error() string {
	return fmt.Sprintf("segment duration %.2fs below minimum %.2fs", e.DurationSec, e.MinSec)
}

// ExternalAPIError reports a failed external collaborator call. Degradable
// stages substitute their stub fallback instead of surfacing it.
type ExternalAPIError struct {
	Service string
	Err     error
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("external call to %s failed: %v", e.Service, e.Err)
}

func (e *ExternalAPIError) Unwrap() error { return e.Err }
