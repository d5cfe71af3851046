package audio

import "fmt"

// DecodeError reports an audio reference that could not be decoded, even
// after the ffmpeg re-encode fallback. Decoding has no further fallback,
// so this fails the session.
type DecodeError struct {
	Ref string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio decode failed for %s: %v", e.Ref, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
