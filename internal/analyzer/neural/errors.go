package neural

import "fmt"

// ModelLoadError reports a classifier model that could not be loaded from
// the local cache or fetched remotely. The task stays NotReady for the
// process lifetime and is not retried per request.
type ModelLoadError struct {
	Task string
	Err  error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("model load failed for task %s: %v", e.Task, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }
