// Package analyzer defines the capability surface shared by the three
// analysis modalities. Fusion consumes analyzer outputs without knowing
// whether a real or stub variant produced them.
package analyzer

// State is the readiness of one analyzer.
type State string

const (
	// StateReady - the real analyzer is loaded and serving.
	StateReady State = "ready"
	// StateNotReady - the analyzer failed to initialize and will not be
	// retried for the process lifetime.
	StateNotReady State = "not_ready"
	// StateStub - the stub variant is configured; outputs are neutral
	// fallbacks with a confidence penalty applied downstream.
	StateStub State = "stub"
)

// Health reports an analyzer's readiness for the status surface.
type Health interface {
	Health() State
}
