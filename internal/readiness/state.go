// internal/readiness/state.go
//
// Named states of the sealing lifecycle.
//
//   booting ──► sealing-available ──► needs-authorization ──► authorizing ──► authorized
//      │                                                           │
//      └──► sealing-unavailable                                    └──► failed
//
// Any state can drop to mock (fallback) or failed. Only authorized seals
// for real; every other state plays in mock mode so the UI never stalls.

package readiness

import "time"

// State is one phase of the sealing lifecycle.
type State string

const (
	StateBooting            State = "booting"
	StateUnavailable        State = "sealing-unavailable"
	StateAvailable          State = "sealing-available"
	StateNeedsAuthorization State = "needs-authorization"
	StateAuthorizing        State = "authorizing"
	StateAuthorized         State = "authorized"
	StateMock               State = "mock"
	StateFailed             State = "failed"
)

// Mode is how the engine treats new tile values.
type Mode string

const (
	ModeSealed Mode = "sealed"
	ModeMock   Mode = "mock"
)

// Status is the observable snapshot of a Machine.
type Status struct {
	State      State     `json:"state"`
	LastError  string    `json:"lastError,omitempty"`
	Generation uint64    `json:"generation"`
	Since      time.Time `json:"since"`
}

// Mode derives the gameplay mode from the state.
func (s State) Mode() Mode {
	if s == StateAuthorized {
		return ModeSealed
	}
	return ModeMock
}
