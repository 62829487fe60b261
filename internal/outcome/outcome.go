// Package outcome defines the shared result tags and error taxonomy used at
// the fleet's public boundary. Operations never let errors escape as panics;
// they return a tagged Outcome plus a human-readable message the presentation
// layer can surface directly.
package outcome

import "errors"

// Outcome tags the result of a per-session operation.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Skipped
)

// String returns the lowercase tag name.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Sentinel errors for the failure modes the fleet distinguishes. Everything
// else is wrapped context around one of these or a transient per-item failure
// that is counted rather than returned.
var (
	// ErrCredentialRejected means the platform refused the session's token.
	ErrCredentialRejected = errors.New("credential rejected")
	// ErrTimeout means a login or voice join exceeded its bound.
	ErrTimeout = errors.New("timed out")
	// ErrNotFound means an operation referenced an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyRunning means a batch job was submitted while one is active.
	ErrAlreadyRunning = errors.New("job already running")
	// ErrConnectionLost means the gateway dropped involuntarily.
	ErrConnectionLost = errors.New("connection lost")
)
