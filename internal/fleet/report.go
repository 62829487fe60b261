package fleet

import (
	"github.com/zulandar/roundhouse/internal/batch"
	"github.com/zulandar/roundhouse/internal/outcome"
)

// SessionReport is the pure-data result of one per-session operation. It
// carries enough structure for the presentation layer to build a human
// message without touching fleet internals.
type SessionReport struct {
	SessionID string
	Label     string
	Outcome   outcome.Outcome
	Message   string
	// Job holds batch counters when the operation ran a batch job.
	Job *batch.Report
	// Deleted counts purged messages for the DM-clean job.
	Deleted int
}

// SessionInfo is a point-in-time snapshot of one session, for status views.
type SessionInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Status      string `json:"status"`
	SelfID      string `json:"self_id,omitempty"`
	VoiceState  string `json:"voice_state"`
	VoiceTarget string `json:"voice_target,omitempty"`
	JobRunning  bool   `json:"job_running"`
}

// success, failure, and skipped build tagged reports for a session.

func success(s *Session, msg string) SessionReport {
	return SessionReport{SessionID: s.id, Label: s.label, Outcome: outcome.Success, Message: msg}
}

func failure(s *Session, msg string) SessionReport {
	return SessionReport{SessionID: s.id, Label: s.label, Outcome: outcome.Failure, Message: msg}
}

func skipped(s *Session, msg string) SessionReport {
	return SessionReport{SessionID: s.id, Label: s.label, Outcome: outcome.Skipped, Message: msg}
}

// notFound builds the report for an unknown session id.
func notFound(id string) SessionReport {
	return SessionReport{SessionID: id, Outcome: outcome.Failure, Message: outcome.ErrNotFound.Error()}
}
