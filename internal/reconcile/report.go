package reconcile

import (
	"time"

	"gamevault/internal/documents"
)

// Transition labels used in metrics.
const (
	TransitionUnknownToApproval  = "unknown_to_approval"
	TransitionUnknownToResolved  = "unknown_to_resolved"
	TransitionApprovalToResolved = "approval_to_resolved"
	TransitionApprovalToUnknown  = "approval_to_unknown"
	TransitionNoChange           = "no_change"
)

// Report tallies one pass.
type Report struct {
	UserID             string    `json:"user_id"`
	Total              int       `json:"total"`
	UnknownToApproval  int       `json:"unknown_to_approval"`
	UnknownToResolved  int       `json:"unknown_to_resolved"`
	ApprovalToResolved int       `json:"approval_to_resolved"`
	ApprovalToUnknown  int       `json:"approval_to_unknown"`
	NoChange           int       `json:"no_change"`
	Errors             int       `json:"errors"`
	Superseded         int       `json:"superseded,omitempty"`
	Started            time.Time `json:"started"`
	Finished           time.Time `json:"finished"`
	Cancelled          bool      `json:"cancelled,omitempty"`
}

// NewlyResolved counts entries that left the backlog.
func (r Report) NewlyResolved() int {
	return r.UnknownToResolved + r.ApprovalToResolved
}

// StillUnresolved counts entries that stayed in either queue, including
// entries that errored or were never reached. Entries moved by hand during
// the pass are excluded.
func (r Report) StillUnresolved() int {
	return r.Total - r.NewlyResolved() - r.Superseded
}

// Promoted counts unknown entries that gained candidates.
func (r Report) Promoted() int {
	return r.UnknownToApproval
}

// Demoted counts entries that lost their candidates.
func (r Report) Demoted() int {
	return r.ApprovalToUnknown
}

// Duration is the wall time of the pass.
func (r Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// record counts one transition and returns its label.
func (r *Report) record(from, to documents.ResolutionState) string {
	switch {
	case from == documents.StateUnknown && to == documents.StateNeedsApproval:
		r.UnknownToApproval++
		return TransitionUnknownToApproval
	case from == documents.StateUnknown && to == documents.StateResolved:
		r.UnknownToResolved++
		return TransitionUnknownToResolved
	case from == documents.StateNeedsApproval && to == documents.StateResolved:
		r.ApprovalToResolved++
		return TransitionApprovalToResolved
	case from == documents.StateNeedsApproval && to == documents.StateUnknown:
		r.ApprovalToUnknown++
		return TransitionApprovalToUnknown
	default:
		r.NoChange++
		return TransitionNoChange
	}
}
