package documents

// ResolutionState is where a store entry currently sits.
type ResolutionState string

const (
	StateNone          ResolutionState = ""
	StateResolved      ResolutionState = "resolved"
	StateNeedsApproval ResolutionState = "needs_approval"
	StateUnknown       ResolutionState = "unknown"
)

func (s ResolutionState) String() string {
	if s == StateNone {
		return "none"
	}
	return string(s)
}

// Outcome is the result of one resolution attempt. Digest is set only for
// Resolved; Candidates only for NeedsApproval.
type Outcome struct {
	State      ResolutionState `json:"state"`
	Digest     *GameDigest     `json:"digest,omitempty"`
	Candidates []Candidate     `json:"candidates,omitempty"`
	Manual     bool            `json:"manual,omitempty"`
}

// ResolvedOutcome builds a Resolved outcome.
func ResolvedOutcome(d GameDigest) Outcome {
	return Outcome{State: StateResolved, Digest: &d}
}

// ApprovalOutcome builds a NeedsApproval outcome.
func ApprovalOutcome(candidates []Candidate) Outcome {
	return Outcome{State: StateNeedsApproval, Candidates: candidates}
}

// UnknownOutcome builds an Unknown outcome.
func UnknownOutcome() Outcome {
	return Outcome{State: StateUnknown}
}

// GameID returns the resolved catalog ID or 0.
func (o Outcome) GameID() int64 {
	if o.State != StateResolved || o.Digest == nil {
		return 0
	}
	return o.Digest.ID
}
