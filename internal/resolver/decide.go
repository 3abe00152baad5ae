package resolver

import (
	"fmt"
	"slices"

	"gamevault/internal/documents"
	"gamevault/internal/services"
)

// Outcome is the result of one resolution attempt.
type Outcome = documents.Outcome

// Thresholds controls auto-acceptance and the approval list size.
type Thresholds struct {
	HighConfidence float64
	MinGap         float64
	CandidateCount int
}

// DefaultThresholds mirrors the config defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{HighConfidence: 0.85, MinGap: 0.15, CandidateCount: 5}
}

// Validate rejects thresholds that would make the rule meaningless.
func (t Thresholds) Validate() error {
	if t.HighConfidence <= 0 || t.HighConfidence > 1 {
		return services.Wrap(services.ErrConfiguration, "resolver", "thresholds", fmt.Sprintf("high_confidence must be in (0,1], got %v", t.HighConfidence), nil)
	}
	if t.MinGap < 0 || t.MinGap > 1 {
		return services.Wrap(services.ErrConfiguration, "resolver", "thresholds", fmt.Sprintf("min_gap must be in [0,1], got %v", t.MinGap), nil)
	}
	if t.CandidateCount < 1 {
		return services.Wrap(services.ErrConfiguration, "resolver", "thresholds", fmt.Sprintf("candidate_count must be at least 1, got %d", t.CandidateCount), nil)
	}
	return nil
}

// scoreEpsilon absorbs float error so a gap equal to MinGap is accepted.
const scoreEpsilon = 1e-9

// Decide maps ranked candidates to an outcome. Candidates must already be
// sorted best first.
func Decide(candidates []documents.Candidate, t Thresholds) Outcome {
	if len(candidates) == 0 {
		return documents.UnknownOutcome()
	}
	top := candidates[0].Score
	second := 0.0
	if len(candidates) > 1 {
		second = candidates[1].Score
	}
	if top+scoreEpsilon >= t.HighConfidence && top-second+scoreEpsilon >= t.MinGap {
		return documents.ResolvedOutcome(candidates[0].Digest)
	}
	k := min(max(t.CandidateCount, 1), len(candidates))
	return documents.ApprovalOutcome(slices.Clone(candidates[:k]))
}
