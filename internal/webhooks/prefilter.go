package webhooks

import (
	"strings"

	"gamevault/internal/catalog"
)

// PrefilterRejectionReason explains why an event was dropped before any
// threshold was consulted.
type PrefilterRejectionReason string

const (
	PrefilterMissingFields   PrefilterRejectionReason = "missing_fields"
	PrefilterDeleted         PrefilterRejectionReason = "deleted"
	PrefilterNotPCGame       PrefilterRejectionReason = "not_pc_game"
	PrefilterNotMainCategory PrefilterRejectionReason = "not_main_category"
	PrefilterNoUserMetrics   PrefilterRejectionReason = "no_user_metrics"
)

// Prefilter rejects events that can never matter to a PC library. It
// reports the first failing check.
func Prefilter(evt Event) (PrefilterRejectionReason, bool) {
	g := evt.Game
	switch {
	case g.ID <= 0 || strings.TrimSpace(g.Name) == "":
		return PrefilterMissingFields, true
	case evt.Method == MethodDelete:
		return PrefilterDeleted, true
	case !g.IsPCGame():
		return PrefilterNotPCGame, true
	case !catalog.IsMainCategory(g.Category):
		return PrefilterNotMainCategory, true
	case g.Follows == 0 && g.Hypes == 0 && g.AggregatedRating == 0:
		return PrefilterNoUserMetrics, true
	}
	return "", false
}
