package webhooks

import (
	"strings"
	"time"

	"gamevault/internal/catalog"
	"gamevault/internal/config"
)

// RejectionReason explains why the filter stage dropped an event.
type RejectionReason string

const (
	RejectImplausibleReleaseDate   RejectionReason = "implausible_release_date"
	RejectFutureReleaseNoHype      RejectionReason = "future_release_no_hype"
	RejectFutureReleaseCancelled   RejectionReason = "future_release_cancelled"
	RejectEarlyAccessLowPopularity RejectionReason = "early_access_low_popularity"
	RejectNoScoreLowPopularity     RejectionReason = "no_score_low_popularity"
	RejectExcludedRegion           RejectionReason = "excluded_region"
)

const (
	earlyAccessSinceYear = 2018
	modernReleaseYear    = 2011
	maxFutureYears       = 10
)

// Rules holds the popularity thresholds and region exclusions of the
// filter stage.
type Rules struct {
	PopularityThreshold  int64
	EarlyAccessThreshold int64
	// ExcludedRegions are matched case-insensitively against version titles.
	ExcludedRegions []string
}

// RulesFromConfig reads the webhook section.
func RulesFromConfig(cfg config.Webhooks) Rules {
	return Rules{
		PopularityThreshold:  int64(cfg.PopularityThreshold),
		EarlyAccessThreshold: int64(cfg.EarlyAccessThreshold),
		ExcludedRegions:      cfg.ExcludedRegions,
	}
}

// Filter rejects games that are unreleased without interest, unpopular, or
// regional variants. now anchors the release checks.
func (r Rules) Filter(evt Event, now time.Time) (RejectionReason, bool) {
	g := evt.Game
	released := g.FirstReleaseDate != 0 && g.FirstReleaseDate <= now.Unix()
	popularity := g.Follows + g.Hypes
	year := g.ReleaseYear()

	switch {
	case g.FirstReleaseDate < 0 || g.FirstReleaseDate > now.AddDate(maxFutureYears, 0, 0).Unix():
		return RejectImplausibleReleaseDate, true
	case !released && g.Hypes == 0:
		return RejectFutureReleaseNoHype, true
	case !released && g.Status == catalog.StatusCancelled:
		return RejectFutureReleaseCancelled, true
	case released && g.Status == catalog.StatusEarlyAccess && year > earlyAccessSinceYear && popularity < r.EarlyAccessThreshold:
		return RejectEarlyAccessLowPopularity, true
	case released && year > modernReleaseYear && g.AggregatedRating == 0 && g.Rating == 0 && popularity < r.PopularityThreshold:
		return RejectNoScoreLowPopularity, true
	case r.excludedRegion(g.VersionTitle):
		return RejectExcludedRegion, true
	}
	return "", false
}

func (r Rules) excludedRegion(versionTitle string) bool {
	title := strings.ToLower(versionTitle)
	if title == "" {
		return false
	}
	for _, region := range r.ExcludedRegions {
		if region != "" && strings.Contains(title, strings.ToLower(region)) {
			return true
		}
	}
	return false
}
