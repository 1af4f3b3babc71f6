package casework

import (
	"math"
	"time"

	"casework/internal/config"
)

// Score weights: information completion and scope approval carry the bulk,
// client contact recency the remainder.
const (
	weightInfo    = 0.4
	weightScope   = 0.4
	weightRecency = 0.2
)

// ComputeScore combines the checklist ratios and contact recency into the
// 0-100 readiness score.
func ComputeScore(info, scope ChecklistCounts, lastContact *time.Time, now time.Time, cfg config.Readiness) int {
	recency := RecencyFactor(lastContact, now, cfg)
	raw := weightInfo*info.Ratio() + weightScope*scope.Ratio() + weightRecency*recency
	score := int(math.Round(raw * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// RecencyFactor gives full credit for contact within the recent window and
// decays linearly to zero at the staleness threshold. No recorded contact
// scores zero.
func RecencyFactor(lastContact *time.Time, now time.Time, cfg config.Readiness) float64 {
	if lastContact == nil || lastContact.IsZero() {
		return 0
	}
	age := now.Sub(*lastContact)
	if age < 0 {
		age = 0
	}
	recent := time.Duration(cfg.RecentContactDays) * 24 * time.Hour
	stale := time.Duration(cfg.StaleContactDays) * 24 * time.Hour
	if age <= recent {
		return 1
	}
	if stale <= recent || age >= stale {
		return 0
	}
	return float64(stale-age) / float64(stale-recent)
}
