// Package eligibility decides whether a participant may enter a giveaway and
// how much lottery weight the entry carries. It performs no I/O.
package eligibility

import (
	"fmt"
	"time"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// Eligible evaluates every configured requirement against the participant facts.
// It returns on the first failing check with a reason suitable for the participant.
// Unknown facts never satisfy a configured check.
func Eligible(facts *models.ParticipantFacts, req models.Requirements, now time.Time) (bool, string) {
	if facts == nil {
		facts = &models.ParticipantFacts{}
	}

	if req.MinLevel > 0 {
		if facts.Level == nil || *facts.Level < req.MinLevel {
			return false, fmt.Sprintf("Minimum level %d required", req.MinLevel)
		}
	}

	if len(req.RequiredRoles) > 0 && !hasAnyRole(facts, req.RequiredRoles) {
		return false, "One of the required roles is needed"
	}

	if req.MinAccountAge > 0 {
		if facts.AccountCreatedAt == nil || now.Sub(*facts.AccountCreatedAt) < req.MinAccountAge {
			return false, fmt.Sprintf("Account must be at least %s old", FormatAge(req.MinAccountAge))
		}
	}

	if req.MinMemberAge > 0 {
		if facts.JoinedAt == nil || now.Sub(*facts.JoinedAt) < req.MinMemberAge {
			return false, fmt.Sprintf("Must be a member for at least %s", FormatAge(req.MinMemberAge))
		}
	}

	if req.RequireVoice {
		if facts.InVoice == nil || !*facts.InVoice {
			return false, "Must be connected to a voice channel"
		}
	}

	return true, ""
}

func hasAnyRole(facts *models.ParticipantFacts, roles []string) bool {
	for _, role := range roles {
		if facts.HasRole(role) {
			return true
		}
	}
	return false
}

// FormatAge renders a duration in whole days or hours when it divides evenly.
func FormatAge(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d >= day && d%day == 0:
		return plural(int(d/day), "day")
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
