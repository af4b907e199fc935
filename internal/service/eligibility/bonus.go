package eligibility

import (
	"fmt"
	"sort"

	"github.com/aimd54/giveaway-engine/internal/models"
)

// ComputeBonus returns the extra lottery weight earned by the participant and
// one reason per applied rule. Roles are reported in role ID order, then the
// booster bonus, then level thresholds ascending.
func ComputeBonus(facts *models.ParticipantFacts, rules models.BonusEntries) (int, []string) {
	if facts == nil {
		return 0, nil
	}

	extra := 0
	var reasons []string

	roleIDs := make([]string, 0, len(rules.Roles))
	for roleID := range rules.Roles {
		roleIDs = append(roleIDs, roleID)
	}
	sort.Strings(roleIDs)

	for _, roleID := range roleIDs {
		if !facts.HasRole(roleID) {
			continue
		}
		bonus := rules.Roles[roleID]
		extra += bonus
		reasons = append(reasons, fmt.Sprintf("Role %s: +%d", roleID, bonus))
	}

	if facts.Boosting && rules.Booster > 0 {
		extra += rules.Booster
		reasons = append(reasons, fmt.Sprintf("Server booster: +%d", rules.Booster))
	}

	if facts.Level != nil && len(rules.Levels) > 0 {
		thresholds := make([]int, 0, len(rules.Levels))
		for threshold := range rules.Levels {
			thresholds = append(thresholds, threshold)
		}
		sort.Ints(thresholds)

		for _, threshold := range thresholds {
			if *facts.Level < threshold {
				break
			}
			bonus := rules.Levels[threshold]
			extra += bonus
			reasons = append(reasons, fmt.Sprintf("Level %d+: +%d", threshold, bonus))
		}
	}

	return extra, reasons
}

// EntryWeight is the total lottery weight of a new entry: one baseline entry plus bonuses.
func EntryWeight(facts *models.ParticipantFacts, rules models.BonusEntries) (int, []string) {
	extra, reasons := ComputeBonus(facts, rules)
	return 1 + extra, reasons
}
