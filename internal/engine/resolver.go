package engine

import (
	"sort"
	"time"

	"rental-thermostat-backend/internal/model"
)

// Fixed, total priority order. Explicit human overrides beat arrival
// automation; arrival comfort beats departure cost-saving; departure beats
// generic vacancy because its window is time-bounded and guest-adjacent.
var rulePriority = map[model.RuleType]int{
	model.RuleManual:   4,
	model.RuleCheckIn:  3,
	model.RuleCheckOut: 2,
	model.RuleVacancy:  1,
}

// Resolve picks the single winning rule from a non-empty applicable set.
// Pure and total: identical inputs always return the identical rule.
// Ties within a type go to the most recently started triggering interval,
// then to the lowest rule id.
func Resolve(applicable []ApplicableRule, now time.Time) ApplicableRule {
	ranked := make([]ApplicableRule, len(applicable))
	copy(ranked, applicable)

	sort.Slice(ranked, func(i, j int) bool {
		pi, pj := rulePriority[ranked[i].Rule.Type], rulePriority[ranked[j].Rule.Type]
		if pi != pj {
			return pi > pj
		}
		if !ranked[i].TriggerStart.Equal(ranked[j].TriggerStart) {
			return ranked[i].TriggerStart.After(ranked[j].TriggerStart)
		}
		return ranked[i].Rule.ID < ranked[j].Rule.ID
	})

	return ranked[0]
}
