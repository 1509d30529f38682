package engine

import (
	"time"

	"rental-thermostat-backend/internal/model"
	"rental-thermostat-backend/internal/occupancy"
)

// Decision is the single outcome of one evaluation cycle for one thermostat.
// Derived state: it is cached for introspection and feeds the temperature log,
// never persisted as its own entity.
type Decision struct {
	ThermostatID      int64
	WinningRuleID     *int64
	OccupancyKind     occupancy.Kind
	TargetTemperature float64
	IsCooling         bool
	Hold              bool // no applicable rule: keep the last applied setpoint
	EvaluatedAt       time.Time
}

// ApplicableRule pairs a rule with the start of the occupancy interval (or
// explicit window) that made it applicable, which the resolver uses for
// tie-breaking.
type ApplicableRule struct {
	Rule         model.ScheduleRule
	TriggerStart time.Time
}

// Evaluate computes the target setpoint for one thermostat at now, given an
// immutable snapshot of its rules and occupancy intervals. Pure: no I/O, no
// clock reads, fractional degrees passed through unrounded.
//
// All windows are half-open. With hours_after_checkout = h, the CHECK_OUT rule
// applies on [checkout, checkout+h) — it is no longer applicable at exactly
// checkout+h.
func Evaluate(thermostatID int64, rules []model.ScheduleRule, intervals []occupancy.Interval, lastApplied *float64, now time.Time) Decision {
	decision := Decision{
		ThermostatID: thermostatID,
		EvaluatedAt:  now,
	}

	occupied := occupancy.Covers(intervals, now)

	var applicable []ApplicableRule
	windowActive := false // a CHECK_IN or CHECK_OUT window covers now

	for _, rule := range rules {
		if !rule.IsActive || rule.ThermostatID != thermostatID {
			continue
		}
		switch rule.Type {
		case model.RuleCheckIn:
			if trigger, ok := checkInWindow(rule, intervals, now); ok {
				applicable = append(applicable, ApplicableRule{Rule: rule, TriggerStart: trigger})
				windowActive = true
			}
		case model.RuleCheckOut:
			if trigger, ok := checkOutWindow(rule, intervals, now); ok {
				applicable = append(applicable, ApplicableRule{Rule: rule, TriggerStart: trigger})
				windowActive = true
			}
		case model.RuleManual:
			if rule.StartTime != nil && rule.EndTime != nil &&
				!now.Before(*rule.StartTime) && now.Before(*rule.EndTime) {
				applicable = append(applicable, ApplicableRule{Rule: rule, TriggerStart: *rule.StartTime})
			}
		}
	}

	// VACANCY needs the window scan above to have finished: it only applies
	// when nothing covers now and no arrival/departure window is active.
	if !occupied && !windowActive {
		for _, rule := range rules {
			if rule.IsActive && rule.ThermostatID == thermostatID && rule.Type == model.RuleVacancy {
				applicable = append(applicable, ApplicableRule{Rule: rule})
			}
		}
	}

	decision.OccupancyKind = classify(applicable, occupied)

	switch len(applicable) {
	case 0:
		decision.Hold = true
		if lastApplied != nil {
			decision.TargetTemperature = *lastApplied
		}
		return decision
	case 1:
		return apply(decision, applicable[0])
	default:
		return apply(decision, Resolve(applicable, now))
	}
}

func apply(decision Decision, winner ApplicableRule) Decision {
	id := winner.Rule.ID
	decision.WinningRuleID = &id
	decision.TargetTemperature = winner.Rule.TargetTemperature
	decision.IsCooling = winner.Rule.IsCooling
	decision.OccupancyKind = kindForRule(winner.Rule.Type, decision.OccupancyKind)
	return decision
}

// checkInWindow reports whether now falls in the pre-arrival window
// [start - hours_before, start) of any interval. When several intervals
// qualify, the most recently started one is the trigger.
func checkInWindow(rule model.ScheduleRule, intervals []occupancy.Interval, now time.Time) (time.Time, bool) {
	var trigger time.Time
	found := false
	lead := time.Duration(rule.HoursBeforeCheckin) * time.Hour
	for _, iv := range intervals {
		windowStart := iv.Start.Add(-lead)
		if !now.Before(windowStart) && now.Before(iv.Start) {
			if !found || iv.Start.After(trigger) {
				trigger = iv.Start
				found = true
			}
		}
	}
	return trigger, found
}

// checkOutWindow reports whether now falls in the post-departure window
// [end, end + hours_after) of any interval.
func checkOutWindow(rule model.ScheduleRule, intervals []occupancy.Interval, now time.Time) (time.Time, bool) {
	var trigger time.Time
	found := false
	tail := time.Duration(rule.HoursAfterCheckout) * time.Hour
	for _, iv := range intervals {
		if !now.Before(iv.End) && now.Before(iv.End.Add(tail)) {
			if !found || iv.End.After(trigger) {
				trigger = iv.End
				found = true
			}
		}
	}
	return trigger, found
}

func classify(applicable []ApplicableRule, occupied bool) occupancy.Kind {
	if occupied {
		return occupancy.KindBooked
	}
	for _, a := range applicable {
		switch a.Rule.Type {
		case model.RuleCheckIn:
			return occupancy.KindCheckIn
		case model.RuleCheckOut:
			return occupancy.KindCheckOut
		}
	}
	return occupancy.KindVacant
}

func kindForRule(ruleType model.RuleType, fallback occupancy.Kind) occupancy.Kind {
	switch ruleType {
	case model.RuleCheckIn:
		return occupancy.KindCheckIn
	case model.RuleCheckOut:
		return occupancy.KindCheckOut
	case model.RuleVacancy:
		return occupancy.KindVacant
	default:
		return fallback
	}
}
