package model

import "time"

// RuleType enumerates the supported schedule rule types.
type RuleType string

const (
	RuleCheckIn  RuleType = "check_in"
	RuleCheckOut RuleType = "check_out"
	RuleVacancy  RuleType = "vacancy"
	RuleManual   RuleType = "manual"
)

// ScheduleRule holds one automation rule for a thermostat. Rules are mutated
// only through the API; the engine reads them as immutable snapshots within a
// cycle.
type ScheduleRule struct {
	ID           int64    `gorm:"primaryKey"`
	ThermostatID int64    `gorm:"index;not null"`
	Type         RuleType `gorm:"size:32;not null"`

	HoursBeforeCheckin int
	HoursAfterCheckout int
	TargetTemperature  float64 `gorm:"not null"`
	IsCooling          bool    `gorm:"default:true"`
	IsActive           bool    `gorm:"default:true"`

	// Explicit window, MANUAL rules only.
	StartTime *time.Time
	EndTime   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
