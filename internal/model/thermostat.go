package model

import "time"

// Brand identifies the vendor a thermostat is controlled through.
type Brand string

const (
	BrandNest    Brand = "nest"
	BrandCielo   Brand = "cielo"
	BrandPioneer Brand = "pioneer"
)

// Thermostat represents a physical thermostat and its device registry state.
// The automation engine only ever writes LastTemperature and LastUpdated, and
// only after a confirmed successful dispatch.
type Thermostat struct {
	ID         int64  `gorm:"primaryKey"`
	PropertyID int64  `gorm:"index;not null"`
	Name       string `gorm:"size:256;not null"`
	Brand      Brand  `gorm:"size:32;not null"`
	DeviceID   string `gorm:"size:256;uniqueIndex;not null"`
	APIKey     string `gorm:"size:256"`
	APIToken   string `gorm:"size:256"`

	IsOnline        bool
	LastTemperature *float64
	LastUpdated     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Associations
	Property Property       `gorm:"constraint:OnDelete:CASCADE"`
	Rules    []ScheduleRule `gorm:"foreignKey:ThermostatID"`
}
