package model

import "time"

// Property represents a rental property that owns thermostats.
type Property struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:128;not null"`
	Street    string `gorm:"size:256"`
	City      string `gorm:"size:128"`
	State     string `gorm:"size:128"`
	ZipCode   string `gorm:"size:32"`
	Country   string `gorm:"size:128"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Thermostats []Thermostat `gorm:"foreignKey:PropertyID"`
}
