package model

import "time"

// TemperatureLog is the append-only record of evaluation cycle outcomes. One
// row per completed cycle; a failed dispatch still logs the attempted target,
// flagged by Succeeded=false and ErrorKind.
type TemperatureLog struct {
	ID           int64     `gorm:"autoIncrement;primaryKey"`
	ThermostatID int64     `gorm:"not null;index:idx_temperature_logs_thermostat_recorded"`
	Temperature  float64   `gorm:"not null"`
	IsOccupied   bool      `gorm:"not null"`
	Succeeded    bool      `gorm:"not null"`
	ErrorKind    string    `gorm:"size:32"`
	RecordedAt   time.Time `gorm:"not null;index:idx_temperature_logs_thermostat_recorded"`
}
