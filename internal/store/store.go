package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"rental-thermostat-backend/internal/model"
)

// Store defines the interface for all database operations the engine and API
// perform. It exists so the scheduler and dispatch tests can swap in mocks.
type Store interface {
	DB() *gorm.DB

	ListThermostats(ctx context.Context) ([]model.Thermostat, error)
	GetThermostat(ctx context.Context, id int64) (*model.Thermostat, error)
	ListActiveRules(ctx context.Context, thermostatID int64) ([]model.ScheduleRule, error)

	// MarkDispatched records a confirmed setpoint on the thermostat row. It is
	// only called after the device acknowledged the command.
	MarkDispatched(ctx context.Context, thermostatID int64, temperature float64, at time.Time) error
	SetOnline(ctx context.Context, thermostatID int64, online bool) error

	AppendTemperatureLog(ctx context.Context, entry *model.TemperatureLog) error
	ListTemperatureLogs(ctx context.Context, thermostatID int64, since time.Time, limit int) ([]model.TemperatureLog, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) ListThermostats(ctx context.Context) ([]model.Thermostat, error) {
	var thermostats []model.Thermostat
	if err := s.db.WithContext(ctx).Order("id").Find(&thermostats).Error; err != nil {
		return nil, fmt.Errorf("failed to list thermostats: %w", err)
	}
	return thermostats, nil
}

func (s *gormStore) GetThermostat(ctx context.Context, id int64) (*model.Thermostat, error) {
	var thermostat model.Thermostat
	if err := s.db.WithContext(ctx).First(&thermostat, id).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch thermostat %d: %w", id, err)
	}
	return &thermostat, nil
}

func (s *gormStore) ListActiveRules(ctx context.Context, thermostatID int64) ([]model.ScheduleRule, error) {
	var rules []model.ScheduleRule
	err := s.db.WithContext(ctx).
		Where("thermostat_id = ? AND is_active = ?", thermostatID, true).
		Order("id").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for thermostat %d: %w", thermostatID, err)
	}
	return rules, nil
}

func (s *gormStore) MarkDispatched(ctx context.Context, thermostatID int64, temperature float64, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&model.Thermostat{}).
		Where("id = ?", thermostatID).
		Updates(map[string]any{
			"last_temperature": temperature,
			"last_updated":     at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark dispatch for thermostat %d: %w", thermostatID, err)
	}
	return nil
}

func (s *gormStore) SetOnline(ctx context.Context, thermostatID int64, online bool) error {
	err := s.db.WithContext(ctx).
		Model(&model.Thermostat{}).
		Where("id = ?", thermostatID).
		Update("is_online", online).Error
	if err != nil {
		return fmt.Errorf("failed to update online flag for thermostat %d: %w", thermostatID, err)
	}
	return nil
}

func (s *gormStore) AppendTemperatureLog(ctx context.Context, entry *model.TemperatureLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append temperature log for thermostat %d: %w", entry.ThermostatID, err)
	}
	return nil
}

func (s *gormStore) ListTemperatureLogs(ctx context.Context, thermostatID int64, since time.Time, limit int) ([]model.TemperatureLog, error) {
	q := s.db.WithContext(ctx).
		Where("thermostat_id = ?", thermostatID).
		Order("recorded_at DESC")
	if !since.IsZero() {
		q = q.Where("recorded_at >= ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var logs []model.TemperatureLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list temperature logs for thermostat %d: %w", thermostatID, err)
	}
	return logs, nil
}
