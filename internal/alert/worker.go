package alert

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"rental-thermostat-backend/internal/model"
)

// ExhaustionEvent describes a thermostat whose dispatch attempts were all
// exhausted in one evaluation cycle.
type ExhaustionEvent struct {
	ThermostatID int64
	Target       float64
	Attempts     int
}

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending operator alerts.
type WorkerPool struct {
	size    int
	jobs    chan ExhaustionEvent
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
	logger  zerolog.Logger
}

// NewWorkerPool creates a new alert worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan ExhaustionEvent, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger.With().Str("component", "alert").Logger(),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.Debug().Int("worker", id).Msg("alert worker started")
	for {
		select {
		case event := <-wp.jobs:
			wp.sendAlertsForThermostat(ctx, event)
		case <-ctx.Done():
			wp.logger.Debug().Int("worker", id).Msg("alert worker shutting down")
			return
		}
	}
}

// Dispatch queues an exhaustion event for delivery. Alerts are best effort;
// when the queue is full the event is dropped instead of stalling the
// dispatch workers that report it.
func (wp *WorkerPool) Dispatch(event ExhaustionEvent) {
	select {
	case wp.jobs <- event:
	default:
		wp.logger.Warn().Int64("thermostat_id", event.ThermostatID).Msg("alert queue full, dropping exhaustion event")
	}
}

// sendAlertsForThermostat fetches subscriptions and pushes an alert for the
// failed thermostat.
func (wp *WorkerPool) sendAlertsForThermostat(ctx context.Context, event ExhaustionEvent) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_thermostat_mapping stm ON stm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("stm.thermostat_id = ?", event.ThermostatID).
		Find(&subscriptions).Error
	if err != nil {
		wp.logger.Error().Err(err).Int64("thermostat_id", event.ThermostatID).Msg("failed to fetch alert subscriptions")
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	var thermostat model.Thermostat
	label := fmt.Sprintf("thermostat %d", event.ThermostatID)
	if err := wp.db.WithContext(ctx).
		Select("name").
		First(&thermostat, event.ThermostatID).Error; err != nil {
		wp.logger.Warn().Err(err).Int64("thermostat_id", event.ThermostatID).Msg("failed to fetch thermostat name")
	} else if thermostat.Name != "" {
		label = thermostat.Name
	}

	message := fmt.Sprintf("Could not set %s to %.1f°F after %d attempts. Manual intervention may be needed.",
		label, event.Target, event.Attempts)

	wp.logger.Info().
		Int64("thermostat_id", event.ThermostatID).
		Int("subscriptions", len(subscriptions)).
		Msg("sending dispatch failure alerts")

	for _, sub := range subscriptions {
		wp.sendAlert(ctx, sub, []byte(message))
	}
}

// sendAlert sends a single web push notification.
func (wp *WorkerPool) sendAlert(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send alert")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.logger.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
