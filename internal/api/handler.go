package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"rental-thermostat-backend/internal/engine"
	"rental-thermostat-backend/internal/store"
)

// Engine is the slice of the scheduler the API needs. TriggerEvaluation is
// asynchronous and runs the cycle on the scheduler's own context, not the
// request's.
type Engine interface {
	TriggerEvaluation(thermostatID int64)
	LastDecision(thermostatID int64) (engine.Decision, bool)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	engine  Engine
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, eng Engine, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		engine:  eng,
		webpush: webpushOptions,
	}
}
