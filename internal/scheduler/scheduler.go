package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rental-thermostat-backend/config"
	"rental-thermostat-backend/internal/device"
	"rental-thermostat-backend/internal/dispatch"
	"rental-thermostat-backend/internal/engine"
	"rental-thermostat-backend/internal/model"
	"rental-thermostat-backend/internal/occupancy"
	"rental-thermostat-backend/internal/store"
	"rental-thermostat-backend/internal/telemetry"
)

// entry tracks the evaluation state of one thermostat. While a cycle is
// running any further trigger just sets pending, so N triggers during a cycle
// collapse into exactly one follow-up evaluation.
type entry struct {
	running bool
	pending bool
}

// Dispatcher executes setpoint commands. Satisfied by dispatch.Pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, thermostat model.Thermostat, target float64, mode device.Mode) dispatch.Result
}

// Service drives periodic and on-demand evaluation cycles. One cycle per
// thermostat runs at a time; the dispatch pool bounds device commands
// globally.
type Service struct {
	cfg        *config.Config
	store      store.Store
	normalizer *occupancy.Normalizer
	pool       Dispatcher
	logger     zerolog.Logger
	clock      func() time.Time

	mu        sync.Mutex
	baseCtx   context.Context
	entries   map[int64]*entry
	decisions map[int64]engine.Decision

	wg sync.WaitGroup
}

// NewService creates the evaluation scheduler.
func NewService(cfg *config.Config, st store.Store, normalizer *occupancy.Normalizer, pool Dispatcher, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		store:      st,
		normalizer: normalizer,
		pool:       pool,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		clock:      time.Now,
		baseCtx:    context.Background(),
		entries:    make(map[int64]*entry),
		decisions:  make(map[int64]engine.Decision),
	}
}

// Run starts the periodic evaluation and calendar sync loops and blocks until
// ctx is cancelled. ctx also becomes the context evaluation cycles run under.
func (s *Service) Run(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	if !s.cfg.Engine.Enabled {
		s.logger.Info().Msg("evaluation engine is disabled, not starting")
		return
	}
	s.logger.Info().
		Dur("interval", s.cfg.Engine.Interval).
		Dur("sync_interval", s.cfg.Calendar.SyncInterval).
		Msg("starting evaluation scheduler")

	s.EvaluateAll(ctx)

	evalTimer := time.NewTimer(s.cfg.Engine.Interval)
	defer evalTimer.Stop()
	syncTimer := time.NewTimer(s.cfg.Calendar.SyncInterval)
	defer syncTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("evaluation scheduler shutting down")
			s.wg.Wait()
			return
		case <-evalTimer.C:
			s.EvaluateAll(ctx)
			evalTimer.Reset(s.cfg.Engine.Interval)
		case <-syncTimer.C:
			s.SyncCalendars(ctx)
			syncTimer.Reset(s.cfg.Calendar.SyncInterval)
		}
	}
}

// EvaluateAll triggers an evaluation for every registered thermostat.
func (s *Service) EvaluateAll(ctx context.Context) {
	thermostats, err := s.store.ListThermostats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list thermostats for evaluation sweep")
		return
	}
	for _, t := range thermostats {
		s.TriggerEvaluation(t.ID)
	}
}

// TriggerEvaluation requests an evaluation cycle for one thermostat. If a
// cycle is already in flight the request coalesces into a single follow-up
// run; the call never blocks on the cycle itself. The cycle runs under the
// service's lifecycle context, so a short-lived caller such as an HTTP
// request handler cannot cancel it by returning.
func (s *Service) TriggerEvaluation(thermostatID int64) {
	s.mu.Lock()
	ctx := s.baseCtx
	e, ok := s.entries[thermostatID]
	if !ok {
		e = &entry{}
		s.entries[thermostatID] = e
	}
	if e.running {
		e.pending = true
		s.mu.Unlock()
		return
	}
	e.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			s.runCycle(ctx, thermostatID)

			s.mu.Lock()
			if e.pending {
				e.pending = false
				s.mu.Unlock()
				continue
			}
			e.running = false
			s.mu.Unlock()
			return
		}
	}()
}

// SyncCalendars refreshes occupancy for every thermostat and re-evaluates the
// ones whose interval set actually changed.
func (s *Service) SyncCalendars(ctx context.Context) {
	thermostats, err := s.store.ListThermostats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list thermostats for calendar sync")
		return
	}
	for _, t := range thermostats {
		snap := s.normalizer.Refresh(ctx, t.ID, t.PropertyID, s.clock())
		if snap.Changed {
			s.logger.Info().Int64("thermostat_id", t.ID).Msg("occupancy changed, re-evaluating")
			s.TriggerEvaluation(t.ID)
		}
	}
}

// LastDecision returns the most recent decision computed for a thermostat.
// Decisions are process-local derived state and rebuilt after a restart.
func (s *Service) LastDecision(thermostatID int64) (engine.Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[thermostatID]
	return d, ok
}

// runCycle executes one full evaluation cycle for one thermostat. A panic
// anywhere in the cycle is contained here so one misbehaving thermostat
// cannot take down the sweep.
func (s *Service) runCycle(ctx context.Context, thermostatID int64) {
	cycleID := uuid.NewString()
	logger := s.logger.With().Str("cycle_id", cycleID).Int64("thermostat_id", thermostatID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("evaluation cycle panicked")
			telemetry.EvaluationCycles.WithLabelValues("internal").Inc()
			s.appendLog(ctx, logger, &model.TemperatureLog{
				ThermostatID: thermostatID,
				Succeeded:    false,
				ErrorKind:    dispatch.ErrKindInternal,
				RecordedAt:   s.clock(),
			})
		}
	}()

	thermostat, err := s.store.GetThermostat(ctx, thermostatID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load thermostat")
		telemetry.EvaluationCycles.WithLabelValues("error").Inc()
		return
	}

	rules, err := s.store.ListActiveRules(ctx, thermostatID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load schedule rules")
		telemetry.EvaluationCycles.WithLabelValues("error").Inc()
		return
	}

	now := s.clock()
	snap := s.normalizer.Refresh(ctx, thermostat.ID, thermostat.PropertyID, now)
	if snap.Stale {
		logger.Warn().Msg("evaluating against stale occupancy")
	}

	decision := engine.Evaluate(thermostat.ID, rules, snap.Intervals, thermostat.LastTemperature, now)

	s.mu.Lock()
	s.decisions[thermostatID] = decision
	s.mu.Unlock()

	occupied := decision.OccupancyKind != occupancy.KindVacant

	if decision.Hold {
		telemetry.EvaluationCycles.WithLabelValues("hold").Inc()
		if thermostat.LastTemperature == nil {
			// Nothing has ever been applied; there is no setpoint to hold.
			logger.Debug().Msg("hold with no prior setpoint, skipping log")
			return
		}
		logger.Debug().Float64("held", *thermostat.LastTemperature).Msg("no applicable rule, holding setpoint")
		s.appendLog(ctx, logger, &model.TemperatureLog{
			ThermostatID: thermostatID,
			Temperature:  *thermostat.LastTemperature,
			IsOccupied:   occupied,
			Succeeded:    true,
			RecordedAt:   now,
		})
		return
	}

	mode := device.ModeHeat
	if decision.IsCooling {
		mode = device.ModeCool
	}
	result := s.pool.Dispatch(ctx, *thermostat, decision.TargetTemperature, mode)

	if result.Succeeded {
		telemetry.EvaluationCycles.WithLabelValues("success").Inc()
	} else {
		telemetry.EvaluationCycles.WithLabelValues("dispatch_failed").Inc()
	}

	s.appendLog(ctx, logger, &model.TemperatureLog{
		ThermostatID: thermostatID,
		Temperature:  result.AttemptedTemperature,
		IsOccupied:   occupied,
		Succeeded:    result.Succeeded,
		ErrorKind:    result.ErrorKind,
		RecordedAt:   result.DispatchedAt,
	})
}

func (s *Service) appendLog(ctx context.Context, logger zerolog.Logger, entry *model.TemperatureLog) {
	if err := s.store.AppendTemperatureLog(ctx, entry); err != nil {
		logger.Error().Err(err).Msg("failed to append temperature log")
	}
}
