package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"rental-thermostat-backend/config"
	"rental-thermostat-backend/internal/alert"
	"rental-thermostat-backend/internal/device"
	"rental-thermostat-backend/internal/model"
	"rental-thermostat-backend/internal/store"
	"rental-thermostat-backend/internal/telemetry"
)

// Alerter receives exhaustion events for operator notification.
type Alerter interface {
	Dispatch(event alert.ExhaustionEvent)
}

type job struct {
	thermostat model.Thermostat
	target     float64
	mode       device.Mode
	result     chan Result
}

// Pool executes setpoint commands against vendor devices through a bounded
// worker pool. Each thermostat gets its own circuit breaker; retries use
// exponential backoff up to the configured attempt limit.
type Pool struct {
	size    int
	jobs    chan job
	store   store.Store
	alerts  Alerter
	cfg     config.EngineConfig
	brkCfg  config.BreakerConfig
	logger  zerolog.Logger
	clock   func() time.Time
	adapter func(*model.Thermostat) (device.Adapter, error)

	mu       sync.Mutex
	breakers map[int64]*device.Breaker
}

// NewPool creates a dispatch pool. Workers do not run until Start is called.
func NewPool(cfg config.EngineConfig, brkCfg config.BreakerConfig, st store.Store, alerts Alerter, logger zerolog.Logger) *Pool {
	return &Pool{
		size:     cfg.WorkerPoolSize,
		jobs:     make(chan job, cfg.WorkerPoolSize),
		store:    st,
		alerts:   alerts,
		cfg:      cfg,
		brkCfg:   brkCfg,
		logger:   logger.With().Str("component", "dispatch").Logger(),
		clock:    time.Now,
		adapter:  device.NewAdapter,
		breakers: make(map[int64]*device.Breaker),
	}
}

// SetAdapterFactory overrides how vendor adapters are built. Call before
// Start.
func (p *Pool) SetAdapterFactory(f func(*model.Thermostat) (device.Adapter, error)) {
	p.adapter = f
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		go p.worker(ctx, i)
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	p.logger.Debug().Int("worker", id).Msg("dispatch worker started")
	for {
		select {
		case j := <-p.jobs:
			j.result <- p.process(ctx, j)
		case <-ctx.Done():
			p.logger.Debug().Int("worker", id).Msg("dispatch worker shutting down")
			return
		}
	}
}

// Dispatch queues a setpoint command and blocks until a worker finishes it.
// The pool size bounds how many device commands are in flight at once.
func (p *Pool) Dispatch(ctx context.Context, thermostat model.Thermostat, target float64, mode device.Mode) Result {
	j := job{
		thermostat: thermostat,
		target:     target,
		mode:       mode,
		result:     make(chan Result, 1),
	}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return Result{
			ThermostatID:         thermostat.ID,
			AttemptedTemperature: target,
			ErrorKind:            ErrKindInternal,
			DispatchedAt:         p.clock(),
		}
	}
	select {
	case res := <-j.result:
		return res
	case <-ctx.Done():
		return Result{
			ThermostatID:         thermostat.ID,
			AttemptedTemperature: target,
			ErrorKind:            ErrKindInternal,
			DispatchedAt:         p.clock(),
		}
	}
}

func (p *Pool) process(ctx context.Context, j job) Result {
	telemetry.DispatchInFlight.Inc()
	defer telemetry.DispatchInFlight.Dec()

	res := Result{
		ThermostatID:         j.thermostat.ID,
		AttemptedTemperature: j.target,
		DispatchedAt:         p.clock(),
	}

	adapter, err := p.adapter(&j.thermostat)
	if err != nil {
		res.ErrorKind = ErrKindInternal
		res.AttemptCount = 1
		p.recordFailure(j, &res, err)
		return res
	}

	// A device the registry knows is offline gets one connectivity check
	// instead of setpoint attempts. If it answers, the registry flag is
	// restored and the dispatch proceeds.
	if !j.thermostat.IsOnline {
		checkCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		online, checkErr := adapter.IsOnline(checkCtx)
		cancel()
		if checkErr != nil || !online {
			res.ErrorKind = ErrKindDeviceOffline
			res.AttemptCount = 1
			p.recordFailure(j, &res, checkErr)
			return res
		}
		p.logger.Info().Int64("thermostat_id", j.thermostat.ID).Msg("device answered connectivity check, restoring online flag")
		if err := p.store.SetOnline(ctx, j.thermostat.ID, true); err != nil {
			p.logger.Error().Err(err).Int64("thermostat_id", j.thermostat.ID).Msg("failed to restore online flag")
		}
	}

	brk := p.breakerFor(j.thermostat.ID)

	attempts := 0
	var lastErr error
	op := func() error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		defer cancel()

		err := brk.Execute(attemptCtx, func(ctx context.Context) error {
			return adapter.SetTemperature(ctx, j.target, j.mode)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, device.ErrBreakerOpen) {
			return backoff.Permanent(err)
		}
		var ae *device.AdapterError
		if errors.As(err, &ae) && ae.Kind == device.FailureInvalid {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.BackoffInitial
	err = backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(p.cfg.MaxDispatchAttempts-1)), ctx))

	res.AttemptCount = attempts

	if err == nil {
		res.Succeeded = true
		if err := p.store.MarkDispatched(ctx, j.thermostat.ID, j.target, res.DispatchedAt); err != nil {
			p.logger.Error().Err(err).Int64("thermostat_id", j.thermostat.ID).Msg("failed to record dispatched setpoint")
		}
		p.logger.Info().
			Int64("thermostat_id", j.thermostat.ID).
			Float64("target", j.target).
			Int("attempts", attempts).
			Msg("setpoint dispatched")
		return res
	}

	res.ErrorKind = classify(lastErr)
	p.recordFailure(j, &res, lastErr)

	if res.ErrorKind == ErrKindDispatchExhausted {
		// The device looked reachable per the registry but never answered.
		if offErr := p.store.SetOnline(ctx, j.thermostat.ID, false); offErr != nil {
			p.logger.Error().Err(offErr).Int64("thermostat_id", j.thermostat.ID).Msg("failed to flag thermostat offline")
		}
		if p.alerts != nil {
			p.alerts.Dispatch(alert.ExhaustionEvent{
				ThermostatID: j.thermostat.ID,
				Target:       j.target,
				Attempts:     attempts,
			})
		}
	}
	return res
}

// classify maps the final dispatch error to the recorded error kind.
func classify(err error) string {
	if errors.Is(err, device.ErrBreakerOpen) {
		return ErrKindDispatchExhausted
	}
	var ae *device.AdapterError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case device.FailureInvalid:
			return ErrKindInvalidCommand
		case device.FailureOffline:
			return ErrKindDeviceOffline
		case device.FailureTransient:
			return ErrKindDispatchExhausted
		}
	}
	return ErrKindDispatchExhausted
}

func (p *Pool) recordFailure(j job, res *Result, err error) {
	telemetry.DispatchFailures.WithLabelValues(res.ErrorKind).Inc()
	p.logger.Warn().
		Err(err).
		Int64("thermostat_id", j.thermostat.ID).
		Float64("target", j.target).
		Str("kind", res.ErrorKind).
		Int("attempts", res.AttemptCount).
		Msg("dispatch failed")
}

// breakerFor returns the breaker for a thermostat, creating it on first use.
func (p *Pool) breakerFor(thermostatID int64) *device.Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	brk, ok := p.breakers[thermostatID]
	if !ok {
		brk = device.NewBreaker(p.brkCfg, p.logger.With().Int64("thermostat_id", thermostatID).Logger())
		p.breakers[thermostatID] = brk
	}
	return brk
}
