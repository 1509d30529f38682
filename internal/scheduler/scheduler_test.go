package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rental-thermostat-backend/config"
	"rental-thermostat-backend/internal/calendar"
	"rental-thermostat-backend/internal/device"
	"rental-thermostat-backend/internal/dispatch"
	"rental-thermostat-backend/internal/model"
	"rental-thermostat-backend/internal/occupancy"
	"rental-thermostat-backend/internal/parse"
)

type fakeStore struct {
	mu          sync.Mutex
	thermostats map[int64]model.Thermostat
	rules       map[int64][]model.ScheduleRule
	logs        []model.TemperatureLog
	panicRules  bool
}

func (f *fakeStore) DB() *gorm.DB { return nil }

func (f *fakeStore) ListThermostats(ctx context.Context) ([]model.Thermostat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Thermostat
	for _, t := range f.thermostats {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) GetThermostat(ctx context.Context, id int64) (*model.Thermostat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.thermostats[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (f *fakeStore) ListActiveRules(ctx context.Context, thermostatID int64) ([]model.ScheduleRule, error) {
	if f.panicRules {
		panic("rule table corrupted")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules[thermostatID], nil
}

func (f *fakeStore) MarkDispatched(ctx context.Context, thermostatID int64, temperature float64, at time.Time) error {
	return nil
}

func (f *fakeStore) SetOnline(ctx context.Context, thermostatID int64, online bool) error {
	return nil
}

func (f *fakeStore) AppendTemperatureLog(ctx context.Context, entry *model.TemperatureLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeStore) ListTemperatureLogs(ctx context.Context, thermostatID int64, since time.Time, limit int) ([]model.TemperatureLog, error) {
	return nil, nil
}

func (f *fakeStore) loggedKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kinds []string
	for _, l := range f.logs {
		kinds = append(kinds, l.ErrorKind)
	}
	return kinds
}

// fakeDispatcher counts dispatches and can block mid-dispatch to let tests
// pile up triggers.
type fakeDispatcher struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	succeed bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, t model.Thermostat, target float64, mode device.Mode) dispatch.Result {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	res := dispatch.Result{
		ThermostatID:         t.ID,
		AttemptedTemperature: target,
		Succeeded:            f.succeed,
		AttemptCount:         1,
		DispatchedAt:         time.Now(),
	}
	if !f.succeed {
		res.ErrorKind = dispatch.ErrKindDispatchExhausted
		res.AttemptCount = 3
	}
	return res
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubSource serves a swappable event set.
type stubSource struct {
	mu     sync.Mutex
	id     string
	events []parse.RawEvent
	err    error
}

func (s *stubSource) ID() string { return s.id }

func (s *stubSource) FetchEvents(ctx context.Context, propertyID int64, since time.Time) ([]parse.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, s.err
}

func (s *stubSource) setEvents(events []parse.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = events
}

var _ calendar.Source = (*stubSource)(nil)

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Calendar: config.CalendarConfig{
			SyncInterval: time.Hour,
		},
	}
}

func manualRule(thermostatID int64, target float64, start, end time.Time) model.ScheduleRule {
	return model.ScheduleRule{
		ID:                1,
		ThermostatID:      thermostatID,
		Type:              model.RuleManual,
		TargetTemperature: target,
		IsCooling:         true,
		IsActive:          true,
		StartTime:         &start,
		EndTime:           &end,
	}
}

func newTestService(st *fakeStore, d Dispatcher, sources ...calendar.Source) *Service {
	normalizer := occupancy.NewNormalizer(sources, zerolog.Nop())
	return NewService(testConfig(), st, normalizer, d, zerolog.Nop())
}

func waitForIdle(t *testing.T, s *Service, thermostatID int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		e, ok := s.entries[thermostatID]
		return ok && !e.running
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTriggerEvaluationDispatchesAndLogs(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeStore{
		thermostats: map[int64]model.Thermostat{
			1: {ID: 1, PropertyID: 10, IsOnline: true},
		},
		rules: map[int64][]model.ScheduleRule{
			1: {manualRule(1, 72, now.Add(-time.Hour), now.Add(time.Hour))},
		},
	}
	d := &fakeDispatcher{succeed: true}
	s := newTestService(st, d)

	s.TriggerEvaluation(1)
	waitForIdle(t, s, 1)

	assert.Equal(t, 1, d.callCount())

	st.mu.Lock()
	defer st.mu.Unlock()
	require.Len(t, st.logs, 1)
	assert.Equal(t, 72.0, st.logs[0].Temperature)
	assert.True(t, st.logs[0].Succeeded)

	decision, ok := s.LastDecision(1)
	require.True(t, ok)
	assert.Equal(t, 72.0, decision.TargetTemperature)
}

func TestTriggerEvaluationCoalesces(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeStore{
		thermostats: map[int64]model.Thermostat{
			1: {ID: 1, PropertyID: 10, IsOnline: true},
		},
		rules: map[int64][]model.ScheduleRule{
			1: {manualRule(1, 72, now.Add(-time.Hour), now.Add(time.Hour))},
		},
	}
	d := &fakeDispatcher{succeed: true, block: make(chan struct{})}
	s := newTestService(st, d)

	s.TriggerEvaluation(1)

	// Wait until the first cycle is inside the dispatcher, then pile on.
	require.Eventually(t, func() bool { return d.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	s.TriggerEvaluation(1)
	s.TriggerEvaluation(1)
	s.TriggerEvaluation(1)

	close(d.block)
	waitForIdle(t, s, 1)

	// Three triggers during the running cycle collapse into one follow-up.
	assert.Equal(t, 2, d.callCount())
}

func TestHoldWithNoPriorSetpointSkipsLog(t *testing.T) {
	st := &fakeStore{
		thermostats: map[int64]model.Thermostat{
			1: {ID: 1, PropertyID: 10, IsOnline: true},
		},
	}
	d := &fakeDispatcher{}
	s := newTestService(st, d)

	s.TriggerEvaluation(1)
	waitForIdle(t, s, 1)

	assert.Zero(t, d.callCount())
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Empty(t, st.logs)
}

func TestHoldWithPriorSetpointLogsHeldValue(t *testing.T) {
	last := 70.5
	st := &fakeStore{
		thermostats: map[int64]model.Thermostat{
			1: {ID: 1, PropertyID: 10, IsOnline: true, LastTemperature: &last},
		},
	}
	d := &fakeDispatcher{}
	s := newTestService(st, d)

	s.TriggerEvaluation(1)
	waitForIdle(t, s, 1)

	assert.Zero(t, d.callCount())
	st.mu.Lock()
	defer st.mu.Unlock()
	require.Len(t, st.logs, 1)
	assert.Equal(t, 70.5, st.logs[0].Temperature)
	assert.True(t, st.logs[0].Succeeded)
}

func TestDispatchFailureIsLogged(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeStore{
		thermostats: map[int64]model.Thermostat{
			1: {ID: 1, PropertyID: 10, IsOnline: true},
		},
		rules: map[int64][]model.ScheduleRule{
			1: {manualRule(1, 72, now.Add(-time.Hour), now.Add(time.Hour))},
		},
	}
	d := &fakeDispatcher{succeed: false}
	s := newTestService(st, d)

	s.TriggerEvaluation(1)
	waitForIdle(t, s, 1)

	st.mu.Lock()
	defer st.mu.Unlock()
	require.Len(t, st.logs, 1)
	assert.False(t, st.logs[0].Succeeded)
	assert.Equal(t, dispatch.ErrKindDispatchExhausted, st.logs[0].ErrorKind)
	assert.Equal(t, 72.0, st.logs[0].Temperature)
}

func TestCyclePanicIsContained(t *testing.T) {
	st := &fakeStore{
		thermostats: map[int64]model.Thermostat{
			1: {ID: 1, PropertyID: 10, IsOnline: true},
		},
		panicRules: true,
	}
	d := &fakeDispatcher{}
	s := newTestService(st, d)

	s.TriggerEvaluation(1)
	waitForIdle(t, s, 1)

	assert.Zero(t, d.callCount())
	assert.Equal(t, []string{dispatch.ErrKindInternal}, st.loggedKinds())
}

func TestSyncCalendarsReevaluatesOnlyChanged(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeStore{
		thermostats: map[int64]model.Thermostat{
			1: {ID: 1, PropertyID: 10, IsOnline: true},
		},
		rules: map[int64][]model.ScheduleRule{
			1: {manualRule(1, 72, now.Add(-time.Hour), now.Add(time.Hour))},
		},
	}
	src := &stubSource{id: "feed", events: []parse.RawEvent{
		{ExternalID: "b1", EventType: "booking", Start: now.Add(24 * time.Hour), End: now.Add(48 * time.Hour)},
	}}
	d := &fakeDispatcher{succeed: true}
	s := newTestService(st, d, src)

	ctx := context.Background()

	// First sync sees a new interval set and re-evaluates.
	s.SyncCalendars(ctx)
	waitForIdle(t, s, 1)
	require.Equal(t, 1, d.callCount())

	// Second sync with identical events is a no-op.
	s.SyncCalendars(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, d.callCount())
}

func TestRunSyncsCalendarsPeriodically(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeStore{
		thermostats: map[int64]model.Thermostat{
			1: {ID: 1, PropertyID: 10, IsOnline: true},
		},
		rules: map[int64][]model.ScheduleRule{
			1: {manualRule(1, 72, now.Add(-time.Hour), now.Add(time.Hour))},
		},
	}
	src := &stubSource{id: "feed", events: []parse.RawEvent{
		{ExternalID: "b1", EventType: "booking", Start: now.Add(24 * time.Hour), End: now.Add(48 * time.Hour)},
	}}
	d := &fakeDispatcher{succeed: true}
	s := newTestService(st, d, src)
	s.cfg.Calendar.SyncInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The startup sweep evaluates every thermostat once.
	require.Eventually(t, func() bool { return d.callCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	before := d.callCount()

	// A changed booking set is picked up by the sync loop without waiting for
	// the hourly evaluation sweep.
	src.setEvents([]parse.RawEvent{
		{ExternalID: "b2", EventType: "booking", Start: now.Add(-time.Hour), End: now.Add(48 * time.Hour)},
	})
	require.Eventually(t, func() bool { return d.callCount() > before }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
