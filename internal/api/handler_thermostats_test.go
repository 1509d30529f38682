package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rental-thermostat-backend/internal/engine"
	"rental-thermostat-backend/internal/model"
)

type fakeStore struct {
	thermostats []model.Thermostat
	logs        []model.TemperatureLog
}

func (f *fakeStore) DB() *gorm.DB { return nil }

func (f *fakeStore) ListThermostats(ctx context.Context) ([]model.Thermostat, error) {
	return f.thermostats, nil
}

func (f *fakeStore) GetThermostat(ctx context.Context, id int64) (*model.Thermostat, error) {
	for _, t := range f.thermostats {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) ListActiveRules(ctx context.Context, thermostatID int64) ([]model.ScheduleRule, error) {
	return nil, nil
}

func (f *fakeStore) MarkDispatched(ctx context.Context, thermostatID int64, temperature float64, at time.Time) error {
	return nil
}

func (f *fakeStore) SetOnline(ctx context.Context, thermostatID int64, online bool) error {
	return nil
}

func (f *fakeStore) AppendTemperatureLog(ctx context.Context, entry *model.TemperatureLog) error {
	return nil
}

func (f *fakeStore) ListTemperatureLogs(ctx context.Context, thermostatID int64, since time.Time, limit int) ([]model.TemperatureLog, error) {
	return f.logs, nil
}

type fakeEngine struct {
	triggered []int64
	decision  *engine.Decision
}

func (f *fakeEngine) TriggerEvaluation(thermostatID int64) {
	f.triggered = append(f.triggered, thermostatID)
}

func (f *fakeEngine) LastDecision(thermostatID int64) (engine.Decision, bool) {
	if f.decision == nil {
		return engine.Decision{}, false
	}
	return *f.decision, true
}

func setupRouter(st *fakeStore, eng *fakeEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(st, eng, nil)
	r.GET("/api/thermostats", handler.GetThermostats)
	r.POST("/api/thermostats/:id/evaluate", handler.PostEvaluate)
	r.GET("/api/thermostats/:id/decision", handler.GetDecision)
	r.GET("/api/thermostats/:id/logs", handler.GetTemperatureLogs)
	return r
}

func TestGetThermostats(t *testing.T) {
	temp := 72.0
	st := &fakeStore{thermostats: []model.Thermostat{
		{ID: 1, PropertyID: 10, Name: "Unit 4B", Brand: model.BrandNest, IsOnline: true, LastTemperature: &temp},
	}}
	router := setupRouter(st, &fakeEngine{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/thermostats", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":1,"property_id":10,"name":"Unit 4B","brand":"nest","is_online":true,"last_temperature":72,"last_updated":null}]`, w.Body.String())
}

func TestPostEvaluateTriggersEngine(t *testing.T) {
	st := &fakeStore{thermostats: []model.Thermostat{{ID: 5}}}
	eng := &fakeEngine{}
	router := setupRouter(st, eng)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/thermostats/5/evaluate", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int64{5}, eng.triggered)
}

func TestPostEvaluateUnknownThermostat(t *testing.T) {
	eng := &fakeEngine{}
	router := setupRouter(&fakeStore{}, eng)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/thermostats/99/evaluate", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, eng.triggered)
}

func TestPostEvaluateBadID(t *testing.T) {
	router := setupRouter(&fakeStore{}, &fakeEngine{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/thermostats/abc/evaluate", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDecision(t *testing.T) {
	ruleID := int64(3)
	eng := &fakeEngine{decision: &engine.Decision{
		ThermostatID:      1,
		WinningRuleID:     &ruleID,
		OccupancyKind:     "CHECK_IN",
		TargetTemperature: 72,
		IsCooling:         true,
		EvaluatedAt:       time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}}
	router := setupRouter(&fakeStore{}, eng)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/thermostats/1/decision", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"thermostat_id": 1,
		"winning_rule_id": 3,
		"occupancy_kind": "CHECK_IN",
		"target_temperature": 72,
		"is_cooling": true,
		"hold": false,
		"evaluated_at": "2026-03-01T13:00:00Z"
	}`, w.Body.String())
}

func TestGetDecisionNotComputed(t *testing.T) {
	router := setupRouter(&fakeStore{}, &fakeEngine{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/thermostats/1/decision", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTemperatureLogsBadSince(t *testing.T) {
	router := setupRouter(&fakeStore{}, &fakeEngine{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/thermostats/1/logs?since=yesterday", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTemperatureLogs(t *testing.T) {
	st := &fakeStore{logs: []model.TemperatureLog{
		{ID: 1, ThermostatID: 1, Temperature: 72, Succeeded: true, RecordedAt: time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)},
	}}
	router := setupRouter(st, &fakeEngine{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/thermostats/1/logs?limit=10", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Temperature":72`)
}
