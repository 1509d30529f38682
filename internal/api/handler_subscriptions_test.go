package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"rental-thermostat-backend/internal/model"
	"rental-thermostat-backend/internal/store"
)

func setupSubscriptionRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Property{}, &model.Thermostat{}, &model.PushSubscription{}))

	require.NoError(t, db.Create(&model.Property{ID: 1, Name: "Lakeside Cabin"}).Error)
	require.NoError(t, db.Create(&model.Thermostat{
		ID: 1, PropertyID: 1, Name: "Living Room", Brand: model.BrandNest, DeviceID: "dev-1",
	}).Error)

	handler := NewHandler(store.NewGormStore(db), &fakeEngine{}, nil)
	r := gin.New()
	r.GET("/api/subscriptions", handler.GetSubscription)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.DELETE("/api/subscriptions", handler.DeleteSubscription)
	return r
}

func TestPutSubscriptionRejectsMissingFields(t *testing.T) {
	router := setupSubscriptionRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	router := setupSubscriptionRouter(t)

	body := `{"endpoint":"https://push.example/abc%2F1","p256dh":"key","auth":"secret","subscribed_thermostats":[1]}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/api/subscriptions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// The endpoint query parameter stays percent-encoded on retrieval.
	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint=https://push.example/abc%2F1", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_thermostats":[1]}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/api/subscriptions", bytes.NewBufferString(`{"endpoint":"https://push.example/abc%2F1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint=https://push.example/abc%2F1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
