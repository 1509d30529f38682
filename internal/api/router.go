package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"rental-thermostat-backend/config"
	"rental-thermostat-backend/internal/mw"
	"rental-thermostat-backend/internal/store"
	"rental-thermostat-backend/internal/telemetry"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, eng Engine, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, eng, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/thermostats", caching, handler.GetThermostats)
		api.POST("/thermostats/:id/evaluate", handler.PostEvaluate)
		api.GET("/thermostats/:id/decision", handler.GetDecision)
		api.GET("/thermostats/:id/logs", caching, handler.GetTemperatureLogs)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
