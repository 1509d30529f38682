package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"rental-thermostat-backend/internal/model"
)

// thermostatResponse is the flattened structure for the API response.
type thermostatResponse struct {
	ID              int64       `json:"id"`
	PropertyID      int64       `json:"property_id"`
	Name            string      `json:"name"`
	Brand           model.Brand `json:"brand"`
	IsOnline        bool        `json:"is_online"`
	LastTemperature *float64    `json:"last_temperature"`
	LastUpdated     *time.Time  `json:"last_updated"`
}

// GetThermostats handles the GET /api/thermostats request.
func (h *Handler) GetThermostats(c *gin.Context) {
	thermostats, err := h.store.ListThermostats(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve thermostats"})
		return
	}

	response := make([]thermostatResponse, 0, len(thermostats))
	for _, t := range thermostats {
		response = append(response, thermostatResponse{
			ID:              t.ID,
			PropertyID:      t.PropertyID,
			Name:            t.Name,
			Brand:           t.Brand,
			IsOnline:        t.IsOnline,
			LastTemperature: t.LastTemperature,
			LastUpdated:     t.LastUpdated,
		})
	}
	c.JSON(http.StatusOK, response)
}

// PostEvaluate handles POST /api/thermostats/{id}/evaluate. The evaluation
// runs asynchronously; triggers during a running cycle coalesce.
func (h *Handler) PostEvaluate(c *gin.Context) {
	id, ok := h.thermostatID(c)
	if !ok {
		return
	}

	if _, err := h.store.GetThermostat(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Thermostat not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve thermostat"})
		}
		return
	}

	h.engine.TriggerEvaluation(id)
	c.JSON(http.StatusAccepted, gin.H{"status": "evaluation scheduled"})
}

// GetDecision handles GET /api/thermostats/{id}/decision.
func (h *Handler) GetDecision(c *gin.Context) {
	id, ok := h.thermostatID(c)
	if !ok {
		return
	}

	decision, found := h.engine.LastDecision(id)
	if !found {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "No decision computed yet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"thermostat_id":      decision.ThermostatID,
		"winning_rule_id":    decision.WinningRuleID,
		"occupancy_kind":     decision.OccupancyKind,
		"target_temperature": decision.TargetTemperature,
		"is_cooling":         decision.IsCooling,
		"hold":               decision.Hold,
		"evaluated_at":       decision.EvaluatedAt,
	})
}

// GetTemperatureLogs handles GET /api/thermostats/{id}/logs.
func (h *Handler) GetTemperatureLogs(c *gin.Context) {
	id, ok := h.thermostatID(c)
	if !ok {
		return
	}

	var since time.Time
	if sinceParam := c.Query("since"); sinceParam != "" {
		parsed, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'since' timestamp format. Use RFC3339."})
			return
		}
		since = parsed
	}

	limit := 100
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' value"})
			return
		}
		limit = parsed
	}

	logs, err := h.store.ListTemperatureLogs(c.Request.Context(), id, since, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve temperature logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) thermostatID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid thermostat ID"})
		return 0, false
	}
	return id, true
}
