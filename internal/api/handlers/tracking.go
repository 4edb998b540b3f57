package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/api/middleware"
	"github.com/jafarshop/orderengine/internal/service"
)

// HandleAppendTracking handles POST /v1/orders/:id/tracking
func HandleAppendTracking(tracking TrackingService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		var req service.TrackingUpdateRequest
		if !bindJSON(c, &req) {
			return
		}

		event, err := tracking.AppendEvent(c.Request.Context(), actor, orderID, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusCreated, newTrackingResponse(event))
	}
}

// HandleTrackingHistory handles GET /v1/orders/:id/tracking
func HandleTrackingHistory(tracking TrackingService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		events, err := tracking.History(c.Request.Context(), actor, orderID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": newTrackingResponses(events)})
	}
}
