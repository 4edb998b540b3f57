package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/api/middleware"
	"github.com/jafarshop/orderengine/internal/service"
)

// HandleRefundOrder handles POST /v1/admin/orders/:id/refund
func HandleRefundOrder(tracking TrackingService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		var req service.RefundRequest
		if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
			return
		}

		order, err := tracking.Refund(c.Request.Context(), admin, orderID, req.Reason)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		logger.Info("Order refunded via admin API",
			zap.String("order_id", order.ID.String()),
			zap.String("admin_id", admin.ID.String()),
		)
		c.JSON(http.StatusOK, newOrderResponse(order))
	}
}
