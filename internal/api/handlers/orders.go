package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/api/middleware"
	"github.com/jafarshop/orderengine/internal/service"
)

// HandleGetOrder handles GET /v1/orders/:id
func HandleGetOrder(orders OrderService, logger *zap.Logger) gin.HandlerFunc {
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

		details, err := orders.GetOrder(c.Request.Context(), actor, orderID)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, newOrderDetailsResponse(details))
	}
}

// HandleListOrders handles GET /v1/orders and GET /v1/admin/orders
func HandleListOrders(orders OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var q service.ListOrdersQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query", "details": err.Error()})
			return
		}

		list, err := orders.ListOrders(c.Request.Context(), actor, q)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		resp := make([]OrderResponse, len(list))
		for i, order := range list {
			resp[i] = newOrderResponse(order)
		}
		c.JSON(http.StatusOK, gin.H{
			"orders": resp,
			"count":  len(resp),
		})
	}
}

// HandleCancelOrder handles POST /v1/orders/:id/cancel
func HandleCancelOrder(cancellation CancellationService, logger *zap.Logger) gin.HandlerFunc {
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

		var req service.CancelRequest
		if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
			return
		}

		order, err := cancellation.Cancel(c.Request.Context(), actor, orderID, req.Reason)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, newOrderResponse(order))
	}
}
