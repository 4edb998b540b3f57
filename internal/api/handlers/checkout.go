package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/api/middleware"
	"github.com/jafarshop/orderengine/internal/service"
)

// HandleCheckout handles POST /v1/checkout
func HandleCheckout(checkout CheckoutService, orders OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		buyer, ok := middleware.GetActorFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		// a retried request returns the order the first attempt placed
		if orderID, replay := middleware.GetIdempotentReplay(c); replay {
			details, err := orders.GetOrder(c.Request.Context(), buyer, orderID)
			if err != nil {
				writeError(c, logger, err)
				return
			}
			c.JSON(http.StatusOK, CheckoutResponse{Order: newOrderDetailsResponse(details), Replayed: true})
			return
		}

		var req service.CheckoutRequest
		if !bindJSON(c, &req) {
			return
		}

		result, err := checkout.Checkout(c.Request.Context(), buyer, req)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		middleware.SetIdempotentResult(c, result.Order.ID)

		resp := newOrderResponse(result.Order)
		resp.Items = newItemResponses(result.Items)
		c.JSON(http.StatusCreated, CheckoutResponse{Order: resp, ClientSecret: result.ClientSecret})
	}
}
