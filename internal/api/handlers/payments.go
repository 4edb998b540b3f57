package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/api/middleware"
	"github.com/jafarshop/orderengine/internal/gateway"
	"github.com/jafarshop/orderengine/internal/service"
)

const maxWebhookBody = 1 << 20

// HandleConfirmPayment handles POST /v1/orders/:id/payment/confirm
func HandleConfirmPayment(payments PaymentService, logger *zap.Logger) gin.HandlerFunc {
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

		var req service.ConfirmPaymentRequest
		if !bindJSON(c, &req) {
			return
		}

		result, err := payments.ConfirmPayment(c.Request.Context(), actor, orderID, req.PaymentIntentID)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order":        newOrderResponse(result.Order),
			"already_paid": result.AlreadyPaid,
		})
	}
}

// HandlePaymentWebhook handles POST /v1/payments/webhook. The signature is
// computed over the raw body, so it is read before any decoding.
func HandlePaymentWebhook(payments PaymentService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		result, err := payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader(gateway.SignatureHeader))
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"received": true,
			"event_id": result.EventID,
			"outcome":  result.Outcome,
		})
	}
}
