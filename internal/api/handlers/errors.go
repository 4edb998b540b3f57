package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

var statusByCode = map[apperrors.Code]int{
	apperrors.CodeValidation:              http.StatusBadRequest,
	apperrors.CodeNotFound:                http.StatusNotFound,
	apperrors.CodeUnauthorized:            http.StatusUnauthorized,
	apperrors.CodeForbidden:               http.StatusForbidden,
	apperrors.CodeConflict:                http.StatusConflict,
	apperrors.CodeProductUnavailable:      http.StatusUnprocessableEntity,
	apperrors.CodeInsufficientStock:       http.StatusConflict,
	apperrors.CodeVoucherInvalid:          http.StatusUnprocessableEntity,
	apperrors.CodeVoucherMinimumNotMet:    http.StatusUnprocessableEntity,
	apperrors.CodeVoucherExhausted:        http.StatusConflict,
	apperrors.CodeOrderNotCancellable:     http.StatusConflict,
	apperrors.CodeOrderAlreadyFinalized:   http.StatusConflict,
	apperrors.CodeInvalidStateTransition:  http.StatusConflict,
	apperrors.CodePaymentNotCompleted:     http.StatusPaymentRequired,
	apperrors.CodeGatewaySignatureInvalid: http.StatusBadRequest,
	apperrors.CodeTransient:               http.StatusServiceUnavailable,
}

// writeError maps a service error to its HTTP status. Anything without a
// code is an unexpected failure and is logged.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	code := apperrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		logger.Error("Unhandled error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	message := err.Error()
	if code == apperrors.CodeTransient {
		logger.Error("Transient failure", zap.String("path", c.FullPath()), zap.Error(err))
		message = "service temporarily unavailable"
	}
	c.JSON(status, gin.H{"error": message, "code": code})
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order ID"})
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "validation failed",
			"details": err.Error(),
		})
		return false
	}
	return true
}
