package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/cache"
)

const (
	idempotencyHeader     = "Idempotency-Key"
	idempotencyPending    = "pending"
	replayOrderContextKey = "idempotency_replay_order_id"
	resultOrderContextKey = "idempotency_result_order_id"
)

// IdempotencyMiddleware claims the Idempotency-Key with SETNX before the
// handler runs. A retry of a completed request is marked as a replay of the
// stored order; a retry while the first is in flight gets 409. A nil
// store disables the middleware.
func IdempotencyMiddleware(store cache.Cache, ttl time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if store == nil || key == "" {
			c.Next()
			return
		}
		if len(key) > 255 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key is too long"})
			return
		}

		owner := "anonymous"
		if actor, ok := GetActorFromContext(c); ok {
			owner = actor.ID.String()
		}
		cacheKey := store.GenerateKey("idempotency", owner+":"+key)
		reqCtx := c.Request.Context()

		claimed, err := store.SetNX(reqCtx, cacheKey, idempotencyPending, ttl)
		if err != nil {
			// the order engine stays available without redis
			logger.Warn("Idempotency claim failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if !claimed {
			stored, err := store.Get(reqCtx, cacheKey)
			if err != nil {
				logger.Warn("Idempotency lookup failed", zap.String("key", key), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency store unavailable"})
				return
			}
			orderID, parseErr := uuid.Parse(stored)
			if stored == idempotencyPending || parseErr != nil {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this Idempotency-Key is in progress"})
				return
			}
			c.Set(replayOrderContextKey, orderID)
			c.Next()
			return
		}

		c.Next()

		// record the outcome even if the request deadline has passed
		reqCtx = context.WithoutCancel(reqCtx)
		if orderID, ok := c.Get(resultOrderContextKey); ok {
			if err := store.Set(reqCtx, cacheKey, orderID.(uuid.UUID).String(), ttl); err != nil {
				logger.Warn("Failed to store idempotency result", zap.String("key", key), zap.Error(err))
			}
			return
		}
		// failed attempts release the key so the client can retry
		if err := store.Del(reqCtx, cacheKey); err != nil {
			logger.Warn("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}
}

// GetIdempotentReplay returns the order a repeated request already created
func GetIdempotentReplay(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(replayOrderContextKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}

// SetIdempotentResult records the order created under the request's key
func SetIdempotentResult(c *gin.Context, orderID uuid.UUID) {
	c.Set(resultOrderContextKey, orderID)
}
