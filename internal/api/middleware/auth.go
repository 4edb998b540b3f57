package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/service"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

const (
	actorContextKey = "actor"
	apiKeyHeader    = "X-API-Key"
)

// Claims are the bearer token claims issued by the identity service
type Claims struct {
	Role   string `json:"role"`
	ShopID string `json:"shop_id,omitempty"`
	jwt.RegisteredClaims
}

// StaffLookup resolves an API key to a staff account
type StaffLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.StaffAccount, error)
}

// AuthMiddleware accepts either an X-API-Key staff credential or an HS256
// bearer token and stores the resulting actor on the context.
func AuthMiddleware(jwtSecret string, staff StaffLookup, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader(apiKeyHeader); apiKey != "" {
			account, err := staff.GetByAPIKey(c.Request.Context(), apiKey)
			if err != nil {
				if !apperrors.HasCode(err, apperrors.CodeUnauthorized) && !apperrors.HasCode(err, apperrors.CodeNotFound) {
					logger.Error("Failed to look up API key", zap.Error(err))
					c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authentication unavailable"})
					return
				}
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				return
			}
			if !account.IsActive {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account is inactive"})
				return
			}
			c.Set(actorContextKey, service.Actor{ID: account.ID, Role: account.Role, ShopID: account.ShopID})
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}

		actor, err := ParseToken(token, jwtSecret)
		if err != nil {
			logger.Debug("Rejected bearer token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// ParseToken validates an HS256 token and returns the actor it names
func ParseToken(tokenString, secret string) (service.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return service.Actor{}, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return service.Actor{}, &apperrors.ErrUnauthorized{Message: "subject is not a valid id"}
	}
	role := domain.Role(claims.Role)
	if !role.IsValid() {
		return service.Actor{}, &apperrors.ErrUnauthorized{Message: "unknown role"}
	}

	actor := service.Actor{ID: id, Role: role}
	if claims.ShopID != "" {
		shopID, err := uuid.Parse(claims.ShopID)
		if err != nil {
			return service.Actor{}, &apperrors.ErrUnauthorized{Message: "shop_id is not a valid id"}
		}
		actor.ShopID = &shopID
	}
	return actor, nil
}

// RequireRole rejects actors whose role is not listed
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActorFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
	}
}

// GetActorFromContext returns the authenticated actor
func GetActorFromContext(c *gin.Context) (service.Actor, bool) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return service.Actor{}, false
	}
	actor, ok := value.(service.Actor)
	return actor, ok
}
