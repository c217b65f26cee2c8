package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/dto"
)

// ContextUserAddress must match handlers.ContextUserAddress.
const ContextUserAddress = "user_address"

// TokenValidator validates user session tokens.
type TokenValidator interface {
	Validate(token string) (*dto.JWTClaims, error)
}

// AuthMiddleware JWT
type AuthMiddleware struct {
	logger    *logrus.Logger
	validator TokenValidator
}

// NewAuthMiddleware createJWT
func NewAuthMiddleware(logger *logrus.Logger, validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		logger:    logger,
		validator: validator,
	}
}

// bearerToken returns the token and an error code, or "" on success.
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", "MISSING_AUTH_HEADER"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "INVALID_AUTH_FORMAT"
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", "EMPTY_TOKEN"
	}
	return token, ""
}

// RequireAuth JWT
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code := bearerToken(c)
		if code != "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"code":   code,
			}).Warn("JWT auth failed")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
				"message": "Authorization header must be in format: Bearer <token>",
				"code":    code,
			})
			return
		}

		claims, err := a.validator.Validate(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("JWT auth failed - token verify failed")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		c.Set(ContextUserAddress, claims.UserAddress)
		a.logger.WithFields(logrus.Fields{
			"path":         c.Request.URL.Path,
			"user_address": claims.UserAddress,
		}).Debug("JWT auth success")

		c.Next()
	}
}

// OptionalAuth sets the user address when a valid token is present and
// otherwise continues anonymously.
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code := bearerToken(c)
		if code != "" {
			c.Next()
			return
		}
		if claims, err := a.validator.Validate(tokenString); err == nil {
			c.Set(ContextUserAddress, claims.UserAddress)
		}
		c.Next()
	}
}
