package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/poojaseva/checkout-reconciler/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// BearerTokenKey holds the raw access token so calls to the booking API act as the user
const BearerTokenKey = "bearer_token"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Phone  string    `json:"phone"`
	Roles  []string  `json:"roles"`
}

// AuthMiddleware validates Bearer tokens.
// With required=false a request without Authorization header passes through anonymously;
// a malformed or invalid header is still rejected. A nil jwtService skips signature
// checks and only forwards the token.
func AuthMiddleware(jwtService *jwt.Service, required bool, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if !required {
				c.Next()
				return
			}
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).Warn("AUTH FAILED: Missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).Warn("AUTH FAILED: Invalid auth format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		if jwtService != nil {
			claims, err := jwtService.ValidateAccessToken(tokenString)
			if err != nil {
				entry := logger.WithFields(logrus.Fields{
					"path":  c.Request.URL.Path,
					"ip":    c.ClientIP(),
					"error": err.Error(),
				})
				if jwt.IsExpired(err) {
					entry.Warn("AUTH FAILED: Token expired")
					abortUnauthorized(c, "token_expired", "Access token has expired. Please refresh your token.", "TOKEN_EXPIRED")
				} else {
					entry.Warn("AUTH FAILED: Invalid token")
					abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
				}
				return
			}

			c.Set(UserContextKey, UserContext{
				UserID: claims.UserID,
				Phone:  claims.Phone,
				Roles:  claims.Roles,
			})
		}

		c.Set(BearerTokenKey, tokenString)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, errorKey, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errorKey,
		"message": message,
		"code":    code,
	})
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}
	userCtx, ok := value.(UserContext)
	return userCtx, ok
}

// GetBearerToken returns the forwarded access token, if any
func GetBearerToken(c *gin.Context) string {
	return c.GetString(BearerTokenKey)
}

// RequireRole only lets through authenticated users holding role.
// Must run after AuthMiddleware with a jwt service.
func RequireRole(role string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, exists := GetUserContext(c)
		if !exists {
			abortUnauthorized(c, "unauthorized", "Authentication is required", "MISSING_AUTH_HEADER")
			return
		}

		for _, r := range userCtx.Roles {
			if r == role {
				c.Next()
				return
			}
		}

		logger.WithFields(logrus.Fields{
			"user_id": userCtx.UserID,
			"path":    c.Request.URL.Path,
			"role":    role,
		}).Warn("ACCESS DENIED: Missing role")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "forbidden",
			"message": "You do not have permission to perform this action",
			"code":    "INSUFFICIENT_PERMISSIONS",
		})
	}
}
