package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"oracle-backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// OperatorClaims are the JWT claims of the read-only operator API.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// OperatorAuthMiddleware guards the operator endpoints with an HS256 JWT.
type OperatorAuthMiddleware struct {
	secret []byte
	logger *logrus.Logger
}

// NewOperatorAuthMiddleware creates an operator auth middleware.
func NewOperatorAuthMiddleware(secret []byte, logger *logrus.Logger) *OperatorAuthMiddleware {
	return &OperatorAuthMiddleware{secret: secret, logger: logger}
}

// RequireOperator validates the Bearer token and its operator role.
func (m *OperatorAuthMiddleware) RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			m.reject(c, "MISSING_AUTH_HEADER", "Authentication required")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			m.reject(c, "EMPTY_TOKEN", "Token cannot be empty")
			return
		}

		claims := &OperatorClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			m.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).WithError(err).Warn("Operator auth failed - invalid token")
			m.reject(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		if claims.Role != "operator" && claims.Role != "admin" {
			m.reject(c, "FORBIDDEN_ROLE", "Token role not allowed")
			return
		}

		c.Set("operator_subject", claims.Subject)
		c.Next()
	}
}

func (m *OperatorAuthMiddleware) reject(c *gin.Context, code, message string) {
	metrics.AuthFailures.WithLabelValues("jwt").Inc()
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
	c.Abort()
}
