package middleware

import (
	"bytes"
	"io"
	"net/http"

	"oracle-backend/internal/cryptoutil"
	"oracle-backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HMACAuthMiddleware authenticates ingestion requests with a shared-secret
// signature over the raw request body.
type HMACAuthMiddleware struct {
	key    []byte
	logger *logrus.Logger
}

// NewHMACAuthMiddleware creates an HMAC body auth middleware.
func NewHMACAuthMiddleware(key []byte, logger *logrus.Logger) *HMACAuthMiddleware {
	return &HMACAuthMiddleware{key: key, logger: logger}
}

// RequireSignature verifies the X-Hmac-Signature header against the raw
// body before any handler binds it. The body is restored for downstream
// binding. Unauthenticated requests never reach the stores.
func (m *HMACAuthMiddleware) RequireSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 10<<10)) // 10 KiB cap, matches the ingestion payloads
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad_payload"})
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		signature := c.GetHeader(cryptoutil.SignatureHeader)
		if !cryptoutil.VerifyBody(m.key, body, signature) {
			metrics.AuthFailures.WithLabelValues("hmac").Inc()
			m.logger.WithFields(logrus.Fields{
				"path":        c.Request.URL.Path,
				"remote_addr": c.ClientIP(),
			}).Warn("HMAC auth failed")

			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "auth_failed"})
			c.Abort()
			return
		}

		c.Next()
	}
}
