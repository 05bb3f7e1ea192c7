package router

import (
	"net/http"
	"strconv"
	"strings"

	"oracle-backend/internal/app"
	"oracle-backend/internal/config"
	"oracle-backend/internal/handlers"
	"oracle-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware applies the configured CORS policy. Unconfigured
// deployments allow all origins.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigins := []string{"*"}
		allowCredentials := false
		maxAge := 3600
		if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			} else {
				logrus.WithFields(logrus.Fields{
					"request_origin": origin,
					"path":           c.Request.URL.Path,
					"remote_addr":    c.ClientIP(),
				}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
			}
		}

		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Hmac-Signature")
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// SetupRouter wires the HTTP surface of the oracle.
func SetupRouter(container *app.ServiceContainer, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	hmacAuth := middleware.NewHMACAuthMiddleware([]byte(config.AppConfig.Crypto.APIHMACKey), logger)
	operatorAuth := middleware.NewOperatorAuthMiddleware([]byte(config.AppConfig.Crypto.JWTSecret), logger)
	rateLimit := container.RateLimiter

	submitHandler := handlers.NewSubmitCodeHandler(container.SubmissionRepo, logger)
	adminUserHandler := handlers.NewAdminUserHandler(container.UserRepo, container.SeedBox, logger)
	operatorHandler := handlers.NewOperatorHandler(container.ProcessedRepo, container.SubmissionRepo, logger)
	wsHandler := handlers.NewWebSocketHandler(container.PushService, logger)

	r.GET("/health", handlers.HealthCheckHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", wsHandler.Subscribe)

	public := r.Group("/", rateLimit.Limit())
	{
		public.POST("/submit-code", hmacAuth.RequireSignature(), submitHandler.SubmitCode)
	}

	admin := r.Group("/admin")
	{
		admin.POST("/add-user", hmacAuth.RequireSignature(), adminUserHandler.AddUser)

		operator := admin.Group("", operatorAuth.RequireOperator())
		{
			operator.GET("/processed", operatorHandler.ListProcessedRequests)
			operator.GET("/processed/:requestId", operatorHandler.GetProcessedRequest)
			operator.GET("/submissions", operatorHandler.ListPendingSubmissions)
		}
	}

	return r
}
