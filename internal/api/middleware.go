package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"apparel-service/internal/apperr"
	"apparel-service/internal/auth"
	"apparel-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const (
	bearerPrefix        = "Bearer "
	claimsKey           = "claims"
	productionSecretHdr = "X-Webhook-Secret"
)

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// requestLogger logs one line per request at a level chosen by status
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// tracingMiddleware starts a server span per request
func tracingMiddleware(enabled bool) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware("apparel-service")
}

// corsMiddleware allows the configured browser origins. "*" allows any.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		listed := allowed[origin]
		if origin != "" && (listed || allowed["*"]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key, Stripe-Signature")
			if listed {
				// credentials only for origins named explicitly
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			} else {
				h.Set("Access-Control-Allow-Origin", "*")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authenticate validates the Bearer token and stores its claims. It writes
// the error response and aborts on failure.
func authenticate(c *gin.Context, tokens *auth.TokenService) (*auth.Claims, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		respondError(c, apperr.Unauthenticated("Authentication required"))
		c.Abort()
		return nil, false
	}

	claims, err := tokens.ValidateToken(strings.TrimPrefix(header, bearerPrefix))
	if err == nil && claims.UserID == "" {
		err = auth.ErrInvalidToken
	}
	if err != nil {
		msg := "Invalid token"
		if errors.Is(err, auth.ErrExpiredToken) {
			msg = "Token expired"
		}
		respondError(c, apperr.Unauthenticated(msg))
		c.Abort()
		return nil, false
	}

	c.Set(claimsKey, claims)
	return claims, true
}

// requireAuth accepts any valid session token
func requireAuth(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authenticate(c, tokens); !ok {
			return
		}
		c.Next()
	}
}

// requireRole authenticates the Bearer token and checks its role
func requireRole(tokens *auth.TokenService, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := authenticate(c, tokens)
		if !ok {
			return
		}
		if !claims.HasRole(role) {
			respondError(c, apperr.Forbidden("Insufficient permissions"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// currentClaims returns the claims stored by authenticate
func currentClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// requireSharedSecret guards partner webhooks. An empty secret rejects
// every request.
func requireSharedSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(productionSecretHdr)
		if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			respondError(c, apperr.Unauthenticated("Invalid webhook secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}
