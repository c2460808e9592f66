package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"apparel-service/internal/apperr"
	"apparel-service/internal/auth"
	"apparel-service/internal/service"
	"apparel-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the application services the handlers call
type Services struct {
	Orders   *service.OrderService
	Status   *service.StatusService
	Payments *service.PaymentService
	Quotes   *service.QuoteService
	Catalog  *service.CatalogService
	Assets   *service.AssetService
	Designs  *service.DesignService
}

// Options configures the HTTP surface
type Options struct {
	Tokens           *auth.TokenService
	ProductionSecret string
	MaxUploadBytes   int64
	UploadsDir       string
	CORSOrigins      []string
	TracingEnabled   bool
	Dependencies     map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	opts   Options
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, opts Options) *Handler {
	return &Handler{
		svc:    svc,
		opts:   opts,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	binding.Validator = service.StructValidator{}

	router.Use(gin.Recovery())
	router.Use(tracingMiddleware(h.opts.TracingEnabled))
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))
	router.Use(corsMiddleware(h.opts.CORSOrigins))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.opts.UploadsDir != "" {
		router.Static("/uploads", h.opts.UploadsDir)
	}

	api := router.Group("/api")
	{
		api.POST("/price/quote", h.quotePrice)

		api.GET("/products", h.listProducts)
		api.GET("/products/:slug", h.getProduct)
		api.GET("/decoration-methods", h.listDecorationMethods)

		api.POST("/orders/create", h.createOrder)
		api.GET("/orders/:id", h.getOrder)
		api.POST("/orders/:id/capture-payment", h.capturePayment)

		api.POST("/uploads/signed-url", h.signedUploadURL)
		api.POST("/uploads/file", h.uploadFile)
		api.GET("/uploads/:id", h.getAsset)

		api.POST("/webhooks/stripe", h.stripeWebhook)
		api.POST("/webhooks/production-update", requireSharedSecret(h.opts.ProductionSecret), h.productionUpdate)
	}

	designs := api.Group("/designs", requireAuth(h.opts.Tokens))
	{
		designs.POST("", h.saveDesign)
		designs.GET("", h.listDesigns)
		designs.GET("/:id", h.getDesign)
		designs.PUT("/:id", h.updateDesign)
		designs.DELETE("/:id", h.deleteDesign)
	}

	admin := api.Group("/admin", requireRole(h.opts.Tokens, auth.RoleAdmin))
	{
		admin.GET("/orders", h.listOrders)
		admin.GET("/orders/:id/history", h.orderHistory)
		admin.PUT("/orders/:id/status", h.updateProductionStatus)
		admin.PUT("/orders/:id/payment-status", h.updatePaymentStatus)
		admin.PUT("/orders/:id/items/:itemId/status", h.updateItemStatus)
		admin.DELETE("/assets/:id", h.deleteAsset)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.opts.Dependencies {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError writes the public form of err. Causes of internal errors
// are logged, never returned.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(apperr.HTTPStatus(kind), gin.H{
		"success": false,
		"message": apperr.PublicMessage(err),
	})
}

// bindJSON decodes and validates the request body into req
func bindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return asValidation(err)
	}
	return nil
}

// asValidation keeps typed validation failures and reports anything else
// from binding as a malformed body
func asValidation(err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Validation("Invalid request body")
}
