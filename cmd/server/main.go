package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apparel-service/config"
	"apparel-service/internal/api"
	"apparel-service/internal/auth"
	"apparel-service/internal/broker"
	"apparel-service/internal/payment"
	"apparel-service/internal/redisclient"
	"apparel-service/internal/service"
	"apparel-service/internal/storage"
	"apparel-service/internal/store"
	"apparel-service/internal/util"
	"apparel-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting apparel service", zap.String("env", cfg.Server.Env))

	// money goes over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer("apparel-service", cfg.Server.Env, cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	dependencies := map[string]api.Pinger{"postgres": db}

	var idempotency service.IdempotencyStore
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.IdempotencyTTL)
	if err != nil {
		logger.Warn("Redis unavailable, idempotency keys disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		idempotency = redisClient
		dependencies["redis"] = redisClient
		logger.Info("Redis connected")
	}

	var publisher service.EventPublisher
	var producer *broker.Producer
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	blobs, uploadsDir, err := newBlobStore(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	gateway := payment.NewStripeGateway(cfg.Payment.StripeSecretKey, cfg.Payment.StripeWebhookSecret, cfg.Payment.GatewayTimeout)

	statusService := service.NewStatusService(db, publisher, cfg.Business.StatusTimeout)
	services := api.Services{
		Orders:   service.NewOrderService(db, idempotency, publisher, gateway, cfg.Business.Currency, cfg.Business.OrderTimeout),
		Status:   statusService,
		Payments: service.NewPaymentService(db, gateway, statusService, cfg.Business.Currency),
		Quotes:   service.NewQuoteService(db),
		Catalog:  service.NewCatalogService(db),
		Assets:   service.NewAssetService(db, blobs, cfg.Upload.MaxUploadBytes(), cfg.Upload.ExtraTypes),
		Designs:  service.NewDesignService(db),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var productionWorker *worker.ProductionWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicProductionUpdates, cfg.Kafka.ConsumerGroup)
		productionWorker = worker.NewProductionWorker(consumer, statusService)
		go func() {
			if err := productionWorker.Start(workerCtx); err != nil {
				logger.Error("Production worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, api.Options{
		Tokens:           auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		ProductionSecret: cfg.Business.ProductionToken,
		MaxUploadBytes:   cfg.Upload.MaxUploadBytes(),
		UploadsDir:       uploadsDir,
		CORSOrigins:      cfg.Server.CORSOrigins,
		TracingEnabled:   cfg.Observ.TracingEnabled,
		Dependencies:     dependencies,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if productionWorker != nil {
		if err := productionWorker.Stop(); err != nil {
			logger.Warn("Failed to stop production worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// newBlobStore picks the upload backend. The returned directory is served
// under /uploads when files live on local disk.
func newBlobStore(cfg config.StorageConfig) (service.BlobStore, string, error) {
	if cfg.Driver == "s3" {
		s3Store, err := storage.NewS3Store(context.Background(), storage.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3PathStyle,
			PublicURL:    cfg.S3PublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return s3Store, "", nil
	}

	local, err := storage.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, "", err
	}
	return local, local.Root(), nil
}
