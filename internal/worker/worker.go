package worker

import (
	"context"

	"apparel-service/internal/apperr"
	"apparel-service/internal/broker"
	"apparel-service/internal/models"
	"apparel-service/internal/util"

	"go.uber.org/zap"
)

// ProductionUpdater applies print partner updates to orders
type ProductionUpdater interface {
	ApplyProductionUpdate(ctx context.Context, event *models.ProductionUpdateEvent) error
}

// ProductionWorker consumes production updates from the print partner
type ProductionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewProductionWorker creates a new production worker
func NewProductionWorker(consumer *broker.Consumer, updater ProductionUpdater) *ProductionWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnProductionUpdate(func(ctx context.Context, event *models.ProductionUpdateEvent) error {
		return classify(updater.ApplyProductionUpdate(ctx, event))
	})

	return &ProductionWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// classify marks updates that can never apply as permanent. Everything else
// is retried by the consumer.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindNotFound):
		return broker.Permanent(err)
	}
	return err
}

// Start blocks consuming until ctx is cancelled
func (w *ProductionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting production worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProductionWorker) Stop() error {
	w.logger.Info("Stopping production worker")
	return w.consumer.Close()
}
