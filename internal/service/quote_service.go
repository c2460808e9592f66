package service

import (
	"context"
	"time"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"
	"apparel-service/internal/pricing"
	"apparel-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// QuoteService prices customizer selections
type QuoteService struct {
	engine *pricing.Engine
	logger *zap.Logger
}

// NewQuoteService creates a new quote service
func NewQuoteService(catalog pricing.Catalog) *QuoteService {
	return &QuoteService{
		engine: pricing.NewEngine(catalog),
		logger: util.GetLogger(),
	}
}

// QuoteRequest is the body of POST /api/price/quote
type QuoteRequest struct {
	VariantID  uuid.UUID          `json:"variant_id" binding:"required"`
	Method     string             `json:"method" binding:"required"`
	Placements []models.Placement `json:"placements" binding:"required"`
	Quantity   int                `json:"quantity" binding:"required,min=1"`
}

// Quote validates req and returns its price breakdown
func (s *QuoteService) Quote(ctx context.Context, req *QuoteRequest) (*models.PriceQuote, error) {
	ctx, span := util.StartSpan(ctx, "QuoteService.Quote",
		attribute.String("method", req.Method),
		attribute.Int("quantity", req.Quantity))
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := validatePlacements(req.Placements); err != nil {
		return nil, err
	}

	start := time.Now()
	quote, err := s.engine.CalculatePrice(ctx, req.VariantID, req.Method, req.Placements, req.Quantity)
	util.PriceQuoteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.RecordError(span, err)
		if apperr.KindOf(err) == apperr.KindInternal {
			s.logger.Error("Failed to calculate price", zap.Error(err))
			return nil, apperr.Internal("Failed to calculate price", err)
		}
		return nil, err
	}

	util.PriceQuotesTotal.WithLabelValues(req.Method).Inc()
	return quote, nil
}

func validatePlacements(placements []models.Placement) error {
	for _, p := range placements {
		if p.Width.IsNegative() || p.Height.IsNegative() {
			return apperr.Validation("Placement dimensions must not be negative")
		}
	}
	return nil
}
