// Package pricing turns a garment variant, a decoration method, placements
// and a quantity into a decimal price breakdown.
//
// Quote is pure: it performs no I/O and reads no clock, so identical inputs
// always produce an identical PriceQuote. Engine adds the reference-data
// lookups around it.
package pricing

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInvalidQuantity is returned for quantities below one
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// Catalog is the reference data the engine reads. Lookups return nil, nil
// when the row does not exist.
type Catalog interface {
	FindVariantByID(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	FindDecorationMethodByName(ctx context.Context, name string) (*models.DecorationMethod, error)
	ListGlobalPriceRules(ctx context.Context, quantity int) ([]models.PriceRule, error)
}

// Engine resolves catalog data and prices it
type Engine struct {
	catalog Catalog
}

// NewEngine creates a pricing engine over the given catalog
func NewEngine(catalog Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// CalculatePrice prices quantity units of a variant decorated with method
func (e *Engine) CalculatePrice(
	ctx context.Context,
	variantID uuid.UUID,
	methodName string,
	placements []models.Placement,
	quantity int,
) (*models.PriceQuote, error) {
	if quantity < 1 {
		return nil, apperr.Validation(ErrInvalidQuantity.Error())
	}

	variant, err := e.catalog.FindVariantByID(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load variant: %w", err)
	}
	if variant == nil {
		return nil, apperr.NotFound("Variant not found")
	}

	method, err := e.catalog.FindDecorationMethodByName(ctx, methodName)
	if err != nil {
		return nil, fmt.Errorf("failed to load decoration method: %w", err)
	}
	if method == nil {
		return nil, apperr.NotFound("Decoration method not found")
	}

	rules, err := e.catalog.ListGlobalPriceRules(ctx, quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to load price rules: %w", err)
	}

	quote, err := Quote(*variant, *method, placements, quantity, rules)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	return &quote, nil
}

// Quote computes the price breakdown for already-resolved inputs
func Quote(
	variant models.Variant,
	method models.DecorationMethod,
	placements []models.Placement,
	quantity int,
	rules []models.PriceRule,
) (models.PriceQuote, error) {
	if quantity < 1 {
		return models.PriceQuote{}, ErrInvalidQuantity
	}

	pr := method.PricingRules
	decorationPrice := pr.BasePrice
	charges := []models.MethodCharge{{
		Description: fmt.Sprintf("%s - Base", method.DisplayName),
		Amount:      pr.BasePrice,
	}}

	if pr.PerLocation != nil {
		count := decimal.NewFromInt(int64(len(placements)))
		charge := pr.PerLocation.Mul(count)
		decorationPrice = decorationPrice.Add(charge)
		charges = append(charges, models.MethodCharge{
			Description: fmt.Sprintf("Placements (%d)", len(placements)),
			Amount:      charge,
		})
	}

	if pr.PerColor != nil {
		totalColors := 0
		for _, p := range placements {
			totalColors += len(p.Colors)
		}
		charge := pr.PerColor.Mul(decimal.NewFromInt(int64(totalColors)))
		decorationPrice = decorationPrice.Add(charge)
		charges = append(charges, models.MethodCharge{
			Description: fmt.Sprintf("Colors (%d)", totalColors),
			Amount:      charge,
		})
	}

	if pr.PerSquareInch != nil {
		totalArea := decimal.Zero
		for _, p := range placements {
			totalArea = totalArea.Add(p.Width.Mul(p.Height))
		}
		charge := pr.PerSquareInch.Mul(totalArea)
		decorationPrice = decorationPrice.Add(charge)
		// area is rounded for display only
		charges = append(charges, models.MethodCharge{
			Description: fmt.Sprintf("Print area (%s sq in)", totalArea.StringFixed(1)),
			Amount:      charge,
		})
	}

	multiplier := QuantityMultiplier(pr.QuantityBreaks, quantity)
	adjustedDecoration := decorationPrice.Mul(multiplier)
	itemTotal := variant.BasePrice.Add(adjustedDecoration)

	qty := decimal.NewFromInt(int64(quantity))
	discount := Discount(SelectGlobalRule(rules, quantity), itemTotal, quantity)
	subtotal := itemTotal.Mul(qty).Sub(discount)

	return models.PriceQuote{
		VariantPrice:     variant.BasePrice,
		DecorationPrice:  adjustedDecoration,
		QuantityDiscount: discount,
		Subtotal:         subtotal,
		Breakdown: models.PriceBreakdown{
			BasePrice:          variant.BasePrice,
			MethodCharges:      charges,
			QuantityMultiplier: multiplier,
			Total:              itemTotal,
		},
	}, nil
}

// QuantityMultiplier returns the multiplier of the first break, in list
// order, whose range contains quantity. It defaults to 1.
func QuantityMultiplier(breaks []models.QuantityBreak, quantity int) decimal.Decimal {
	for _, b := range breaks {
		if quantity >= b.Min && (b.Max == nil || quantity <= *b.Max) {
			return b.Multiplier
		}
	}
	return decimal.NewFromInt(1)
}

// SelectGlobalRule picks the active global rule covering quantity with the
// highest priority. Equal priorities resolve to the lowest rule id so the
// choice never depends on row order.
func SelectGlobalRule(rules []models.PriceRule, quantity int) *models.PriceRule {
	var best *models.PriceRule
	for i := range rules {
		r := &rules[i]
		if r.Scope != models.PriceRuleScopeGlobal || !r.Active {
			continue
		}
		if quantity < r.MinQty || (r.MaxQty != nil && quantity > *r.MaxQty) {
			continue
		}
		if best == nil ||
			r.Priority > best.Priority ||
			(r.Priority == best.Priority && bytes.Compare(r.ID[:], best.ID[:]) < 0) {
			best = r
		}
	}
	return best
}

// Discount is the amount a rule takes off quantity units at itemTotal each
func Discount(rule *models.PriceRule, itemTotal decimal.Decimal, quantity int) decimal.Decimal {
	if rule == nil {
		return decimal.Zero
	}
	qty := decimal.NewFromInt(int64(quantity))
	switch rule.DiscountType {
	case models.DiscountTypePercentage:
		// percent of the line total; Shift keeps the division exact
		return itemTotal.Mul(qty).Mul(rule.DiscountValue).Shift(-2)
	case models.DiscountTypeFixedAmount:
		return rule.DiscountValue.Mul(qty)
	default:
		return decimal.Zero
	}
}
