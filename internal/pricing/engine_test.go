package pricing

import (
	"context"
	"errors"
	"testing"

	"apparel-service/internal/apperr"
	"apparel-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func intp(i int) *int {
	return &i
}

func screenPrint() models.DecorationMethod {
	return models.DecorationMethod{
		ID:          uuid.New(),
		Name:        "screen_print",
		DisplayName: "Screen Print",
		Status:      models.CatalogStatusActive,
		PricingRules: models.PricingRules{
			BasePrice:   d("10"),
			PerLocation: dp("6"),
			QuantityBreaks: []models.QuantityBreak{
				{Min: 1, Max: intp(5), Multiplier: d("1.0")},
				{Min: 6, Max: intp(11), Multiplier: d("0.95")},
				{Min: 12, Max: nil, Multiplier: d("0.85")},
			},
		},
	}
}

func teeVariant() models.Variant {
	return models.Variant{
		ID:         uuid.New(),
		ProductID:  uuid.New(),
		Color:      "black",
		Size:       "L",
		BasePrice:  d("12.98"),
		StockLevel: 100,
	}
}

func twoPlacements() []models.Placement {
	return []models.Placement{
		{Location: "front", Width: d("10"), Height: d("12"), Colors: []string{"white", "red"}},
		{Location: "back", Width: d("4"), Height: d("4"), Colors: []string{"white"}},
	}
}

func TestQuantityMultiplier(t *testing.T) {
	breaks := screenPrint().PricingRules.QuantityBreaks

	tests := []struct {
		name     string
		quantity int
		want     string
	}{
		{"first tier lower bound", 1, "1"},
		{"first tier upper bound", 5, "1"},
		{"second tier lower bound", 6, "0.95"},
		{"second tier upper bound", 11, "0.95"},
		{"open-ended tier", 12, "0.85"},
		{"far into open-ended tier", 5000, "0.85"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuantityMultiplier(breaks, tt.quantity)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}

	t.Run("no breaks defaults to one", func(t *testing.T) {
		assert.True(t, QuantityMultiplier(nil, 40).Equal(decimal.NewFromInt(1)))
	})

	t.Run("first matching break wins on overlap", func(t *testing.T) {
		overlapping := []models.QuantityBreak{
			{Min: 1, Max: intp(10), Multiplier: d("0.9")},
			{Min: 5, Max: nil, Multiplier: d("0.5")},
		}
		assert.True(t, QuantityMultiplier(overlapping, 7).Equal(d("0.9")))
	})
}

func TestQuote_ScreenPrintTwoPlacements(t *testing.T) {
	quote, err := Quote(teeVariant(), screenPrint(), twoPlacements(), 6, nil)
	require.NoError(t, err)

	assert.True(t, quote.VariantPrice.Equal(d("12.98")))
	assert.True(t, quote.DecorationPrice.Equal(d("20.90")), "decoration %s", quote.DecorationPrice)
	assert.True(t, quote.Breakdown.Total.Equal(d("33.88")), "item total %s", quote.Breakdown.Total)
	assert.True(t, quote.Breakdown.QuantityMultiplier.Equal(d("0.95")))
	assert.True(t, quote.QuantityDiscount.IsZero())
	assert.True(t, quote.Subtotal.Equal(d("203.28")), "subtotal %s", quote.Subtotal)

	require.Len(t, quote.Breakdown.MethodCharges, 2)
	assert.Equal(t, "Screen Print - Base", quote.Breakdown.MethodCharges[0].Description)
	assert.Equal(t, "Placements (2)", quote.Breakdown.MethodCharges[1].Description)
	assert.True(t, quote.Breakdown.MethodCharges[1].Amount.Equal(d("12")))
}

func TestQuote_PerColorAndArea(t *testing.T) {
	method := models.DecorationMethod{
		Name:        "dtg",
		DisplayName: "Direct to Garment",
		PricingRules: models.PricingRules{
			BasePrice:     d("5"),
			PerColor:      dp("0.50"),
			PerSquareInch: dp("0.05"),
		},
	}

	quote, err := Quote(teeVariant(), method, twoPlacements(), 3, nil)
	require.NoError(t, err)

	require.Len(t, quote.Breakdown.MethodCharges, 3)
	assert.Equal(t, "Colors (3)", quote.Breakdown.MethodCharges[1].Description)
	assert.True(t, quote.Breakdown.MethodCharges[1].Amount.Equal(d("1.5")))
	assert.Equal(t, "Print area (136.0 sq in)", quote.Breakdown.MethodCharges[2].Description)
	assert.True(t, quote.Breakdown.MethodCharges[2].Amount.Equal(d("6.8")))

	// 5 + 1.5 + 6.8 with no breaks
	assert.True(t, quote.DecorationPrice.Equal(d("13.3")))
	assert.True(t, quote.Subtotal.Equal(d("78.84")), "subtotal %s", quote.Subtotal)
}

func TestQuote_NoPlacements(t *testing.T) {
	quote, err := Quote(teeVariant(), screenPrint(), nil, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, "Placements (0)", quote.Breakdown.MethodCharges[1].Description)
	assert.True(t, quote.Breakdown.MethodCharges[1].Amount.IsZero())
	assert.True(t, quote.Breakdown.Total.Equal(d("22.98")))
}

func TestQuote_RejectsQuantityBelowOne(t *testing.T) {
	for _, qty := range []int{0, -3} {
		_, err := Quote(teeVariant(), screenPrint(), twoPlacements(), qty, nil)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestQuote_IsDeterministic(t *testing.T) {
	variant, method, placements := teeVariant(), screenPrint(), twoPlacements()
	rules := []models.PriceRule{
		{ID: uuid.New(), Scope: "global", Active: true, MinQty: 1, DiscountType: "percentage", DiscountValue: d("7.5"), Priority: 1},
	}

	first, err := Quote(variant, method, placements, 17, rules)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Quote(variant, method, placements, 17, rules)
		require.NoError(t, err)
		assert.Equal(t, first.Subtotal.String(), again.Subtotal.String())
		assert.Equal(t, first.Breakdown.MethodCharges, again.Breakdown.MethodCharges)
	}
}

func TestQuote_SubtotalIdentity(t *testing.T) {
	rules := []models.PriceRule{
		{ID: uuid.New(), Scope: "global", Active: true, MinQty: 10, DiscountType: "fixed_amount", DiscountValue: d("0.25"), Priority: 5},
	}

	for _, qty := range []int{1, 5, 6, 10, 11, 12, 250} {
		quote, err := Quote(teeVariant(), screenPrint(), twoPlacements(), qty, rules)
		require.NoError(t, err)

		expected := quote.Breakdown.Total.Mul(decimal.NewFromInt(int64(qty))).Sub(quote.QuantityDiscount)
		assert.True(t, quote.Subtotal.Equal(expected), "qty %d", qty)
		assert.True(t, quote.Breakdown.Total.Equal(quote.VariantPrice.Add(quote.DecorationPrice)), "qty %d", qty)
	}
}

func TestSelectGlobalRule(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	t.Run("highest priority wins", func(t *testing.T) {
		rules := []models.PriceRule{
			{ID: low, Scope: "global", Active: true, MinQty: 1, Priority: 1},
			{ID: high, Scope: "global", Active: true, MinQty: 1, Priority: 9},
		}
		got := SelectGlobalRule(rules, 10)
		require.NotNil(t, got)
		assert.Equal(t, high, got.ID)
	})

	t.Run("equal priority resolves to lowest id in either order", func(t *testing.T) {
		a := models.PriceRule{ID: high, Scope: "global", Active: true, MinQty: 1, Priority: 3}
		b := models.PriceRule{ID: low, Scope: "global", Active: true, MinQty: 1, Priority: 3}

		assert.Equal(t, low, SelectGlobalRule([]models.PriceRule{a, b}, 5).ID)
		assert.Equal(t, low, SelectGlobalRule([]models.PriceRule{b, a}, 5).ID)
	})

	t.Run("skips inactive, scoped and out-of-range rules", func(t *testing.T) {
		rules := []models.PriceRule{
			{ID: uuid.New(), Scope: "global", Active: false, MinQty: 1, Priority: 10},
			{ID: uuid.New(), Scope: "product", Active: true, MinQty: 1, Priority: 10},
			{ID: uuid.New(), Scope: "global", Active: true, MinQty: 50, Priority: 10},
			{ID: uuid.New(), Scope: "global", Active: true, MinQty: 1, MaxQty: intp(4), Priority: 10},
		}
		assert.Nil(t, SelectGlobalRule(rules, 10))
	})
}

func TestDiscount(t *testing.T) {
	itemTotal := d("33.88")

	t.Run("percentage of the line", func(t *testing.T) {
		rule := &models.PriceRule{DiscountType: models.DiscountTypePercentage, DiscountValue: d("10")}
		assert.True(t, Discount(rule, itemTotal, 6).Equal(d("20.328")))
	})

	t.Run("fixed amount per unit", func(t *testing.T) {
		rule := &models.PriceRule{DiscountType: models.DiscountTypeFixedAmount, DiscountValue: d("1.5")}
		assert.True(t, Discount(rule, itemTotal, 6).Equal(d("9")))
	})

	t.Run("no rule", func(t *testing.T) {
		assert.True(t, Discount(nil, itemTotal, 6).IsZero())
	})

	t.Run("unknown type", func(t *testing.T) {
		rule := &models.PriceRule{DiscountType: "bogus", DiscountValue: d("5")}
		assert.True(t, Discount(rule, itemTotal, 6).IsZero())
	})
}

type fakeCatalog struct {
	variant *models.Variant
	method  *models.DecorationMethod
	rules   []models.PriceRule
	err     error
}

func (f *fakeCatalog) FindVariantByID(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	return f.variant, f.err
}

func (f *fakeCatalog) FindDecorationMethodByName(ctx context.Context, name string) (*models.DecorationMethod, error) {
	return f.method, nil
}

func (f *fakeCatalog) ListGlobalPriceRules(ctx context.Context, quantity int) ([]models.PriceRule, error) {
	return f.rules, nil
}

func TestEngine_CalculatePrice(t *testing.T) {
	ctx := context.Background()
	variant, method := teeVariant(), screenPrint()

	t.Run("prices resolved inputs", func(t *testing.T) {
		engine := NewEngine(&fakeCatalog{variant: &variant, method: &method})
		quote, err := engine.CalculatePrice(ctx, variant.ID, "screen_print", twoPlacements(), 6)
		require.NoError(t, err)
		assert.True(t, quote.Subtotal.Equal(d("203.28")))
	})

	t.Run("unknown variant", func(t *testing.T) {
		engine := NewEngine(&fakeCatalog{method: &method})
		_, err := engine.CalculatePrice(ctx, uuid.New(), "screen_print", nil, 1)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		assert.Equal(t, "Variant not found", apperr.PublicMessage(err))
	})

	t.Run("unknown method", func(t *testing.T) {
		engine := NewEngine(&fakeCatalog{variant: &variant})
		_, err := engine.CalculatePrice(ctx, variant.ID, "laser", nil, 1)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		assert.Equal(t, "Decoration method not found", apperr.PublicMessage(err))
	})

	t.Run("zero quantity is a validation error", func(t *testing.T) {
		engine := NewEngine(&fakeCatalog{variant: &variant, method: &method})
		_, err := engine.CalculatePrice(ctx, variant.ID, "screen_print", nil, 0)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})

	t.Run("lookup failure stays internal", func(t *testing.T) {
		engine := NewEngine(&fakeCatalog{err: errors.New("connection refused")})
		_, err := engine.CalculatePrice(ctx, variant.ID, "screen_print", nil, 1)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindInternal))
	})
}
