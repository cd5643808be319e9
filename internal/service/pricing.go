package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/sales-pipeline-go/internal/domain"
)

// ============================================================
// Pricing calculator
// ============================================================

// CalculateTotals derives the quote totals from its items. Amounts are kept
// unrounded; presentation rounds them with domain.RoundMoney.
//
//	subtotal = Σ quantity × unit price
//	discount = subtotal × discountPercent / 100
//	vat      = (subtotal − discount) × vatPercent / 100
//	total    = subtotal − discount + vat
func CalculateTotals(items []domain.QuoteItem, discountPercent, vatPercent float64) (domain.Totals, error) {
	if err := ValidateDiscount(discountPercent); err != nil {
		return domain.Totals{}, err
	}
	if vatPercent < 0 || vatPercent > 100 {
		return domain.Totals{}, validationErr("vat_percent", "must be between 0 and 100")
	}

	var subtotal float64
	for i, it := range items {
		if err := ValidateItem(it); err != nil {
			return domain.Totals{}, indexed(i, err)
		}
		subtotal += float64(it.Quantity) * it.UnitPrice
	}

	discount := subtotal * discountPercent / 100
	vat := (subtotal - discount) * vatPercent / 100

	return domain.Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		VATAmount:      vat,
		Total:          subtotal - discount + vat,
	}, nil
}

// ValidateItem rejects lines that can never be priced.
func ValidateItem(it domain.QuoteItem) error {
	if strings.TrimSpace(it.Name) == "" {
		return validationErr("name", "item name is required")
	}
	if !it.Category.Valid() {
		return validationErr("category", fmt.Sprintf("unknown item category %q", it.Category))
	}
	if it.Quantity < 1 {
		return validationErr("quantity", "must be at least 1")
	}
	if it.UnitPrice < 0 {
		return validationErr("unit_price", "must not be negative")
	}
	for field, dim := range map[string]*float64{"width_cm": it.WidthCm, "height_cm": it.HeightCm, "depth_cm": it.DepthCm} {
		if dim != nil && *dim < 0 {
			return validationErr(field, "must not be negative")
		}
	}
	return nil
}

// ValidateDiscount accepts a percentage in [0, 100].
func ValidateDiscount(percent float64) error {
	if percent < 0 || percent > 100 {
		return validationErr("discount_percent", "must be between 0 and 100")
	}
	return nil
}

// PriceItems sets every line's TotalPrice to quantity × unit price.
func PriceItems(items []domain.QuoteItem) []domain.QuoteItem {
	for i := range items {
		items[i].TotalPrice = float64(items[i].Quantity) * items[i].UnitPrice
	}
	return items
}

// buildItems turns operator input into priced lines in submission order.
// Client references are dropped; the store assigns IDs.
func buildItems(in []domain.QuoteItemInput) ([]domain.QuoteItem, error) {
	items := make([]domain.QuoteItem, len(in))
	for i, it := range in {
		items[i] = domain.QuoteItem{
			Category:    it.Category,
			Name:        strings.TrimSpace(it.Name),
			Description: it.Description,
			WidthCm:     it.WidthCm,
			HeightCm:    it.HeightCm,
			DepthCm:     it.DepthCm,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			SortOrder:   i,
		}
		if err := ValidateItem(items[i]); err != nil {
			return nil, indexed(i, err)
		}
	}
	return PriceItems(items), nil
}

func indexed(i int, err error) error {
	var ve *domain.ErrValidation
	if errors.As(err, &ve) {
		return &domain.ErrValidation{Field: fmt.Sprintf("items[%d].%s", i, ve.Field), Message: ve.Message}
	}
	return err
}
