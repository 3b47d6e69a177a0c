package catalog

import (
	"math"
	"strconv"
	"strings"
)

// Plausible magnitude bounds for a DOM-extracted price in rubles. Tokens
// outside this range are treated as noise (ids, percentages, phone numbers).
const (
	minPlausiblePrice = 1
	maxPlausiblePrice = 10_000_000
)

// kopecksToRubles converts a descriptor minor-unit price to rubles. The same
// conversion applies uniformly whether the raw value came from the DOM or a
// descriptor.
func kopecksToRubles(v int64) float64 {
	return float64(v) / 100
}

// parsePriceText extracts the first plausible numeric token from rendered
// price text, discarding thousands separators and currency glyphs.
// "1 234 ₽" -> 1234. Returns false when no token falls within the plausible
// price magnitude.
func parsePriceText(text string) (float64, bool) {
	var token strings.Builder
	flush := func() (float64, bool) {
		if token.Len() == 0 {
			return 0, false
		}
		v, err := strconv.ParseFloat(token.String(), 64)
		token.Reset()
		if err != nil || v < minPlausiblePrice || v > maxPlausiblePrice {
			return 0, false
		}
		return v, true
	}

	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			token.WriteRune(r)
		case r == ' ', r == '\u00a0', r == '\u2009':
			// Thousands separator inside a token.
			continue
		case (r == '.' || r == ',') && token.Len() > 0:
			token.WriteRune('.')
		default:
			if v, ok := flush(); ok {
				return v, true
			}
		}
	}
	return flush()
}

// discountPercent derives the discount from basic and final prices:
// round((1 - final/basic) * 100). Nil unless both prices are present and
// basic is positive.
func discountPercent(basic, final *float64) *int {
	if basic == nil || final == nil || *basic <= 0 {
		return nil
	}
	d := int(math.Round((1 - *final / *basic) * 100))
	return &d
}

// finalPrice picks the effective selling price from a descriptor size entry.
func (s *cardSize) finalPrice() *float64 {
	if s.Price == nil {
		return nil
	}
	raw := s.Price.Product
	if raw == 0 {
		raw = s.Price.Total
	}
	if raw == 0 {
		return nil
	}
	v := kopecksToRubles(raw)
	return &v
}

func (s *cardSize) basicPrice() *float64 {
	if s.Price == nil || s.Price.Basic == 0 {
		return nil
	}
	v := kopecksToRubles(s.Price.Basic)
	return &v
}

// descriptorPrices returns the first resolvable basic/final price pair across
// the product's sizes.
func (p *cardProduct) descriptorPrices() (basic, final *float64) {
	for i := range p.Sizes {
		s := &p.Sizes[i]
		if final == nil {
			final = s.finalPrice()
		}
		if basic == nil {
			basic = s.basicPrice()
		}
		if basic != nil && final != nil {
			break
		}
	}
	return basic, final
}

// mergePrices fills cards whose DOM price is absent from descriptor prices
// keyed by item id. Pure merge step; the acquisition transport is not
// involved.
func mergePrices(cards []Product, prices map[int64]float64) {
	for i := range cards {
		if cards[i].Price != nil {
			continue
		}
		v, ok := prices[cards[i].ID]
		if !ok {
			continue
		}
		price := v
		cards[i].Price = &price
		cards[i].PriceFormatted = formatPrice(v)
	}
}

// formatPrice renders a price the way the tool results expose it.
func formatPrice(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64) + " ₽"
	}
	return strconv.FormatFloat(v, 'f', 2, 64) + " ₽"
}
