package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriceText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
		ok   bool
	}{
		{"plain", "1234", 1234, true},
		{"currency glyph", "1234 ₽", 1234, true},
		{"nbsp thousands", "12 345 ₽", 12345, true},
		{"regular space thousands", "1 234 567 ₽", 1234567, true},
		{"decimal comma", "99,50 ₽", 99.5, true},
		{"first token wins", "489 ₽ 1024 ₽", 489, true},
		{"noise prefix", "Цена: 750 ₽", 750, true},
		{"empty", "", 0, false},
		{"no digits", "нет в наличии", 0, false},
		{"zero is implausible", "0 ₽", 0, false},
		{"too large", "99999999999", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parsePriceText(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func fptr(v float64) *float64 { return &v }

func TestDiscountPercent(t *testing.T) {
	d := discountPercent(fptr(1000), fptr(750))
	require.NotNil(t, d)
	assert.Equal(t, 25, *d)

	d = discountPercent(fptr(2999), fptr(1000))
	require.NotNil(t, d)
	assert.Equal(t, 67, *d)

	assert.Nil(t, discountPercent(nil, fptr(100)))
	assert.Nil(t, discountPercent(fptr(100), nil))
	assert.Nil(t, discountPercent(nil, nil))
	assert.Nil(t, discountPercent(fptr(0), fptr(100)))
}

func TestKopecksToRubles(t *testing.T) {
	assert.Equal(t, 12.34, kopecksToRubles(1234))
	assert.Equal(t, 0.0, kopecksToRubles(0))
}

func TestMergePrices(t *testing.T) {
	domPrice := 99.0
	cards := []Product{
		{ID: 1},
		{ID: 2, Price: &domPrice, PriceFormatted: "99 ₽"},
		{ID: 3},
	}
	mergePrices(cards, map[int64]float64{1: 450, 2: 777})

	require.NotNil(t, cards[0].Price)
	assert.Equal(t, 450.0, *cards[0].Price)
	assert.Equal(t, "450 ₽", cards[0].PriceFormatted)

	// A resolved DOM price is never overwritten by the descriptor.
	assert.Equal(t, 99.0, *cards[1].Price)

	// No descriptor entry leaves the card without a price.
	assert.Nil(t, cards[2].Price)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "450 ₽", formatPrice(450))
	assert.Equal(t, "99.50 ₽", formatPrice(99.5))
}
