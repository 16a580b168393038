package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineFinalPrice applies a percentage discount to a unit price.
// The discount is clamped to 0..100 and the result rounded to cents.
func LineFinalPrice(price, discountPercent float64) float64 {
	d := decimal.NewFromFloat(clampPercent(discountPercent))
	p := decimal.NewFromFloat(price)
	return p.Sub(p.Mul(d).Div(hundred)).Round(2).InexactFloat64()
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// total accumulates price*quantity pairs without float drift.
type total struct {
	sum decimal.Decimal
}

func (t *total) add(price float64, quantity int) {
	t.sum = t.sum.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))))
}

func (t *total) addAmount(amount float64) {
	t.sum = t.sum.Add(decimal.NewFromFloat(amount))
}

func (t *total) value() float64 {
	return t.sum.Round(2).InexactFloat64()
}

// Sum adds up amounts rounded to cents.
func Sum(amounts ...float64) float64 {
	var t total
	for _, a := range amounts {
		t.addAmount(a)
	}
	return t.value()
}

// LineValue is price*quantity rounded to cents.
func LineValue(price float64, quantity int) float64 {
	var t total
	t.add(price, quantity)
	return t.value()
}

// Average divides sum by n rounded to cents. Zero when n is zero.
func Average(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return decimal.NewFromFloat(sum).Div(decimal.NewFromInt(int64(n))).Round(2).InexactFloat64()
}
