package market

import "github.com/shopspring/decimal"

// RoundUpToTick returns the smallest multiple of tick >= price.
// Decimal arithmetic so 4100.0 + 0.25 never lands on 4100.249999.
func RoundUpToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	q := p.Div(t).Ceil()
	f, _ := q.Mul(t).Float64()
	return f
}

// RoundDownToTick returns the largest multiple of tick <= price.
func RoundDownToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	q := p.Div(t).Floor()
	f, _ := q.Mul(t).Float64()
	return f
}

// LongBreakout is the long entry trigger: range high plus one tick,
// rounded up onto the tick grid.
func LongBreakout(high, tick float64) float64 {
	return RoundUpToTick(high+tick, tick)
}

// ShortBreakout is the short entry trigger: range low minus one tick,
// rounded down onto the tick grid.
func ShortBreakout(low, tick float64) float64 {
	return RoundDownToTick(low-tick, tick)
}
