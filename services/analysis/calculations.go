package analysis

import (
	"time"

	"github.com/shopspring/decimal"
)

// Point is one (date, close) observation. Series passed to this package are
// ordered oldest first.
type Point struct {
	Date  time.Time
	Close decimal.Decimal
}

// EMA timeframe keys, matching the persisted EMA set.
const (
	KeyD9EMA  = "D_9EMA"
	KeyD21EMA = "D_21EMA"
	KeyD50EMA = "D_50EMA"
	KeyW9EMA  = "W_9EMA"
	KeyW21EMA = "W_21EMA"
	KeyW50EMA = "W_50EMA"
	KeyM9EMA  = "M_9EMA"
	KeyM21EMA = "M_21EMA"
)

var hundred = decimal.NewFromInt(100)

// EMA returns the latest exponential moving average of the series, seeded
// with the simple average of the first period closes. Returns nil when the
// series is shorter than the period; it never computes on a truncated window.
func EMA(points []Point, period int) *decimal.Decimal {
	if period <= 0 || len(points) < period {
		return nil
	}

	sum := decimal.Zero
	for i := 0; i < period; i++ {
		sum = sum.Add(points[i].Close)
	}
	ema := sum.Div(decimal.NewFromInt(int64(period)))

	multiplier := decimal.NewFromFloat(2.0 / float64(period+1))
	for i := period; i < len(points); i++ {
		ema = points[i].Close.Sub(ema).Mul(multiplier).Add(ema)
	}
	return &ema
}

// AllEMAs computes the full EMA set: daily and weekly at 9/21/50 periods,
// monthly at 9/21. Each timeframe uses its own bar series. Unavailable EMAs
// are omitted from the result.
func AllEMAs(daily, weekly, monthly []Point) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, 8)

	put := func(key string, points []Point, period int) {
		if v := EMA(points, period); v != nil {
			out[key] = *v
		}
	}

	put(KeyD9EMA, daily, 9)
	put(KeyD21EMA, daily, 21)
	put(KeyD50EMA, daily, 50)

	put(KeyW9EMA, weekly, 9)
	put(KeyW21EMA, weekly, 21)
	put(KeyW50EMA, weekly, 50)

	put(KeyM9EMA, monthly, 9)
	put(KeyM21EMA, monthly, 21)

	return out
}

// EPSObservation is one quarterly EPS value.
type EPSObservation struct {
	Date time.Time
	EPS  decimal.Decimal
}

// EPSGrowth holds the derived earnings-growth indicators. Nil fields mean
// the comparison quarter was missing or zero.
type EPSGrowth struct {
	QoQ       *decimal.Decimal
	YoY       *decimal.Decimal
	LatestEPS *decimal.Decimal
}

// CalculateEPSGrowth derives quarter-over-quarter and year-over-year growth
// from a chronologically ordered quarterly EPS series.
func CalculateEPSGrowth(history []EPSObservation) EPSGrowth {
	var g EPSGrowth
	n := len(history)
	if n == 0 {
		return g
	}

	latest := history[n-1].EPS
	g.LatestEPS = &latest

	if n >= 2 {
		prev := history[n-2].EPS
		if !prev.IsZero() {
			qoq := latest.Sub(prev).Div(prev.Abs()).Mul(hundred)
			g.QoQ = &qoq
		}
	}
	if n >= 5 {
		yearAgo := history[n-5].EPS
		if !yearAgo.IsZero() {
			yoy := latest.Sub(yearAgo).Div(yearAgo.Abs()).Mul(hundred)
			g.YoY = &yoy
		}
	}
	return g
}

// Relative-strength lookback windows in months, with base weights. Shorter
// windows carry more weight to reduce lag.
var (
	rsWindowMonths = []int{3, 6, 9, 12}
	rsBaseWeights  = []decimal.Decimal{
		decimal.NewFromFloat(0.4),
		decimal.NewFromFloat(0.3),
		decimal.NewFromFloat(0.2),
		decimal.NewFromFloat(0.1),
	}
)

// RelativeStrength scores the stock's performance against a benchmark as a
// weighted blend of return deltas over 3/6/9/12-month windows, in percentage
// points. Comparisons are anchored at the stock's last bar; benchmark closes
// after that date are ignored. Weights of windows with insufficient history
// are redistributed proportionally across the remaining windows. Returns nil
// when no window is computable.
func RelativeStrength(stock, benchmark []Point) *decimal.Decimal {
	if len(stock) < 2 || len(benchmark) == 0 {
		return nil
	}

	anchor := stock[len(stock)-1]
	benchNow, ok := closeOnOrBefore(benchmark, anchor.Date)
	if !ok {
		return nil
	}

	weightedSum := decimal.Zero
	weightTotal := decimal.Zero
	for i, months := range rsWindowMonths {
		target := anchor.Date.AddDate(0, -months, 0)

		stockThen, ok := closeOnOrBefore(stock, target)
		if !ok || stockThen.IsZero() {
			continue
		}
		benchThen, ok := closeOnOrBefore(benchmark, target)
		if !ok || benchThen.IsZero() {
			continue
		}

		stockReturn := anchor.Close.Sub(stockThen).Div(stockThen)
		benchReturn := benchNow.Sub(benchThen).Div(benchThen)
		delta := stockReturn.Sub(benchReturn).Mul(hundred)

		weightedSum = weightedSum.Add(delta.Mul(rsBaseWeights[i]))
		weightTotal = weightTotal.Add(rsBaseWeights[i])
	}

	if weightTotal.IsZero() {
		return nil
	}
	score := weightedSum.Div(weightTotal)
	return &score
}

// closeOnOrBefore returns the last close at or before the given date. The
// second return is false when the series starts after the date, i.e. the
// window reaches beyond available history.
func closeOnOrBefore(points []Point, date time.Time) (decimal.Decimal, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if !points[i].Date.After(date) {
			return points[i].Close, true
		}
	}
	return decimal.Zero, false
}
