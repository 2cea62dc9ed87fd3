package shared

import "math"

// Trend represents the prevailing market regime.
type Trend int

const (
	UnknownTrend Trend = iota
	BullishTrend
	BearishTrend
	SidewaysTrend
)

// String stringifies the provided trend.
func (t Trend) String() string {
	switch t {
	case BullishTrend:
		return "bullish trend"
	case BearishTrend:
		return "bearish trend"
	case SidewaysTrend:
		return "sideways trend"
	default:
		return "unknown trend"
	}
}

const (
	// smaOrderingScore is the regime score for a fully ordered moving average stack.
	smaOrderingScore = 2
	// macdDirectionScore is the regime score for the macd line being on the dominant side of its signal.
	macdDirectionScore = 1
	// rsiMidBandScore is the regime score for the rsi holding the dominant half of its mid band.
	rsiMidBandScore = 1
	// momentumSignScore is the regime score for momentum pointing in the dominant direction.
	momentumSignScore = 1
	// minRegimeScore is the minimum score required to declare a directional regime.
	minRegimeScore = 3
	// maxSidewaysSpread is the maximum bull/bear score spread still considered a sideways market.
	maxSidewaysSpread = 1
)

// ClassifyTrend derives the market regime from the provided indicator snapshot and
// current price. Bull and bear scores accrue independently, a directional regime
// requires a clear majority of the checks.
func ClassifyTrend(snapshot *IndicatorSnapshot, price float64) Trend {
	var bullScore, bearScore int

	switch {
	case price > snapshot.SMA20 && snapshot.SMA20 > snapshot.SMA50 && snapshot.SMA50 > snapshot.SMA200:
		bullScore += smaOrderingScore
	case price < snapshot.SMA20 && snapshot.SMA20 < snapshot.SMA50 && snapshot.SMA50 < snapshot.SMA200:
		bearScore += smaOrderingScore
	}

	switch {
	case snapshot.MACDLine > snapshot.MACDSignal:
		bullScore += macdDirectionScore
	case snapshot.MACDLine < snapshot.MACDSignal:
		bearScore += macdDirectionScore
	}

	switch {
	case snapshot.RSI > 50 && snapshot.RSI < 70:
		bullScore += rsiMidBandScore
	case snapshot.RSI > 30 && snapshot.RSI < 50:
		bearScore += rsiMidBandScore
	}

	switch {
	case snapshot.Momentum > 0:
		bullScore += momentumSignScore
	case snapshot.Momentum < 0:
		bearScore += momentumSignScore
	}

	scoreSpread := math.Abs(float64(bullScore - bearScore))

	switch {
	case bullScore >= minRegimeScore:
		return BullishTrend
	case bearScore >= minRegimeScore:
		return BearishTrend
	case scoreSpread <= maxSidewaysSpread:
		return SidewaysTrend
	default:
		return UnknownTrend
	}
}
