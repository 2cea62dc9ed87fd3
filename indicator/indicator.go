package indicator

import "math"

const (
	// RSIPeriod is the lookback period for the relative strength index.
	RSIPeriod = 14
	// MACDFastPeriod is the fast ema period for the macd line.
	MACDFastPeriod = 12
	// MACDSlowPeriod is the slow ema period for the macd line.
	MACDSlowPeriod = 26
	// MACDSignalPeriod is the smoothing period for the macd signal line.
	MACDSignalPeriod = 9
	// ShortSMAPeriod is the short simple moving average lookback period.
	ShortSMAPeriod = 20
	// MediumSMAPeriod is the medium simple moving average lookback period.
	MediumSMAPeriod = 50
	// LongSMAPeriod is the long simple moving average lookback period.
	LongSMAPeriod = 200
	// BollingerPeriod is the lookback period for bollinger bands.
	BollingerPeriod = 20
	// BollingerBandWidth is the number of standard deviations for the bollinger envelope.
	BollingerBandWidth = 2
	// ATRPeriod is the lookback period for the average true range.
	ATRPeriod = 14
	// MomentumPeriod is the lookback period for momentum.
	MomentumPeriod = 10

	// neutralRSI is the reading returned when there are too few samples for a full rsi period.
	neutralRSI = 50
	// unalignedTrendStrength is the strength graded when the moving average stack is not aligned.
	unalignedTrendStrength = 0.3
)

// tail returns the trailing n samples of the provided prices, or all of them when
// there are fewer than n.
func tail(prices []float64, n int) []float64 {
	if len(prices) <= n {
		return prices
	}

	return prices[len(prices)-n:]
}

// SimpleMovingAverage computes the arithmetic mean of the trailing period samples.
func SimpleMovingAverage(prices []float64, period int) float64 {
	window := tail(prices, period)
	if len(window) == 0 {
		return 0
	}

	var sum float64
	for idx := range window {
		sum += window[idx]
	}

	return sum / float64(len(window))
}

// ExponentialMovingAverage computes an iteratively smoothed average of the trailing
// period samples. The window is re-sliced on every call and the average seeded with the
// first value of that window, readings therefore depend on how the series is windowed
// rather than on the full price history.
func ExponentialMovingAverage(prices []float64, period int) float64 {
	window := tail(prices, period)
	if len(window) == 0 {
		return 0
	}

	multiplier := 2 / float64(period+1)
	average := window[0]
	for idx := 1; idx < len(window); idx++ {
		average = (window[idx]-average)*multiplier + average
	}

	return average
}

// RelativeStrengthIndex computes the ratio of average gain to average loss over the
// trailing period deltas, scaled to [0, 100]. A neutral 50 is returned only when there
// are too few samples for a single full period.
func RelativeStrengthIndex(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return neutralRSI
	}

	window := tail(prices, period+1)

	var gains, losses float64
	for idx := 1; idx < len(window); idx++ {
		delta := window[idx] - window[idx-1]
		switch {
		case delta > 0:
			gains += delta
		case delta < 0:
			losses += -delta
		}
	}

	averageGain := gains / float64(period)
	averageLoss := losses / float64(period)
	if averageLoss == 0 {
		return 100
	}

	relativeStrength := averageGain / averageLoss

	return 100 - (100 / (1 + relativeStrength))
}

// macdLine computes the difference of the fast and slow emas of the series tail.
func macdLine(prices []float64) float64 {
	return ExponentialMovingAverage(prices, MACDFastPeriod) - ExponentialMovingAverage(prices, MACDSlowPeriod)
}

// MovingAverageConvergenceDivergence computes the macd line, signal line and histogram
// for the provided prices. The signal line is the mean of the macd line recomputed at
// each of the trailing signal period end offsets.
func MovingAverageConvergenceDivergence(prices []float64) (float64, float64, float64) {
	if len(prices) == 0 {
		return 0, 0, 0
	}

	line := macdLine(prices)

	count := MACDSignalPeriod
	if len(prices) < count {
		count = len(prices)
	}

	var sum float64
	for offset := range count {
		sum += macdLine(prices[:len(prices)-offset])
	}
	signal := sum / float64(count)
	histogram := line - signal

	return line, signal, histogram
}

// BollingerBands computes the volatility envelope around the simple moving average of
// the trailing period samples, at the provided number of population standard deviations.
func BollingerBands(prices []float64, period int, bandWidth float64) (float64, float64) {
	window := tail(prices, period)
	if len(window) == 0 {
		return 0, 0
	}

	mean := SimpleMovingAverage(window, period)

	var variance float64
	for idx := range window {
		deviation := window[idx] - mean
		variance += deviation * deviation
	}
	variance /= float64(len(window))

	stdDeviation := math.Sqrt(variance)
	upper := mean + bandWidth*stdDeviation
	lower := mean - bandWidth*stdDeviation

	return upper, lower
}

// AverageTrueRange computes the mean absolute successive price delta over the trailing
// period deltas, a close to close simplification of the true range.
func AverageTrueRange(prices []float64, period int) float64 {
	window := tail(prices, period+1)
	if len(window) < 2 {
		return 0
	}

	var rangeSum float64
	for idx := 1; idx < len(window); idx++ {
		rangeSum += math.Abs(window[idx] - window[idx-1])
	}

	return rangeSum / float64(len(window)-1)
}

// Momentum computes the percent change across the trailing lookback samples.
func Momentum(prices []float64, lookback int) float64 {
	if len(prices) < lookback {
		return 0
	}

	past := prices[len(prices)-lookback]
	if past == 0 {
		return 0
	}

	current := prices[len(prices)-1]

	return ((current - past) / past) * 100
}

// TrendStrength grades the alignment of the price and its moving average stack in [0, 1].
// A monotonically ordered stack grades by the price distance from the long average, any
// other arrangement grades a flat 0.3.
func TrendStrength(price float64, sma20 float64, sma50 float64, sma200 float64) float64 {
	bullAligned := price > sma20 && sma20 > sma50 && sma50 > sma200
	bearAligned := price < sma20 && sma20 < sma50 && sma50 < sma200
	if !bullAligned && !bearAligned {
		return unalignedTrendStrength
	}

	strength := math.Abs((price - sma200) / sma200)

	return math.Min(strength, 1)
}
