package indicator

import (
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/tactic/shared"
)

const (
	// SnapshotMinSamples is the minimum number of price samples required to compute a
	// full indicator snapshot.
	SnapshotMinSamples = 200
)

// ErrInsufficientData indicates a price window has too few samples for a full
// indicator snapshot. Callers must treat it as absence of data, not a reading.
var ErrInsufficientData = errors.New("insufficient samples for indicator snapshot")

// NewSnapshot computes a full indicator snapshot from the provided price window. All
// readings are pure functions of the window, no state is held across calls.
func NewSnapshot(market string, prices []float64, created time.Time) (*shared.IndicatorSnapshot, error) {
	if len(prices) < SnapshotMinSamples {
		return nil, fmt.Errorf("%w: %s has %d of %d samples", ErrInsufficientData,
			market, len(prices), SnapshotMinSamples)
	}

	price := prices[len(prices)-1]
	sma20 := SimpleMovingAverage(prices, ShortSMAPeriod)
	sma50 := SimpleMovingAverage(prices, MediumSMAPeriod)
	sma200 := SimpleMovingAverage(prices, LongSMAPeriod)
	line, signal, histogram := MovingAverageConvergenceDivergence(prices)
	upper, lower := BollingerBands(prices, BollingerPeriod, BollingerBandWidth)

	snapshot := &shared.IndicatorSnapshot{
		RSI:            RelativeStrengthIndex(prices, RSIPeriod),
		MACDLine:       line,
		MACDSignal:     signal,
		MACDHistogram:  histogram,
		SMA20:          sma20,
		SMA50:          sma50,
		SMA200:         sma200,
		BollingerUpper: upper,
		BollingerLower: lower,
		ATR:            AverageTrueRange(prices, ATRPeriod),
		TrendStrength:  TrendStrength(price, sma20, sma50, sma200),
		Momentum:       Momentum(prices, MomentumPeriod),
		Market:         market,
		CreatedOn:      created,
	}

	return snapshot, nil
}
