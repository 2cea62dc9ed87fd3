package shared

import "time"

// IndicatorSnapshot represents indicator readings derived from a market's trailing price window.
// It is immutable once created and recomputed fresh from the window on every update.
type IndicatorSnapshot struct {
	RSI            float64
	MACDLine       float64
	MACDSignal     float64
	MACDHistogram  float64
	SMA20          float64
	SMA50          float64
	SMA200         float64
	BollingerUpper float64
	BollingerLower float64
	ATR            float64
	TrendStrength  float64
	Momentum       float64

	// Metadata and derived fields.
	Market    string
	CreatedOn time.Time
}
