package shared

import (
	"time"
)

// StatusCode represents a request or signal status code.
type StatusCode int

const (
	Processing StatusCode = iota
	Processed
)

// SignalKind represents the directive of a signal.
type SignalKind int

const (
	EnterLong SignalKind = iota
	EnterShort
	CloseLong
	CloseShort
)

// String stringifies the provided signal kind.
func (k SignalKind) String() string {
	switch k {
	case EnterLong:
		return "enter long"
	case EnterShort:
		return "enter short"
	case CloseLong:
		return "close long"
	case CloseShort:
		return "close short"
	default:
		return "unknown"
	}
}

// Direction returns the position direction the signal kind concerns.
func (k SignalKind) Direction() Direction {
	switch k {
	case EnterLong, CloseLong:
		return Long
	default:
		return Short
	}
}

// Signal represents a trade directive for a market. It is transient, produced by the
// engine and acted on immediately or discarded, never queued.
type Signal struct {
	Market            string
	Kind              SignalKind
	Price             float64
	StopLoss          float64
	TakeProfit        float64
	Confidence        float64
	ExpectedProfitPct float64
	RiskReward        float64
	PositionSize      float64
	Reasons           []Reason
	Snapshot          *IndicatorSnapshot
	CreatedOn         time.Time
}

// NewEntrySignal initializes a new entry signal.
func NewEntrySignal(market string, kind SignalKind, price float64, stopLoss float64,
	takeProfit float64, confidence float64, expectedProfitPct float64, riskReward float64,
	positionSize float64, reasons []Reason, snapshot *IndicatorSnapshot, created time.Time) Signal {
	return Signal{
		Market:            market,
		Kind:              kind,
		Price:             price,
		StopLoss:          stopLoss,
		TakeProfit:        takeProfit,
		Confidence:        confidence,
		ExpectedProfitPct: expectedProfitPct,
		RiskReward:        riskReward,
		PositionSize:      positionSize,
		Reasons:           reasons,
		Snapshot:          snapshot,
		CreatedOn:         created,
	}
}

// NewExitSignal initializes a new exit signal.
func NewExitSignal(market string, kind SignalKind, price float64, confidence float64,
	reasons []Reason, snapshot *IndicatorSnapshot, created time.Time) Signal {
	return Signal{
		Market:     market,
		Kind:       kind,
		Price:      price,
		Confidence: confidence,
		Reasons:    reasons,
		Snapshot:   snapshot,
		CreatedOn:  created,
	}
}

// MarketUpdate represents an evaluated market state relayed for signal processing.
type MarketUpdate struct {
	Market    string
	Price     float64
	Snapshot  *IndicatorSnapshot
	Trend     Trend
	CreatedOn time.Time
}

// NewMarketUpdate initializes a new market update.
func NewMarketUpdate(market string, price float64, snapshot *IndicatorSnapshot, trend Trend, created time.Time) MarketUpdate {
	return MarketUpdate{
		Market:    market,
		Price:     price,
		Snapshot:  snapshot,
		Trend:     trend,
		CreatedOn: created,
	}
}

// CatchUpSignal represents a signal to catch up on historical market price data.
type CatchUpSignal struct {
	Market string
	Start  time.Time
	Status chan StatusCode
}

// NewCatchUpSignal initializes a new catch up signal.
func NewCatchUpSignal(market string, start time.Time) CatchUpSignal {
	return CatchUpSignal{
		Market: market,
		Start:  start,
		Status: make(chan StatusCode, 1),
	}
}

// CaughtUpSignal represents a signal to conclude a catch up on market price data.
type CaughtUpSignal struct {
	Market string
	Status chan StatusCode
}

// NewCaughtUpSignal initializes a new caught up signal.
func NewCaughtUpSignal(market string) CaughtUpSignal {
	return CaughtUpSignal{
		Market: market,
		Status: make(chan StatusCode, 1),
	}
}
