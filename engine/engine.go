package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dnldd/tactic/shared"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// baseConfidence is the starting confidence of any prospective signal.
	baseConfidence = 0.5
	// trendStrengthWeight scales the trend strength contribution to confidence.
	trendStrengthWeight = 0.2
	// rsiProximityWeight scales the rsi mid band proximity contribution to confidence.
	rsiProximityWeight = 0.1
	// macdAgreementWeight is added when the macd histogram agrees with the signal direction.
	macdAgreementWeight = 0.1
	// momentumAgreementWeight is added when momentum agrees with the signal direction.
	momentumAgreementWeight = 0.1
	// overboughtRSI is the rsi ceiling for long entries.
	overboughtRSI = 70
	// oversoldRSI is the rsi floor for short entries.
	oversoldRSI = 30
	// strongTrendThreshold is the trend strength marking a strongly aligned trend.
	strongTrendThreshold = 0.5
	// neutralRSI is the rsi mid band pivot.
	neutralRSI = 50
)

// EngineConfig represents the decision engine configuration.
type EngineConfig struct {
	// RiskPerTrade is the fraction of capital risked on each entry.
	RiskPerTrade float64
	// StopLossPercent is the fractional distance of the stop loss from the entry price.
	StopLossPercent float64
	// TakeProfitRatio is the reward multiple applied to the stopped risk.
	TakeProfitRatio float64
	// MinConfidence is the confidence floor for acting on an entry.
	MinConfidence float64
	// MinRiskReward is the risk reward floor for acting on an entry.
	MinRiskReward float64
	// MaxPositionSize caps the position size as a fraction of capital.
	MaxPositionSize float64
	// KellyScale dampens the kelly sizing adjustment.
	KellyScale float64
	// CurrentCapital returns the current trading capital of the ledger.
	CurrentCapital func() float64
	// FetchPositionDirection returns the direction of the open position for the
	// provided market, if one exists.
	FetchPositionDirection func(market string) (shared.Direction, bool)
	// OpenPosition opens a position for the provided entry signal.
	OpenPosition func(signal *shared.Signal) error
	// UpdatePosition applies the provided price to the open position for the market.
	UpdatePosition func(market string, price float64, now time.Time)
	// ClosePosition settles the open position for the provided market.
	ClosePosition func(market string, price float64, reasons []shared.Reason, now time.Time) error
	// NotifySignal relays the provided signal to acting collaborators.
	NotifySignal func(signal shared.Signal)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade >= 1 {
		errs = errors.Join(errs, fmt.Errorf("risk per trade must be in (0, 1), got %v", cfg.RiskPerTrade))
	}
	if cfg.StopLossPercent <= 0 || cfg.StopLossPercent >= 1 {
		errs = errors.Join(errs, fmt.Errorf("stop loss percent must be in (0, 1), got %v", cfg.StopLossPercent))
	}
	if cfg.TakeProfitRatio <= 0 {
		errs = errors.Join(errs, fmt.Errorf("take profit ratio must be positive, got %v", cfg.TakeProfitRatio))
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 1 {
		errs = errors.Join(errs, fmt.Errorf("min confidence must be in [0, 1], got %v", cfg.MinConfidence))
	}
	if cfg.MinRiskReward <= 0 {
		errs = errors.Join(errs, fmt.Errorf("min risk reward must be positive, got %v", cfg.MinRiskReward))
	}
	if cfg.MaxPositionSize <= 0 || cfg.MaxPositionSize > 1 {
		errs = errors.Join(errs, fmt.Errorf("max position size must be in (0, 1], got %v", cfg.MaxPositionSize))
	}
	if cfg.KellyScale < 0 || cfg.KellyScale > 1 {
		errs = errors.Join(errs, fmt.Errorf("kelly scale must be in [0, 1], got %v", cfg.KellyScale))
	}
	if cfg.CurrentCapital == nil {
		errs = errors.Join(errs, fmt.Errorf("current capital function cannot be nil"))
	}
	if cfg.FetchPositionDirection == nil {
		errs = errors.Join(errs, fmt.Errorf("fetch position direction function cannot be nil"))
	}
	if cfg.OpenPosition == nil {
		errs = errors.Join(errs, fmt.Errorf("open position function cannot be nil"))
	}
	if cfg.UpdatePosition == nil {
		errs = errors.Join(errs, fmt.Errorf("update position function cannot be nil"))
	}
	if cfg.ClosePosition == nil {
		errs = errors.Join(errs, fmt.Errorf("close position function cannot be nil"))
	}
	if cfg.NotifySignal == nil {
		errs = errors.Join(errs, fmt.Errorf("notify signal function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Engine turns evaluated market updates into position decisions.
//
// Updates are processed one at a time in arrival order, generated signals are
// acted on immediately and never queued.
type Engine struct {
	cfg           *EngineConfig
	marketUpdates chan shared.MarketUpdate
}

// NewEngine initializes a new decision engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	return &Engine{
		cfg:           cfg,
		marketUpdates: make(chan shared.MarketUpdate, bufferSize),
	}, nil
}

// SendMarketUpdate relays the provided market update for processing.
func (e *Engine) SendMarketUpdate(update shared.MarketUpdate) {
	select {
	case e.marketUpdates <- update:
		// do nothing.
	default:
		e.cfg.Logger.Error().Msgf("market update channel at capacity: %d/%d",
			len(e.marketUpdates), bufferSize)
	}
}

// computeConfidence scores the provided snapshot for the provided signal kind.
//
// Confidence starts at the base and accrues weighted contributions from trend
// strength, rsi proximity to the mid band and macd and momentum agreement,
// clamped to [0, 1].
func (e *Engine) computeConfidence(snapshot *shared.IndicatorSnapshot, kind shared.SignalKind) (float64, []shared.Reason) {
	reasons := make([]shared.Reason, 0, 3)

	var bullish bool
	switch kind {
	case shared.EnterLong, shared.CloseShort:
		bullish = true
	}

	confidence := baseConfidence

	confidence += trendStrengthWeight * snapshot.TrendStrength
	if snapshot.TrendStrength >= strongTrendThreshold {
		reasons = append(reasons, shared.StrongTrendAlignment)
	}

	proximity := 1 - math.Abs(snapshot.RSI-neutralRSI)/neutralRSI
	confidence += rsiProximityWeight * proximity

	if (bullish && snapshot.MACDHistogram > 0) || (!bullish && snapshot.MACDHistogram < 0) {
		confidence += macdAgreementWeight
		reasons = append(reasons, shared.MACDConfirmation)
	}

	if (bullish && snapshot.Momentum > 0) || (!bullish && snapshot.Momentum < 0) {
		confidence += momentumAgreementWeight
		reasons = append(reasons, shared.MomentumAlignment)
	}

	confidence = math.Max(0, math.Min(confidence, 1))

	return confidence, reasons
}

// computePositionSize sizes an entry as a fraction of capital.
//
// The base size risks a fixed fraction of capital against the stopped price
// distance, a scaled kelly criterion grows it with edge and the result is
// discounted by confidence and capped at the maximum position size.
func (e *Engine) computePositionSize(price float64, stopLoss float64, confidence float64, riskReward float64) float64 {
	capital := e.cfg.CurrentCapital()
	priceRisk := math.Abs(price - stopLoss)
	if capital <= 0 || priceRisk == 0 {
		return 0
	}

	units := (capital * e.cfg.RiskPerTrade) / priceRisk
	baseSize := units * price / capital

	winProbability := confidence
	kelly := ((riskReward * winProbability) - (1 - winProbability)) / riskReward
	kelly = math.Max(0, kelly) * e.cfg.KellyScale

	size := baseSize * (1 + kelly) * confidence

	return math.Min(size, e.cfg.MaxPositionSize)
}

// evaluateEntry generates and acts on an entry signal for the provided market
// update if the regime and risk gates qualify one.
func (e *Engine) evaluateEntry(update *shared.MarketUpdate) {
	snapshot := update.Snapshot
	reasons := make([]shared.Reason, 0, 4)

	var kind shared.SignalKind
	switch {
	case update.Trend == shared.BullishTrend && snapshot.RSI < overboughtRSI:
		kind = shared.EnterLong
		reasons = append(reasons, shared.BullishRegime)
	case update.Trend == shared.BearishTrend && snapshot.RSI > oversoldRSI:
		kind = shared.EnterShort
		reasons = append(reasons, shared.BearishRegime)
	default:
		return
	}

	confidence, confidenceReasons := e.computeConfidence(snapshot, kind)
	reasons = append(reasons, confidenceReasons...)

	if confidence < e.cfg.MinConfidence {
		e.cfg.Logger.Debug().Msgf("discarding %s %s signal, confidence %.2f below minimum %.2f",
			update.Market, kind.String(), confidence, e.cfg.MinConfidence)
		return
	}

	price := update.Price
	var stopLoss, takeProfit float64
	switch kind {
	case shared.EnterLong:
		stopLoss = price * (1 - e.cfg.StopLossPercent)
		takeProfit = price + (price-stopLoss)*e.cfg.TakeProfitRatio
	case shared.EnterShort:
		stopLoss = price * (1 + e.cfg.StopLossPercent)
		takeProfit = price - (stopLoss-price)*e.cfg.TakeProfitRatio
	}

	priceRisk := math.Abs(price - stopLoss)
	if priceRisk == 0 {
		return
	}

	riskReward := math.Abs(takeProfit-price) / priceRisk
	if riskReward < e.cfg.MinRiskReward {
		e.cfg.Logger.Debug().Msgf("discarding %s %s signal, risk reward %.2f below minimum %.2f",
			update.Market, kind.String(), riskReward, e.cfg.MinRiskReward)
		return
	}

	size := e.computePositionSize(price, stopLoss, confidence, riskReward)
	if size <= 0 {
		e.cfg.Logger.Debug().Msgf("discarding %s %s signal, no fundable position size",
			update.Market, kind.String())
		return
	}

	expectedProfitPct := math.Abs(takeProfit-price) / price

	signal := shared.NewEntrySignal(update.Market, kind, price, stopLoss, takeProfit,
		confidence, expectedProfitPct, riskReward, size, reasons, snapshot, update.CreatedOn)
	e.cfg.NotifySignal(signal)

	err := e.cfg.OpenPosition(&signal)
	if err != nil {
		e.cfg.Logger.Error().Msgf("opening %s position: %v", update.Market, err)
	}
}

// evaluateExit closes the open position for the provided market update if the
// regime has reversed against it, regardless of its protective levels.
func (e *Engine) evaluateExit(update *shared.MarketUpdate, direction shared.Direction) {
	var kind shared.SignalKind
	reasons := []shared.Reason{shared.TrendReversal}

	switch {
	case direction == shared.Long && update.Trend == shared.BearishTrend:
		kind = shared.CloseLong
		reasons = append(reasons, shared.BearishRegime)
	case direction == shared.Short && update.Trend == shared.BullishTrend:
		kind = shared.CloseShort
		reasons = append(reasons, shared.BullishRegime)
	default:
		return
	}

	confidence, _ := e.computeConfidence(update.Snapshot, kind)

	signal := shared.NewExitSignal(update.Market, kind, update.Price, confidence, reasons,
		update.Snapshot, update.CreatedOn)
	e.cfg.NotifySignal(signal)

	err := e.cfg.ClosePosition(update.Market, update.Price, reasons, update.CreatedOn)
	if err != nil {
		e.cfg.Logger.Error().Msgf("closing %s position: %v", update.Market, err)
	}
}

// handleMarketUpdate processes the provided market update.
func (e *Engine) handleMarketUpdate(update *shared.MarketUpdate) {
	direction, open := e.cfg.FetchPositionDirection(update.Market)
	if open {
		// The update can settle the position at a protective level,
		// fetch again before routing.
		e.cfg.UpdatePosition(update.Market, update.Price, update.CreatedOn)
		direction, open = e.cfg.FetchPositionDirection(update.Market)
	}

	switch {
	case open:
		e.evaluateExit(update, direction)
	default:
		e.evaluateEntry(update)
	}
}

// Run manages the lifecycle processes of the engine.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-e.marketUpdates:
			e.handleMarketUpdate(&update)
		}
	}
}
