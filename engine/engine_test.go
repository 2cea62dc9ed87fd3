package engine

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/tactic/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

// ledgerState mimics the position ledger collaborators of the engine.
type ledgerState struct {
	capital     float64
	hasPosition bool
	direction   shared.Direction
	opened      []*shared.Signal
	closed      []string
	updates     int
	notified    []shared.Signal
}

func setupEngine(t *testing.T, state *ledgerState) *Engine {
	currentCapital := func() float64 {
		return state.capital
	}

	fetchPositionDirection := func(market string) (shared.Direction, bool) {
		return state.direction, state.hasPosition
	}

	openPosition := func(signal *shared.Signal) error {
		state.opened = append(state.opened, signal)
		state.hasPosition = true
		state.direction = signal.Kind.Direction()
		return nil
	}

	updatePosition := func(market string, price float64, now time.Time) {
		state.updates++
	}

	closePosition := func(market string, price float64, reasons []shared.Reason, now time.Time) error {
		state.closed = append(state.closed, market)
		state.hasPosition = false
		return nil
	}

	notifySignal := func(signal shared.Signal) {
		state.notified = append(state.notified, signal)
	}

	cfg := &EngineConfig{
		RiskPerTrade:           0.02,
		StopLossPercent:        0.02,
		TakeProfitRatio:        2,
		MinConfidence:          0.6,
		MinRiskReward:          2,
		MaxPositionSize:        0.1,
		KellyScale:             0.25,
		CurrentCapital:         currentCapital,
		FetchPositionDirection: fetchPositionDirection,
		OpenPosition:           openPosition,
		UpdatePosition:         updatePosition,
		ClosePosition:          closePosition,
		NotifySignal:           notifySignal,
		Logger:                 &log.Logger,
	}

	eng, err := NewEngine(cfg)
	assert.NoError(t, err)

	return eng
}

func bullishSnapshot(market string) *shared.IndicatorSnapshot {
	return &shared.IndicatorSnapshot{
		RSI:            60,
		MACDLine:       1.8,
		MACDSignal:     0.3,
		MACDHistogram:  1.5,
		SMA20:          50500,
		SMA50:          50000,
		SMA200:         48000,
		BollingerUpper: 51500,
		BollingerLower: 49500,
		ATR:            120,
		TrendStrength:  0.8,
		Momentum:       2.4,
		Market:         market,
		CreatedOn:      time.Now(),
	}
}

func bearishSnapshot(market string) *shared.IndicatorSnapshot {
	return &shared.IndicatorSnapshot{
		RSI:            42,
		MACDLine:       -1.8,
		MACDSignal:     -0.3,
		MACDHistogram:  -1.5,
		SMA20:          49500,
		SMA50:          50000,
		SMA200:         52000,
		BollingerUpper: 50500,
		BollingerLower: 48500,
		ATR:            120,
		TrendStrength:  0.8,
		Momentum:       -2.4,
		Market:         market,
		CreatedOn:      time.Now(),
	}
}

func TestEngineConfigValidate(t *testing.T) {
	// Ensure engine config validation fails if required fields are missing.
	cfg := &EngineConfig{}
	assert.Error(t, cfg.Validate())

	// Ensure engine creation fails with an invalid config.
	eng, err := NewEngine(cfg)
	assert.Error(t, err)
	assert.Nil(t, eng)
}

func TestEngineComputeConfidence(t *testing.T) {
	state := &ledgerState{capital: 10000}
	eng := setupEngine(t, state)

	// Ensure a fully aligned bullish snapshot accrues every contribution.
	aligned := &shared.IndicatorSnapshot{RSI: 50, MACDHistogram: 1, TrendStrength: 1, Momentum: 1}
	confidence, reasons := eng.computeConfidence(aligned, shared.EnterLong)

	want := baseConfidence
	want += trendStrengthWeight * aligned.TrendStrength
	want += rsiProximityWeight * (1 - math.Abs(aligned.RSI-neutralRSI)/neutralRSI)
	want += macdAgreementWeight
	want += momentumAgreementWeight
	want = math.Max(0, math.Min(want, 1))

	assert.Equal(t, confidence, want)
	assert.GreaterThan(t, confidence, 0.99)
	assert.Equal(t, len(reasons), 3)

	// Ensure a snapshot with nothing aligned scores only the base confidence.
	opposed := &shared.IndicatorSnapshot{RSI: 100, MACDHistogram: -1, TrendStrength: 0, Momentum: -1}
	confidence, reasons = eng.computeConfidence(opposed, shared.EnterLong)
	assert.Equal(t, confidence, 0.5)
	assert.Equal(t, len(reasons), 0)

	// Ensure agreement is judged against the signal direction.
	confidence, _ = eng.computeConfidence(opposed, shared.EnterShort)
	assert.GreaterThan(t, confidence, 0.5)
}

func TestEngineEntrySignal(t *testing.T) {
	market := "BTCUSD"
	state := &ledgerState{capital: 10000}
	eng := setupEngine(t, state)
	now := time.Now()

	price := float64(50000)
	snapshot := bullishSnapshot(market)
	update := shared.NewMarketUpdate(market, price, snapshot, shared.BullishTrend, now)

	// Ensure a bullish regime with sane rsi opens a long position without
	// touching the ledger for a market holding no position.
	eng.handleMarketUpdate(&update)
	assert.Equal(t, state.updates, 0)
	assert.Equal(t, len(state.opened), 1)
	assert.Equal(t, len(state.notified), 1)

	signal := state.opened[0]
	assert.Equal(t, signal.Kind, shared.EnterLong)
	assert.Equal(t, signal.Market, market)
	assert.Equal(t, signal.Price, price)

	// Ensure the protective levels bracket the entry by the configured distances.
	wantStop := price * (1 - eng.cfg.StopLossPercent)
	wantTarget := price + (price-wantStop)*eng.cfg.TakeProfitRatio
	assert.Equal(t, signal.StopLoss, wantStop)
	assert.Equal(t, signal.TakeProfit, wantTarget)
	assert.Equal(t, signal.RiskReward, (wantTarget-price)/(price-wantStop))

	// Ensure the confidence accrues the weighted snapshot contributions.
	wantConfidence := baseConfidence
	wantConfidence += trendStrengthWeight * snapshot.TrendStrength
	wantConfidence += rsiProximityWeight * (1 - math.Abs(snapshot.RSI-neutralRSI)/neutralRSI)
	wantConfidence += macdAgreementWeight
	wantConfidence += momentumAgreementWeight
	assert.Equal(t, signal.Confidence, wantConfidence)

	// Ensure the position size respects the maximum position size cap.
	assert.GreaterThan(t, signal.PositionSize, 0)
	assert.LessThanOrEqual(t, signal.PositionSize, eng.cfg.MaxPositionSize)

	// Ensure the signal carries its qualifying reasons.
	assert.In(t, shared.BullishRegime, signal.Reasons)
	assert.In(t, shared.StrongTrendAlignment, signal.Reasons)
	assert.In(t, shared.MACDConfirmation, signal.Reasons)
	assert.In(t, shared.MomentumAlignment, signal.Reasons)
}

func TestEngineShortEntrySignal(t *testing.T) {
	market := "BTCUSD"
	state := &ledgerState{capital: 10000}
	eng := setupEngine(t, state)
	now := time.Now()

	price := float64(50000)
	update := shared.NewMarketUpdate(market, price, bearishSnapshot(market), shared.BearishTrend, now)

	// Ensure a bearish regime with sane rsi opens a short position.
	eng.handleMarketUpdate(&update)
	assert.Equal(t, len(state.opened), 1)

	signal := state.opened[0]
	assert.Equal(t, signal.Kind, shared.EnterShort)
	assert.GreaterThan(t, signal.StopLoss, price)
	assert.LessThanOrEqual(t, signal.TakeProfit, price)
	assert.In(t, shared.BearishRegime, signal.Reasons)
}

func TestEngineEntryGates(t *testing.T) {
	market := "BTCUSD"
	now := time.Now()

	// Ensure an overbought bullish regime does not open a long position.
	state := &ledgerState{capital: 10000}
	eng := setupEngine(t, state)

	overbought := bullishSnapshot(market)
	overbought.RSI = 75
	update := shared.NewMarketUpdate(market, 50000, overbought, shared.BullishTrend, now)
	eng.handleMarketUpdate(&update)
	assert.Equal(t, len(state.opened), 0)
	assert.Equal(t, len(state.notified), 0)

	// Ensure an oversold bearish regime does not open a short position.
	oversold := bearishSnapshot(market)
	oversold.RSI = 25
	update = shared.NewMarketUpdate(market, 50000, oversold, shared.BearishTrend, now)
	eng.handleMarketUpdate(&update)
	assert.Equal(t, len(state.opened), 0)

	// Ensure sideways and unknown regimes generate no signals.
	update = shared.NewMarketUpdate(market, 50000, bullishSnapshot(market), shared.SidewaysTrend, now)
	eng.handleMarketUpdate(&update)

	update = shared.NewMarketUpdate(market, 50000, bullishSnapshot(market), shared.UnknownTrend, now)
	eng.handleMarketUpdate(&update)
	assert.Equal(t, len(state.opened), 0)

	// Ensure entries below the confidence floor are discarded.
	weak := &shared.IndicatorSnapshot{RSI: 20, MACDHistogram: -1, TrendStrength: 0, Momentum: -1}
	update = shared.NewMarketUpdate(market, 50000, weak, shared.BullishTrend, now)
	eng.handleMarketUpdate(&update)
	assert.Equal(t, len(state.opened), 0)
	assert.Equal(t, len(state.notified), 0)
}

func TestEngineRiskRewardGate(t *testing.T) {
	market := "BTCUSD"
	state := &ledgerState{capital: 10000}
	eng := setupEngine(t, state)
	eng.cfg.TakeProfitRatio = 1.5

	// Ensure entries below the risk reward floor are discarded.
	update := shared.NewMarketUpdate(market, 50000, bullishSnapshot(market), shared.BullishTrend, time.Now())
	eng.handleMarketUpdate(&update)
	assert.Equal(t, len(state.opened), 0)
}

func TestEngineExitSignal(t *testing.T) {
	market := "BTCUSD"
	now := time.Now()

	// Ensure a bearish regime closes an open long regardless of its levels.
	state := &ledgerState{capital: 10000, hasPosition: true, direction: shared.Long}
	eng := setupEngine(t, state)

	snapshot := bearishSnapshot(market)
	snapshot.RSI = 45
	update := shared.NewMarketUpdate(market, 50500, snapshot, shared.BearishTrend, now)
	eng.handleMarketUpdate(&update)

	assert.Equal(t, len(state.closed), 1)
	assert.Equal(t, state.closed[0], market)
	assert.Equal(t, len(state.notified), 1)

	signal := state.notified[0]
	assert.Equal(t, signal.Kind, shared.CloseLong)
	assert.In(t, shared.TrendReversal, signal.Reasons)
	assert.In(t, shared.BearishRegime, signal.Reasons)

	// Ensure a bullish regime closes an open short.
	state = &ledgerState{capital: 10000, hasPosition: true, direction: shared.Short}
	eng = setupEngine(t, state)

	update = shared.NewMarketUpdate(market, 50500, bullishSnapshot(market), shared.BullishTrend, now)
	eng.handleMarketUpdate(&update)

	assert.Equal(t, len(state.closed), 1)
	assert.Equal(t, state.notified[0].Kind, shared.CloseShort)

	// Ensure an aligned regime holds the open position and opens nothing new.
	state = &ledgerState{capital: 10000, hasPosition: true, direction: shared.Long}
	eng = setupEngine(t, state)

	update = shared.NewMarketUpdate(market, 50500, bullishSnapshot(market), shared.BullishTrend, now)
	eng.handleMarketUpdate(&update)

	assert.Equal(t, len(state.closed), 0)
	assert.Equal(t, len(state.opened), 0)
	assert.Equal(t, state.updates, 1)

	// Ensure a protective settlement frees the market for a fresh entry on
	// the same update.
	state = &ledgerState{capital: 10000, hasPosition: true, direction: shared.Long}
	eng = setupEngine(t, state)
	eng.cfg.UpdatePosition = func(market string, price float64, now time.Time) {
		state.updates++
		state.hasPosition = false
	}

	update = shared.NewMarketUpdate(market, 50500, bullishSnapshot(market), shared.BullishTrend, now)
	eng.handleMarketUpdate(&update)

	assert.Equal(t, state.updates, 1)
	assert.Equal(t, len(state.closed), 0)
	assert.Equal(t, len(state.opened), 1)
}

func TestEnginePositionSizing(t *testing.T) {
	state := &ledgerState{capital: 10000}
	eng := setupEngine(t, state)

	price := float64(50000)
	stopLoss := price * (1 - eng.cfg.StopLossPercent)
	confidence := 0.7
	riskReward := eng.cfg.TakeProfitRatio

	// Ensure the computed size mirrors the risk, kelly and confidence chain.
	capital := state.capital
	units := (capital * eng.cfg.RiskPerTrade) / (price - stopLoss)
	baseSize := units * price / capital
	kelly := ((riskReward * confidence) - (1 - confidence)) / riskReward
	kelly = math.Max(0, kelly) * eng.cfg.KellyScale
	want := math.Min(baseSize*(1+kelly)*confidence, eng.cfg.MaxPositionSize)

	size := eng.computePositionSize(price, stopLoss, confidence, riskReward)
	assert.Equal(t, size, want)
	assert.LessThanOrEqual(t, size, eng.cfg.MaxPositionSize)

	// Ensure a kelly edge below zero only discounts by confidence.
	lowConfidence := 0.1
	size = eng.computePositionSize(price, stopLoss, lowConfidence, riskReward)
	assert.Equal(t, size, math.Min(baseSize*lowConfidence, eng.cfg.MaxPositionSize))

	// Ensure depleted capital and degenerate stops size to zero.
	state.capital = 0
	assert.Equal(t, eng.computePositionSize(price, stopLoss, confidence, riskReward), float64(0))

	state.capital = 10000
	assert.Equal(t, eng.computePositionSize(price, price, confidence, riskReward), float64(0))
}

func TestEngineRun(t *testing.T) {
	market := "BTCUSD"
	notified := make(chan shared.Signal, bufferSize)

	state := &ledgerState{capital: 10000}
	eng := setupEngine(t, state)
	eng.cfg.NotifySignal = func(signal shared.Signal) {
		notified <- signal
	}
	eng.cfg.OpenPosition = func(signal *shared.Signal) error {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	// Ensure relayed market updates are processed by the run loop.
	update := shared.NewMarketUpdate(market, 50000, bullishSnapshot(market), shared.BullishTrend, time.Now())
	eng.SendMarketUpdate(update)

	signal := <-notified
	assert.Equal(t, signal.Kind, shared.EnterLong)
	assert.True(t, strings.Contains(signal.Kind.String(), "enter"))

	// Ensure the engine can be gracefully shut down.
	cancel()
	<-done
}
