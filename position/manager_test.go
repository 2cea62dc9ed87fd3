package position

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/dnldd/tactic/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
)

func setupPositionManager(t *testing.T, initialCapital float64, maxOpenPositions int) (*Manager, *[]*shared.ClosedTrade, *[]string) {
	recorded := make([]*shared.ClosedTrade, 0)
	recordClosedTrade := func(trade *shared.ClosedTrade) {
		recorded = append(recorded, trade)
	}

	notifications := make([]string, 0)
	notify := func(message string) {
		notifications = append(notifications, message)
	}

	persistClosedTrade := func(trade *shared.ClosedTrade) error {
		return nil
	}

	cfg := &ManagerConfig{
		InitialCapital:     initialCapital,
		MaxOpenPositions:   maxOpenPositions,
		Notify:             notify,
		RecordClosedTrade:  recordClosedTrade,
		PersistClosedTrade: persistClosedTrade,
		Logger:             &log.Logger,
	}

	mgr, err := NewManager(cfg)
	assert.NoError(t, err)

	return mgr, &recorded, &notifications
}

func TestManagerConfigValidate(t *testing.T) {
	// Ensure manager config validation fails if required fields are missing.
	cfg := &ManagerConfig{}
	assert.Error(t, cfg.Validate())

	// Ensure manager config validation passes with all required fields set.
	cfg = &ManagerConfig{
		InitialCapital:     10000,
		MaxOpenPositions:   5,
		Notify:             func(message string) {},
		RecordClosedTrade:  func(trade *shared.ClosedTrade) {},
		PersistClosedTrade: func(trade *shared.ClosedTrade) error { return nil },
		Logger:             &log.Logger,
	}
	assert.NoError(t, cfg.Validate())
}

func TestPositionLifecycle(t *testing.T) {
	market := "BTCUSD"
	mgr, recorded, notifications := setupPositionManager(t, 10000, 5)
	now := time.Now()

	// Ensure a qualifying entry signal opens a position without debiting capital.
	entrySignal := shared.NewEntrySignal(market, shared.EnterLong, 50000, 49000, 53000,
		0.75, 0.06, 3, 0.05, []shared.Reason{shared.BullishRegime}, nil, now)
	position, err := mgr.OpenPosition(&entrySignal)
	assert.NoError(t, err)
	assert.Equal(t, position.CapitalAtOpen, float64(10000))
	assert.Equal(t, mgr.CurrentCapital(), float64(10000))
	assert.Equal(t, mgr.OpenPositions(), 1)
	assert.Equal(t, len(*notifications), 1)

	// Ensure a price update within the protective levels keeps the position open.
	mgr.UpdatePosition(market, 51000, now)
	open, ok := mgr.FetchPosition(market)
	assert.True(t, ok)
	assert.Equal(t, open.PNLPercent, (float64(51000)-50000)/50000)
	assert.Equal(t, len(*recorded), 0)

	// Ensure a price update at the profit target settles the position and
	// credits capital with the realized pnl.
	mgr.UpdatePosition(market, 53000, now)
	_, ok = mgr.FetchPosition(market)
	assert.False(t, ok)
	assert.Equal(t, len(*recorded), 1)

	trade := (*recorded)[0]
	assert.Equal(t, trade.Market, market)
	assert.Equal(t, trade.PNLAmount, 10000*0.05*((float64(53000)-50000)/50000))
	assert.Equal(t, mgr.CurrentCapital(), 10000+trade.PNLAmount)
	assert.Equal(t, len(*notifications), 2)
}

func TestManagerStopLoss(t *testing.T) {
	market := "BTCUSD"
	mgr, recorded, _ := setupPositionManager(t, 10000, 5)
	now := time.Now()

	entrySignal := shared.NewEntrySignal(market, shared.EnterLong, 50000, 49000, 53000,
		0.75, 0.06, 3, 0.05, []shared.Reason{shared.BullishRegime}, nil, now)
	_, err := mgr.OpenPosition(&entrySignal)
	assert.NoError(t, err)

	// Ensure a price update breaching the stop loss settles the position at a loss.
	mgr.UpdatePosition(market, 48500, now)
	_, ok := mgr.FetchPosition(market)
	assert.False(t, ok)
	assert.Equal(t, len(*recorded), 1)

	trade := (*recorded)[0]
	assert.LessThanOrEqual(t, trade.PNLAmount, 0)
	assert.Equal(t, mgr.CurrentCapital(), 10000+trade.PNLAmount)
}

func TestManagerOpenPositionLimits(t *testing.T) {
	market := "BTCUSD"
	mgr, _, _ := setupPositionManager(t, 10000, 2)
	now := time.Now()

	entrySignal := shared.NewEntrySignal(market, shared.EnterLong, 50000, 49000, 53000,
		0.75, 0.06, 3, 0.05, []shared.Reason{shared.BullishRegime}, nil, now)
	_, err := mgr.OpenPosition(&entrySignal)
	assert.NoError(t, err)

	// Ensure a market cannot hold more than one open position.
	_, err = mgr.OpenPosition(&entrySignal)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrPositionExists))

	// Ensure opening beyond the position capacity fails.
	ethSignal := shared.NewEntrySignal("ETHUSD", shared.EnterLong, 3000, 2940, 3180,
		0.75, 0.06, 3, 0.05, []shared.Reason{shared.BullishRegime}, nil, now)
	_, err = mgr.OpenPosition(&ethSignal)
	assert.NoError(t, err)

	solSignal := shared.NewEntrySignal("SOLUSD", shared.EnterLong, 150, 147, 159,
		0.75, 0.06, 3, 0.05, []shared.Reason{shared.BullishRegime}, nil, now)
	_, err = mgr.OpenPosition(&solSignal)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrPositionLimit))

	// Ensure settling a position frees capacity for new entries.
	_, err = mgr.ClosePosition("ETHUSD", 3100, []shared.Reason{shared.TrendReversal}, now)
	assert.NoError(t, err)

	_, err = mgr.OpenPosition(&solSignal)
	assert.NoError(t, err)
}

func TestManagerUnknownMarket(t *testing.T) {
	mgr, recorded, _ := setupPositionManager(t, 10000, 5)
	now := time.Now()

	// Ensure updates for markets without open positions are no-ops.
	mgr.UpdatePosition("ETHUSD", 3000, now)
	assert.Equal(t, len(*recorded), 0)
	assert.Equal(t, mgr.CurrentCapital(), float64(10000))

	// Ensure closing a market without an open position fails.
	_, err := mgr.ClosePosition("ETHUSD", 3000, []shared.Reason{shared.TrendReversal}, now)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPosition))
}

func TestManagerPositionsRequest(t *testing.T) {
	market := "BTCUSD"
	mgr, _, _ := setupPositionManager(t, 10000, 5)
	now := time.Now()

	entrySignal := shared.NewEntrySignal(market, shared.EnterLong, 50000, 49000, 53000,
		0.75, 0.06, 3, 0.05, []shared.Reason{shared.BullishRegime}, nil, now)
	_, err := mgr.OpenPosition(&entrySignal)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	// Ensure open position summaries can be requested from the manager.
	request := shared.NewPositionsRequest()
	mgr.SendPositionsRequest(*request)

	summaries := <-request.Response
	assert.Equal(t, len(summaries), 1)
	assert.Equal(t, summaries[0].Market, market)
	assert.Equal(t, summaries[0].Direction, shared.Long)
	assert.Equal(t, summaries[0].EntryPrice, float64(50000))
	assert.Equal(t, summaries[0].PositionSize, 0.05)

	// Ensure the manager can be gracefully shut down.
	cancel()
	<-done
}

func TestManagerCapitalConsistency(t *testing.T) {
	// Ensure a randomized sequence of opens and closes leaves capital exactly
	// equal to the initial capital plus the recorded trade pnls.
	markets := []string{"BTCUSD", "ETHUSD", "SOLUSD"}
	mgr, recorded, _ := setupPositionManager(t, 10000, len(markets))

	rng := rand.New(rand.NewSource(42))
	now := time.Now()
	kinds := []shared.SignalKind{shared.EnterLong, shared.EnterShort}

	for range 200 {
		market := markets[rng.Intn(len(markets))]
		_, open := mgr.FetchPosition(market)
		switch {
		case open:
			price := 40000 + rng.Float64()*20000
			_, err := mgr.ClosePosition(market, price, []shared.Reason{shared.TrendReversal}, now)
			assert.NoError(t, err)
		default:
			entry := 40000 + rng.Float64()*20000
			kind := kinds[rng.Intn(len(kinds))]

			stopLoss := entry * 0.9
			takeProfit := entry * 1.2
			if kind == shared.EnterShort {
				stopLoss = entry * 1.1
				takeProfit = entry * 0.8
			}

			signal := shared.NewEntrySignal(market, kind, entry, stopLoss, takeProfit,
				0.7, 0.2, 2, 0.05, []shared.Reason{shared.BullishRegime}, nil, now)
			_, err := mgr.OpenPosition(&signal)
			assert.NoError(t, err)
		}
	}

	for idx := range markets {
		if _, ok := mgr.FetchPosition(markets[idx]); ok {
			price := 40000 + rng.Float64()*20000
			_, err := mgr.ClosePosition(markets[idx], price, []shared.Reason{shared.TrendReversal}, now)
			assert.NoError(t, err)
		}
	}

	expected := float64(10000)
	for idx := range *recorded {
		expected += (*recorded)[idx].PNLAmount
	}

	assert.Equal(t, mgr.OpenPositions(), 0)
	assert.Equal(t, mgr.CurrentCapital(), expected)
}
