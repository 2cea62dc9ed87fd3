package performance

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dnldd/tactic/shared"
	"github.com/rs/zerolog"
)

// Stats represents the running performance aggregates of the ledger.
//
// ProfitFactor is zero with ProfitFactorInfinite set when there are profits
// but no losses to divide by.
type Stats struct {
	TotalTrades          int
	Wins                 int
	Losses               int
	WinRate              float64
	TotalProfit          float64
	TotalLoss            float64
	NetProfit            float64
	ProfitFactor         float64
	ProfitFactorInfinite bool
	AverageWin           float64
	AverageLoss          float64
	BestTrade            float64
	WorstTrade           float64
}

// TrackerConfig represents the performance tracker configuration.
type TrackerConfig struct {
	// InitialCapital is the starting trading capital of the ledger.
	InitialCapital float64
	// CurrentCapital returns the current trading capital of the ledger.
	CurrentCapital func() float64
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *TrackerConfig) Validate() error {
	var errs error

	if cfg.InitialCapital <= 0 {
		errs = errors.Join(errs, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital))
	}
	if cfg.CurrentCapital == nil {
		errs = errors.Join(errs, fmt.Errorf("current capital function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Tracker incrementally aggregates closed trade statistics.
//
// Every update is constant time, aggregates are never recomputed from the
// full trade history.
type Tracker struct {
	cfg      *TrackerConfig
	stats    Stats
	statsMtx sync.RWMutex
}

// NewTracker initializes a new performance tracker.
func NewTracker(cfg *TrackerConfig) (*Tracker, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating performance tracker config: %w", err)
	}

	return &Tracker{
		cfg: cfg,
	}, nil
}

// RecordClosedTrade folds the provided closed trade into the running aggregates.
func (t *Tracker) RecordClosedTrade(trade *shared.ClosedTrade) {
	t.statsMtx.Lock()
	defer t.statsMtx.Unlock()

	stats := &t.stats
	stats.TotalTrades++

	pnl := trade.PNLAmount
	switch {
	case pnl > 0:
		stats.Wins++
		stats.TotalProfit += pnl
		stats.AverageWin = stats.TotalProfit / float64(stats.Wins)
	default:
		// Flat trades count as losses.
		stats.Losses++
		stats.TotalLoss += -pnl
		stats.AverageLoss = stats.TotalLoss / float64(stats.Losses)
	}

	stats.WinRate = float64(stats.Wins) / float64(stats.TotalTrades)

	switch {
	case stats.TotalLoss > 0:
		stats.ProfitFactor = stats.TotalProfit / stats.TotalLoss
		stats.ProfitFactorInfinite = false
	case stats.TotalProfit > 0:
		stats.ProfitFactor = 0
		stats.ProfitFactorInfinite = true
	default:
		stats.ProfitFactor = 0
		stats.ProfitFactorInfinite = false
	}

	if stats.TotalTrades == 1 {
		stats.BestTrade = pnl
		stats.WorstTrade = pnl
		return
	}

	if pnl > stats.BestTrade {
		stats.BestTrade = pnl
	}
	if pnl < stats.WorstTrade {
		stats.WorstTrade = pnl
	}
}

// FetchStats returns a snapshot of the running aggregates.
func (t *Tracker) FetchStats() Stats {
	t.statsMtx.RLock()
	defer t.statsMtx.RUnlock()

	stats := t.stats
	stats.NetProfit = t.cfg.CurrentCapital() - t.cfg.InitialCapital

	return stats
}
