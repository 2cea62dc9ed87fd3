package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/tactic/database"
	"github.com/dnldd/tactic/engine"
	"github.com/dnldd/tactic/fetch"
	"github.com/dnldd/tactic/market"
	"github.com/dnldd/tactic/performance"
	"github.com/dnldd/tactic/position"
	"github.com/dnldd/tactic/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// summaryInterval is the interval between logged position and performance summaries.
	summaryInterval = time.Minute * 30
)

// TacticConfig represents the configuration struct for the tactic service.
type TacticConfig struct {
	// Markets represents the tracked markets.
	Markets []string
	// FMPAPIKey is the FMP service API Key.
	FMPAPIKey string
	// DatabaseEndpoint is the trade database endpoint, persistence is skipped when unset.
	DatabaseEndpoint string
	// DatabaseUser is the trade database user.
	DatabaseUser string
	// DatabasePass is the trade database user pass.
	DatabasePass string
	// InitialCapital is the starting trading capital.
	InitialCapital float64
	// RiskPerTrade is the fraction of capital risked per trade.
	RiskPerTrade float64
	// MaxOpenPositions is the maximum number of concurrently open positions.
	MaxOpenPositions int
	// StopLossPercent is the stop loss distance as a fraction of the entry price.
	StopLossPercent float64
	// TakeProfitRatio is the profit target distance as a multiple of the stop distance.
	TakeProfitRatio float64
	// MinConfidence is the minimum confidence required to act on an entry signal.
	MinConfidence float64
	// MinRiskReward is the minimum risk reward ratio required for an entry.
	MinRiskReward float64
	// MaxPositionSize is the position size cap as a fraction of capital.
	MaxPositionSize float64
	// KellyScale dampens the kelly sizing adjustment.
	KellyScale float64
	// PollInterval is the interval between price quote polls.
	PollInterval time.Duration
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *TacticConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for tactic service"))
	}
	if cfg.FMPAPIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
	}
	if cfg.InitialCapital <= 0 {
		errs = errors.Join(errs, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital))
	}
	if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade >= 1 {
		errs = errors.Join(errs, fmt.Errorf("risk per trade must be in (0, 1), got %v", cfg.RiskPerTrade))
	}
	if cfg.MaxOpenPositions <= 0 {
		errs = errors.Join(errs, fmt.Errorf("max open positions must be positive, got %d", cfg.MaxOpenPositions))
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
	if cfg.PollInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("poll interval must be greater than zero"))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// Tactic represents an automated market decision service.
type Tactic struct {
	cfg                *TacticConfig
	fetchManager       *fetch.Manager
	marketManager      *market.Manager
	positionManager    *position.Manager
	performanceTracker *performance.Tracker
	tradingEngine      *engine.Engine
	database           *database.Database
	jobScheduler       *gocron.Scheduler
	logger             *zerolog.Logger
	wg                 sync.WaitGroup
}

// NewTactic initializes a new tactic service.
func NewTactic(ctx context.Context, cfg *TacticConfig) (*Tactic, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating tactic service config: %v", err)
	}

	var marketMgr *market.Manager
	var fetchMgr *fetch.Manager
	var positionMgr *position.Manager
	var tracker *performance.Tracker
	var tradingEngine *engine.Engine

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "tactic").Logger()

	caughtUpFunc := func(signal shared.CaughtUpSignal) {
		if marketMgr != nil {
			marketMgr.SendCaughtUpSignal(signal)
		}
	}

	relayMarketUpdateFunc := func(update shared.MarketUpdate) {
		if tradingEngine != nil {
			tradingEngine.SendMarketUpdate(update)
		}
	}

	recordClosedTradeFunc := func(trade *shared.ClosedTrade) {
		if tracker != nil {
			tracker.RecordClosedTrade(trade)
		}
	}

	jobScheduler := gocron.NewScheduler(time.UTC)

	fmp, err := fetch.NewFMPClient(&fetch.FMPConfig{APIKey: cfg.FMPAPIKey, BaseURL: fetch.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("creating fmp client: %v", err)
	}

	fetchMgrLogger := logger.With().Str("component", "fetchmanager").Logger()
	fetchMgr, err = fetch.NewManager(&fetch.ManagerConfig{
		Markets:        cfg.Markets,
		ExchangeClient: fmp,
		PollInterval:   cfg.PollInterval,
		SignalCaughtUp: caughtUpFunc,
		JobScheduler:   jobScheduler,
		Logger:         &fetchMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetch manager: %v", err)
	}

	var db *database.Database
	persistClosedTradeFunc := func(trade *shared.ClosedTrade) error {
		return nil
	}
	switch {
	case cfg.DatabaseEndpoint == "":
		logger.Debug().Msg("no database endpoint set, trade persistence disabled")
	default:
		dbLogger := logger.With().Str("component", "database").Logger()
		db, err = database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.DatabaseEndpoint,
			User:     cfg.DatabaseUser,
			Pass:     cfg.DatabasePass,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating database: %v", err)
		}

		persistClosedTradeFunc = func(trade *shared.ClosedTrade) error {
			return db.PersistClosedTrade(ctx, trade)
		}
	}

	positionMgrLogger := logger.With().Str("component", "positionmanager").Logger()
	positionMgr, err = position.NewManager(&position.ManagerConfig{
		InitialCapital:   cfg.InitialCapital,
		MaxOpenPositions: cfg.MaxOpenPositions,
		Notify: func(message string) {
			logger.Info().Msg(message)
		},
		RecordClosedTrade:  recordClosedTradeFunc,
		PersistClosedTrade: persistClosedTradeFunc,
		Logger:             &positionMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating position manager: %v", err)
	}

	trackerLogger := logger.With().Str("component", "performancetracker").Logger()
	tracker, err = performance.NewTracker(&performance.TrackerConfig{
		InitialCapital: cfg.InitialCapital,
		CurrentCapital: positionMgr.CurrentCapital,
		Logger:         &trackerLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating performance tracker: %v", err)
	}

	marketMgrLogger := logger.With().Str("component", "marketmanager").Logger()
	marketMgr, err = market.NewManager(&market.ManagerConfig{
		Markets:           cfg.Markets,
		CatchUp:           fetchMgr.SendCatchUpSignal,
		Subscribe:         fetchMgr.Subscribe,
		RelayMarketUpdate: relayMarketUpdateFunc,
		Logger:            &marketMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating market manager: %v", err)
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	tradingEngine, err = engine.NewEngine(&engine.EngineConfig{
		RiskPerTrade:    cfg.RiskPerTrade,
		StopLossPercent: cfg.StopLossPercent,
		TakeProfitRatio: cfg.TakeProfitRatio,
		MinConfidence:   cfg.MinConfidence,
		MinRiskReward:   cfg.MinRiskReward,
		MaxPositionSize: cfg.MaxPositionSize,
		KellyScale:      cfg.KellyScale,
		CurrentCapital:  positionMgr.CurrentCapital,
		FetchPositionDirection: func(market string) (shared.Direction, bool) {
			pos, ok := positionMgr.FetchPosition(market)
			if !ok {
				return shared.Long, false
			}
			return pos.Direction, true
		},
		OpenPosition: func(signal *shared.Signal) error {
			_, err := positionMgr.OpenPosition(signal)
			return err
		},
		UpdatePosition: positionMgr.UpdatePosition,
		ClosePosition: func(market string, price float64, reasons []shared.Reason, now time.Time) error {
			_, err := positionMgr.ClosePosition(market, price, reasons, now)
			return err
		},
		NotifySignal: func(signal shared.Signal) {
			logger.Info().Msgf("%s signal for %s @ %v with confidence %.2f",
				signal.Kind.String(), signal.Market, signal.Price, signal.Confidence)
		},
		Logger: &engineLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decision engine: %v", err)
	}

	service := &Tactic{
		cfg:                cfg,
		fetchManager:       fetchMgr,
		marketManager:      marketMgr,
		positionManager:    positionMgr,
		performanceTracker: tracker,
		tradingEngine:      tradingEngine,
		database:           db,
		jobScheduler:       jobScheduler,
		logger:             &logger,
	}

	return service, nil
}

// logSummary logs a summary of open positions and performance stats.
func (s *Tactic) logSummary() {
	req := shared.NewPositionsRequest()
	s.positionManager.SendPositionsRequest(*req)
	summaries := <-req.Response

	stats := s.performanceTracker.FetchStats()

	profitFactor := fmt.Sprintf("%.2f", stats.ProfitFactor)
	if stats.ProfitFactorInfinite {
		profitFactor = "inf"
	}

	s.logger.Info().Msgf("%d open positions, %d closed trades (%d wins, %d losses, win rate %.2f, profit factor %s), net profit %.2f, capital %.2f",
		len(summaries), stats.TotalTrades, stats.Wins, stats.Losses, stats.WinRate,
		profitFactor, stats.NetProfit, s.positionManager.CurrentCapital())

	for idx := range summaries {
		summary := summaries[idx]
		s.logger.Info().Msgf("%s %s @ %v now %v with pnl %.2f%%, stop loss %v and profit target %v",
			summary.Direction.String(), summary.Market, summary.EntryPrice, summary.CurrentPrice,
			summary.PNLPercent*100, summary.StopLoss, summary.TakeProfit)
	}
}

// Run handles the lifecycle processes of the tactic service.
func (s *Tactic) Run(ctx context.Context) {
	s.wg.Add(4)

	go func() {
		s.positionManager.Run(ctx)
		s.wg.Done()
	}()

	go func() {
		s.marketManager.Run(ctx)
		s.wg.Done()
	}()

	go func() {
		s.tradingEngine.Run(ctx)
		s.wg.Done()
	}()

	go func() {
		s.fetchManager.Run(ctx)
		s.wg.Done()
	}()

	_, err := s.jobScheduler.Every(summaryInterval).Do(s.logSummary)
	if err != nil {
		s.logger.Error().Msgf("scheduling summary logs: %v", err)
		s.cfg.Cancel()
	}

	s.jobScheduler.StartAsync()

	s.wg.Wait()
	s.jobScheduler.Stop()
}
