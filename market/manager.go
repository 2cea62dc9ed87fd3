package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/tactic/shared"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// catchUpLookback is the trailing window replayed to seed indicator state for a market.
	catchUpLookback = time.Hour * 72
)

// ManagerConfig represents the market manager configuration.
type ManagerConfig struct {
	// Markets represents the collection of tracked markets.
	Markets []string
	// CatchUp signals a catch up process for a market.
	CatchUp func(signal shared.CatchUpSignal)
	// Subscribe registers the provided channel for price tick updates.
	Subscribe func(sub *chan shared.PriceTick)
	// RelayMarketUpdate relays the provided market update for processing.
	RelayMarketUpdate func(update shared.MarketUpdate)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for market manager"))
	}
	if cfg.CatchUp == nil {
		errs = errors.Join(errs, fmt.Errorf("catch up function cannot be nil"))
	}
	if cfg.Subscribe == nil {
		errs = errors.Join(errs, fmt.Errorf("subscribe function cannot be nil"))
	}
	if cfg.RelayMarketUpdate == nil {
		errs = errors.Join(errs, fmt.Errorf("relay market update function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// workerEvent sequences price ticks and the caught up transition for a market worker.
type workerEvent struct {
	tick     *shared.PriceTick
	caughtUp *shared.CaughtUpSignal
}

// Manager manages the lifecycle processes of all tracked markets.
type Manager struct {
	cfg             *ManagerConfig
	markets         map[string]*Market
	updateSignals   chan shared.PriceTick
	caughtUpSignals chan shared.CaughtUpSignal
	workers         map[string]chan workerEvent
}

// NewManager initializes a new market manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating market manager config: %w", err)
	}

	markets := make(map[string]*Market)
	workers := make(map[string]chan workerEvent)
	for idx := range cfg.Markets {
		name := cfg.Markets[idx]
		logger := cfg.Logger.With().Str("market", name).Logger()
		mkt, err := NewMarket(&MarketConfig{
			Market:            name,
			RelayMarketUpdate: cfg.RelayMarketUpdate,
			Logger:            &logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s market: %w", name, err)
		}

		markets[name] = mkt
		workers[name] = make(chan workerEvent, bufferSize)
	}

	mgr := &Manager{
		cfg:             cfg,
		markets:         markets,
		updateSignals:   make(chan shared.PriceTick, bufferSize),
		caughtUpSignals: make(chan shared.CaughtUpSignal, bufferSize),
		workers:         workers,
	}

	cfg.Subscribe(&mgr.updateSignals)

	return mgr, nil
}

// SendMarketUpdate relays the provided price tick for processing.
func (m *Manager) SendMarketUpdate(tick shared.PriceTick) {
	select {
	case m.updateSignals <- tick:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("market update channel at capacity: %d/%d",
			len(m.updateSignals), bufferSize)
	}
}

// SendCaughtUpSignal relays the provided caught up signal for processing.
func (m *Manager) SendCaughtUpSignal(signal shared.CaughtUpSignal) {
	select {
	case m.caughtUpSignals <- signal:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("caught up signal channel at capacity: %d/%d",
			len(m.caughtUpSignals), bufferSize)
	}
}

// handleUpdateTick processes the provided price tick.
func (m *Manager) handleUpdateTick(tick *shared.PriceTick) {
	market, ok := m.markets[tick.Market]
	if !ok {
		m.cfg.Logger.Error().Msgf("no market found with name %s for update", tick.Market)
		return
	}

	err := market.Update(tick)
	if err != nil {
		m.cfg.Logger.Error().Msgf("updating %s market: %v", tick.Market, err)
	}
}

// routeTick validates the provided price tick and forwards it to its market worker.
func (m *Manager) routeTick(tick *shared.PriceTick) {
	err := tick.Validate()
	if err != nil {
		m.cfg.Logger.Error().Msgf("rejecting malformed price update: %v", err)
		return
	}

	worker, ok := m.workers[tick.Market]
	if !ok {
		m.cfg.Logger.Error().Msgf("no market found with name %s for update", tick.Market)
		return
	}

	// Replayed history must reach the price series in full, block instead of
	// dropping while the market is still catching up.
	if !m.markets[tick.Market].caughtUp.Load() {
		worker <- workerEvent{tick: tick}
		return
	}

	select {
	case worker <- workerEvent{tick: tick}:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("%s market worker channel at capacity: %d/%d",
			tick.Market, len(worker), bufferSize)
	}
}

// routeCaughtUp forwards the provided caught up signal to its market worker.
func (m *Manager) routeCaughtUp(signal *shared.CaughtUpSignal) {
	worker, ok := m.workers[signal.Market]
	if !ok {
		m.cfg.Logger.Error().Msgf("no market found with name %s for caught up signal", signal.Market)
		return
	}

	worker <- workerEvent{caughtUp: signal}
}

// catchUp signals a catch up for all tracked markets.
func (m *Manager) catchUp() {
	start := time.Now().Add(-catchUpLookback)
	for name := range m.markets {
		m.cfg.CatchUp(shared.NewCatchUpSignal(name, start))
	}
}

// runWorker processes events for the provided market in arrival order.
func (m *Manager) runWorker(ctx context.Context, market string) {
	events := m.workers[market]
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			switch {
			case event.tick != nil:
				m.handleUpdateTick(event.tick)
			case event.caughtUp != nil:
				m.markets[market].caughtUp.Store(true)
				event.caughtUp.Status <- shared.Processed
			}
		}
	}
}

// Run manages the lifecycle processes of the market manager.
//
// Ticks route through a dedicated market worker so updates for a market apply
// in arrival order while markets progress independently.
func (m *Manager) Run(ctx context.Context) {
	m.catchUp()

	for market := range m.workers {
		go m.runWorker(ctx, market)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-m.caughtUpSignals:
			// Route pending ticks first so the caught up marker lands after
			// every replayed price that preceded it.
			for {
				select {
				case tick := <-m.updateSignals:
					m.routeTick(&tick)
					continue
				default:
				}
				break
			}

			m.routeCaughtUp(&signal)
		case tick := <-m.updateSignals:
			m.routeTick(&tick)
		}
	}
}
