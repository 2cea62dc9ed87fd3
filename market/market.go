package market

import (
	"errors"
	"fmt"

	"github.com/dnldd/tactic/indicator"
	"github.com/dnldd/tactic/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// MarketConfig represents the market configuration.
type MarketConfig struct {
	// Market is the name of the tracked market.
	Market string
	// RelayMarketUpdate relays the provided market update for processing.
	RelayMarketUpdate func(update shared.MarketUpdate)
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *MarketConfig) Validate() error {
	var errs error

	if cfg.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("market cannot be an empty string"))
	}
	if cfg.RelayMarketUpdate == nil {
		errs = errors.Join(errs, fmt.Errorf("relay market update function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Market tracks the price state of a market.
type Market struct {
	cfg      *MarketConfig
	series   *PriceSeries
	caughtUp atomic.Bool
}

// NewMarket initializes a new market.
func NewMarket(cfg *MarketConfig) (*Market, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating market config: %w", err)
	}

	return &Market{
		cfg:    cfg,
		series: NewPriceSeries(),
	}, nil
}

// Update processes the provided price tick for the market. Prices replayed before the
// market is caught up only seed the series, they are not evaluated for decisions.
func (m *Market) Update(tick *shared.PriceTick) error {
	m.series.Update(tick.Price)

	if !m.caughtUp.Load() {
		return nil
	}

	snapshot, err := indicator.NewSnapshot(m.cfg.Market, m.series.LastN(priceSeriesSize), tick.Date)
	if err != nil {
		if errors.Is(err, indicator.ErrInsufficientData) {
			m.cfg.Logger.Debug().Msgf("indicators not ready for %s: %d/%d samples",
				m.cfg.Market, m.series.Count(), indicator.SnapshotMinSamples)
			return nil
		}

		return fmt.Errorf("creating indicator snapshot: %w", err)
	}

	trend := shared.ClassifyTrend(snapshot, tick.Price)
	update := shared.NewMarketUpdate(m.cfg.Market, tick.Price, snapshot, trend, tick.Date)
	m.cfg.RelayMarketUpdate(update)

	return nil
}
