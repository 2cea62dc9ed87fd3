package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dnldd/tactic/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// minSubscriberBuffer is the minimum buffer size for subscribers.
	minSubscriberBuffer = 4
)

// ManagerConfig represents the configuration for the fetch manager.
type ManagerConfig struct {
	// Markets represents the collection of tracked markets.
	Markets []string
	// ExchangeClient represents the market data client.
	ExchangeClient shared.QuoteFetcher
	// PollInterval is the interval between price quote polls.
	PollInterval time.Duration
	// SignalCaughtUp signals a market has caught up on historical price data.
	SignalCaughtUp func(signal shared.CaughtUpSignal)
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Markets) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no markets provided for fetch manager"))
	}
	if cfg.ExchangeClient == nil {
		errs = errors.Join(errs, fmt.Errorf("exchange client cannot be nil"))
	}
	if cfg.PollInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("poll interval must be greater than zero"))
	}
	if cfg.SignalCaughtUp == nil {
		errs = errors.Join(errs, fmt.Errorf("signal caught up function cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager represents the price data fetch manager.
//
// The run loop alone touches last updated times, catch up replays and quote
// polls never race on them.
type Manager struct {
	cfg              *ManagerConfig
	lastUpdatedTimes map[string]time.Time
	catchUpSignals   chan shared.CatchUpSignal
	pollSignals      chan struct{}
	subscribers      []*chan shared.PriceTick
}

// NewManager initializes a new fetch manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating fetch manager config: %w", err)
	}

	mgr := &Manager{
		cfg:              cfg,
		lastUpdatedTimes: make(map[string]time.Time),
		catchUpSignals:   make(chan shared.CatchUpSignal, bufferSize),
		pollSignals:      make(chan struct{}, 1),
		subscribers:      make([]*chan shared.PriceTick, 0, minSubscriberBuffer),
	}

	return mgr, nil
}

// Subscribe registers the provided subscriber for price tick updates.
func (m *Manager) Subscribe(sub *chan shared.PriceTick) {
	m.subscribers = append(m.subscribers, sub)
}

// notifySubscribers relays the provided price tick to all subscribers.
func (m *Manager) notifySubscribers(tick *shared.PriceTick) {
	for idx := range m.subscribers {
		*m.subscribers[idx] <- *tick
	}
}

// SendCatchUpSignal relays the provided catch up signal for processing.
func (m *Manager) SendCatchUpSignal(signal shared.CatchUpSignal) {
	select {
	case m.catchUpSignals <- signal:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("catch up signal channel at capacity: %d/%d",
			len(m.catchUpSignals), bufferSize)
	}
}

// SendPollSignal requests a price quote poll for all tracked markets.
func (m *Manager) SendPollSignal() {
	select {
	case m.pollSignals <- struct{}{}:
		// do nothing.
	default:
		// do nothing, a poll is already pending.
	}
}

// handleCatchUpSignal processes the provided catch up signal.
func (m *Manager) handleCatchUpSignal(ctx context.Context, signal shared.CatchUpSignal) {
	data, err := m.cfg.ExchangeClient.FetchIntradayHistorical(ctx, signal.Market, signal.Start, time.Time{})
	if err != nil {
		m.cfg.Logger.Error().Msgf("catching up on %s: %v", signal.Market, err)
		return
	}

	ticks, err := ParsePriceTicks(data, signal.Market)
	if err != nil {
		m.cfg.Logger.Error().Msgf("parsing %s price ticks: %v", signal.Market, err)
		return
	}

	// The exchange returns the most recent prices first. Replay oldest first
	// since indicator state depends on the order prices arrive.
	slices.SortFunc(ticks, func(a, b shared.PriceTick) int {
		return a.Date.Compare(b.Date)
	})

	for idx := range ticks {
		m.notifySubscribers(&ticks[idx])
	}

	lastUpdated := signal.Start
	if len(ticks) > 0 {
		lastUpdated = ticks[len(ticks)-1].Date
	}
	m.lastUpdatedTimes[signal.Market] = lastUpdated

	caughtUp := shared.NewCaughtUpSignal(signal.Market)
	m.cfg.SignalCaughtUp(caughtUp)
	<-caughtUp.Status

	m.cfg.Logger.Info().Msgf("%s caught up on historical price data from %s",
		signal.Market, signal.Start.Format(time.RFC1123))

	signal.Status <- shared.Processed
}

// pollQuotes fetches current price quotes for all caught up markets.
func (m *Manager) pollQuotes(ctx context.Context) {
	for idx := range m.cfg.Markets {
		market := m.cfg.Markets[idx]
		lastUpdated, ok := m.lastUpdatedTimes[market]
		if !ok {
			// The market has not caught up on historical price data yet.
			continue
		}

		quote, err := m.cfg.ExchangeClient.FetchQuote(ctx, market)
		if err != nil {
			m.cfg.Logger.Error().Msgf("fetching %s quote: %v", market, err)
			continue
		}

		if !quote.Date.After(lastUpdated) {
			// do nothing, the quote is already processed.
			continue
		}

		m.lastUpdatedTimes[market] = quote.Date
		m.notifySubscribers(&quote)
	}
}

// Run manages the lifecycle processes of the fetch manager.
func (m *Manager) Run(ctx context.Context) {
	_, err := m.cfg.JobScheduler.Every(m.cfg.PollInterval).Do(m.SendPollSignal)
	if err != nil {
		m.cfg.Logger.Error().Msgf("scheduling quote polls: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-m.catchUpSignals:
			m.handleCatchUpSignal(ctx, signal)
		case <-m.pollSignals:
			m.pollQuotes(ctx)
		}
	}
}
