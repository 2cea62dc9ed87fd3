package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/tactic/shared"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
)

var (
	// ErrPositionExists is returned when a market already has an open position.
	ErrPositionExists = errors.New("position already open for market")
	// ErrPositionLimit is returned when the open position capacity is reached.
	ErrPositionLimit = errors.New("open position limit reached")
	// ErrNoPosition is returned when no open position exists for a market.
	ErrNoPosition = errors.New("no open position for market")
)

// ManagerConfig represents the position manager configuration.
type ManagerConfig struct {
	// InitialCapital is the starting trading capital of the ledger.
	InitialCapital float64
	// MaxOpenPositions caps the number of concurrently open positions.
	MaxOpenPositions int
	// Notify sends the provided message.
	Notify func(message string)
	// RecordClosedTrade relays the provided closed trade for performance tracking.
	RecordClosedTrade func(trade *shared.ClosedTrade)
	// PersistClosedTrade persists the provided closed trade to the database.
	PersistClosedTrade func(trade *shared.ClosedTrade) error
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.InitialCapital <= 0 {
		errs = errors.Join(errs, fmt.Errorf("initial capital must be positive, got %v", cfg.InitialCapital))
	}
	if cfg.MaxOpenPositions <= 0 {
		errs = errors.Join(errs, fmt.Errorf("max open positions must be positive, got %d", cfg.MaxOpenPositions))
	}
	if cfg.Notify == nil {
		errs = errors.Join(errs, fmt.Errorf("notify function cannot be nil"))
	}
	if cfg.RecordClosedTrade == nil {
		errs = errors.Join(errs, fmt.Errorf("record closed trade function cannot be nil"))
	}
	if cfg.PersistClosedTrade == nil {
		errs = errors.Join(errs, fmt.Errorf("persist closed trade function cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager manages positions through their lifecycles.
//
// Each market holds at most one open position. Capital only changes when a
// position settles, opening a position does not debit it.
type Manager struct {
	cfg               *ManagerConfig
	capital           *atomic.Float64
	positions         map[string]*Position
	positionsMtx      sync.RWMutex
	positionsRequests chan shared.PositionsRequest
}

// NewManager initializes a new position manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating position manager config: %w", err)
	}

	return &Manager{
		cfg:               cfg,
		capital:           atomic.NewFloat64(cfg.InitialCapital),
		positions:         make(map[string]*Position),
		positionsRequests: make(chan shared.PositionsRequest, bufferSize),
	}, nil
}

// CurrentCapital returns the current trading capital of the ledger.
func (m *Manager) CurrentCapital() float64 {
	return m.capital.Load()
}

// OpenPositions returns the number of currently open positions.
func (m *Manager) OpenPositions() int {
	m.positionsMtx.RLock()
	defer m.positionsMtx.RUnlock()

	return len(m.positions)
}

// FetchPosition fetches the open position for the provided market.
func (m *Manager) FetchPosition(market string) (*Position, bool) {
	m.positionsMtx.RLock()
	defer m.positionsMtx.RUnlock()

	position, ok := m.positions[market]
	return position, ok
}

// OpenPosition opens a position for the provided entry signal.
func (m *Manager) OpenPosition(signal *shared.Signal) (*Position, error) {
	m.positionsMtx.Lock()
	defer m.positionsMtx.Unlock()

	if _, ok := m.positions[signal.Market]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionExists, signal.Market)
	}
	if len(m.positions) >= m.cfg.MaxOpenPositions {
		return nil, fmt.Errorf("%w: %d/%d", ErrPositionLimit, len(m.positions), m.cfg.MaxOpenPositions)
	}

	position, err := NewPosition(signal, m.capital.Load())
	if err != nil {
		return nil, fmt.Errorf("creating new position: %w", err)
	}

	m.positions[signal.Market] = position

	msg := fmt.Sprintf("Opened %s position (%s) for %s @ %v with stop loss %v and profit target %v",
		position.Direction.String(), position.ID, position.Market, position.EntryPrice,
		position.StopLoss, position.TakeProfit)
	m.cfg.Notify(msg)

	return position, nil
}

// UpdatePosition applies the provided price to the open position for the market,
// settling the position if one of its protective levels is breached.
func (m *Manager) UpdatePosition(market string, price float64, now time.Time) {
	m.positionsMtx.Lock()
	position, ok := m.positions[market]
	if !ok {
		m.positionsMtx.Unlock()
		m.cfg.Logger.Warn().Msgf("no open position for %s to update", market)
		return
	}

	_, err := position.UpdatePNLPercent(price)
	m.positionsMtx.Unlock()
	if err != nil {
		m.cfg.Logger.Error().Msgf("updating %s position pnl: %v", market, err)
		return
	}

	reason, triggered := position.CheckExits(price)
	if triggered {
		_, err := m.ClosePosition(market, price, []shared.Reason{reason}, now)
		if err != nil {
			m.cfg.Logger.Error().Msgf("closing %s position: %v", market, err)
		}
	}
}

// ClosePosition settles the open position for the provided market at the provided price.
func (m *Manager) ClosePosition(market string, price float64, reasons []shared.Reason, now time.Time) (*shared.ClosedTrade, error) {
	m.positionsMtx.Lock()
	position, ok := m.positions[market]
	if !ok {
		m.positionsMtx.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoPosition, market)
	}

	delete(m.positions, market)

	_, err := position.ClosePosition(price, reasons, now)
	m.positionsMtx.Unlock()
	if err != nil {
		return nil, fmt.Errorf("closing %s position: %w", market, err)
	}

	trade := position.ClosedTrade()
	m.capital.Add(trade.PNLAmount)

	m.cfg.RecordClosedTrade(trade)

	err = m.cfg.PersistClosedTrade(trade)
	if err != nil {
		m.cfg.Logger.Error().Msgf("persisting closed trade %s: %v", trade.ID, err)
	}

	msg := fmt.Sprintf("Closed %s position (%s) for %s @ %v with pnl %v",
		position.Direction.String(), position.ID, position.Market, price, trade.PNLAmount)
	m.cfg.Notify(msg)

	return trade, nil
}

// SendPositionsRequest relays the provided positions request for processing.
func (m *Manager) SendPositionsRequest(request shared.PositionsRequest) {
	select {
	case m.positionsRequests <- request:
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("positions request channel at capacity: %d/%d",
			len(m.positionsRequests), bufferSize)
	}
}

// handlePositionsRequest processes the provided positions request.
func (m *Manager) handlePositionsRequest(request *shared.PositionsRequest) {
	m.positionsMtx.RLock()
	defer m.positionsMtx.RUnlock()

	summaries := make([]*shared.PositionSummary, 0, len(m.positions))
	for k := range m.positions {
		pos := m.positions[k]
		summaries = append(summaries, &shared.PositionSummary{
			Market:       pos.Market,
			Direction:    pos.Direction,
			EntryPrice:   pos.EntryPrice,
			CurrentPrice: pos.CurrentPrice,
			StopLoss:     pos.StopLoss,
			TakeProfit:   pos.TakeProfit,
			PositionSize: pos.Size,
			PNLPercent:   pos.PNLPercent,
			CreatedOn:    pos.CreatedOn,
		})
	}

	request.Response <- summaries
}

// Run manages the lifecycle processes of the position manager.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case request := <-m.positionsRequests:
			m.handlePositionsRequest(&request)
		}
	}
}
