package position

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dnldd/tactic/shared"
	"github.com/google/uuid"
)

// PositionStatus represents the status of a position.
type PositionStatus int

const (
	Active PositionStatus = iota
	StoppedOut
	Closed
)

// String stringifies the provided position status.
func (s *PositionStatus) String() string {
	switch *s {
	case Active:
		return "active"
	case StoppedOut:
		return "stopped out"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Position represents a market position opened by a qualifying entry signal.
//
// Size is a fraction of capital and PNLPercent a fraction of the entry price.
type Position struct {
	ID            string
	Market        string
	Direction     shared.Direction
	EntryPrice    float64
	CurrentPrice  float64
	StopLoss      float64
	TakeProfit    float64
	Size          float64
	CapitalAtOpen float64
	PNLPercent    float64
	EntryReasons  string
	ExitPrice     float64
	ExitReasons   string
	Status        PositionStatus
	CreatedOn     time.Time
	ClosedOn      time.Time
}

// stringifyReasons stringifies the collection of reasons provided.
func stringifyReasons(reasons []shared.Reason) string {
	buf := bytes.NewBuffer([]byte{})
	for idx := range reasons {
		buf.WriteString(reasons[idx].String())
		if idx < len(reasons)-1 {
			buf.WriteString(",")
		}
	}

	return buf.String()
}

// NewPosition initializes a new position.
func NewPosition(entry *shared.Signal, capitalAtOpen float64) (*Position, error) {
	if entry == nil {
		return nil, fmt.Errorf("entry signal cannot be nil")
	}
	if entry.Kind != shared.EnterLong && entry.Kind != shared.EnterShort {
		return nil, fmt.Errorf("%s signal cannot open a position", entry.Kind.String())
	}

	pos := &Position{
		ID:            uuid.New().String(),
		Market:        entry.Market,
		Direction:     entry.Kind.Direction(),
		EntryPrice:    entry.Price,
		CurrentPrice:  entry.Price,
		StopLoss:      entry.StopLoss,
		TakeProfit:    entry.TakeProfit,
		Size:          entry.PositionSize,
		CapitalAtOpen: capitalAtOpen,
		EntryReasons:  stringifyReasons(entry.Reasons),
		Status:        Active,
		CreatedOn:     entry.CreatedOn,
	}

	return pos, nil
}

// UpdatePNLPercent updates the fractional change of the position given the current price.
func (p *Position) UpdatePNLPercent(currentPrice float64) (float64, error) {
	switch {
	case p.Direction == shared.Long:
		p.PNLPercent = (currentPrice - p.EntryPrice) / p.EntryPrice
	case p.Direction == shared.Short:
		p.PNLPercent = (p.EntryPrice - currentPrice) / p.EntryPrice
	default:
		return 0, fmt.Errorf("unknown direction for position: %s", p.Direction.String())
	}

	p.CurrentPrice = currentPrice

	return p.PNLPercent, nil
}

// CheckExits evaluates the protective levels of the position at the provided price.
// The stop loss is checked before the profit target.
func (p *Position) CheckExits(currentPrice float64) (shared.Reason, bool) {
	switch {
	case p.Direction == shared.Long && currentPrice <= p.StopLoss:
		return shared.StopLossHit, true
	case p.Direction == shared.Short && currentPrice >= p.StopLoss:
		return shared.StopLossHit, true
	case p.Direction == shared.Long && currentPrice >= p.TakeProfit:
		return shared.TargetHit, true
	case p.Direction == shared.Short && currentPrice <= p.TakeProfit:
		return shared.TargetHit, true
	default:
		return shared.TrendReversal, false
	}
}

// PNLAmount returns the capital change of the position at its current state.
func (p *Position) PNLAmount() float64 {
	return p.CapitalAtOpen * p.Size * p.PNLPercent
}

// ClosePosition closes the position using the provided exit details.
func (p *Position) ClosePosition(price float64, reasons []shared.Reason, closedOn time.Time) (PositionStatus, error) {
	_, err := p.UpdatePNLPercent(price)
	if err != nil {
		return Closed, err
	}

	p.ClosedOn = closedOn
	p.ExitPrice = price
	p.ExitReasons = stringifyReasons(reasons)

	switch {
	case p.Direction == shared.Long && p.ExitPrice <= p.StopLoss:
		p.Status = StoppedOut
	case p.Direction == shared.Short && p.ExitPrice >= p.StopLoss:
		p.Status = StoppedOut
	default:
		p.Status = Closed
	}

	return p.Status, nil
}

// ClosedTrade generates the settled trade record for the position.
func (p *Position) ClosedTrade() *shared.ClosedTrade {
	return &shared.ClosedTrade{
		ID:           p.ID,
		Market:       p.Market,
		Direction:    p.Direction,
		EntryPrice:   p.EntryPrice,
		ExitPrice:    p.ExitPrice,
		Size:         p.Size,
		PNLAmount:    p.PNLAmount(),
		PNLPercent:   p.PNLPercent,
		EntryReasons: p.EntryReasons,
		ExitReasons:  p.ExitReasons,
		CreatedOn:    p.CreatedOn,
		ClosedOn:     p.ClosedOn,
		Duration:     p.ClosedOn.Sub(p.CreatedOn),
	}
}
