package shared

import (
	"time"
)

// PositionSummary represents a read only snapshot of an open position.
type PositionSummary struct {
	Market       string
	Direction    Direction
	EntryPrice   float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
	PositionSize float64
	PNLPercent   float64
	CreatedOn    time.Time
}

// PositionsRequest represents a request to fetch summaries of all open positions.
type PositionsRequest struct {
	Response chan []*PositionSummary
}

// NewPositionsRequest initializes a new positions request.
func NewPositionsRequest() *PositionsRequest {
	return &PositionsRequest{
		Response: make(chan []*PositionSummary, 1),
	}
}
