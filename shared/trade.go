package shared

import "time"

// ClosedTrade represents the immutable record of a settled position.
type ClosedTrade struct {
	ID           string
	Market       string
	Direction    Direction
	EntryPrice   float64
	ExitPrice    float64
	Size         float64
	PNLAmount    float64
	PNLPercent   float64
	EntryReasons string
	ExitReasons  string
	CreatedOn    time.Time
	ClosedOn     time.Time
	Duration     time.Duration
}
