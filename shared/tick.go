package shared

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidPrice indicates a price tick carrying a price no market can accept.
var ErrInvalidPrice = errors.New("invalid price")

// PriceTick represents a unit price update for a market.
type PriceTick struct {
	Market string
	Price  float64
	Date   time.Time
}

// NewPriceTick initializes a new price tick.
func NewPriceTick(market string, price float64, date time.Time) PriceTick {
	return PriceTick{
		Market: market,
		Price:  price,
		Date:   date,
	}
}

// Validate asserts the price tick has sane inputs.
func (t *PriceTick) Validate() error {
	var errs error

	if t.Market == "" {
		errs = errors.Join(errs, fmt.Errorf("price tick has no market set"))
	}
	switch {
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0):
		errs = errors.Join(errs, fmt.Errorf("%w: price for %s is not finite", ErrInvalidPrice, t.Market))
	case t.Price <= 0:
		errs = errors.Join(errs, fmt.Errorf("%w: price for %s must be positive, got %v", ErrInvalidPrice, t.Market, t.Price))
	}

	return errs
}
