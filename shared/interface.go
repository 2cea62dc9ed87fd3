package shared

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
)

// QuoteFetcher defines the requirements for fetching market price data.
type QuoteFetcher interface {
	// FetchQuote fetches the current price quote for the provided market.
	FetchQuote(ctx context.Context, market string) (PriceTick, error)
	// FetchIntradayHistorical fetches intraday historical price data for the provided market.
	FetchIntradayHistorical(ctx context.Context, market string, start time.Time, end time.Time) ([]gjson.Result, error)
}
