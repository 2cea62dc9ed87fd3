package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dnldd/tactic/shared"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the base url for the financial modeling prep (FMP) API.
	BaseURL = "https://financialmodelingprep.com/stable"
	// dateLayout is the date layout used by the FMP API.
	dateLayout = "2006-01-02 15:04:05"
	// requestTimeout is the maximum duration allowed for an API request.
	requestTimeout = time.Second * 8
)

// FMPConfig represents the configuration for the FMP client.
type FMPConfig struct {
	// APIKey is the FMP API key.
	APIKey string
	// BaseURL is the FMP API base url.
	BaseURL string
}

// Validate asserts the config sane inputs.
func (cfg *FMPConfig) Validate() error {
	var errs error

	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("api key cannot be an empty string"))
	}
	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("base url cannot be an empty string"))
	}

	return errs
}

// FMPClient represents a financial modeling prep (FMP) API client.
type FMPClient struct {
	cfg   *FMPConfig
	httpc http.Client
}

// Ensure the FMP client implements the QuoteFetcher interface.
var _ shared.QuoteFetcher = (*FMPClient)(nil)

// NewFMPClient initializes a new FMP API client.
func NewFMPClient(cfg *FMPConfig) (*FMPClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating fmp config: %w", err)
	}

	return &FMPClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: requestTimeout},
	}, nil
}

// formURL creates a full request url for the provided path and parameters.
func (c *FMPClient) formURL(path string, params url.Values) string {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	buf.WriteString(c.cfg.BaseURL)
	buf.WriteString(path)
	buf.WriteString("?")
	buf.WriteString(params.Encode())

	return buf.String()
}

// fetch executes a request for the provided url and returns the response body.
func (c *FMPClient) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status %s: %s", resp.Status, string(body))
	}

	return body, nil
}

// FetchQuote fetches the current price quote for the provided market.
func (c *FMPClient) FetchQuote(ctx context.Context, market string) (shared.PriceTick, error) {
	const quotePath = "/quote"

	params := url.Values{}
	params.Add("symbol", market)
	params.Add("apikey", c.cfg.APIKey)

	body, err := c.fetch(ctx, c.formURL(quotePath, params))
	if err != nil {
		return shared.PriceTick{}, fmt.Errorf("fetching quote for %s: %w", market, err)
	}

	data := gjson.ParseBytes(body).Array()
	if len(data) == 0 {
		return shared.PriceTick{}, fmt.Errorf("no quote returned for %s", market)
	}

	quote := data[0]
	date := time.Now().UTC()
	if timestamp := quote.Get("timestamp").Int(); timestamp > 0 {
		date = time.Unix(timestamp, 0).UTC()
	}

	return shared.NewPriceTick(market, quote.Get("price").Float(), date), nil
}

// FetchIntradayHistorical fetches intraday historical price data for the
// provided market.
func (c *FMPClient) FetchIntradayHistorical(ctx context.Context, market string, start time.Time, end time.Time) ([]gjson.Result, error) {
	const intradayPath = "/historical-chart/5min"

	params := url.Values{}
	params.Add("symbol", market)
	params.Add("apikey", c.cfg.APIKey)
	params.Add("from", start.Format(dateLayout))
	if !end.IsZero() {
		params.Add("to", end.Format(dateLayout))
	}

	body, err := c.fetch(ctx, c.formURL(intradayPath, params))
	if err != nil {
		return nil, fmt.Errorf("fetching intraday historical data for %s: %w", market, err)
	}

	return gjson.ParseBytes(body).Array(), nil
}

// ParsePriceTicks parses price ticks for the provided market from intraday
// historical results.
func ParsePriceTicks(data []gjson.Result, market string) ([]shared.PriceTick, error) {
	ticks := make([]shared.PriceTick, 0, len(data))
	for idx := range data {
		date, err := time.Parse(dateLayout, data[idx].Get("date").String())
		if err != nil {
			return nil, fmt.Errorf("parsing price tick date: %w", err)
		}

		ticks = append(ticks, shared.NewPriceTick(market, data[idx].Get("close").Float(), date))
	}

	return ticks, nil
}
