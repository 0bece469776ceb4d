// Package spot implements the Spot Price Provider: a bulk USD price fetch
// against a CoinGecko-shaped market-data endpoint, with a rate-limit
// signal distinct from other failures and an optional historical-series
// capability for realized-volatility computation.
package spot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cryptoedge/cryptoedge/client"
)

// ErrRateLimited re-exports the client package's sentinel so callers can
// branch on rate-limiting without importing client directly.
var ErrRateLimited = client.ErrRateLimited

// Price is the current USD quote for one symbol.
type Price struct {
	Symbol string
	USD    float64
	AsOf   time.Time
}

// symbolToCoinID maps the supported symbol set to the oracle's id scheme.
var symbolToCoinID = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"XRP":  "ripple",
	"DOGE": "dogecoin",
	"ADA":  "cardano",
}

// Provider fetches spot prices from the oracle's bulk markets endpoint.
type Provider struct {
	fetcher *client.Fetcher
	baseURL string
}

// NewProvider builds a spot price Provider against the given oracle base
// URL (e.g. https://api.coingecko.com/api/v3).
func NewProvider(baseURL string, timeout time.Duration) *Provider {
	return &Provider{
		fetcher: client.NewFetcher(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type marketsResponse struct {
	ID           string  `json:"id"`
	CurrentPrice float64 `json:"current_price"`
}

// Prices bulk-fetches USD quotes for the given symbols in one upstream
// call, returning a partial map if some symbols are unknown to the oracle.
// A 429 from upstream is surfaced as ErrRateLimited, distinct from other
// failures, so the caller can back off instead of retrying immediately.
func (p *Provider) Prices(ctx context.Context, symbols []string) (map[string]Price, error) {
	if len(symbols) == 0 {
		return map[string]Price{}, nil
	}

	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		id, ok := symbolToCoinID[sym]
		if !ok {
			continue
		}
		ids = append(ids, id)
		idToSymbol[id] = sym
	}
	if len(ids) == 0 {
		return map[string]Price{}, nil
	}

	url := fmt.Sprintf("%s/coins/markets?vs_currency=usd&ids=%s", p.baseURL, strings.Join(ids, ","))

	var resp []marketsResponse
	if err := p.fetcher.GetJSON(ctx, url, nil, &resp); err != nil {
		if errors.Is(err, client.ErrRateLimited) {
			return nil, fmt.Errorf("spot prices: %w", ErrRateLimited)
		}
		return nil, fmt.Errorf("fetch spot prices: %w", err)
	}

	now := time.Now()
	out := make(map[string]Price, len(resp))
	for _, m := range resp {
		sym, ok := idToSymbol[m.ID]
		if !ok || m.CurrentPrice <= 0 {
			continue
		}
		out[sym] = Price{Symbol: sym, USD: m.CurrentPrice, AsOf: now}
	}
	return out, nil
}

// DailyPrice is one point in a historical series.
type DailyPrice struct {
	Date time.Time
	USD  float64
}

// HistoricalSeries returns a daily price series for realized-volatility
// computation. Optional capability per spec 4.2; the opportunity pipeline
// does not call it - it exists for a Volatility Provider operating in
// "realized" mode.
func (p *Provider) HistoricalSeries(ctx context.Context, symbol string, days int) ([]DailyPrice, error) {
	id, ok := symbolToCoinID[symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %s not supported by spot oracle", symbol)
	}

	url := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d", p.baseURL, id, days)

	var resp struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := p.fetcher.GetJSON(ctx, url, nil, &resp); err != nil {
		if errors.Is(err, client.ErrRateLimited) {
			return nil, fmt.Errorf("historical series: %w", ErrRateLimited)
		}
		return nil, fmt.Errorf("fetch historical series for %s: %w", symbol, err)
	}

	out := make([]DailyPrice, 0, len(resp.Prices))
	for _, point := range resp.Prices {
		out = append(out, DailyPrice{
			Date: time.UnixMilli(int64(point[0])),
			USD:  point[1],
		})
	}
	return out, nil
}
