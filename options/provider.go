// Package options implements the Volatility Provider: it fetches the
// options exchange's instrument/ticker surface for the symbols it
// supports, populates a sparse per-strike IV map, and falls back to a
// hard-coded default volatility everywhere else. The OptionStrike/IVSurface
// value shapes follow the pack's options-chain models (see DESIGN.md),
// adapted from a dense chain to the sparse map the spec calls for.
package options

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/cryptoedge/cryptoedge/client"
	"github.com/cryptoedge/cryptoedge/probability"
)

// SupportedSymbols is the fixed set of symbols the options exchange
// supports; every other symbol gets the default-vol surface immediately.
var SupportedSymbols = map[string]bool{
	"BTC": true,
	"ETH": true,
}

// StrikeIV holds the call/put IV and (when available) deltas for one
// strike/expiry pair.
type StrikeIV struct {
	CallIV       float64
	CallDelta    *float64
	PutIV        float64
	PutDelta     *float64
	Expiry       time.Time
	DaysToExpiry float64
}

// IVSurface is the per-symbol volatility surface: an at-the-money IV plus
// a sparse per-strike map.
type IVSurface struct {
	Symbol          string
	UnderlyingPrice float64
	AtmIV           float64
	PerStrike       map[float64]StrikeIV
	IsDefault       bool
}

// defaultVol is the hard-coded fallback volatility per symbol; symbols not
// listed fall back to probability.DefaultVol.
var defaultVol = map[string]float64{
	"BTC": 0.70,
	"ETH": 0.75,
}

func defaultVolFor(symbol string) float64 {
	if v, ok := defaultVol[symbol]; ok {
		return v
	}
	return probability.DefaultVol
}

// Provider fetches IV surfaces from the options exchange's public
// endpoints (get_index_price, get_instruments, ticker).
type Provider struct {
	fetcher *client.Fetcher
	baseURL string
}

// NewProvider builds a Provider against the options exchange's base URL.
func NewProvider(baseURL string, timeout time.Duration) *Provider {
	return &Provider{
		fetcher: client.NewFetcher(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type indexPriceResponse struct {
	IndexPrice float64 `json:"index_price"`
}

type instrument struct {
	InstrumentName string  `json:"instrument_name"`
	Strike         float64 `json:"strike"`
	OptionType     string  `json:"option_type"` // "call" or "put"
	ExpirationTS   int64   `json:"expiration_timestamp"` // ms
}

type tickerResponse struct {
	MarkIV float64 `json:"mark_iv"` // percent, e.g. 55.0 == 0.55
	Greeks struct {
		Delta float64 `json:"delta"`
	} `json:"greeks"`
}

// Surface returns the IVSurface for symbol, falling back to the default
// surface when the symbol is unsupported or every upstream call fails.
func (p *Provider) Surface(ctx context.Context, symbol string) (IVSurface, error) {
	if !SupportedSymbols[symbol] {
		return IVSurface{Symbol: symbol, AtmIV: defaultVolFor(symbol), PerStrike: map[float64]StrikeIV{}, IsDefault: true}, nil
	}

	underlying, err := p.indexPrice(ctx, symbol)
	if err != nil {
		return IVSurface{Symbol: symbol, AtmIV: defaultVolFor(symbol), PerStrike: map[float64]StrikeIV{}, IsDefault: true}, nil
	}

	instruments, err := p.instruments(ctx, symbol)
	if err != nil || len(instruments) == 0 {
		return IVSurface{Symbol: symbol, UnderlyingPrice: underlying, AtmIV: defaultVolFor(symbol), PerStrike: map[float64]StrikeIV{}, IsDefault: true}, nil
	}

	expiries := nearestExpiries(instruments, 3)
	perStrike := make(map[float64]StrikeIV)

	for _, expiry := range expiries {
		strikes := strikesNearATM(instruments, expiry, underlying, 10)
		for _, strike := range strikes {
			entry := perStrike[strike]
			entry.Expiry = timeFromInstrument(instruments, expiry)
			entry.DaysToExpiry = time.Until(entry.Expiry).Hours() / 24

			if callName, ok := instrumentName(instruments, expiry, strike, "call"); ok {
				if t, err := p.ticker(ctx, callName); err == nil {
					entry.CallIV = t.MarkIV / 100
					if t.Greeks.Delta != 0 {
						d := t.Greeks.Delta
						entry.CallDelta = &d
					}
				}
			}
			if putName, ok := instrumentName(instruments, expiry, strike, "put"); ok {
				if t, err := p.ticker(ctx, putName); err == nil {
					entry.PutIV = t.MarkIV / 100
					if t.Greeks.Delta != 0 {
						d := t.Greeks.Delta
						entry.PutDelta = &d
					}
				}
			}
			perStrike[strike] = entry
		}
	}

	atmStrike := closestStrike(underlying, strikeSet(instruments))
	atmIv, ok := p.atmIV(ctx, instruments, expiries, atmStrike)
	if !ok {
		if mean, ok2 := meanCallIV(perStrike); ok2 {
			atmIv = mean
		} else {
			return IVSurface{Symbol: symbol, UnderlyingPrice: underlying, AtmIV: defaultVolFor(symbol), PerStrike: map[float64]StrikeIV{}, IsDefault: true}, nil
		}
	}

	return IVSurface{
		Symbol:          symbol,
		UnderlyingPrice: underlying,
		AtmIV:           atmIv,
		PerStrike:       perStrike,
		IsDefault:       false,
	}, nil
}

func (p *Provider) indexPrice(ctx context.Context, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/get_index_price?index_name=%s_usd", p.baseURL, strings.ToLower(symbol))
	var resp indexPriceResponse
	if err := p.fetcher.GetJSON(ctx, url, nil, &resp); err != nil {
		return 0, fmt.Errorf("fetch index price for %s: %w", symbol, err)
	}
	if resp.IndexPrice <= 0 {
		return 0, fmt.Errorf("index price for %s is non-positive", symbol)
	}
	return resp.IndexPrice, nil
}

func (p *Provider) instruments(ctx context.Context, symbol string) ([]instrument, error) {
	url := fmt.Sprintf("%s/get_instruments?currency=%s&kind=option&expired=false", p.baseURL, symbol)
	var resp []instrument
	if err := p.fetcher.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch instruments for %s: %w", symbol, err)
	}
	return resp, nil
}

func (p *Provider) ticker(ctx context.Context, instrumentName string) (tickerResponse, error) {
	url := fmt.Sprintf("%s/ticker?instrument_name=%s", p.baseURL, instrumentName)
	var resp tickerResponse
	if err := p.fetcher.GetJSON(ctx, url, nil, &resp); err != nil {
		return tickerResponse{}, fmt.Errorf("fetch ticker for %s: %w", instrumentName, err)
	}
	return resp, nil
}

func (p *Provider) atmIV(ctx context.Context, instruments []instrument, expiries []int64, atmStrike float64) (float64, bool) {
	if len(expiries) == 0 {
		return 0, false
	}
	name, ok := instrumentName(instruments, expiries[0], atmStrike, "call")
	if !ok {
		return 0, false
	}
	t, err := p.ticker(ctx, name)
	if err != nil || t.MarkIV <= 0 {
		return 0, false
	}
	return t.MarkIV / 100, true
}

func meanCallIV(perStrike map[float64]StrikeIV) (float64, bool) {
	sum, n := 0.0, 0
	for _, s := range perStrike {
		if s.CallIV > 0 {
			sum += s.CallIV
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func nearestExpiries(instruments []instrument, n int) []int64 {
	seen := map[int64]bool{}
	var expiries []int64
	for _, inst := range instruments {
		if !seen[inst.ExpirationTS] {
			seen[inst.ExpirationTS] = true
			expiries = append(expiries, inst.ExpirationTS)
		}
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i] < expiries[j] })
	if len(expiries) > n {
		expiries = expiries[:n]
	}
	return expiries
}

func strikeSet(instruments []instrument) []float64 {
	seen := map[float64]bool{}
	var strikes []float64
	for _, inst := range instruments {
		if !seen[inst.Strike] {
			seen[inst.Strike] = true
			strikes = append(strikes, inst.Strike)
		}
	}
	return strikes
}

// strikesNearATM returns up to n strikes for the given expiry, closest to
// underlying first, bounded to [0.5*underlying, 2.0*underlying].
func strikesNearATM(instruments []instrument, expiry int64, underlying float64, n int) []float64 {
	lower, upper := 0.5*underlying, 2.0*underlying

	seen := map[float64]bool{}
	var candidates []float64
	for _, inst := range instruments {
		if inst.ExpirationTS != expiry {
			continue
		}
		if inst.Strike < lower || inst.Strike > upper {
			continue
		}
		if !seen[inst.Strike] {
			seen[inst.Strike] = true
			candidates = append(candidates, inst.Strike)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return math.Abs(candidates[i]-underlying) < math.Abs(candidates[j]-underlying)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func closestStrike(underlying float64, strikes []float64) float64 {
	best, bestDiff := 0.0, math.Inf(1)
	for _, s := range strikes {
		diff := math.Abs(s - underlying)
		if diff < bestDiff {
			bestDiff, best = diff, s
		}
	}
	return best
}

func instrumentName(instruments []instrument, expiry int64, strike float64, kind string) (string, bool) {
	for _, inst := range instruments {
		if inst.ExpirationTS == expiry && inst.Strike == strike && strings.EqualFold(inst.OptionType, kind) {
			return inst.InstrumentName, true
		}
	}
	return "", false
}

func timeFromInstrument(instruments []instrument, expiryTS int64) time.Time {
	return time.UnixMilli(expiryTS)
}

// IVForStrike implements the smile lookup per spec 4.3: pick the closest
// strike in the surface's per-strike map, returning its call IV and -
// only when the strike differs from target by less than 20% relative -
// its call delta. Otherwise the delta is nil so the caller derives delta
// from IV via probability.CallDelta.
func IVForStrike(surface IVSurface, target float64) (iv float64, delta *float64) {
	if len(surface.PerStrike) == 0 {
		return surface.AtmIV, nil
	}

	best, bestDiff := 0.0, math.Inf(1)
	for strike := range surface.PerStrike {
		diff := math.Abs(strike - target)
		if diff < bestDiff {
			bestDiff, best = diff, strike
		}
	}

	entry := surface.PerStrike[best]
	relDiff := math.Abs(best-target) / target
	if relDiff < 0.20 {
		return entry.CallIV, entry.CallDelta
	}
	return entry.CallIV, nil
}
