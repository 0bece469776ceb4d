// Package pipeline implements the Opportunity Pipeline: it fans the
// prediction market's active-markets catalog out through the question
// parser, joins the result with spot prices and the options-derived
// volatility surface (bounded concurrency, independent per-symbol
// failures), computes the probability engine's edge for each claim, and
// returns a ranked list of Opportunities. The fan-out/fan-in shape follows
// the teacher's CheckExitConditions-over-a-map pattern
// (utils/strategy/exits.go), generalized to a bounded worker pool via
// golang.org/x/sync/errgroup instead of an unbounded goroutine-per-item
// loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cryptoedge/cryptoedge/client"
	"github.com/cryptoedge/cryptoedge/options"
	"github.com/cryptoedge/cryptoedge/parser"
	"github.com/cryptoedge/cryptoedge/probability"
	"github.com/cryptoedge/cryptoedge/spot"
)

// ErrPricesUnavailable is the total-pipeline-failure signal per spec 4.5:
// a complete spot-price outage fails the whole pipeline.
var ErrPricesUnavailable = errors.New("spot prices unavailable")

// ivConcurrency bounds the number of in-flight IV surface fetches within
// one cycle, per spec 5's "small concurrency limit, e.g. <=10".
const ivConcurrency = 10

// MarketSnapshot pairs a parsed claim with the market's live price and
// outcome token ids.
type MarketSnapshot struct {
	Claim          parser.CryptoClaim
	PolymarketProb float64
	TokenIDs       [2]string // [YES, NO]
	Volume24hr     float64
}

// Opportunity is one ranked candidate the trading state machine can act
// on.
type Opportunity struct {
	Snapshot       MarketSnapshot
	Spot           spot.Price
	Surface        *options.IVSurface
	ZScoreEstimate probability.ProbabilityEstimate
	DeltaEstimate  *probability.ProbabilityEstimate
	EdgeZ          float64
	EdgeDelta      *float64
	Signal         probability.Signal
	Confidence     probability.Confidence
}

// RankScore is max(|edgeDelta|, |edgeZ|); the ordering key.
func (o Opportunity) RankScore() float64 {
	best := abs(o.EdgeZ)
	if o.EdgeDelta != nil {
		if d := abs(*o.EdgeDelta); d > best {
			best = d
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Pipeline wires the gamma catalog, question parser, spot provider, and
// volatility provider into a ranked Opportunity list.
type Pipeline struct {
	Markets *client.CLOBClient
	Spot    *spot.Provider
	Vol     *options.Provider
}

// NewPipeline builds a Pipeline from its three collaborator clients.
func NewPipeline(markets *client.CLOBClient, spotProvider *spot.Provider, volProvider *options.Provider) *Pipeline {
	return &Pipeline{Markets: markets, Spot: spotProvider, Vol: volProvider}
}

// Run executes one pass of the pipeline's pseudo-protocol (spec 4.5),
// returning up to limit ranked Opportunities.
func (p *Pipeline) Run(ctx context.Context, limit int, now time.Time) ([]Opportunity, error) {
	raw, err := p.Markets.ActiveMarkets(ctx, limit*3)
	if err != nil {
		return nil, fmt.Errorf("fetch active markets: %w", err)
	}

	snapshots := p.parseSnapshots(raw, limit, now)
	if len(snapshots) == 0 {
		return nil, nil
	}

	symbolSet := map[string]bool{}
	for _, snap := range snapshots {
		symbolSet[snap.Claim.Symbol] = true
	}
	symbols := make([]string, 0, len(symbolSet))
	for sym := range symbolSet {
		symbols = append(symbols, sym)
	}

	prices, err := p.Spot.Prices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPricesUnavailable, err)
	}
	if len(prices) == 0 {
		return nil, ErrPricesUnavailable
	}

	surfaces := p.fetchSurfaces(ctx, symbols)

	opportunities := make([]Opportunity, 0, len(snapshots))
	for _, snap := range snapshots {
		price, ok := prices[snap.Claim.Symbol]
		if !ok {
			continue // no-spot-price: skip this opportunity
		}

		yearsToExpiry := snap.Claim.Expiry.Sub(now).Hours() / (24 * 365)
		if yearsToExpiry <= 0 {
			continue
		}

		surface := surfaces[snap.Claim.Symbol]

		opp, ok := buildOpportunity(snap, price, surface, yearsToExpiry)
		if !ok {
			continue
		}
		opportunities = append(opportunities, opp)
	}

	sortOpportunities(opportunities)
	return opportunities, nil
}

func (p *Pipeline) parseSnapshots(markets []client.GammaMarket, limit int, now time.Time) []MarketSnapshot {
	out := make([]MarketSnapshot, 0, limit)
	for _, m := range markets {
		if len(out) >= limit {
			break
		}

		var endHint *time.Time
		if m.EndDate != nil {
			if t, err := time.Parse(time.RFC3339, *m.EndDate); err == nil {
				endHint = &t
			}
		}

		claim, err := parser.Parse(m.MarketID(), m.Question, endHint, now)
		if err != nil {
			continue // parse-rejected: expected and silent
		}

		if len(m.OutcomePrices) == 0 {
			continue
		}
		prob := m.OutcomePrices[0]
		if prob <= 0 || prob >= 1 {
			continue // resolved market
		}

		var tokenIDs [2]string
		if len(m.ClobTokenIDs) >= 2 {
			tokenIDs[0], tokenIDs[1] = m.ClobTokenIDs[0], m.ClobTokenIDs[1]
		}

		out = append(out, MarketSnapshot{
			Claim:          claim,
			PolymarketProb: prob,
			TokenIDs:       tokenIDs,
			Volume24hr:     m.Volume24hr,
		})
	}
	return out
}

// fetchSurfaces fetches the IV surface for each symbol in parallel, bounded
// to ivConcurrency in-flight fetches, with independent per-symbol failure:
// a failed fetch degrades that symbol to the default surface rather than
// failing the cycle.
func (p *Pipeline) fetchSurfaces(ctx context.Context, symbols []string) map[string]options.IVSurface {
	results := make(map[string]options.IVSurface, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ivConcurrency)

	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			surface, err := p.Vol.Surface(gctx, sym)
			if err != nil {
				surface = options.IVSurface{Symbol: sym, AtmIV: probability.DefaultVol, IsDefault: true}
			}
			mu.Lock()
			results[sym] = surface
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-symbol failures already degrade to default above

	return results
}

func buildOpportunity(snap MarketSnapshot, price spot.Price, surface options.IVSurface, yearsToExpiry float64) (Opportunity, bool) {
	sigma := surface.AtmIV
	zEstimate := probability.ZScoreEstimate(price.USD, snap.Claim.TargetPrice, sigma, yearsToExpiry, direction(snap.Claim.Direction), betType(snap.Claim.BetType))
	zEdge := probability.ClassifyEdge(snap.PolymarketProb, zEstimate.Probability)

	opp := Opportunity{
		Snapshot:       snap,
		Spot:           price,
		ZScoreEstimate: zEstimate,
		EdgeZ:          zEdge.Value,
		Signal:         zEdge.Signal,
		Confidence:     zEdge.Confidence,
	}

	if !surface.IsDefault {
		if iv, delta := ivForStrikeOrDerive(surface, snap.Claim.TargetPrice, price.USD, yearsToExpiry); iv > 0 {
			est, ok := probability.OptionsDeltaEstimate(price.USD, snap.Claim.TargetPrice, iv, yearsToExpiry, delta, direction(snap.Claim.Direction), betType(snap.Claim.BetType))
			if ok {
				deltaEdge := probability.ClassifyEdge(snap.PolymarketProb, est.Probability)
				edgeVal := deltaEdge.Value
				opp.DeltaEstimate = &est
				opp.EdgeDelta = &edgeVal
				opp.Surface = &surface
				opp.Signal = deltaEdge.Signal
				opp.Confidence = deltaEdge.Confidence
			}
		}
	}

	return opp, true
}

// ivForStrikeOrDerive returns the call IV/delta to use at the claim's
// target strike: the surface's smile lookup when it has a delta within the
// 20% gate, else the IV alone with delta derived from Black-Scholes.
func ivForStrikeOrDerive(surface options.IVSurface, target, spotPrice, timeYears float64) (iv float64, delta float64) {
	surfaceIV, surfaceDelta := options.IVForStrike(surface, target)
	if surfaceIV <= 0 {
		return 0, 0
	}
	if surfaceDelta != nil {
		return surfaceIV, *surfaceDelta
	}
	return surfaceIV, probability.CallDelta(spotPrice, target, surfaceIV, timeYears)
}

func direction(d parser.Direction) probability.Direction {
	if d == parser.DirectionBelow {
		return probability.DirectionBelow
	}
	return probability.DirectionAbove
}

func betType(b parser.BetType) probability.BetType {
	if b == parser.BetOneTouch {
		return probability.BetOneTouch
	}
	return probability.BetBinary
}

// sortOpportunities ranks descending by RankScore, breaking ties by higher
// volume then earlier expiry, per spec 4.5.
func sortOpportunities(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		si, sj := opps[i].RankScore(), opps[j].RankScore()
		if si != sj {
			return si > sj
		}
		vi, vj := opps[i].Snapshot.Volume24hr, opps[j].Snapshot.Volume24hr
		if vi != vj {
			return vi > vj
		}
		return opps[i].Snapshot.Claim.Expiry.Before(opps[j].Snapshot.Claim.Expiry)
	})
}
