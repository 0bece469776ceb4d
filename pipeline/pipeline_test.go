package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cryptoedge/cryptoedge/options"
	"github.com/cryptoedge/cryptoedge/parser"
	"github.com/cryptoedge/cryptoedge/spot"
)

func claim(symbol string, target float64, dir parser.Direction, bet parser.BetType, expiry time.Time) MarketSnapshot {
	return MarketSnapshot{
		Claim: parser.CryptoClaim{
			MarketID:    "m-" + symbol,
			Symbol:      symbol,
			TargetPrice: target,
			Direction:   dir,
			BetType:     bet,
			Expiry:      expiry,
		},
		PolymarketProb: 0.50,
		Volume24hr:     1000,
	}
}

func TestBuildOpportunityUsesDeltaEstimateWhenSurfaceIsNotDefault(t *testing.T) {
	snap := claim("BTC", 110000, parser.DirectionAbove, parser.BetBinary, time.Now().Add(30*24*time.Hour))
	price := spot.Price{Symbol: "BTC", USD: 100000}
	delta := 0.42
	surface := options.IVSurface{
		Symbol:          "BTC",
		UnderlyingPrice: 100000,
		AtmIV:           0.6,
		PerStrike: map[float64]options.StrikeIV{
			110000: {CallIV: 0.55, CallDelta: &delta},
		},
	}

	opp, ok := buildOpportunity(snap, price, surface, 30.0/365)
	assert.True(t, ok)
	assert.NotNil(t, opp.EdgeDelta)
	assert.NotNil(t, opp.DeltaEstimate)
	assert.Equal(t, 0.42, *opp.DeltaEstimate.Delta)
}

func TestBuildOpportunityFallsBackToZScoreOnlyWhenSurfaceIsDefault(t *testing.T) {
	snap := claim("DOGE", 1.0, parser.DirectionAbove, parser.BetBinary, time.Now().Add(30*24*time.Hour))
	price := spot.Price{Symbol: "DOGE", USD: 0.5}
	surface := options.IVSurface{Symbol: "DOGE", AtmIV: 0.70, IsDefault: true}

	opp, ok := buildOpportunity(snap, price, surface, 30.0/365)
	assert.True(t, ok)
	assert.Nil(t, opp.EdgeDelta)
	assert.Nil(t, opp.DeltaEstimate)
	assert.Equal(t, 0.70, opp.ZScoreEstimate.VolatilityUsed)
}

func TestSortOpportunitiesOrdersByRankScoreThenVolumeThenExpiry(t *testing.T) {
	now := time.Now()
	low := Opportunity{EdgeZ: 0.02, Snapshot: MarketSnapshot{Volume24hr: 5000, Claim: parser.CryptoClaim{Expiry: now.Add(48 * time.Hour)}}}
	highVol := Opportunity{EdgeZ: 0.20, Snapshot: MarketSnapshot{Volume24hr: 9000, Claim: parser.CryptoClaim{Expiry: now.Add(24 * time.Hour)}}}
	tieA := Opportunity{EdgeZ: 0.20, Snapshot: MarketSnapshot{Volume24hr: 1000, Claim: parser.CryptoClaim{Expiry: now.Add(72 * time.Hour)}}}
	tieB := Opportunity{EdgeZ: 0.20, Snapshot: MarketSnapshot{Volume24hr: 1000, Claim: parser.CryptoClaim{Expiry: now.Add(1 * time.Hour)}}}

	opps := []Opportunity{low, tieA, highVol, tieB}
	sortOpportunities(opps)

	assert.InDelta(t, 0.20, opps[0].RankScore(), 1e-9) // highest volume among 0.20-score ties ranks first
	assert.Equal(t, 9000.0, opps[0].Snapshot.Volume24hr)
	assert.Equal(t, tieB.Snapshot.Claim.Expiry, opps[1].Snapshot.Claim.Expiry) // earlier expiry breaks the remaining tie
	assert.InDelta(t, 0.02, opps[3].RankScore(), 1e-9)                        // lowest score sorts last
}

func TestRankScorePrefersDeltaEdgeOverZEdgeWhenLarger(t *testing.T) {
	d := 0.30
	opp := Opportunity{EdgeZ: 0.05, EdgeDelta: &d}
	assert.InDelta(t, 0.30, opp.RankScore(), 1e-9)
}

func TestIvForStrikeOrDeriveDerivesDeltaWhenSmileOmitsIt(t *testing.T) {
	surface := options.IVSurface{
		PerStrike: map[float64]options.StrikeIV{
			100000: {CallIV: 0.55}, // no CallDelta: target 50% away from this strike trips the 20% gate
		},
	}
	iv, delta := ivForStrikeOrDerive(surface, 200000, 100000, 0.25)
	assert.InDelta(t, 0.55, iv, 1e-9)
	assert.Greater(t, delta, 0.0)
	assert.Less(t, delta, 1.0)
}
