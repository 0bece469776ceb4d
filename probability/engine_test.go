package probability

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalCDFSymmetryAndMonotone(t *testing.T) {
	for z := -6.0; z <= 6.0; z += 0.25 {
		assert.InDelta(t, 1.0, NormalCDF(z)+NormalCDF(-z), 1e-6)
	}

	prev := NormalCDF(-6)
	for z := -5.75; z <= 6.0; z += 0.25 {
		cur := NormalCDF(z)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestNormalCDFAbramowitzStegunAccuracy(t *testing.T) {
	// math.Erf-derived reference values, spot-checked against tables.
	assert.InDelta(t, 0.5, NormalCDF(0), 7.5e-8)
	assert.InDelta(t, 0.8413447460685429, NormalCDF(1), 7.5e-8)
	assert.InDelta(t, 0.9772498680518208, NormalCDF(2), 7.5e-8)
}

func TestZScoreSymmetry(t *testing.T) {
	cases := []struct {
		spot, target, sigma, t float64
	}{
		{100, 120, 0.5, 1},
		{50, 30, 0.8, 0.25},
		{2000, 2500, 0.6, 2},
	}
	for _, c := range cases {
		pAbove := BinaryProbability(ZScore(c.spot, c.target, c.sigma, c.t), DirectionAbove)
		pAboveReversed := BinaryProbability(ZScore(c.target, c.spot, c.sigma, c.t), DirectionAbove)
		assert.InDelta(t, 1.0, pAbove+pAboveReversed, 1e-6)
	}
}

func TestOneTouchBounds(t *testing.T) {
	cases := []struct {
		spot, target, sigma, t float64
	}{
		{100, 120, 0.5, 1},
		{100, 80, 0.3, 0.5},
		{100, 100.01, 0.9, 3},
	}
	for _, c := range cases {
		z := ZScore(c.spot, c.target, c.sigma, c.t)
		dir := sideTowardTarget(c.spot, c.target)
		binary := BinaryProbability(z, dir)
		touch := OneTouchProbability(c.spot, c.target, binary)
		assert.GreaterOrEqual(t, touch, binary)
		assert.LessOrEqual(t, touch, math.Min(1, 2*binary)+1e-9)
	}
}

func TestEdgeClassifierThresholds(t *testing.T) {
	neutral := ClassifyEdge(0.50, 0.49)
	assert.Equal(t, SignalNeutral, neutral.Signal)

	sell := ClassifyEdge(0.60, 0.50)
	assert.Equal(t, SignalSell, sell.Signal)

	buy := ClassifyEdge(0.40, 0.50)
	assert.Equal(t, SignalBuy, buy.Signal)
}

// S1: binary above, no drift.
func TestScenarioS1BinaryAboveNoDrift(t *testing.T) {
	z := ZScore(100000, 120000, 0.55, 0.25)
	assert.InDelta(t, 0.6630, z, 0.0005)

	p := BinaryProbability(z, DirectionAbove)
	assert.InDelta(t, 0.2537, p, 0.0005)
}

// S2: one-touch down.
func TestScenarioS2OneTouchDown(t *testing.T) {
	z := ZScore(100000, 80000, 0.55, 0.25)
	assert.InDelta(t, -0.8113, z, 0.001)

	below := BinaryProbability(z, DirectionBelow)
	assert.InDelta(t, 0.2086, below, 0.001)

	touch := OneTouchProbability(100000, 80000, below)
	assert.InDelta(t, 0.4171, touch, 0.001)
}

// S3: edge classifier, including the strict boundary case.
func TestScenarioS3EdgeClassifier(t *testing.T) {
	e := ClassifyEdge(0.30, 0.20)
	assert.InDelta(t, 0.10, e.Value, 1e-9)
	assert.Equal(t, SignalSell, e.Signal)
	assert.Equal(t, ConfidenceMedium, e.Confidence)

	boundary := ClassifyEdge(0.32, 0.20)
	assert.InDelta(t, 0.12, boundary.Value, 1e-9)
	assert.Equal(t, ConfidenceHigh, boundary.Confidence)
}

func TestOptionsDeltaEstimateRejectsBoundary(t *testing.T) {
	_, ok := OptionsDeltaEstimate(100, 100, 0.01, 0.001, 1.0, DirectionAbove, BetBinary)
	assert.False(t, ok)

	_, ok2 := OptionsDeltaEstimate(100, 100, 0.01, 0.001, 0.0, DirectionAbove, BetBinary)
	assert.False(t, ok2)
}

func TestOptionsDeltaEstimateBinaryBelowComplements(t *testing.T) {
	est, ok := OptionsDeltaEstimate(100, 120, 0.5, 1, 0.35, DirectionAbove, BetBinary)
	assert.True(t, ok)
	assert.InDelta(t, 0.35, est.Probability, 1e-9)

	estBelow, ok := OptionsDeltaEstimate(100, 120, 0.5, 1, 0.35, DirectionBelow, BetBinary)
	assert.True(t, ok)
	assert.InDelta(t, 0.65, estBelow.Probability, 1e-9)
}

func TestVerticalSpreadProbabilityClamps(t *testing.T) {
	assert.Equal(t, 0.0, VerticalSpreadProbability(-1, 10))
	assert.Equal(t, 1.0, VerticalSpreadProbability(15, 10))
	assert.InDelta(t, 0.5, VerticalSpreadProbability(5, 10), 1e-9)
}
