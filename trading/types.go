// Package trading implements the Trading State Machine: the sole mutator
// of BotState. It runs a non-overlapping cycle loop (refresh, exit, entry,
// submit, persist) over the ranked opportunities the pipeline package
// produces, applying entry/exit gates, a position-sizing formula, and a
// hard exposure cap. Grounded on the teacher's utils/position/manager.go
// and utils/strategy/exits.go, generalized from per-strategy custom hooks
// to the spec's fixed three-branch exit rule and single entry-gate table.
package trading

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cryptoedge/cryptoedge/parser"
)

// Side is the direction of a position relative to the market-implied
// probability: short when the market is overpriced relative to the model,
// long when it is underpriced.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// PositionStatus is a Position's lifecycle state; an open position moves
// to one of the two terminal states, closed or expired, which are
// absorbing.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "open"
	StatusClosed  PositionStatus = "closed"
	StatusExpired PositionStatus = "expired"
)

// CloseReason records why a closed/expired position left the open set.
type CloseReason string

const (
	CloseReasonEdgeAligned CloseReason = "edge-aligned"
	CloseReasonExpired     CloseReason = "expired"
	CloseReasonManual      CloseReason = "manual"
)

// TradeAction distinguishes the two halves of a position's append-only log.
type TradeAction string

const (
	TradeOpen  TradeAction = "open"
	TradeClose TradeAction = "close"
)

// Position is one open or closed bet against a single market. Exactly one
// position may be open per marketId at a time.
type Position struct {
	ID          string         `json:"id"`
	MarketID    string         `json:"marketId"`
	Symbol      string         `json:"symbol"`
	TargetPrice float64        `json:"targetPrice"`
	Direction   parser.Direction `json:"direction"`
	BetType     parser.BetType   `json:"betType"`
	Expiry      time.Time      `json:"expiry"`

	Side        Side    `json:"side"`
	EntryPrice  float64 `json:"entryPrice"`
	Notional    float64 `json:"notional"`
	Shares      float64 `json:"shares"`
	EntryEdge   float64 `json:"entryEdge"`
	EntryTimestamp time.Time `json:"entryTimestamp"`

	CurrentPrice   float64 `json:"currentPrice"`
	CurrentEdge    float64 `json:"currentEdge"`
	UnrealizedPnl  float64 `json:"unrealizedPnl"`

	Status PositionStatus `json:"status"`

	CloseReason    *CloseReason `json:"closeReason,omitempty"`
	ClosePrice     float64      `json:"closePrice,omitempty"`
	CloseTimestamp *time.Time   `json:"closeTimestamp,omitempty"`
	RealizedPnl    float64      `json:"realizedPnl,omitempty"`
}

// EffectivePrice is entryPrice for a long position, 1-entryPrice for a
// short one; shares = notional / effectivePrice per spec 3.
func (p Position) EffectivePrice() float64 {
	if p.Side == SideShort {
		return 1 - p.EntryPrice
	}
	return p.EntryPrice
}

// Trade is one append-only log entry for a position's open or close leg.
type Trade struct {
	ID          string      `json:"id"`
	PositionID  string      `json:"positionId"`
	MarketID    string      `json:"marketId"`
	Timestamp   time.Time   `json:"timestamp"`
	Action      TradeAction `json:"action"`
	Side        Side        `json:"side"`
	Price       float64     `json:"price"`
	Notional    float64     `json:"notional"`
	Shares      float64     `json:"shares"`
	Edge        float64     `json:"edge"`
	ZScoreProb  float64     `json:"zscoreProb"`
	DeltaProb   *float64    `json:"deltaProb,omitempty"`
	SpotAtTrade float64     `json:"spotAtTrade"`
	Pnl         *float64    `json:"pnl,omitempty"`
}

// BotConfig is the single immutable configuration struct supplied at
// startup, per spec 6's table.
type BotConfig struct {
	StartingBalance      float64       `mapstructure:"startingBalance"`
	MinEdgeToEnter        float64       `mapstructure:"minEdgeToEnter"`
	MaxEdgeToExit         float64       `mapstructure:"maxEdgeToExit"`
	BasePositionSize      float64       `mapstructure:"basePositionSize"`
	EdgeMultiplier        float64       `mapstructure:"edgeMultiplier"`
	MaxPositionSize       float64       `mapstructure:"maxPositionSize"`
	MaxTotalExposure      float64       `mapstructure:"maxTotalExposure"`
	PollInterval          time.Duration `mapstructure:"pollInterval"`
	MaxPositionsPerMarket int           `mapstructure:"maxPositionsPerMarket"`
	MinTimeToExpiry       float64       `mapstructure:"minTimeToExpiry"` // days
	DryRun                bool          `mapstructure:"dryRun"`
}

// DefaultBotConfig mirrors spec 6's documented defaults.
func DefaultBotConfig() BotConfig {
	return BotConfig{
		StartingBalance:       1000,
		MinEdgeToEnter:        0.05,
		MaxEdgeToExit:         0.05,
		BasePositionSize:      25,
		EdgeMultiplier:        500,
		MaxPositionSize:       100,
		MaxTotalExposure:      500,
		PollInterval:          60 * time.Second,
		MaxPositionsPerMarket: 1,
		MinTimeToExpiry:       1,
		DryRun:                true,
	}
}

// BotState is the sole persisted document; the Trading State Machine is
// its only mutator.
type BotState struct {
	StartingBalance  float64    `json:"startingBalance"`
	CurrentBalance   float64    `json:"currentBalance"`
	TotalRealizedPnl float64    `json:"totalRealizedPnl"`
	OpenPositions    map[string]Position `json:"openPositions"` // keyed by marketId
	ClosedPositions  []Position `json:"closedPositions"`
	Trades           []Trade    `json:"trades"`
	IsRunning        bool       `json:"isRunning"`
	LastUpdate       time.Time  `json:"lastUpdate"`
	LastError        string     `json:"lastError,omitempty"`
	WinCount         int        `json:"winCount"`
	LossCount        int        `json:"lossCount"`
	Config           BotConfig  `json:"config"`
}

// NewBotState constructs a fresh, empty BotState for a starting run.
func NewBotState(cfg BotConfig) BotState {
	return BotState{
		StartingBalance: cfg.StartingBalance,
		CurrentBalance:  cfg.StartingBalance,
		OpenPositions:   map[string]Position{},
		IsRunning:       true,
		LastUpdate:      time.Now(),
		Config:          cfg,
	}
}

// OpenNotional sums the notional of every open position.
func (s BotState) OpenNotional() float64 {
	var total float64
	for _, p := range s.OpenPositions {
		total += p.Notional
	}
	return total
}

func newID() string { return uuid.NewString() }

// roundCents rounds a dollar amount to the nearest cent, halves away from
// zero, via shopspring/decimal, matching spec 4.7's "rounded to cents"
// sizing requirement.
func roundCents(amount float64) float64 {
	d := decimal.NewFromFloat(amount).Round(2)
	f, _ := d.Float64()
	return f
}
