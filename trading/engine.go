package trading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cryptoedge/cryptoedge/client"
	"github.com/cryptoedge/cryptoedge/parser"
	"github.com/cryptoedge/cryptoedge/persistence"
	"github.com/cryptoedge/cryptoedge/pipeline"
)

// Entry-gate threshold constants that are asymmetric by design (spec 9,
// Open Question 3): the resolved-market guard and the model-market
// agreement guard use different cutoffs and are kept as separate named
// constants rather than unified.
const (
	resolvedMarketLowerBound = 0.01
	resolvedMarketUpperBound = 0.99
	agreementHighBound       = 0.90
	agreementLowBound        = 0.10
)

// ErrExecutionFailed wraps any Order Executor failure; the cycle logs and
// continues rather than mutating state for that attempt.
var ErrExecutionFailed = errors.New("order execution failed")

// OrderExecutor is the abstract capability the state machine consumes:
// given an opportunity, a chosen side, and a notional size, attempt to
// fill the corresponding order. The state machine never depends on which
// concrete implementation (dry-run or live) is behind this interface.
type OrderExecutor interface {
	Submit(ctx context.Context, opp pipeline.Opportunity, side Side, notional float64) (filledPrice float64, orderID string, err error)
}

// OpportunityFetcher produces the ranked opportunity list for one cycle;
// satisfied by *pipeline.Pipeline in production and a fake in tests.
type OpportunityFetcher interface {
	Run(ctx context.Context, limit int, now time.Time) ([]pipeline.Opportunity, error)
}

// Engine is the Trading State Machine: the sole mutator of BotState. It
// owns one in-memory BotState between cycles and persists it as the last
// step of every cycle.
type Engine struct {
	Opportunities OpportunityFetcher
	Executor      OrderExecutor
	Store         *persistence.Store

	state BotState

	// backoffUntil is a transient, unpersisted runtime concern (SPEC_FULL's
	// supplemented "backoff doubling persists across cycles" note): while
	// set, RunCycle is a no-op until now() passes it.
	backoffUntil time.Time
}

// NewEngine constructs an Engine, loading persisted state if present or
// starting fresh from cfg otherwise.
func NewEngine(fetcher OpportunityFetcher, executor OrderExecutor, store *persistence.Store, cfg BotConfig) (*Engine, error) {
	e := &Engine{Opportunities: fetcher, Executor: executor, Store: store}

	var loaded BotState
	exists, err := store.Load(&loaded)
	if err != nil {
		return nil, fmt.Errorf("load bot state: %w", err)
	}
	if exists {
		e.state = loaded
	} else {
		e.state = NewBotState(cfg)
	}
	return e, nil
}

// State returns a copy of the current in-memory BotState, for in-process
// callers (the cmd/bot loop's cycle summary) and tests; the status endpoint
// never reads it. The persisted file, not this
// copy, is the authoritative read path for external readers (spec 5).
func (e *Engine) State() BotState { return e.state }

// RunCycle executes one non-overlapping cycle: fetch opportunities,
// refresh, exit, entry, persist. A cycle still in a rate-limit backoff
// window is skipped entirely without touching state.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) error {
	if now.Before(e.backoffUntil) {
		return nil
	}

	opps, err := e.Opportunities.Run(ctx, 20, now)
	if err != nil {
		if errors.Is(err, pipeline.ErrPricesUnavailable) {
			if errors.Is(err, client.ErrRateLimited) {
				e.state.LastError = "rate-limited"
				e.backoffUntil = now.Add(2 * e.state.Config.PollInterval)
			} else {
				e.state.LastError = "prices-unavailable"
			}
			return e.Store.Save(e.state) // positions/balance untouched; lastError recorded per spec 7
		}
		return fmt.Errorf("fetch opportunities: %w", err)
	}
	e.backoffUntil = time.Time{}
	e.state.LastError = ""

	if len(opps) == 0 {
		e.state.LastUpdate = now
		return e.Store.Save(e.state)
	}

	byMarket := make(map[string]pipeline.Opportunity, len(opps))
	for _, o := range opps {
		byMarket[o.Snapshot.Claim.MarketID] = o
	}

	e.refreshOpenPositions(byMarket)
	e.runExitPhase(now, byMarket)
	e.runEntryPhase(ctx, now, opps)

	e.recomputeAggregates(now)
	return e.Store.Save(e.state)
}

// refreshOpenPositions updates currentPrice/currentEdge/unrealizedPnl for
// every open position from its matching opportunity, per spec 4.7 step 2.
// A position whose market disappeared from this cycle's list is left
// stale and handled by the exit phase.
func (e *Engine) refreshOpenPositions(byMarket map[string]pipeline.Opportunity) {
	for marketID, pos := range e.state.OpenPositions {
		opp, ok := byMarket[marketID]
		if !ok {
			continue
		}
		pos.CurrentPrice = opp.Snapshot.PolymarketProb
		pos.CurrentEdge = effectiveEdge(opp)
		pos.UnrealizedPnl = unrealizedPnl(pos)
		e.state.OpenPositions[marketID] = pos
	}
}

// runExitPhase iterates a snapshot of the open set (so closures inside the
// loop never mutate the map being iterated) and applies the three exit
// branches in order, per spec 4.7 step 3.
func (e *Engine) runExitPhase(now time.Time, byMarket map[string]pipeline.Opportunity) {
	snapshot := make([]Position, 0, len(e.state.OpenPositions))
	for _, pos := range e.state.OpenPositions {
		snapshot = append(snapshot, pos)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].MarketID < snapshot[j].MarketID })

	for _, pos := range snapshot {
		opp, present := byMarket[pos.MarketID]

		if !present && pos.Expiry.Before(now) {
			e.closePosition(pos, pos.CurrentPrice, CloseReasonExpired, now)
			continue
		}
		if !present {
			continue
		}

		edge := effectiveEdge(opp)
		if math.Abs(edge) < e.state.Config.MaxEdgeToExit {
			e.closePosition(pos, opp.Snapshot.PolymarketProb, CloseReasonEdgeAligned, now)
			continue
		}

		flipped := (pos.Side == SideShort && edge < 0) || (pos.Side == SideLong && edge > 0)
		if flipped && math.Abs(edge) >= e.state.Config.MinEdgeToEnter {
			e.closePosition(pos, opp.Snapshot.PolymarketProb, CloseReasonEdgeAligned, now)
		}
	}
}

// closePosition applies the P&L formulas of spec 4.7 and moves the
// position from the open set to the closed set, appending a close Trade.
// A close happens at most once per position because the caller always
// removes it from OpenPositions here.
func (e *Engine) closePosition(pos Position, closePrice float64, reason CloseReason, now time.Time) {
	var pnl float64
	if pos.Side == SideLong {
		pnl = pos.Shares * (closePrice - pos.EntryPrice)
	} else {
		pnl = pos.Shares * (pos.EntryPrice - closePrice)
	}
	pnl = roundCents(pnl)

	pos.Status = StatusClosed
	if reason == CloseReasonExpired {
		pos.Status = StatusExpired
	}
	reasonCopy := reason
	pos.CloseReason = &reasonCopy
	pos.ClosePrice = closePrice
	closeTime := now
	pos.CloseTimestamp = &closeTime
	pos.RealizedPnl = pnl

	e.state.CurrentBalance = roundCents(e.state.CurrentBalance + pos.Notional + pnl)
	e.state.TotalRealizedPnl = roundCents(e.state.TotalRealizedPnl + pnl)
	if pnl >= 0 {
		e.state.WinCount++
	} else {
		e.state.LossCount++
	}

	delete(e.state.OpenPositions, pos.MarketID)
	e.state.ClosedPositions = append(e.state.ClosedPositions, pos)

	pnlCopy := pnl
	e.state.Trades = append(e.state.Trades, Trade{
		ID:          newID(),
		PositionID:  pos.ID,
		MarketID:    pos.MarketID,
		Timestamp:   now,
		Action:      TradeClose,
		Side:        pos.Side,
		Price:       closePrice,
		Notional:    pos.Notional,
		Shares:      pos.Shares,
		Edge:        pos.CurrentEdge,
		SpotAtTrade: 0,
		Pnl:         &pnlCopy,
	})
}

// runEntryPhase walks opportunities highest-edge first (they arrive
// pre-sorted by the pipeline) and opens a position for every one that
// clears every gate in spec 4.7's table.
func (e *Engine) runEntryPhase(ctx context.Context, now time.Time, opps []pipeline.Opportunity) {
	cfg := e.state.Config
	for _, opp := range opps {
		if !e.passesEntryGates(opp, now, cfg) {
			continue
		}

		edge := effectiveEdge(opp)
		remaining := cfg.MaxTotalExposure - e.state.OpenNotional()
		size := math.Min(cfg.MaxPositionSize, math.Min(remaining, cfg.BasePositionSize+math.Abs(edge)*cfg.EdgeMultiplier))
		size = roundCents(size)
		if size <= 0 || size > e.state.CurrentBalance {
			continue
		}

		side := SideShort
		if edge < 0 {
			side = SideLong
		}

		filledPrice, orderID, err := e.Executor.Submit(ctx, opp, side, size)
		if err != nil {
			e.state.LastError = fmt.Sprintf("%v: %v", ErrExecutionFailed, err)
			continue
		}

		e.openPosition(opp, side, size, filledPrice, orderID, edge, now)
	}
}

// passesEntryGates evaluates the gates of spec 4.7's entry-gate table that
// do not depend on the position size; the exposure and balance caps are
// applied by runEntryPhase once the size is known. It short-circuits on the
// first failing gate.
func (e *Engine) passesEntryGates(opp pipeline.Opportunity, now time.Time, cfg BotConfig) bool {
	prob := opp.Snapshot.PolymarketProb
	if prob <= resolvedMarketLowerBound || prob >= resolvedMarketUpperBound {
		return false
	}

	claim := opp.Snapshot.Claim
	if claim.BetType == parser.BetOneTouch {
		spot := opp.Spot.USD
		alreadyHappened := (claim.Direction == parser.DirectionBelow && spot <= claim.TargetPrice) ||
			(claim.Direction == parser.DirectionAbove && spot >= claim.TargetPrice)
		if alreadyHappened {
			return false
		}
	}

	modelProb := opp.ZScoreEstimate.Probability
	if opp.DeltaEstimate != nil {
		modelProb = opp.DeltaEstimate.Probability
	}
	if (modelProb > agreementHighBound && prob > agreementHighBound) || (modelProb < agreementLowBound && prob < agreementLowBound) {
		return false
	}

	edge := effectiveEdge(opp)
	if math.Abs(edge) < cfg.MinEdgeToEnter {
		return false
	}

	daysToExpiry := claim.Expiry.Sub(now).Hours() / 24
	if daysToExpiry < cfg.MinTimeToExpiry {
		return false
	}

	if _, open := e.state.OpenPositions[claim.MarketID]; open {
		return false
	}

	return true
}

// openPosition records a filled entry order: debits currentBalance,
// appends an open Trade, and adds the Position to the open set.
func (e *Engine) openPosition(opp pipeline.Opportunity, side Side, notional, filledPrice float64, orderID string, edge float64, now time.Time) {
	claim := opp.Snapshot.Claim

	pos := Position{
		ID:             newID(),
		MarketID:       claim.MarketID,
		Symbol:         claim.Symbol,
		TargetPrice:    claim.TargetPrice,
		Direction:      claim.Direction,
		BetType:        claim.BetType,
		Expiry:         claim.Expiry,
		Side:           side,
		EntryPrice:     filledPrice,
		Notional:       notional,
		EntryEdge:      edge,
		EntryTimestamp: now,
		CurrentPrice:   filledPrice,
		CurrentEdge:    edge,
		Status:         StatusOpen,
	}
	pos.Shares = notional / pos.EffectivePrice()

	e.state.CurrentBalance = roundCents(e.state.CurrentBalance - notional)
	e.state.OpenPositions[claim.MarketID] = pos

	var deltaProb *float64
	if opp.DeltaEstimate != nil {
		p := opp.DeltaEstimate.Probability
		deltaProb = &p
	}

	e.state.Trades = append(e.state.Trades, Trade{
		ID:          newID(),
		PositionID:  pos.ID,
		MarketID:    pos.MarketID,
		Timestamp:   now,
		Action:      TradeOpen,
		Side:        side,
		Price:       filledPrice,
		Notional:    notional,
		Shares:      pos.Shares,
		Edge:        edge,
		ZScoreProb:  opp.ZScoreEstimate.Probability,
		DeltaProb:   deltaProb,
		SpotAtTrade: opp.Spot.USD,
	})
	_ = orderID // discarded: Trade.ID is a fresh id and the venue order id is not part of BotState's schema
}

// recomputeAggregates refreshes the timestamp; win/loss counters are
// maintained incrementally at close time rather than recomputed here.
func (e *Engine) recomputeAggregates(now time.Time) {
	e.state.LastUpdate = now
}

// effectiveEdge is edgeDelta when present, else edgeZ, per spec 4.7's
// entry-gate table and the exit phase's edge comparisons.
func effectiveEdge(opp pipeline.Opportunity) float64 {
	if opp.EdgeDelta != nil {
		return *opp.EdgeDelta
	}
	return opp.EdgeZ
}

// unrealizedPnl mirrors closePosition's P&L formula against the current
// (not close) price, for display only.
func unrealizedPnl(pos Position) float64 {
	if pos.Side == SideLong {
		return roundCents(pos.Shares * (pos.CurrentPrice - pos.EntryPrice))
	}
	return roundCents(pos.Shares * (pos.EntryPrice - pos.CurrentPrice))
}
