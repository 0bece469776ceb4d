// Package executor implements the Order Executor: the abstract
// fill-capability the Trading State Machine consumes. Grounded on the
// teacher's utils/paper_trading/paper_trading.go (Framework.EnterPosition's
// balance-free fill bookkeeping, adapted into DryRunExecutor) and
// client/client.go's CreateAndSubmitOrder (adapted into LiveExecutor).
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/cryptoedge/cryptoedge/client"
	"github.com/cryptoedge/cryptoedge/pipeline"
	"github.com/cryptoedge/cryptoedge/trading"
)

// ErrNoTokenForSide is returned when an opportunity's snapshot lacks the
// outcome token id the chosen side requires.
var ErrNoTokenForSide = errors.New("no outcome token id for the requested side")

// DryRunExecutor fills every order immediately at the opportunity's
// polymarketProb, with a synthetic order id, per spec 4.8.
type DryRunExecutor struct{}

// NewDryRunExecutor builds a DryRunExecutor.
func NewDryRunExecutor() *DryRunExecutor { return &DryRunExecutor{} }

// Submit always succeeds, filling at the market's own implied probability.
func (d *DryRunExecutor) Submit(ctx context.Context, opp pipeline.Opportunity, side trading.Side, notional float64) (float64, string, error) {
	return opp.Snapshot.PolymarketProb, "dryrun-" + uuid.NewString(), nil
}

// LiveExecutor resolves (claim, side) to an outcome token, reads the top
// of book, and places a fill-or-kill order against the real CLOB, per
// spec 4.8. Credentials are derived lazily on first use and cached for the
// process lifetime (spec 9's explicit AuthSession, not an ambient
// singleton; SPEC_FULL's "cached for the process lifetime" supplement).
type LiveExecutor struct {
	clob          *client.CLOBClient
	privateKeyHex string
	session       *client.AuthSession
}

// NewLiveExecutor builds a LiveExecutor against the given CLOB client.
// privateKeyHex is used once, lazily, to derive the L2 AuthSession.
func NewLiveExecutor(clob *client.CLOBClient, privateKeyHex string) *LiveExecutor {
	return &LiveExecutor{clob: clob, privateKeyHex: privateKeyHex}
}

func (l *LiveExecutor) session_() (*client.AuthSession, error) {
	if l.session != nil {
		return l.session, nil
	}
	session, err := client.DeriveAuthSession(l.privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("derive auth session: %w", err)
	}
	l.session = session
	return session, nil
}

// Submit resolves the outcome token for side, reads bestAsk from the
// order book, and submits a FOK order sized to notional/bestAsk shares.
//
// Open question (spec 9): bestAsk of the chosen outcome token is used as
// the fill price for both long and short, preserving the source's
// behavior even though a short (a BUY on the NO token) has its own ask
// that is not exactly 1-ask(YES) in practice.
func (l *LiveExecutor) Submit(ctx context.Context, opp pipeline.Opportunity, side trading.Side, notional float64) (float64, string, error) {
	session, err := l.session_()
	if err != nil {
		return 0, "", err
	}

	tokenID, clobSide, err := tokenForSide(opp, side)
	if err != nil {
		return 0, "", err
	}

	book, err := l.clob.OrderBook(ctx, tokenID)
	if err != nil {
		return 0, "", fmt.Errorf("fetch order book: %w", err)
	}
	bestAsk, ok := book.BestAsk()
	if !ok {
		return 0, "", fmt.Errorf("no ask liquidity for token %s", tokenID)
	}

	shares := notional / bestAsk
	orderID, err := l.clob.PlaceOrder(ctx, session, tokenID, clobSide, bestAsk, shares)
	if err != nil {
		return 0, "", fmt.Errorf("place order: %w", err)
	}

	return bestAsk, orderID, nil
}

// tokenForSide maps a trading.Side to the outcome token and CLOB order
// side: long buys YES, short buys NO (the state machine never sells an
// outcome it does not hold; every entry is a BUY on the chosen token).
func tokenForSide(opp pipeline.Opportunity, side trading.Side) (tokenID, clobSide string, err error) {
	ids := opp.Snapshot.TokenIDs
	if side == trading.SideLong {
		if ids[0] == "" {
			return "", "", ErrNoTokenForSide
		}
		return ids[0], "BUY", nil
	}
	if ids[1] == "" {
		return "", "", ErrNoTokenForSide
	}
	return ids[1], "BUY", nil
}
