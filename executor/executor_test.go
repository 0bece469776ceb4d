package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoedge/cryptoedge/client"
	"github.com/cryptoedge/cryptoedge/parser"
	"github.com/cryptoedge/cryptoedge/pipeline"
	"github.com/cryptoedge/cryptoedge/trading"
)

func testOpportunity(prob float64, tokenIDs [2]string) pipeline.Opportunity {
	return pipeline.Opportunity{
		Snapshot: pipeline.MarketSnapshot{
			Claim:          parser.CryptoClaim{MarketID: "m1", Symbol: "BTC"},
			PolymarketProb: prob,
			TokenIDs:       tokenIDs,
		},
	}
}

func TestDryRunExecutorFillsAtPolymarketProb(t *testing.T) {
	exec := NewDryRunExecutor()
	opp := testOpportunity(0.37, [2]string{"yes-tok", "no-tok"})

	price, orderID, err := exec.Submit(context.Background(), opp, trading.SideShort, 50)
	require.NoError(t, err)
	assert.InDelta(t, 0.37, price, 1e-9)
	assert.Contains(t, orderID, "dryrun-")
}

func TestTokenForSideSelectsYesForLongAndNoForShort(t *testing.T) {
	opp := testOpportunity(0.5, [2]string{"yes-tok", "no-tok"})

	tok, side, err := tokenForSide(opp, trading.SideLong)
	require.NoError(t, err)
	assert.Equal(t, "yes-tok", tok)
	assert.Equal(t, "BUY", side)

	tok, side, err = tokenForSide(opp, trading.SideShort)
	require.NoError(t, err)
	assert.Equal(t, "no-tok", tok)
	assert.Equal(t, "BUY", side)
}

func TestTokenForSideRejectsMissingToken(t *testing.T) {
	opp := testOpportunity(0.5, [2]string{"", "no-tok"})
	_, _, err := tokenForSide(opp, trading.SideLong)
	assert.ErrorIs(t, err, ErrNoTokenForSide)
}

func TestLiveExecutorSubmitsFillOrKillAtBestAsk(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[],"asks":[{"price":"0.45","size":"100"},{"price":"0.50","size":"50"}]}`))
	})
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		for _, h := range []string{"POLY_ADDRESS", "POLY_API_KEY", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_PASSPHRASE"} {
			if r.Header.Get(h) == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		w.Write([]byte(`{"orderID":"live-order-1"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	clob, err := client.NewCLOBClient(server.URL, server.URL, "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", time.Second)
	require.NoError(t, err)

	exec := NewLiveExecutor(clob, "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	opp := testOpportunity(0.5, [2]string{"yes-tok", "no-tok"})

	price, orderID, err := exec.Submit(context.Background(), opp, trading.SideLong, 45)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, price, 1e-9)
	assert.Equal(t, "live-order-1", orderID)
}

func TestLiveExecutorCachesSessionAcrossCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[],"asks":[{"price":"0.5","size":"10"}]}`))
	})
	mux.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orderID":"o"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	clob, err := client.NewCLOBClient(server.URL, server.URL, "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", time.Second)
	require.NoError(t, err)
	exec := NewLiveExecutor(clob, "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	opp := testOpportunity(0.5, [2]string{"yes-tok", "no-tok"})

	_, _, err = exec.Submit(context.Background(), opp, trading.SideLong, 10)
	require.NoError(t, err)
	first := exec.session

	_, _, err = exec.Submit(context.Background(), opp, trading.SideLong, 10)
	require.NoError(t, err)
	assert.Same(t, first, exec.session)
}
