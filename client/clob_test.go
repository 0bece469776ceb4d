package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewCLOBClientRejectsMalformedPrivateKey(t *testing.T) {
	_, err := NewCLOBClient("https://gamma", "https://clob", "not-hex", time.Second)
	require.Error(t, err)
}

func TestNewCLOBClientAllowsEmptyPrivateKeyForReadOnlyUse(t *testing.T) {
	c, err := NewCLOBClient("https://gamma", "https://clob", "", time.Second)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Nil(t, c.privateKey)
}

func TestPlaceOrderWithoutPrivateKeyFails(t *testing.T) {
	c, err := NewCLOBClient("https://gamma", "https://clob", "", time.Second)
	require.NoError(t, err)

	_, err = c.PlaceOrder(context.Background(), &AuthSession{}, "tok1", "BUY", 0.4, 10)
	require.Error(t, err)
}

// TestPlaceOrderSendsFlatRequestBodyWithHMACHeaders exercises the order
// placement path end to end against an httptest server, asserting the body
// sent matches spec 6's flat {tokenID,side,size,price,type,feeRateBps}
// shape and that the POLY_* headers carry the session's address, API key
// and passphrase plus a non-empty signature and timestamp; the signature
// value itself is not recomputed here.
func TestPlaceOrderSendsFlatRequestBodyWithHMACHeaders(t *testing.T) {
	session := &AuthSession{
		Address:    common.HexToAddress("0xabc"),
		APIKey:     "key-1",
		APISecret:  "c2VjcmV0LWJ5dGVz", // base64("secret-bytes")
		Passphrase: "pass-1",
	}

	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"orderID": "order-123"})
	}))
	defer srv.Close()

	c, err := NewCLOBClient(srv.URL, srv.URL, testPrivateKeyHex, time.Second)
	require.NoError(t, err)

	orderID, err := c.PlaceOrder(context.Background(), session, "tok1", "buy", 0.42, 25)
	require.NoError(t, err)
	assert.Equal(t, "order-123", orderID)

	var body OrderRequest
	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, "tok1", body.TokenID)
	assert.Equal(t, "BUY", body.Side)
	assert.Equal(t, "FOK", body.Type)
	assert.Equal(t, "0", body.FeeRateBps)
	assert.Equal(t, "25", body.Size)
	assert.Equal(t, "0.42", body.Price)

	assert.Equal(t, session.Address.Hex(), gotHeaders.Get("POLY_ADDRESS"))
	assert.Equal(t, "key-1", gotHeaders.Get("POLY_API_KEY"))
	assert.Equal(t, "pass-1", gotHeaders.Get("POLY_PASSPHRASE"))
	assert.NotEmpty(t, gotHeaders.Get("POLY_SIGNATURE"))
	assert.NotEmpty(t, gotHeaders.Get("POLY_TIMESTAMP"))
}

func TestPlaceOrderSurfacesRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("insufficient balance"))
	}))
	defer srv.Close()

	c, err := NewCLOBClient(srv.URL, srv.URL, testPrivateKeyHex, time.Second)
	require.NoError(t, err)

	_, err = c.PlaceOrder(context.Background(), &AuthSession{APISecret: "c2VjcmV0"}, "tok1", "buy", 0.4, 10)
	require.Error(t, err)
}
