package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// CLOBClient talks to the prediction market's gamma catalog and CLOB
// order book / order placement endpoints.
type CLOBClient struct {
	fetcher    *Fetcher
	httpClient *http.Client
	gammaURL   string
	clobURL    string

	privateKey *ecdsa.PrivateKey
}

// NewCLOBClient builds a client against the given gamma/clob base URLs.
// privateKeyHex may be empty for a read-only (dry-run) client.
func NewCLOBClient(gammaURL, clobURL, privateKeyHex string, timeout time.Duration) (*CLOBClient, error) {
	c := &CLOBClient{
		fetcher:    NewFetcher(timeout),
		httpClient: &http.Client{Timeout: timeout},
		gammaURL:   strings.TrimRight(gammaURL, "/"),
		clobURL:    strings.TrimRight(clobURL, "/"),
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.privateKey = key
	}

	return c, nil
}

// ActiveMarkets fetches up to `limit` most-active, open markets in a
// single paginated gamma call, per spec 4.5/6.
func (c *CLOBClient) ActiveMarkets(ctx context.Context, limit int) ([]GammaMarket, error) {
	url := fmt.Sprintf("%s/markets?active=true&closed=false&limit=%d&order=volume24hr&ascending=false",
		c.gammaURL, limit)

	var markets []GammaMarket
	if err := c.fetcher.GetJSON(ctx, url, nil, &markets); err != nil {
		return nil, fmt.Errorf("fetch active markets: %w", err)
	}
	return markets, nil
}

// OrderBook fetches the CLOB book for one outcome token.
func (c *CLOBClient) OrderBook(ctx context.Context, tokenID string) (OrderBook, error) {
	url := fmt.Sprintf("%s/book?token_id=%s", c.clobURL, tokenID)

	var book OrderBook
	if err := c.fetcher.GetJSON(ctx, url, nil, &book); err != nil {
		return OrderBook{}, fmt.Errorf("fetch order book for %s: %w", tokenID, err)
	}
	return book, nil
}

// PlaceOrder submits a fill-or-kill order against tokenID, at price
// (decimal, (0,1)) for size (shares, decimal). side is "BUY" or "SELL".
// Requires a private key and an AuthSession; the request is authenticated
// with the AuthSession's HMAC headers per spec 6, not an on-chain
// signature — the CLOB's /order body carries the economic terms only.
func (c *CLOBClient) PlaceOrder(ctx context.Context, session *AuthSession, tokenID, side string, price, size float64) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("order placement requires a private key")
	}

	req := OrderRequest{
		TokenID:    tokenID,
		Side:       strings.ToUpper(side),
		Size:       strconv.FormatFloat(size, 'f', -1, 64),
		Price:      strconv.FormatFloat(price, 'f', -1, 64),
		Type:       "FOK",
		FeeRateBps: "0",
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clobURL+"/order", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := signRequest(httpReq, session, http.MethodPost, "/order", body); err != nil {
		return "", fmt.Errorf("sign order request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("order rejected (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		OrderID string `json:"orderID"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.OrderID == "" {
		return "", fmt.Errorf("order accepted but response unparseable: %s", string(respBody))
	}
	return result.OrderID, nil
}

// signRequest attaches the POLY_* HMAC headers per spec 6: POLY_SIGNATURE
// is the base64 encoding of an HMAC-SHA256 digest over
// timestamp+method+path+body, keyed by the base64-decoded API secret.
func signRequest(req *http.Request, session *AuthSession, method, path string, body []byte) error {
	secretBytes, err := base64.StdEncoding.DecodeString(session.APISecret)
	if err != nil {
		return fmt.Errorf("decode api secret: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + method + path + string(body)

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("POLY_ADDRESS", session.Address.Hex())
	req.Header.Set("POLY_API_KEY", session.APIKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", session.Passphrase)
	return nil
}
