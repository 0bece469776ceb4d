package client

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AuthSession holds the CLOB credentials derived from one onboarding
// signature: an EIP-191 personal-sign over a fixed message, not an EIP-712
// typed-data signature. Per spec 9's redesign note, this replaces the
// source's ambient mutable singleton: the session is an explicit value
// constructed once (lazily, on first use) and passed down the call stack
// instead of being re-derived on every order.
type AuthSession struct {
	Address    common.Address
	APIKey     string
	APISecret  string
	Passphrase string
}

// DeriveAuthSession signs the CLOB's fixed onboarding message with the
// trader's private key and derives the L2 API key/secret/passphrase from
// the signature, the way the exchange's onboarding flow expects.
func DeriveAuthSession(privateKeyHex string) (*AuthSession, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	apiKey, apiSecret, passphrase, err := deriveCredentials(privateKey)
	if err != nil {
		return nil, fmt.Errorf("derive credentials: %w", err)
	}

	return &AuthSession{
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		APIKey:     apiKey,
		APISecret:  apiSecret,
		Passphrase: passphrase,
	}, nil
}

func deriveCredentials(privateKey *ecdsa.PrivateKey) (apiKey, apiSecret, passphrase string, err error) {
	const onboardingMessage = "POLY_ONBOARDING_MESSAGE"
	message := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(onboardingMessage), onboardingMessage)
	hash := crypto.Keccak256([]byte(message))

	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", "", "", err
	}

	// Drop the recovery byte; the remaining 64 bytes are the credential
	// seed.
	secret := signature[:64]

	apiKey = hex.EncodeToString(crypto.Keccak256(append(secret, []byte("_key")...)))
	// The secret is exposed base64-encoded; callers must base64-decode it
	// before using it as an HMAC key, per the CLOB's signing contract.
	apiSecret = base64.StdEncoding.EncodeToString(secret)
	passphrase = hex.EncodeToString(crypto.Keccak256(append(secret, []byte("_passphrase")...)))
	return apiKey, apiSecret, passphrase, nil
}
