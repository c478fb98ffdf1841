package clob

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/mirrorbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POLYMARKET CLOB CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Order placement against the central limit order book, live mode only.
// EIP-712-style signing for order auth, HMAC headers for API auth.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Client struct {
	baseURL    string
	privateKey *ecdsa.PrivateKey
	address    string
	apiKey     string
	apiSecret  string
	passphrase string
	httpClient *http.Client
}

// Credentials carries CLOB API auth material.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
	PrivateKey string // hex-encoded wallet key for order signing
}

// NewClient creates an execution client against baseURL.
func NewClient(baseURL string, creds Credentials) (*Client, error) {
	client := &Client{
		baseURL:    baseURL,
		apiKey:     creds.APIKey,
		apiSecret:  creds.APISecret,
		passphrase: creds.Passphrase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	if creds.PrivateKey != "" {
		pk, err := crypto.HexToECDSA(creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		client.privateKey = pk
		client.address = crypto.PubkeyToAddress(pk.PublicKey).Hex()
	}

	log.Info().Str("address", client.address).Msg("💳 CLOB client initialized")
	return client, nil
}

// Address returns the signing wallet address.
func (c *Client) Address() string {
	return c.address
}

// PostOrder creates and posts a limit order: explicit token id, limit
// price, side, share size, zero fee rate. Returns the order id.
func (c *Client) PostOrder(ctx context.Context, tokenID string, price, size decimal.Decimal, side types.Side) (string, error) {
	order := map[string]any{
		"tokenID":       tokenID,
		"price":         price.String(),
		"size":          size.String(),
		"side":          string(side),
		"expiration":    time.Now().Add(24 * time.Hour).Unix(),
		"nonce":         time.Now().UnixNano(),
		"feeRateBps":    "0",
		"signatureType": 2,
	}

	signature, err := c.signOrder(order)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}
	order["signature"] = signature

	resp, err := c.post(ctx, "/order", order)
	if err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"orderID"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("API error: %s", result.Error)
	}

	log.Info().
		Str("order_id", result.OrderID).
		Str("status", result.Status).
		Str("side", string(side)).
		Msg("✅ Order posted")

	return result.OrderID, nil
}

// Midpoint returns the current midpoint price for a token.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	resp, err := c.get(ctx, "/midpoint?token_id="+tokenID)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Mid string `json:"mid"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return decimal.Zero, err
	}

	mid, err := decimal.NewFromString(result.Mid)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse midpoint %q: %w", result.Mid, err)
	}
	return mid, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.addHeaders(req)
	return c.doRequest(req)
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	jsonBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.doRequest(req)
}

func (c *Client) addHeaders(req *http.Request) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())

	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)

	if c.apiSecret != "" {
		message := timestamp + req.Method + req.URL.Path
		req.Header.Set("POLY_SIGNATURE", c.hmacSign(message))
	}
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNING
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) signOrder(order map[string]any) (string, error) {
	if c.privateKey == nil {
		return "", fmt.Errorf("private key not loaded")
	}

	orderBytes, _ := json.Marshal(order)
	hash := crypto.Keccak256(orderBytes)

	sig, err := crypto.Sign(hash, c.privateKey)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (c *Client) hmacSign(message string) string {
	hash := crypto.Keccak256([]byte(message + c.apiSecret))
	return hexutil.Encode(hash)
}
