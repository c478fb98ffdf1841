package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POLYMARKET DATA API CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Read-only feeds: recent wallet activity and current holdings.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// UserPosition is one holding from the positions feed.
type UserPosition struct {
	Asset        string          `json:"asset"`
	ConditionID  string          `json:"conditionId"`
	Title        string          `json:"title"`
	Outcome      string          `json:"outcome"`
	Size         decimal.Decimal `json:"size"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
	CurPrice     decimal.Decimal `json:"curPrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
}

// Price returns the feed's current price, whichever field it arrived in.
func (p UserPosition) Price() decimal.Decimal {
	if !p.CurPrice.IsZero() {
		return p.CurPrice
	}
	return p.CurrentPrice
}

// NewClient creates a data API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Activity fetches the most recent activity records for a wallet, newest
// first, as raw JSON for the normalizer.
func (c *Client) Activity(ctx context.Context, user string, limit int) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/activity?user=%s&limit=%d", c.baseURL, user, limit)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("parse activity feed: %w", err)
	}
	return records, nil
}

// Positions fetches a wallet's current nonzero holdings.
func (c *Client) Positions(ctx context.Context, user string) ([]UserPosition, error) {
	url := fmt.Sprintf("%s/positions?user=%s", c.baseURL, user)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var positions []UserPosition
	if err := json.Unmarshal(body, &positions); err != nil {
		return nil, fmt.Errorf("parse positions feed: %w", err)
	}

	nonzero := positions[:0]
	for _, p := range positions {
		if !p.Size.IsZero() {
			nonzero = append(nonzero, p)
		}
	}
	return nonzero, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

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
