package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the canonical action kind of a target activity record.
type Side string

const (
	SideBuy    Side = "BUY"
	SideSell   Side = "SELL"
	SideRedeem Side = "REDEEM"
	SideMerge  Side = "MERGE"
)

// Valid reports whether s is one of the four recognized actions.
func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell, SideRedeem, SideMerge:
		return true
	}
	return false
}

// TradeActivity is one normalized action observed for a target wallet.
// Produced by the activity normalizer, consumed exactly once by the executor.
type TradeActivity struct {
	TransactionHash string
	Timestamp       int64 // unix seconds, normalized from ms if needed
	Side            Side
	Asset           string
	Price           decimal.Decimal
	Size            decimal.Decimal
	Title           string
	ConditionID     string
	USDCSize        decimal.Decimal // zero when the feed omitted it

	// Raw carries the source record untouched so extra metadata
	// (trader display name etc.) survives normalization.
	Raw json.RawMessage
}

// Notional returns the USDC value the target moved in this activity:
// the feed's usdcSize when present, otherwise size × price.
func (t TradeActivity) Notional() decimal.Decimal {
	if t.USDCSize.IsPositive() {
		return t.USDCSize
	}
	return t.Size.Mul(t.Price)
}

// Position is one open exposure to a single outcome token.
type Position struct {
	Asset             string
	ConditionID       string
	Title             string
	Size              decimal.Decimal
	AverageEntryPrice decimal.Decimal
	TotalCost         decimal.Decimal
}

// TradeRecord is one executed mirror action, kept for audit and display.
type TradeRecord struct {
	Side      Side
	Asset     string
	Title     string
	Price     decimal.Decimal
	Shares    decimal.Decimal
	Amount    decimal.Decimal // USDC moved
	PnL       decimal.Decimal // realized; zero for buys and merges
	Timestamp time.Time
}
