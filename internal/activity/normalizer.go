package activity

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/mirrorbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACTIVITY NORMALIZER
// ═══════════════════════════════════════════════════════════════════════════════
//
// The only boundary translating raw data-api activity records into the
// canonical TradeActivity. The feed is inconsistent: TRADE rows carry a
// side in mixed case, while MERGE/REDEEM rows carry no side at all and
// are distinguished by their type.
//
// ═══════════════════════════════════════════════════════════════════════════════

// millisCutoff: any timestamp above this is assumed to be milliseconds.
const millisCutoff = 100_000_000_000

type rawRecord struct {
	TransactionHash string          `json:"transactionHash"`
	Timestamp       int64           `json:"timestamp"`
	Type            string          `json:"type"`
	Side            string          `json:"side"`
	Asset           string          `json:"asset"`
	ConditionID     string          `json:"conditionId"`
	Price           decimal.Decimal `json:"price"`
	Size            decimal.Decimal `json:"size"`
	USDCSize        decimal.Decimal `json:"usdcSize"`
	Title           string          `json:"title"`
}

// Normalize maps one raw activity record into a TradeActivity. It returns
// ok=false for records that don't represent a mirrorable action (splits,
// rewards, unparseable rows); malformed-but-recognized records pass
// through and fail later guards instead.
func Normalize(raw json.RawMessage) (types.TradeActivity, bool) {
	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.TradeActivity{}, false
	}

	var side types.Side
	switch strings.ToUpper(rec.Type) {
	case "MERGE":
		side = types.SideMerge
	case "REDEEM":
		side = types.SideRedeem
	default:
		side = types.Side(strings.ToUpper(rec.Side))
	}
	if !side.Valid() {
		return types.TradeActivity{}, false
	}

	return types.TradeActivity{
		TransactionHash: rec.TransactionHash,
		Timestamp:       NormalizeTimestamp(rec.Timestamp),
		Side:            side,
		Asset:           rec.Asset,
		ConditionID:     rec.ConditionID,
		Price:           rec.Price,
		Size:            rec.Size,
		USDCSize:        rec.USDCSize,
		Title:           rec.Title,
		Raw:             raw,
	}, true
}

// NormalizeTimestamp collapses second/millisecond ambiguity to unix seconds.
func NormalizeTimestamp(ts int64) int64 {
	if ts > millisCutoff {
		return ts / 1000
	}
	return ts
}
