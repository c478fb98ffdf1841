package activity

import (
	"encoding/json"
	"testing"

	"github.com/web3guy0/mirrorbot/types"
)

func TestNormalizeSides(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want types.Side
		ok   bool
	}{
		{
			name: "trade buy mixed case",
			raw:  `{"transactionHash":"0xa","timestamp":1700000000,"type":"TRADE","side":"buy","asset":"tok1","price":"0.5","size":"10"}`,
			want: types.SideBuy,
			ok:   true,
		},
		{
			name: "trade sell upper case",
			raw:  `{"transactionHash":"0xb","timestamp":1700000000,"type":"TRADE","side":"SELL","asset":"tok1","price":"0.5","size":"10"}`,
			want: types.SideSell,
			ok:   true,
		},
		{
			name: "redeem carries no side",
			raw:  `{"transactionHash":"0xc","timestamp":1700000000,"type":"REDEEM","asset":"tok1"}`,
			want: types.SideRedeem,
			ok:   true,
		},
		{
			name: "merge type lower case",
			raw:  `{"transactionHash":"0xd","timestamp":1700000000,"type":"merge","asset":"tok1"}`,
			want: types.SideMerge,
			ok:   true,
		},
		{
			name: "split is not mirrorable",
			raw:  `{"transactionHash":"0xe","timestamp":1700000000,"type":"SPLIT","asset":"tok1"}`,
			ok:   false,
		},
		{
			name: "reward row without side",
			raw:  `{"transactionHash":"0xf","timestamp":1700000000,"type":"REWARD"}`,
			ok:   false,
		},
		{
			name: "unparseable json",
			raw:  `{`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, ok := Normalize(json.RawMessage(tt.raw))
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && trade.Side != tt.want {
				t.Errorf("side = %s, want %s", trade.Side, tt.want)
			}
		})
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{1700000000, 1700000000},       // already seconds
		{1700000000123, 1700000000},    // milliseconds
		{0, 0},                         // zero passes through
		{99_999_999_999, 99_999_999_999}, // just under the cutoff
	}

	for _, tt := range tests {
		if got := NormalizeTimestamp(tt.in); got != tt.want {
			t.Errorf("NormalizeTimestamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeKeepsUSDCSizeAndRaw(t *testing.T) {
	raw := json.RawMessage(`{"transactionHash":"0xa","timestamp":1700000000,"type":"TRADE","side":"BUY","asset":"tok1","price":"0.5","size":"10","usdcSize":"7.5","title":"Some market"}`)

	trade, ok := Normalize(raw)
	if !ok {
		t.Fatal("normalize failed")
	}
	if trade.Title != "Some market" {
		t.Errorf("title = %q", trade.Title)
	}
	// usdcSize wins over size*price as the notional
	if !trade.Notional().Equal(trade.USDCSize) {
		t.Errorf("notional = %s, want %s", trade.Notional(), trade.USDCSize)
	}
	if len(trade.Raw) == 0 {
		t.Error("raw record not retained")
	}
}
