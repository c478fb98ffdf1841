package executor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/mirrorbot/internal/config"
	"github.com/web3guy0/mirrorbot/internal/ledger"
	"github.com/web3guy0/mirrorbot/types"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func dryRunExecutor(t *testing.T, balance, ratio string) (*Executor, *ledger.Account) {
	t.Helper()
	cfg := &config.Config{
		DryRun:       true,
		MirrorRatio:  d(ratio),
		MinTradeUSDC: d("0.01"),
		StateDir:     t.TempDir(),
	}
	account := ledger.NewAccount(d(balance))
	return New(cfg, account), account
}

func buyActivity(asset, condition string, notional, price string) types.TradeActivity {
	return types.TradeActivity{
		TransactionHash: "0x" + asset,
		Timestamp:       time.Now().Unix(),
		Side:            types.SideBuy,
		Asset:           asset,
		ConditionID:     condition,
		Title:           "Test market",
		Price:           d(price),
		USDCSize:        d(notional),
	}
}

func TestBuyScalesByMirrorRatio(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "0.1")

	// Target spends $200; we mirror $20 at 0.50 -> 40 shares.
	err := exec.Execute(context.Background(), buyActivity("tok1", "c1", "200", "0.5"))
	if err != nil {
		t.Fatal(err)
	}

	pos := account.Position("tok1")
	if pos == nil {
		t.Fatal("no position opened")
	}
	if !pos.Size.Equal(d("40")) {
		t.Errorf("size = %s, want 40", pos.Size)
	}
	if !account.Balance().Equal(d("980")) {
		t.Errorf("balance = %s, want 980", account.Balance())
	}
}

func TestBuySpendsAvailableWhenShort(t *testing.T) {
	exec, account := dryRunExecutor(t, "100", "1")

	// Scaled notional $250 against $100 cash: spend everything.
	err := exec.Execute(context.Background(), buyActivity("tok1", "c1", "250", "0.5"))
	if err != nil {
		t.Fatal(err)
	}

	if !account.Balance().IsZero() {
		t.Errorf("balance = %s, want 0", account.Balance())
	}
	pos := account.Position("tok1")
	if pos == nil {
		t.Fatal("no position opened")
	}
	if !pos.Size.Equal(d("200")) { // $100 / 0.50
		t.Errorf("size = %s, want 200", pos.Size)
	}
}

func TestBuyBelowMinimumIsSkipped(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "0.001")

	// $5 * 0.001 = $0.005, under the $0.01 floor.
	err := exec.Execute(context.Background(), buyActivity("tok1", "c1", "5", "0.5"))
	if err != nil {
		t.Fatal(err)
	}

	if account.Position("tok1") != nil {
		t.Error("position opened for sub-minimum trade")
	}
	if !account.Balance().Equal(d("1000")) {
		t.Errorf("balance = %s, want untouched 1000", account.Balance())
	}
}

func TestBuyWithoutPriceIsSkipped(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")

	trade := buyActivity("tok1", "c1", "50", "0")
	if err := exec.Execute(context.Background(), trade); err != nil {
		t.Fatal(err)
	}
	if account.Position("tok1") != nil {
		t.Error("position opened without a price")
	}
}

func TestSellNearTotalTakesWholePosition(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")

	// Hold 100 shares, target sell sizes us at 99.5 -> liquidate all 100.
	account.Buy("tok1", "c1", "Test market", d("50"), d("0.5"))

	sell := types.TradeActivity{
		TransactionHash: "0xsell",
		Side:            types.SideSell,
		Asset:           "tok1",
		Title:           "Test market",
		Price:           d("0.5"),
		USDCSize:        d("49.75"), // 99.5 shares
	}
	if err := exec.Execute(context.Background(), sell); err != nil {
		t.Fatal(err)
	}

	if account.Position("tok1") != nil {
		t.Error("dust remainder left behind, want full liquidation")
	}
}

func TestSellPartial(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")
	account.Buy("tok1", "c1", "Test market", d("50"), d("0.5")) // 100 shares

	sell := types.TradeActivity{
		TransactionHash: "0xsell",
		Side:            types.SideSell,
		Asset:           "tok1",
		Title:           "Test market",
		Price:           d("0.6"),
		USDCSize:        d("30"), // 50 shares at 0.60
	}
	if err := exec.Execute(context.Background(), sell); err != nil {
		t.Fatal(err)
	}

	pos := account.Position("tok1")
	if pos == nil {
		t.Fatal("position fully closed, want partial")
	}
	if !pos.Size.Equal(d("50")) {
		t.Errorf("remaining = %s, want 50", pos.Size)
	}
	// 50 shares * (0.60 - 0.50)
	if !account.TotalPnL().Equal(d("5")) {
		t.Errorf("pnl = %s, want 5", account.TotalPnL())
	}
}

func TestSellWithoutPositionIsSkipped(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")

	sell := types.TradeActivity{
		TransactionHash: "0xsell",
		Side:            types.SideSell,
		Asset:           "ghost",
		Price:           d("0.5"),
		USDCSize:        d("10"),
	}
	if err := exec.Execute(context.Background(), sell); err != nil {
		t.Fatal(err)
	}
	if !account.Balance().Equal(d("1000")) {
		t.Errorf("balance = %s, want untouched 1000", account.Balance())
	}
}

func TestRedeemByAsset(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")
	account.Buy("tok1", "c1", "Test market", d("60"), d("0.6")) // 100 shares

	redeem := types.TradeActivity{
		TransactionHash: "0xr",
		Side:            types.SideRedeem,
		Asset:           "tok1",
	}
	if err := exec.Execute(context.Background(), redeem); err != nil {
		t.Fatal(err)
	}

	if account.Position("tok1") != nil {
		t.Error("position survived redeem")
	}
	// 1000 - 60 + 100 at par
	if !account.Balance().Equal(d("1040")) {
		t.Errorf("balance = %s, want 1040", account.Balance())
	}
}

func TestRedeemFallsBackToConditionID(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")
	account.Buy("tok1", "c1", "Test market", d("60"), d("0.6"))

	// Redeem event references the market, not our outcome token.
	redeem := types.TradeActivity{
		TransactionHash: "0xr",
		Side:            types.SideRedeem,
		Asset:           "other-token",
		ConditionID:     "c1",
	}
	if err := exec.Execute(context.Background(), redeem); err != nil {
		t.Fatal(err)
	}
	if account.Position("tok1") != nil {
		t.Error("conditionId fallback did not find the position")
	}
}

func TestMergeLiquidatesWithoutPnL(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")
	account.Buy("tok1", "c1", "Test market", d("40"), d("0.4")) // 100 shares

	merge := types.TradeActivity{
		TransactionHash: "0xm",
		Side:            types.SideMerge,
		Asset:           "tok1",
		Price:           d("0.45"),
	}
	if err := exec.Execute(context.Background(), merge); err != nil {
		t.Fatal(err)
	}

	if account.Position("tok1") != nil {
		t.Error("position survived merge")
	}
	if !account.Balance().Equal(d("1005")) { // 1000 - 40 + 45
		t.Errorf("balance = %s, want 1005", account.Balance())
	}
	if !account.TotalPnL().IsZero() {
		t.Errorf("merge booked P&L: %s", account.TotalPnL())
	}
}

func TestMergeWithoutPriceUsesPar(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")
	account.Buy("tok1", "c1", "Test market", d("40"), d("0.4")) // 100 shares

	merge := types.TradeActivity{
		TransactionHash: "0xm",
		Side:            types.SideMerge,
		Asset:           "tok1",
	}
	if err := exec.Execute(context.Background(), merge); err != nil {
		t.Fatal(err)
	}
	if !account.Balance().Equal(d("1060")) { // 1000 - 40 + 100 at par
		t.Errorf("balance = %s, want 1060", account.Balance())
	}
}

// fakePrices is a canned midpoint source for cleanup tests.
type fakePrices struct {
	mids map[string]decimal.Decimal
}

func (f *fakePrices) Mid(tokenID string) (decimal.Decimal, bool) {
	mid, ok := f.mids[tokenID]
	return mid, ok
}

func TestAutoCleanupRedeemsWinnersWritesOffLosers(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")
	account.Buy("winner", "c1", "Won market", d("60"), d("0.6"))  // 100 shares
	account.Buy("loser", "c2", "Lost market", d("40"), d("0.4"))  // 100 shares
	account.Buy("open", "c3", "Open market", d("50"), d("0.5"))   // 100 shares

	exec.SetPriceSource(&fakePrices{mids: map[string]decimal.Decimal{
		"winner": d("0.995"),
		"loser":  d("0.005"),
		"open":   d("0.55"),
	}})

	exec.AutoCleanup(context.Background())

	if account.Position("winner") != nil {
		t.Error("winner not redeemed")
	}
	if account.Position("loser") != nil {
		t.Error("loser not written off")
	}
	if account.Position("open") == nil {
		t.Error("open position swept by cleanup")
	}
	// 1000 - 150 spent + 100 par for winner + 0 for loser
	if !account.Balance().Equal(d("950")) {
		t.Errorf("balance = %s, want 950", account.Balance())
	}
	// +40 on the winner, -40 on the loser
	if !account.TotalPnL().IsZero() {
		t.Errorf("pnl = %s, want 0", account.TotalPnL())
	}
}

func TestResetReplacesStateAndRatio(t *testing.T) {
	exec, account := dryRunExecutor(t, "1000", "1")
	account.Buy("tok1", "c1", "m", d("50"), d("0.5"))

	newRatio := d("0.25")
	exec.Reset(d("500"), &newRatio)

	if !account.Balance().Equal(d("500")) {
		t.Errorf("balance = %s, want 500", account.Balance())
	}
	if len(account.Positions()) != 0 {
		t.Error("positions survived reset")
	}
	if !exec.MirrorRatio().Equal(newRatio) {
		t.Errorf("ratio = %s, want 0.25", exec.MirrorRatio())
	}
}

func TestUnknownSideIsAnError(t *testing.T) {
	exec, _ := dryRunExecutor(t, "1000", "1")

	trade := types.TradeActivity{Side: types.Side("SPLIT")}
	if err := exec.Execute(context.Background(), trade); err == nil {
		t.Fatal("expected error for unknown side")
	}
}
