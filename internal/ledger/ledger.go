package ledger

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/mirrorbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LEDGER - Paper-trading account state
// ═══════════════════════════════════════════════════════════════════════════════
//
// Holds cash, open positions and realized P&L for dry-run mode.
// Mutated only by the executor; timers and the Telegram bot read
// through snapshot accessors.
//
// ═══════════════════════════════════════════════════════════════════════════════

// dustEpsilon: positions smaller than this are removed outright.
var dustEpsilon = decimal.NewFromFloat(1e-4)

type Account struct {
	mu        sync.RWMutex
	balance   decimal.Decimal
	positions map[string]*types.Position
	totalPnL  decimal.Decimal
	history   []types.TradeRecord
}

// NewAccount creates an account with the given starting cash.
func NewAccount(initialBalance decimal.Decimal) *Account {
	return &Account{
		balance:   initialBalance,
		positions: make(map[string]*types.Position),
		totalPnL:  decimal.Zero,
	}
}

// Reset atomically replaces the whole account state.
func (a *Account) Reset(balance decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = balance
	a.positions = make(map[string]*types.Position)
	a.totalPnL = decimal.Zero
	a.history = nil
}

// Balance returns available uninvested cash.
func (a *Account) Balance() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balance
}

// TotalPnL returns cumulative realized profit/loss.
func (a *Account) TotalPnL() decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalPnL
}

// Position returns the open position for asset, or nil.
func (a *Account) Position(asset string) *types.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if p, ok := a.positions[asset]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// FindByCondition falls back to a linear scan matching conditionId.
// Redeem and merge events may reference the market rather than the
// specific outcome token.
func (a *Account) FindByCondition(conditionID string) *types.Position {
	if conditionID == "" {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, p := range a.positions {
		if p.ConditionID == conditionID {
			cp := *p
			return &cp
		}
	}
	return nil
}

// Positions returns a snapshot of all open positions.
func (a *Account) Positions() []types.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]types.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, *p)
	}
	return out
}

// LastTrade returns the most recent audit entry, or nil.
func (a *Account) LastTrade() *types.TradeRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.history) == 0 {
		return nil
	}
	cp := a.history[len(a.history)-1]
	return &cp
}

// History returns a copy of the full audit log.
func (a *Account) History() []types.TradeRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]types.TradeRecord, len(a.history))
	copy(out, a.history)
	return out
}

// Buy debits spend from cash and folds the acquired shares into the
// position for asset using a cost-weighted average. Returns the share
// count acquired.
func (a *Account) Buy(asset, conditionID, title string, spend, price decimal.Decimal) decimal.Decimal {
	shares := spend.Div(price)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.balance = a.balance.Sub(spend)

	if existing, ok := a.positions[asset]; ok {
		newTotalCost := existing.TotalCost.Add(spend)
		newSize := existing.Size.Add(shares)
		existing.Size = newSize
		existing.TotalCost = newTotalCost
		existing.AverageEntryPrice = newTotalCost.Div(newSize)
	} else {
		a.positions[asset] = &types.Position{
			Asset:             asset,
			ConditionID:       conditionID,
			Title:             title,
			Size:              shares,
			AverageEntryPrice: price,
			TotalCost:         spend,
		}
	}

	a.history = append(a.history, types.TradeRecord{
		Side:      types.SideBuy,
		Asset:     asset,
		Title:     title,
		Price:     price,
		Shares:    shares,
		Amount:    spend,
		Timestamp: time.Now(),
	})

	return shares
}

// Sell disposes shares at price, credits the proceeds and books realized
// P&L against the position's average entry. The position is deleted when
// its remaining size falls below dust.
func (a *Account) Sell(asset string, shares, price decimal.Decimal) (proceeds, pnl decimal.Decimal, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, exists := a.positions[asset]
	if !exists || !pos.Size.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	if shares.GreaterThan(pos.Size) {
		shares = pos.Size
	}

	proceeds = shares.Mul(price)
	costBasis := shares.Mul(pos.AverageEntryPrice)
	pnl = proceeds.Sub(costBasis)

	pos.Size = pos.Size.Sub(shares)
	pos.TotalCost = pos.TotalCost.Sub(costBasis)
	if pos.Size.LessThan(dustEpsilon) {
		delete(a.positions, asset)
	}

	a.balance = a.balance.Add(proceeds)
	a.totalPnL = a.totalPnL.Add(pnl)

	a.history = append(a.history, types.TradeRecord{
		Side:      types.SideSell,
		Asset:     asset,
		Title:     pos.Title,
		Price:     price,
		Shares:    shares,
		Amount:    proceeds,
		PnL:       pnl,
		Timestamp: time.Now(),
	})

	return proceeds, pnl, true
}

// Redeem converts the whole position to cash at par (1 share = $1 on a
// winning outcome), books P&L against cost basis and deletes it.
func (a *Account) Redeem(asset string) (amount, pnl decimal.Decimal, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, exists := a.positions[asset]
	if !exists || !pos.Size.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}

	amount = pos.Size
	pnl = amount.Sub(pos.TotalCost)
	a.balance = a.balance.Add(amount)
	a.totalPnL = a.totalPnL.Add(pnl)
	delete(a.positions, asset)

	a.history = append(a.history, types.TradeRecord{
		Side:      types.SideRedeem,
		Asset:     asset,
		Title:     pos.Title,
		Price:     decimal.NewFromInt(1),
		Shares:    amount,
		Amount:    amount,
		PnL:       pnl,
		Timestamp: time.Now(),
	})

	return amount, pnl, true
}

// Merge liquidates the whole position at price and deletes it. No P&L is
// attributed: a merge unwinds complementary outcome tokens back into
// collateral rather than closing a directional bet.
func (a *Account) Merge(asset string, price decimal.Decimal) (proceeds decimal.Decimal, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, exists := a.positions[asset]
	if !exists || !pos.Size.IsPositive() {
		return decimal.Zero, false
	}

	proceeds = pos.Size.Mul(price)
	a.balance = a.balance.Add(proceeds)
	delete(a.positions, asset)

	a.history = append(a.history, types.TradeRecord{
		Side:      types.SideMerge,
		Asset:     asset,
		Title:     pos.Title,
		Price:     price,
		Shares:    pos.Size,
		Amount:    proceeds,
		Timestamp: time.Now(),
	})

	return proceeds, true
}
