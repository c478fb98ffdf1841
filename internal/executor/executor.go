package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/mirrorbot/internal/config"
	"github.com/web3guy0/mirrorbot/internal/dataapi"
	"github.com/web3guy0/mirrorbot/internal/ledger"
	"github.com/web3guy0/mirrorbot/internal/market"
	"github.com/web3guy0/mirrorbot/internal/retry"
	"github.com/web3guy0/mirrorbot/internal/statefile"
	"github.com/web3guy0/mirrorbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTOR - Mirroring decision engine
// ═══════════════════════════════════════════════════════════════════════════════
//
// Takes one normalized target activity at a time, sizes the mirror by the
// configured ratio against available capital, and applies it: to the
// in-process ledger in dry-run mode, to the CLOB and the chain in live
// mode. The sizing math is identical in both modes.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Dust threshold: a sell that would leave under 1% of the position
// liquidates the whole position instead.
var dustRemainder = decimal.NewFromFloat(0.99)

// OrderPoster places limit orders on the exchange (live mode).
type OrderPoster interface {
	PostOrder(ctx context.Context, tokenID string, price, size decimal.Decimal, side types.Side) (string, error)
}

// Chain is the on-chain collaborator surface (live mode).
type Chain interface {
	USDCBalance(ctx context.Context) (decimal.Decimal, error)
	PositionBalance(ctx context.Context, tokenID string) (decimal.Decimal, error)
	RedeemPositions(ctx context.Context, conditionID string) (string, error)
}

// PriceSource answers "what is this token worth right now".
type PriceSource interface {
	Mid(tokenID string) (decimal.Decimal, bool)
}

// TradeLogger persists executed mirror actions and account snapshots.
type TradeLogger interface {
	LogTrade(rec types.TradeRecord, mode string) error
	SaveSnapshot(mode string, balance, totalPnL decimal.Decimal, positions int) error
}

// TradeNotifier pushes trade alerts (Telegram).
type TradeNotifier interface {
	NotifyTrade(rec types.TradeRecord)
}

// Retry policy for live order submission.
const (
	orderAttempts  = 3
	buyRetryDelay  = 1500 * time.Millisecond
	sellRetryDelay = 1000 * time.Millisecond
)

var (
	buySlippageStart  = decimal.NewFromFloat(1.02) // 2% over target price
	buySlippageStep   = decimal.NewFromFloat(0.03)
	sellSlippageStart = decimal.NewFromFloat(0.98) // 2% under target price
	sellSlippageStep  = decimal.NewFromFloat(0.02)
	maxOrderPrice     = decimal.NewFromFloat(0.999)
	minOrderPrice     = decimal.NewFromFloat(0.001)

	resolvedLow  = decimal.NewFromFloat(0.01)
	resolvedHigh = decimal.NewFromFloat(0.99)
)

type Executor struct {
	mu          sync.RWMutex
	cfg         *config.Config
	dryRun      bool
	mirrorRatio decimal.Decimal

	account *ledger.Account // authoritative in dry-run

	// Live-mode collaborators; nil in dry-run
	clob  OrderPoster
	chain Chain

	// Optional side channels
	prices   PriceSource
	data     *dataapi.Client
	db       TradeLogger
	notifier TradeNotifier

	snapshotFile string
}

// New creates the executor. Mode is fixed for the process lifetime.
func New(cfg *config.Config, account *ledger.Account) *Executor {
	e := &Executor{
		cfg:          cfg,
		dryRun:       cfg.DryRun,
		mirrorRatio:  cfg.MirrorRatio,
		account:      account,
		snapshotFile: cfg.StateDir + "/dashboard-executor.json",
	}

	mode := "LIVE"
	if e.dryRun {
		mode = "DRY-RUN"
	}
	log.Info().
		Str("mode", mode).
		Str("mirror_ratio", e.mirrorRatio.String()).
		Str("balance", "$"+account.Balance().StringFixed(2)).
		Msg("🚀 Executor initialized")

	return e
}

// SetLiveClients wires the exchange and chain collaborators for live mode.
func (e *Executor) SetLiveClients(clob OrderPoster, chain Chain, data *dataapi.Client) {
	e.clob = clob
	e.chain = chain
	e.data = data
}

// SetPriceSource wires the live midpoint feed used by cleanup.
func (e *Executor) SetPriceSource(p PriceSource) { e.prices = p }

// SetTradeLogger wires the database audit log.
func (e *Executor) SetTradeLogger(db TradeLogger) { e.db = db }

// SetNotifier wires the Telegram notifier.
func (e *Executor) SetNotifier(n TradeNotifier) { e.notifier = n }

// IsDryRun reports the fixed operating mode.
func (e *Executor) IsDryRun() bool { return e.dryRun }

// MirrorRatio returns the current multiplier.
func (e *Executor) MirrorRatio() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mirrorRatio
}

// Account exposes the ledger for read-only display.
func (e *Executor) Account() *ledger.Account { return e.account }

// Positions returns a snapshot of open ledger positions.
func (e *Executor) Positions() []types.Position { return e.account.Positions() }

// TotalPnL returns cumulative realized profit/loss.
func (e *Executor) TotalPnL() decimal.Decimal { return e.account.TotalPnL() }

// RecentTrades returns up to limit most recent audit entries, newest first.
func (e *Executor) RecentTrades(limit int) []types.TradeRecord {
	history := e.account.History()
	out := make([]types.TradeRecord, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, history[i])
	}
	return out
}

// Reset atomically replaces the dry-run state; optionally adjusts the ratio.
func (e *Executor) Reset(balance decimal.Decimal, ratio *decimal.Decimal) {
	e.account.Reset(balance)
	if ratio != nil {
		e.mu.Lock()
		e.mirrorRatio = *ratio
		e.mu.Unlock()
	}
	e.ExportSnapshot(context.Background())
}

// Balance returns available cash: the virtual balance in dry-run, the
// on-chain USDC balance in live mode.
func (e *Executor) Balance(ctx context.Context) (decimal.Decimal, error) {
	if e.dryRun {
		return e.account.Balance(), nil
	}
	return e.chain.USDCBalance(ctx)
}

// Execute mirrors one target activity. Errors are returned for logging;
// the caller marks the transaction processed regardless.
func (e *Executor) Execute(ctx context.Context, trade types.TradeActivity) error {
	mode := "LIVE"
	if e.dryRun {
		mode = "DRY-RUN"
	}
	log.Info().
		Str("mode", mode).
		Str("side", string(trade.Side)).
		Str("market", trade.Title).
		Msg("Mirroring target activity")

	var err error
	switch trade.Side {
	case types.SideBuy:
		err = e.executeBuy(ctx, trade)
	case types.SideSell:
		err = e.executeSell(ctx, trade)
	case types.SideRedeem:
		err = e.executeRedeem(ctx, trade)
	case types.SideMerge:
		err = e.executeMerge(ctx, trade)
	default:
		return fmt.Errorf("unknown side %q", trade.Side)
	}
	if err != nil {
		return err
	}

	e.ExportSnapshot(ctx)
	return nil
}

// scaledNotional applies the mirror ratio to the target's USDC notional.
func (e *Executor) scaledNotional(trade types.TradeActivity) decimal.Decimal {
	return trade.Notional().Mul(e.MirrorRatio())
}

// ═══════════════════════════════════════════════════════════════════════════════
// BUY
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Executor) executeBuy(ctx context.Context, trade types.TradeActivity) error {
	if !trade.Price.IsPositive() {
		log.Warn().Str("market", trade.Title).Msg("BUY skipped - no price on record")
		return nil
	}

	cash, err := e.Balance(ctx)
	if err != nil {
		return fmt.Errorf("balance query: %w", err)
	}

	scaled := e.scaledNotional(trade)
	spend := decimal.Min(cash, scaled)

	if scaled.GreaterThan(cash) {
		// Spend-what's-available policy: deploy remaining capital
		// instead of skipping the trade outright.
		log.Warn().
			Str("wanted", "$"+scaled.StringFixed(2)).
			Str("available", "$"+cash.StringFixed(2)).
			Msg("Insufficient funds - buying with available cash")
	}

	if spend.LessThan(e.cfg.MinTradeUSDC) {
		log.Info().
			Str("amount", "$"+spend.StringFixed(2)).
			Str("min", "$"+e.cfg.MinTradeUSDC.StringFixed(2)).
			Msg("BUY skipped - below minimum")
		return nil
	}

	if e.dryRun {
		shares := e.account.Buy(trade.Asset, trade.ConditionID, trade.Title, spend, trade.Price)
		log.Info().
			Str("shares", shares.StringFixed(4)).
			Str("price", trade.Price.StringFixed(4)).
			Str("cost", "$"+spend.StringFixed(2)).
			Msg("📝 DRY-RUN: Would BUY")
		e.recordTrade(e.account.LastTrade())
		return nil
	}

	shares := spend.Div(trade.Price)
	slippage := buySlippageStart
	return retry.Do(ctx, orderAttempts, buyRetryDelay, func(attempt int) error {
		priceLimit := decimal.Min(trade.Price.Mul(slippage), maxOrderPrice)
		slippage = slippage.Add(buySlippageStep)

		log.Info().
			Int("attempt", attempt+1).
			Str("spend", "$"+spend.StringFixed(2)).
			Str("max_price", priceLimit.StringFixed(4)).
			Msg("Posting BUY order")

		_, err := e.clob.PostOrder(ctx, trade.Asset, priceLimit.Round(4), shares.Round(4), types.SideBuy)
		if err == nil {
			e.recordTrade(&types.TradeRecord{
				Side:      types.SideBuy,
				Asset:     trade.Asset,
				Title:     trade.Title,
				Price:     trade.Price,
				Shares:    shares,
				Amount:    spend,
				Timestamp: time.Now(),
			})
		}
		return err
	})
}

// ═══════════════════════════════════════════════════════════════════════════════
// SELL
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Executor) executeSell(ctx context.Context, trade types.TradeActivity) error {
	if !trade.Price.IsPositive() {
		log.Warn().Str("market", trade.Title).Msg("SELL skipped - no price on record")
		return nil
	}

	held, err := e.heldSize(ctx, trade.Asset)
	if err != nil {
		return fmt.Errorf("position query: %w", err)
	}
	if !held.IsPositive() {
		log.Info().Str("market", trade.Title).Msg("SELL skipped - no position held")
		return nil
	}

	scaledShares := e.scaledNotional(trade).Div(trade.Price)
	sellSize := decimal.Min(held, scaledShares)
	// Dust avoidance: a near-total sell takes the whole position.
	if sellSize.GreaterThanOrEqual(held.Mul(dustRemainder)) {
		sellSize = held
	}

	if e.dryRun {
		proceeds, pnl, ok := e.account.Sell(trade.Asset, sellSize, trade.Price)
		if !ok {
			return nil
		}
		log.Info().
			Str("shares", sellSize.StringFixed(4)).
			Str("price", trade.Price.StringFixed(4)).
			Str("proceeds", "$"+proceeds.StringFixed(2)).
			Str("pnl", "$"+pnl.StringFixed(2)).
			Msg("📝 DRY-RUN: Would SELL")
		e.recordTrade(e.account.LastTrade())
		return nil
	}

	slippage := sellSlippageStart
	return retry.Do(ctx, orderAttempts, sellRetryDelay, func(attempt int) error {
		floor := decimal.Max(trade.Price.Mul(slippage), minOrderPrice)
		slippage = slippage.Sub(sellSlippageStep)

		log.Info().
			Int("attempt", attempt+1).
			Str("shares", sellSize.StringFixed(4)).
			Str("floor", floor.StringFixed(4)).
			Msg("Posting SELL order")

		_, err := e.clob.PostOrder(ctx, trade.Asset, floor.Round(4), sellSize.Round(4), types.SideSell)
		if err == nil {
			e.recordTrade(&types.TradeRecord{
				Side:      types.SideSell,
				Asset:     trade.Asset,
				Title:     trade.Title,
				Price:     trade.Price,
				Shares:    sellSize,
				Amount:    sellSize.Mul(trade.Price),
				Timestamp: time.Now(),
			})
		}
		return err
	})
}

// heldSize returns our share count for an asset: ledger in dry-run,
// conditional-token balance on chain in live mode.
func (e *Executor) heldSize(ctx context.Context, asset string) (decimal.Decimal, error) {
	if e.dryRun {
		if pos := e.account.Position(asset); pos != nil {
			return pos.Size, nil
		}
		return decimal.Zero, nil
	}
	return e.chain.PositionBalance(ctx, asset)
}

// ═══════════════════════════════════════════════════════════════════════════════
// REDEEM / MERGE
// ═══════════════════════════════════════════════════════════════════════════════

// lookupPosition finds a ledger position by asset, falling back to the
// market's conditionId: redeem and merge events may reference the market
// rather than the outcome token we hold.
func (e *Executor) lookupPosition(trade types.TradeActivity) *types.Position {
	if pos := e.account.Position(trade.Asset); pos != nil {
		return pos
	}
	return e.account.FindByCondition(trade.ConditionID)
}

func (e *Executor) executeRedeem(ctx context.Context, trade types.TradeActivity) error {
	if e.dryRun {
		pos := e.lookupPosition(trade)
		if pos == nil {
			log.Info().Str("market", trade.Title).Msg("REDEEM detected but no position held")
			return nil
		}
		amount, pnl, ok := e.account.Redeem(pos.Asset)
		if !ok {
			return nil
		}
		log.Info().
			Str("shares", amount.StringFixed(4)).
			Str("pnl", "$"+pnl.StringFixed(2)).
			Msg("📝 DRY-RUN: Would REDEEM winning shares")
		e.recordTrade(e.account.LastTrade())
		return nil
	}

	if trade.ConditionID == "" {
		log.Warn().Str("market", trade.Title).Msg("REDEEM skipped - no conditionId")
		return nil
	}
	tx, err := e.chain.RedeemPositions(ctx, trade.ConditionID)
	if err != nil {
		return fmt.Errorf("redeem %s: %w", trade.ConditionID, err)
	}
	e.recordTrade(&types.TradeRecord{
		Side:      types.SideRedeem,
		Asset:     trade.Asset,
		Title:     trade.Title,
		Price:     decimal.NewFromInt(1),
		Timestamp: time.Now(),
	})
	log.Info().Str("tx", tx).Msg("REDEEM confirmed on-chain")
	return nil
}

func (e *Executor) executeMerge(ctx context.Context, trade types.TradeActivity) error {
	if e.dryRun {
		pos := e.lookupPosition(trade)
		if pos == nil {
			return nil
		}
		price := trade.Price
		if !price.IsPositive() {
			price = decimal.NewFromInt(1) // par for a complete set
		}
		proceeds, ok := e.account.Merge(pos.Asset, price)
		if !ok {
			return nil
		}
		log.Info().
			Str("proceeds", "$"+proceeds.StringFixed(2)).
			Msg("📝 DRY-RUN: Would MERGE position back to collateral")
		e.recordTrade(e.account.LastTrade())
		return nil
	}

	// A live merge is a multi-leg on-chain call that needs full position
	// context we don't track; missing a merge costs less than misfiring it.
	log.Warn().Str("market", trade.Title).Msg("MERGE is monitoring-only in live mode, skipping")
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// CLEANUP - Redeem resolved positions the target never signalled
// ═══════════════════════════════════════════════════════════════════════════════

// AutoCleanup sweeps held positions whose markets have resolved (price
// pinned at 0 or 1): winners are redeemed, losers written off.
func (e *Executor) AutoCleanup(ctx context.Context) {
	if e.dryRun {
		e.cleanupLedger()
		return
	}
	e.cleanupLive(ctx)
}

func (e *Executor) cleanupLedger() {
	if e.prices == nil {
		return
	}
	now := time.Now()
	for _, pos := range e.account.Positions() {
		price, ok := e.prices.Mid(pos.Asset)
		if !ok {
			// No quote yet. A position whose market title says it closed
			// is stale; flag it until a midpoint settles the outcome.
			if market.IsExpired(pos.Title, now) {
				log.Warn().Str("market", pos.Title).Msg("🧹 Held market has closed, awaiting settlement price")
			}
			continue
		}

		switch {
		case price.GreaterThanOrEqual(resolvedHigh):
			if amount, pnl, ok := e.account.Redeem(pos.Asset); ok {
				log.Info().
					Str("market", pos.Title).
					Str("amount", "$"+amount.StringFixed(2)).
					Str("pnl", "$"+pnl.StringFixed(2)).
					Msg("🧹 Cleanup: redeemed resolved winner")
				e.recordTrade(e.account.LastTrade())
			}
		case price.LessThanOrEqual(resolvedLow):
			if _, pnl, ok := e.account.Sell(pos.Asset, pos.Size, decimal.Zero); ok {
				log.Info().
					Str("market", pos.Title).
					Str("pnl", "$"+pnl.StringFixed(2)).
					Msg("🧹 Cleanup: wrote off resolved loser")
				e.recordTrade(e.account.LastTrade())
			}
		}
	}
	e.ExportSnapshot(context.Background())
}

func (e *Executor) cleanupLive(ctx context.Context) {
	if e.data == nil {
		return
	}
	positions, err := e.data.Positions(ctx, e.cfg.WalletAddress)
	if err != nil {
		log.Debug().Err(err).Msg("Cleanup: positions query failed")
		return
	}

	for _, pos := range positions {
		price := pos.Price()
		if price.GreaterThan(resolvedLow) && price.LessThan(resolvedHigh) {
			continue
		}
		conditionID := pos.ConditionID
		if conditionID == "" {
			continue
		}
		log.Info().Str("market", pos.Title).Str("price", price.StringFixed(2)).Msg("🧹 Cleanup: resolved position found")
		if _, err := e.chain.RedeemPositions(ctx, conditionID); err != nil {
			log.Warn().Err(err).Str("condition", conditionID).Msg("Cleanup redeem failed")
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIDE CHANNELS
// ═══════════════════════════════════════════════════════════════════════════════

func (e *Executor) recordTrade(rec *types.TradeRecord) {
	if rec == nil {
		return
	}
	if e.db != nil {
		mode := "live"
		if e.dryRun {
			mode = "dry-run"
		}
		if err := e.db.LogTrade(*rec, mode); err != nil {
			log.Warn().Err(err).Msg("Trade log write failed")
		}
	}
	if e.notifier != nil {
		e.notifier.NotifyTrade(*rec)
	}
}

// snapshot is the dashboard document shape.
type snapshot struct {
	Timestamp   int64              `json:"timestamp"`
	Mode        string             `json:"mode"`
	Cash        decimal.Decimal    `json:"cash"`
	TotalPnL    decimal.Decimal    `json:"totalPnL"`
	MirrorRatio decimal.Decimal    `json:"mirrorRatio"`
	Positions   []types.Position   `json:"positions"`
	LastTrade   *types.TradeRecord `json:"lastTrade"`
}

// ExportSnapshot writes the dashboard document. Best-effort: failures
// never reach the mirroring path.
func (e *Executor) ExportSnapshot(ctx context.Context) {
	mode := "LIVE"
	if e.dryRun {
		mode = "DRY-RUN"
	}

	cash, err := e.Balance(ctx)
	if err != nil {
		cash = decimal.Zero
	}

	positions := e.account.Positions()
	statefile.WriteQuiet(e.snapshotFile, snapshot{
		Timestamp:   time.Now().UnixMilli(),
		Mode:        mode,
		Cash:        cash,
		TotalPnL:    e.account.TotalPnL(),
		MirrorRatio: e.MirrorRatio(),
		Positions:   positions,
		LastTrade:   e.account.LastTrade(),
	})

	if e.db != nil {
		if err := e.db.SaveSnapshot(strings.ToLower(mode), cash, e.account.TotalPnL(), len(positions)); err != nil {
			log.Debug().Err(err).Msg("Snapshot persist failed")
		}
	}
}
