package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/mirrorbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Mirror trading notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   💰 Trade notifications for every mirrored action
//   📊 Account snapshot on demand (/status, /balance, /positions)
//   👀 Target management (/targets, /watch, /unwatch)
//   🔄 Paper account reset (/reset)
//
// ═══════════════════════════════════════════════════════════════════════════════

// AccountProvider answers account-state queries for display.
type AccountProvider interface {
	IsDryRun() bool
	MirrorRatio() decimal.Decimal
	Balance(ctx context.Context) (decimal.Decimal, error)
	Positions() []types.Position
	TotalPnL() decimal.Decimal
	RecentTrades(limit int) []types.TradeRecord
	Reset(balance decimal.Decimal, ratio *decimal.Decimal)
}

// TargetManager manages the watched wallet set.
type TargetManager interface {
	Targets() []string
	AddTarget(address string) bool
	RemoveTarget(address string) bool
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	account AccountProvider
	targets TargetManager
}

// NewTelegramBot creates the bot from a token and authorized chat ID.
func NewTelegramBot(token string, chatID int64, account AccountProvider, targets TargetManager) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:     api,
		chatID:  chatID,
		stopCh:  make(chan struct{}),
		account: account,
		targets: targets,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyTrade sends an alert for one mirrored action.
func (b *TelegramBot) NotifyTrade(rec types.TradeRecord) {
	var emoji string
	switch rec.Side {
	case types.SideBuy:
		emoji = "🟢"
	case types.SideSell:
		emoji = "🔴"
	case types.SideRedeem:
		emoji = "💰"
	case types.SideMerge:
		emoji = "🔀"
	default:
		emoji = "📌"
	}

	pnlLine := ""
	if rec.Side == types.SideSell || rec.Side == types.SideRedeem {
		sign := "+"
		if rec.PnL.IsNegative() {
			sign = ""
		}
		pnlLine = fmt.Sprintf("\n📈 P&L: *%s$%s*", sign, rec.PnL.StringFixed(2))
	}

	msg := fmt.Sprintf(`%s *MIRRORED %s*

📊 %s
💵 Price: *%s¢*
📦 Amount: *$%s*%s`,
		emoji, rec.Side,
		rec.Title,
		rec.Price.Mul(decimal.NewFromInt(100)).StringFixed(1),
		rec.Amount.StringFixed(2),
		pnlLine,
	)

	b.sendMarkdown(msg)
}

// NotifyStartup sends the boot banner.
func (b *TelegramBot) NotifyStartup() {
	mode := "LIVE"
	if b.account.IsDryRun() {
		mode = "DRY-RUN"
	}

	balanceStr := "N/A"
	if bal, err := b.account.Balance(context.Background()); err == nil {
		balanceStr = "$" + bal.StringFixed(2)
	}

	msg := fmt.Sprintf(`🚀 *MIRRORBOT STARTED*
━━━━━━━━━━━━━━━━━━━━

📊 Mode: *%s*
💰 Balance: *%s*
🪞 Mirror Ratio: *%s*
👀 Targets: *%d*

━━━━━━━━━━━━━━━━━━━━
Use /help for commands`,
		mode, balanceStr,
		b.account.MirrorRatio().String(),
		len(b.targets.Targets()),
	)

	b.sendMarkdown(msg)
}

// NotifyError sends an error alert
func (b *TelegramBot) NotifyError(err error) {
	b.sendMarkdown(fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error()))
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())
	args := strings.Fields(msg.CommandArguments())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "balance":
		b.cmdBalance()
	case "positions":
		b.cmdPositions()
	case "trades":
		b.cmdTrades()
	case "targets":
		b.cmdTargets()
	case "watch":
		b.cmdWatch(args)
	case "unwatch":
		b.cmdUnwatch(args)
	case "reset":
		b.cmdReset(args)
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *MIRRORBOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Bot status
💰 /balance — Account balance
💼 /positions — Open positions
📜 /trades — Last 10 mirrored trades
👀 /targets — Watched wallets
➕ /watch <addr> — Watch a wallet
➖ /unwatch <addr> — Stop watching
🔄 /reset [balance] — Reset paper account
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	mode := "LIVE"
	if b.account.IsDryRun() {
		mode = "DRY-RUN"
	}

	balanceStr := "N/A"
	if bal, err := b.account.Balance(context.Background()); err == nil {
		balanceStr = "$" + bal.StringFixed(2)
	}

	pnl := b.account.TotalPnL()
	sign := "+"
	if pnl.IsNegative() {
		sign = ""
	}

	msg := fmt.Sprintf(`📊 *BOT STATUS*
━━━━━━━━━━━━━━━━━━━━

🟢 RUNNING
📊 Mode: *%s*
💰 Balance: *%s*
📈 Realized P&L: *%s$%s*
🪞 Mirror Ratio: *%s*
👀 Targets: *%d*`,
		mode, balanceStr,
		sign, pnl.StringFixed(2),
		b.account.MirrorRatio().String(),
		len(b.targets.Targets()),
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdBalance() {
	balance, err := b.account.Balance(context.Background())
	if err != nil {
		b.send("❌ Failed to fetch balance")
		return
	}

	msg := fmt.Sprintf(`💰 *ACCOUNT BALANCE*
━━━━━━━━━━━━━━━━━━━━

💵 Available: *$%s*

Use /positions to see open trades`,
		balance.StringFixed(2),
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPositions() {
	positions := b.account.Positions()
	if len(positions) == 0 {
		b.send("📭 No open positions")
		return
	}
	b.sendMarkdown(formatPositions(positions))
}

// formatPositions renders up to ten positions with an overflow trailer.
func formatPositions(positions []types.Position) string {
	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for i, pos := range positions {
		msg += fmt.Sprintf(`🎯 *%s*
📦 %s shares @ %s¢ avg
💵 Cost: $%s

`,
			pos.Title,
			pos.Size.StringFixed(2),
			pos.AverageEntryPrice.Mul(decimal.NewFromInt(100)).StringFixed(1),
			pos.TotalCost.StringFixed(2),
		)

		if i >= 9 {
			if len(positions) > 10 {
				msg += fmt.Sprintf("_... and %d more_", len(positions)-10)
			}
			break
		}
	}

	return msg
}

func (b *TelegramBot) cmdTrades() {
	trades := b.account.RecentTrades(10)
	if len(trades) == 0 {
		b.send("📭 No trade history yet")
		return
	}

	msg := "📜 *LAST 10 TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for _, t := range trades {
		emoji := "📌"
		switch t.Side {
		case types.SideBuy:
			emoji = "🟢"
		case types.SideSell:
			emoji = "🔴"
		case types.SideRedeem:
			emoji = "💰"
		case types.SideMerge:
			emoji = "🔀"
		}

		pnlStr := ""
		if !t.PnL.IsZero() {
			sign := "+"
			if t.PnL.IsNegative() {
				sign = ""
			}
			pnlStr = fmt.Sprintf(" | P&L: %s$%s", sign, t.PnL.StringFixed(2))
		}

		msg += fmt.Sprintf("%s %s $%s @ %s¢%s\n   _%s_\n\n",
			emoji, t.Side,
			t.Amount.StringFixed(2),
			t.Price.Mul(decimal.NewFromInt(100)).StringFixed(1),
			pnlStr,
			t.Timestamp.Format("Jan 2 15:04"),
		)
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdTargets() {
	targets := b.targets.Targets()
	if len(targets) == 0 {
		b.send("📭 No targets watched")
		return
	}

	msg := "👀 *WATCHED TARGETS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, t := range targets {
		msg += fmt.Sprintf("`%s`\n", t)
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdWatch(args []string) {
	if len(args) != 1 {
		b.send("Usage: /watch <wallet address>")
		return
	}
	addr := strings.ToLower(args[0])
	if b.targets.AddTarget(addr) {
		b.send("✅ Now watching " + addr)
	} else {
		b.send("Already watching " + addr)
	}
}

func (b *TelegramBot) cmdUnwatch(args []string) {
	if len(args) != 1 {
		b.send("Usage: /unwatch <wallet address>")
		return
	}
	addr := strings.ToLower(args[0])
	if b.targets.RemoveTarget(addr) {
		b.send("✅ Stopped watching " + addr)
	} else {
		b.send("Not watching " + addr)
	}
}

func (b *TelegramBot) cmdReset(args []string) {
	if !b.account.IsDryRun() {
		b.send("❌ /reset only works in dry-run mode")
		return
	}

	balance := decimal.NewFromInt(1000)
	if len(args) == 1 {
		parsed, err := decimal.NewFromString(args[0])
		if err != nil || !parsed.IsPositive() {
			b.send("Usage: /reset [positive balance]")
			return
		}
		balance = parsed
	}

	b.account.Reset(balance, nil)
	b.send("🔄 Paper account reset to $" + balance.StringFixed(2))
	log.Info().Str("balance", balance.String()).Msg("Paper account reset via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
