package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Polygon mainnet contracts Polymarket settles against.
const (
	USDCAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	CTFAddress  = "0x4D97DCd97eC945f40cF65F87097CCe65Ea957C55"
)

// Config holds all configuration for the bot.
// Built once at startup and passed by reference; no ambient globals.
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// Mirroring
	Targets        []string        // wallet addresses to mirror
	MirrorRatio    decimal.Decimal // multiplier on target notional
	InitialBalance decimal.Decimal // dry-run starting cash
	MinTradeUSDC   decimal.Decimal // buys below this are skipped
	PollInterval   time.Duration
	StateSaveEvery time.Duration

	// Endpoints
	DataAPIURL string
	CLOBURL    string
	RPCURL     string

	// CLOB credentials
	CLOBApiKey     string
	CLOBApiSecret  string
	CLOBPassphrase string

	// Wallet
	WalletPrivateKey string
	WalletAddress    string

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Persistence
	DatabasePath string
	DatabaseURL  string
	StateDir     string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	dryRun := getEnvBool("DRY_RUN", true)

	// The live CLOB rejects orders under $1; the paper ledger has no such
	// floor, so the default threshold differs by mode. MIN_TRADE_USDC
	// overrides both.
	minTrade := decimal.NewFromFloat(1.0)
	if dryRun {
		minTrade = decimal.NewFromFloat(0.01)
	}

	cfg := &Config{
		DryRun: dryRun,
		Debug:  getEnvBool("DEBUG", false),

		Targets:        splitTargets(os.Getenv("TARGET_ADDRESSES")),
		MirrorRatio:    getEnvDecimal("MIRROR_RATIO", decimal.NewFromFloat(1.0)),
		InitialBalance: getEnvDecimal("DRY_RUN_WALLET_BALANCE", decimal.NewFromFloat(1000)),
		MinTradeUSDC:   getEnvDecimal("MIN_TRADE_USDC", minTrade),
		PollInterval:   time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		StateSaveEvery: time.Duration(getEnvInt("STATE_SAVE_SECONDS", 30)) * time.Second,

		DataAPIURL: getEnv("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		CLOBURL:    getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		RPCURL:     getEnv("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		CLOBApiKey:     os.Getenv("CLOB_API_KEY"),
		CLOBApiSecret:  os.Getenv("CLOB_API_SECRET"),
		CLOBPassphrase: os.Getenv("CLOB_PASSPHRASE"),

		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),
		WalletAddress:    os.Getenv("WALLET_ADDRESS"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabasePath: getEnv("DATABASE_PATH", "data/mirrorbot.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     getEnv("STATE_DIR", "."),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if !cfg.DryRun {
		if cfg.WalletPrivateKey == "" {
			return nil, fmt.Errorf("WALLET_PRIVATE_KEY is required in live mode")
		}
		if cfg.WalletAddress == "" {
			return nil, fmt.Errorf("WALLET_ADDRESS is required in live mode")
		}
	}

	if cfg.MirrorRatio.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("MIRROR_RATIO must be positive, got %s", cfg.MirrorRatio)
	}

	return cfg, nil
}

// WatcherStateFile is the per-mode dedup state path: dry-run and live
// runs must never share watermarks.
func (c *Config) WatcherStateFile() string {
	name := ".watcher-state.json"
	if c.DryRun {
		name = ".watcher-state-dryrun.json"
	}
	return c.StateDir + "/" + name
}

func splitTargets(raw string) []string {
	var targets []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			targets = append(targets, t)
		}
	}
	return targets
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
