// Mirrorbot - Copy-trading bot for Polymarket
//
// Watches a set of target wallets through the public data API and
// mirrors their prediction-market activity at a configurable fraction
// of their size:
//
// 1. Poll each target's recent activity every few seconds
// 2. Filter out trades already seen (watermark + tx-hash dedup)
// 3. Scale each new trade by MIRROR_RATIO against available capital
// 4. Apply it: paper ledger in dry-run, CLOB orders + on-chain
//    redemptions in live mode
// 5. Sweep resolved positions the targets never bothered to redeem
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/mirrorbot/bot"
	"github.com/web3guy0/mirrorbot/feeds"
	"github.com/web3guy0/mirrorbot/internal/chain"
	"github.com/web3guy0/mirrorbot/internal/clob"
	"github.com/web3guy0/mirrorbot/internal/config"
	"github.com/web3guy0/mirrorbot/internal/dataapi"
	"github.com/web3guy0/mirrorbot/internal/executor"
	"github.com/web3guy0/mirrorbot/internal/ledger"
	"github.com/web3guy0/mirrorbot/internal/watcher"
	"github.com/web3guy0/mirrorbot/storage"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if len(cfg.Targets) == 0 {
		log.Fatal().Msg("No targets configured - set TARGET_ADDRESSES")
	}

	log.Info().
		Str("version", version).
		Bool("dry_run", cfg.DryRun).
		Strs("targets", cfg.Targets).
		Str("mirror_ratio", cfg.MirrorRatio.String()).
		Msg("🪞 Mirrorbot starting...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ====== CORE COMPONENTS ======

	// 1. Data API client - target activity and position queries
	dataClient := dataapi.NewClient(cfg.DataAPIURL)

	// 2. Paper ledger (authoritative state in dry-run mode)
	account := ledger.NewAccount(cfg.InitialBalance)

	// 3. Executor - sizes and applies mirrored trades
	exec := executor.New(cfg, account)

	if !cfg.DryRun {
		clobClient, err := clob.NewClient(cfg.CLOBURL, clob.Credentials{
			APIKey:     cfg.CLOBApiKey,
			APISecret:  cfg.CLOBApiSecret,
			Passphrase: cfg.CLOBPassphrase,
			PrivateKey: cfg.WalletPrivateKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize CLOB client")
		}
		log.Info().Msg("💳 CLOB client initialized")

		chainClient, err := chain.NewClient(
			cfg.RPCURL,
			cfg.WalletPrivateKey,
			cfg.WalletAddress,
			config.USDCAddress,
			config.CTFAddress,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Polygon RPC")
		}
		defer chainClient.Close()
		log.Info().Msg("⛓️ Polygon RPC connected")

		exec.SetLiveClients(clobClient, chainClient, dataClient)
	}

	// 4. Price feed - live midpoints for resolved-position cleanup
	priceFeed := feeds.NewPriceFeed()
	priceFeed.Start()
	defer priceFeed.Stop()
	exec.SetPriceSource(priceFeed)

	// 5. Trade audit database
	dbPath := cfg.DatabasePath
	if cfg.DatabaseURL != "" {
		dbPath = cfg.DatabaseURL
	}
	db, err := storage.New(dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	exec.SetTradeLogger(db)

	// 6. Watcher - the polling loop
	watch := watcher.New(cfg, dataClient, exec)
	watch.SetFeed(priceFeed)

	// ====== TELEGRAM BOT ======
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegramBot, err := bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, exec, watch)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram bot init failed - notifications disabled")
		} else {
			exec.SetNotifier(telegramBot)
			telegramBot.Start()
			defer telegramBot.Stop()
			telegramBot.NotifyStartup()
		}
	} else {
		log.Info().Msg("Telegram not configured, running headless")
	}

	// ====== SHUTDOWN HANDLING ======
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
		cancel()
	}()

	// ====== STARTUP COMPLETE ======
	log.Info().Msg("✅ All systems online")

	if err := watch.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Watcher exited")
	}

	exec.ExportSnapshot(context.Background())
	log.Info().Msg("👋 Mirrorbot stopped")
}
