package watcher

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/mirrorbot/internal/activity"
	"github.com/web3guy0/mirrorbot/internal/config"
	"github.com/web3guy0/mirrorbot/internal/dataapi"
	"github.com/web3guy0/mirrorbot/internal/executor"
	"github.com/web3guy0/mirrorbot/internal/market"
	"github.com/web3guy0/mirrorbot/internal/statefile"
	"github.com/web3guy0/mirrorbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// WATCHER - Target activity polling loop
// ═══════════════════════════════════════════════════════════════════════════════
//
// Polls the data API for each watched wallet, filters out activity we
// have already seen, and hands new trades to the executor in timestamp
// order. Per-target progress survives restarts through a JSON state
// file; the file is mode-specific so a dry-run session never advances
// the live watermark.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	activityFetchLimit = 20
	processedCap       = 100 // per-target dedup ring
	startupRewind      = 60 * time.Second
)

// TargetPollState is the per-wallet progress record.
type TargetPollState struct {
	LastChecked       int64    `json:"lastChecked"` // unix seconds watermark
	ProcessedTxHashes []string `json:"processedTxHashes"`
}

// persisted is the on-disk document shape.
type persisted struct {
	SavedAt int64                       `json:"savedAt"`
	Targets map[string]*TargetPollState `json:"targets"`
}

// Feed registers token IDs with the live price feed.
type Feed interface {
	Watch(tokenIDs ...string)
}

type Watcher struct {
	mu      sync.RWMutex
	cfg     *config.Config
	data    *dataapi.Client
	exec    *executor.Executor
	feed    Feed // optional
	targets map[string]*TargetPollState

	statePath string
	dirty     bool
}

func New(cfg *config.Config, data *dataapi.Client, exec *executor.Executor) *Watcher {
	w := &Watcher{
		cfg:       cfg,
		data:      data,
		exec:      exec,
		targets:   make(map[string]*TargetPollState),
		statePath: cfg.WatcherStateFile(),
	}
	for _, t := range cfg.Targets {
		w.targets[t] = &TargetPollState{}
	}
	return w
}

// SetFeed wires the live price feed so held assets get midpoint coverage.
func (w *Watcher) SetFeed(f Feed) { w.feed = f }

// Targets returns the watched wallet addresses.
func (w *Watcher) Targets() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.targets))
	for t := range w.targets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// AddTarget starts watching a wallet mid-session. The new target's
// watermark starts at now so its history is not replayed.
func (w *Watcher) AddTarget(address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.targets[address]; exists {
		return false
	}
	w.targets[address] = &TargetPollState{LastChecked: time.Now().Unix()}
	w.dirty = true
	log.Info().Str("target", address).Msg("👀 Now watching target")
	return true
}

// RemoveTarget stops watching a wallet.
func (w *Watcher) RemoveTarget(address string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.targets[address]; !exists {
		return false
	}
	delete(w.targets, address)
	w.dirty = true
	log.Info().Str("target", address).Msg("Stopped watching target")
	return true
}

// Run is the main loop. It restores persisted progress, rewinds every
// watermark past now (old state must not trigger a backfill of trades
// the bot slept through), then polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.restoreState()
	w.rewindWatermarks()
	w.scanInitialPositions(ctx)

	log.Info().
		Int("targets", len(w.Targets())).
		Dur("interval", w.cfg.PollInterval).
		Msg("🚀 Watcher started")

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	save := time.NewTicker(w.cfg.StateSaveEvery)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			w.saveState(true)
			log.Info().Msg("Watcher stopped, state flushed")
			return ctx.Err()
		case <-save.C:
			w.saveState(false)
		case <-poll.C:
			w.pollAll(ctx)
			w.exec.AutoCleanup(ctx)
			w.exportSnapshot()
		}
	}
}

func (w *Watcher) pollAll(ctx context.Context) {
	for _, target := range w.Targets() {
		if ctx.Err() != nil {
			return
		}
		if err := w.pollTarget(ctx, target); err != nil {
			log.Warn().Err(err).Str("target", target).Msg("Poll failed")
		}
	}
}

// pollTarget fetches one wallet's recent activity and mirrors anything
// new, oldest first.
func (w *Watcher) pollTarget(ctx context.Context, target string) error {
	raws, err := w.data.Activity(ctx, target, activityFetchLimit)
	if err != nil {
		return err
	}

	w.mu.RLock()
	state, ok := w.targets[target]
	w.mu.RUnlock()
	if !ok {
		return nil // removed while polling
	}

	fresh := make([]types.TradeActivity, 0, len(raws))
	for _, raw := range raws {
		trade, ok := activity.Normalize(raw)
		if !ok {
			continue
		}
		if trade.Timestamp < state.LastChecked {
			continue
		}
		if w.seen(state, trade.TransactionHash) {
			continue
		}
		fresh = append(fresh, trade)
	}
	if len(fresh) == 0 {
		return nil
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].Timestamp < fresh[j].Timestamp
	})

	now := time.Now()
	maxTS := state.LastChecked
	for _, trade := range fresh {
		// Stale signal on an already-settled market: acting on it would
		// fill against the resolution price, not the recorded one.
		if market.IsExpired(trade.Title, now) {
			log.Info().
				Str("market", trade.Title).
				Str("side", string(trade.Side)).
				Msg("⏰ Skipping trade in expired market")
		} else if err := w.exec.Execute(ctx, trade); err != nil {
			log.Error().Err(err).
				Str("tx", trade.TransactionHash).
				Msg("Mirror execution failed")
		} else if w.feed != nil && trade.Side == types.SideBuy {
			w.feed.Watch(trade.Asset)
		}

		// Marked processed either way: retrying a failed mirror later
		// would execute at a price that no longer matches the target's.
		w.markProcessed(state, trade.TransactionHash)
		if trade.Timestamp > maxTS {
			maxTS = trade.Timestamp
		}
	}

	w.mu.Lock()
	state.LastChecked = maxTS
	w.dirty = true
	w.mu.Unlock()

	w.saveState(false)
	return nil
}

func (w *Watcher) seen(state *TargetPollState, txHash string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, h := range state.ProcessedTxHashes {
		if h == txHash {
			return true
		}
	}
	return false
}

func (w *Watcher) markProcessed(state *TargetPollState, txHash string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	state.ProcessedTxHashes = append(state.ProcessedTxHashes, txHash)
	if len(state.ProcessedTxHashes) > processedCap {
		state.ProcessedTxHashes = state.ProcessedTxHashes[len(state.ProcessedTxHashes)-processedCap:]
	}
	w.dirty = true
}

// ═══════════════════════════════════════════════════════════════════════════════
// STARTUP
// ═══════════════════════════════════════════════════════════════════════════════

// rewindWatermarks pushes every target's watermark slightly into the
// future so the first polls only pick up activity that happens after
// this session began.
func (w *Watcher) rewindWatermarks() {
	cutoff := time.Now().Add(startupRewind).Unix()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, state := range w.targets {
		state.LastChecked = cutoff
	}
}

// scanInitialPositions logs what each target already holds (those trades
// predate us and are never mirrored) and registers our own held assets
// with the price feed so cleanup has midpoints from the first cycle.
func (w *Watcher) scanInitialPositions(ctx context.Context) {
	for _, target := range w.Targets() {
		positions, err := w.data.Positions(ctx, target)
		if err != nil {
			log.Debug().Err(err).Str("target", target).Msg("Target position scan failed")
			continue
		}
		log.Info().
			Str("target", target).
			Int("positions", len(positions)).
			Msg("👀 Target holdings at startup (not mirrored)")
	}

	if w.exec.IsDryRun() {
		assets := make([]string, 0)
		for _, pos := range w.exec.Account().Positions() {
			assets = append(assets, pos.Asset)
		}
		if w.feed != nil && len(assets) > 0 {
			w.feed.Watch(assets...)
		}
		return
	}

	positions, err := w.data.Positions(ctx, w.cfg.WalletAddress)
	if err != nil {
		log.Debug().Err(err).Msg("Initial position scan failed")
		return
	}
	assets := make([]string, 0, len(positions))
	for _, pos := range positions {
		assets = append(assets, pos.Asset)
	}
	if w.feed != nil && len(assets) > 0 {
		w.feed.Watch(assets...)
	}
	log.Info().Int("positions", len(positions)).Msg("Initial position scan complete")
}

// ═══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE
// ═══════════════════════════════════════════════════════════════════════════════

func (w *Watcher) restoreState() {
	var doc persisted
	if err := statefile.Read(w.statePath, &doc); err != nil {
		log.Info().Msg("No watcher state file, starting fresh")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	restored := 0
	for addr, state := range doc.Targets {
		if _, watched := w.targets[addr]; watched {
			w.targets[addr] = state
			restored++
		}
	}
	log.Info().Int("targets", restored).Msg("Watcher state restored")
}

// saveState persists progress; when force is false it is skipped unless
// something changed since the last write.
func (w *Watcher) saveState(force bool) {
	w.mu.Lock()
	if !w.dirty && !force {
		w.mu.Unlock()
		return
	}
	doc := persisted{
		SavedAt: time.Now().Unix(),
		Targets: make(map[string]*TargetPollState, len(w.targets)),
	}
	for addr, state := range w.targets {
		cp := *state
		cp.ProcessedTxHashes = append([]string(nil), state.ProcessedTxHashes...)
		doc.Targets[addr] = &cp
	}
	w.dirty = false
	w.mu.Unlock()

	if err := statefile.Write(w.statePath, doc); err != nil {
		log.Warn().Err(err).Msg("Watcher state save failed")
	}
}

// exportSnapshot writes the dashboard document for the watcher side.
func (w *Watcher) exportSnapshot() {
	w.mu.RLock()
	targets := make(map[string]TargetPollState, len(w.targets))
	for addr, state := range w.targets {
		targets[addr] = TargetPollState{
			LastChecked:       state.LastChecked,
			ProcessedTxHashes: append([]string(nil), state.ProcessedTxHashes...),
		}
	}
	w.mu.RUnlock()

	statefile.WriteQuiet(filepath.Join(w.cfg.StateDir, "dashboard-watcher.json"), map[string]any{
		"timestamp":    time.Now().UnixMilli(),
		"pollInterval": w.cfg.PollInterval.String(),
		"mirrorRatio":  w.exec.MirrorRatio(),
		"targets":      targets,
	})
}
