package watcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/mirrorbot/internal/config"
	"github.com/web3guy0/mirrorbot/internal/dataapi"
	"github.com/web3guy0/mirrorbot/internal/executor"
	"github.com/web3guy0/mirrorbot/internal/ledger"
	"github.com/web3guy0/mirrorbot/internal/statefile"
)

const testTarget = "0xtarget"

// activityServer serves a swappable canned /activity response.
type activityServer struct {
	mu   sync.Mutex
	body string
}

func (s *activityServer) set(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
}

func (s *activityServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, s.body)
}

func newTestWatcher(t *testing.T, srvURL string) (*Watcher, *ledger.Account) {
	t.Helper()
	cfg := &config.Config{
		DryRun:         true,
		Targets:        []string{testTarget},
		MirrorRatio:    decimal.NewFromInt(1),
		MinTradeUSDC:   decimal.NewFromFloat(0.01),
		PollInterval:   time.Second,
		StateSaveEvery: time.Minute,
		StateDir:       t.TempDir(),
	}
	account := ledger.NewAccount(decimal.NewFromInt(1000))
	exec := executor.New(cfg, account)
	return New(cfg, dataapi.NewClient(srvURL), exec), account
}

func buyRecord(hash string, ts int64, usdc string) string {
	return fmt.Sprintf(`{"transactionHash":%q,"timestamp":%d,"type":"TRADE","side":"BUY","asset":"tok-%s","conditionId":"c1","price":"0.5","size":"10","usdcSize":%q,"title":"Test market"}`,
		hash, ts, hash, usdc)
}

func TestPollMirrorsNewActivityOnce(t *testing.T) {
	ts := time.Now().Unix()
	srv := &activityServer{}
	srv.set("[" + buyRecord("a", ts, "10") + "," + buyRecord("b", ts+1, "20") + "]")
	server := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer server.Close()

	w, account := newTestWatcher(t, server.URL)

	if err := w.pollTarget(context.Background(), testTarget); err != nil {
		t.Fatal(err)
	}
	if got := len(account.History()); got != 2 {
		t.Fatalf("history after first poll = %d, want 2", got)
	}

	// Same feed again: nothing new may execute.
	if err := w.pollTarget(context.Background(), testTarget); err != nil {
		t.Fatal(err)
	}
	if got := len(account.History()); got != 2 {
		t.Errorf("history after repeat poll = %d, want 2 (dedup)", got)
	}
}

func TestPollExecutesOldestFirst(t *testing.T) {
	ts := time.Now().Unix()
	srv := &activityServer{}
	// Feed is newest-first; execution must be oldest-first.
	srv.set("[" + buyRecord("late", ts+10, "20") + "," + buyRecord("early", ts, "10") + "]")
	server := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer server.Close()

	w, account := newTestWatcher(t, server.URL)

	if err := w.pollTarget(context.Background(), testTarget); err != nil {
		t.Fatal(err)
	}

	history := account.History()
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}
	if history[0].Asset != "tok-early" || history[1].Asset != "tok-late" {
		t.Errorf("execution order = [%s, %s], want [tok-early, tok-late]",
			history[0].Asset, history[1].Asset)
	}
}

func TestPollAdvancesWatermark(t *testing.T) {
	ts := time.Now().Unix()
	srv := &activityServer{}
	srv.set("[" + buyRecord("a", ts+100, "10") + "]")
	server := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer server.Close()

	w, account := newTestWatcher(t, server.URL)

	if err := w.pollTarget(context.Background(), testTarget); err != nil {
		t.Fatal(err)
	}
	if got := w.targets[testTarget].LastChecked; got != ts+100 {
		t.Fatalf("watermark = %d, want %d", got, ts+100)
	}

	// An older record with a fresh hash must now be ignored.
	srv.set("[" + buyRecord("stale", ts+50, "10") + "]")
	if err := w.pollTarget(context.Background(), testTarget); err != nil {
		t.Fatal(err)
	}
	if got := len(account.History()); got != 1 {
		t.Errorf("history = %d, want 1 (record behind watermark executed)", got)
	}
}

func TestPollSkipsExpiredMarkets(t *testing.T) {
	ts := time.Now().Unix()
	srv := &activityServer{}
	// A January 1 afternoon window is closed for the rest of the year.
	expired := fmt.Sprintf(`{"transactionHash":"exp","timestamp":%d,"type":"TRADE","side":"BUY","asset":"tok-exp","conditionId":"c1","price":"0.5","size":"10","usdcSize":"10","title":"Bitcoin Up or Down - January 1, 2PM-3PM ET"}`, ts)
	srv.set("[" + expired + "]")
	server := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer server.Close()

	w, account := newTestWatcher(t, server.URL)

	if err := w.pollTarget(context.Background(), testTarget); err != nil {
		t.Fatal(err)
	}

	if got := len(account.History()); got != 0 {
		t.Errorf("history = %d, want 0 (expired market mirrored)", got)
	}
	// The skipped trade still counts as processed.
	if !w.seen(w.targets[testTarget], "exp") {
		t.Error("expired trade not marked processed")
	}
}

// recordingFeed captures Watch registrations.
type recordingFeed struct {
	mu     sync.Mutex
	assets []string
}

func (f *recordingFeed) Watch(tokenIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, tokenIDs...)
}

func TestPollRegistersBoughtAssetsWithFeed(t *testing.T) {
	ts := time.Now().Unix()
	srv := &activityServer{}
	sell := fmt.Sprintf(`{"transactionHash":"s","timestamp":%d,"type":"TRADE","side":"SELL","asset":"tok-held","conditionId":"c1","price":"0.5","size":"10","usdcSize":"5","title":"Test market"}`, ts)
	srv.set("[" + buyRecord("a", ts+1, "10") + "," + sell + "]")
	server := httptest.NewServer(http.HandlerFunc(srv.handler))
	defer server.Close()

	w, _ := newTestWatcher(t, server.URL)
	feed := &recordingFeed{}
	w.SetFeed(feed)

	if err := w.pollTarget(context.Background(), testTarget); err != nil {
		t.Fatal(err)
	}

	// Only the buy needs midpoint coverage, and only once.
	feed.mu.Lock()
	defer feed.mu.Unlock()
	if len(feed.assets) != 1 || feed.assets[0] != "tok-a" {
		t.Errorf("feed registrations = %v, want [tok-a]", feed.assets)
	}
}

func TestProcessedRingIsCapped(t *testing.T) {
	w, _ := newTestWatcher(t, "http://unused.invalid")
	state := w.targets[testTarget]

	for i := 0; i < processedCap+50; i++ {
		w.markProcessed(state, fmt.Sprintf("0x%d", i))
	}

	if got := len(state.ProcessedTxHashes); got != processedCap {
		t.Fatalf("ring size = %d, want %d", got, processedCap)
	}
	// Oldest entries dropped, newest kept.
	if w.seen(state, "0x0") {
		t.Error("oldest hash survived the cap")
	}
	if !w.seen(state, fmt.Sprintf("0x%d", processedCap+49)) {
		t.Error("newest hash missing")
	}
}

func TestAddRemoveTarget(t *testing.T) {
	w, _ := newTestWatcher(t, "http://unused.invalid")

	if !w.AddTarget("0xnew") {
		t.Fatal("AddTarget rejected a new address")
	}
	if w.AddTarget("0xnew") {
		t.Error("AddTarget accepted a duplicate")
	}
	if len(w.Targets()) != 2 {
		t.Fatalf("targets = %v", w.Targets())
	}

	// A mid-session target starts at now, not at zero.
	if w.targets["0xnew"].LastChecked == 0 {
		t.Error("new target watermark not initialized")
	}

	if !w.RemoveTarget("0xnew") {
		t.Fatal("RemoveTarget failed")
	}
	if w.RemoveTarget("0xnew") {
		t.Error("RemoveTarget succeeded twice")
	}
}

func TestStateRoundTrip(t *testing.T) {
	w, _ := newTestWatcher(t, "http://unused.invalid")
	state := w.targets[testTarget]
	state.LastChecked = 1700000000
	w.markProcessed(state, "0xabc")

	w.saveState(true)

	// A second watcher with the same config restores the progress.
	w2 := New(w.cfg, dataapi.NewClient("http://unused.invalid"), w.exec)
	w2.restoreState()

	restored := w2.targets[testTarget]
	if restored.LastChecked != 1700000000 {
		t.Errorf("LastChecked = %d, want 1700000000", restored.LastChecked)
	}
	if !w2.seen(restored, "0xabc") {
		t.Error("processed hash lost in round trip")
	}
}

func TestRestoreIgnoresUnwatchedTargets(t *testing.T) {
	w, _ := newTestWatcher(t, "http://unused.invalid")

	doc := persisted{
		SavedAt: time.Now().Unix(),
		Targets: map[string]*TargetPollState{
			"0xformer": {LastChecked: 1700000000},
		},
	}
	if err := statefile.Write(w.statePath, doc); err != nil {
		t.Fatal(err)
	}

	w.restoreState()
	if _, watched := w.targets["0xformer"]; watched {
		t.Error("restore resurrected a target that is no longer configured")
	}
}

func TestRewindWatermarks(t *testing.T) {
	w, _ := newTestWatcher(t, "http://unused.invalid")
	w.targets[testTarget].LastChecked = 1000 // ancient state

	before := time.Now().Unix()
	w.rewindWatermarks()

	got := w.targets[testTarget].LastChecked
	if got < before {
		t.Errorf("watermark = %d, want >= %d (history must not replay)", got, before)
	}
}
