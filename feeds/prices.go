package feeds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRICE FEED - Polymarket market-channel WebSocket
// ═══════════════════════════════════════════════════════════════════════════════
//
// Keeps live midpoints for the outcome tokens we hold. The cleanup
// routine uses these to spot resolved markets (price pinned at 0 or 1)
// without hammering the HTTP API.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	marketWSURL    = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
)

type PriceFeed struct {
	mu sync.RWMutex

	wsURL     string
	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	// Tokens we want quotes for
	watched map[string]struct{}

	// Latest midpoint per token
	mids map[string]decimal.Decimal
}

// NewPriceFeed creates a feed instance.
func NewPriceFeed() *PriceFeed {
	return &PriceFeed{
		wsURL:   marketWSURL,
		stopCh:  make(chan struct{}),
		watched: make(map[string]struct{}),
		mids:    make(map[string]decimal.Decimal),
	}
}

// Start connects and begins processing.
func (f *PriceFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Msg("📡 Price feed started")
}

// Stop closes the connection.
func (f *PriceFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	if f.conn != nil {
		f.conn.Close()
	}
}

// Watch adds tokens to the subscription set. Already-watched tokens are
// ignored; new ones are subscribed on the live connection when possible.
func (f *PriceFeed) Watch(tokenIDs ...string) {
	f.mu.Lock()
	var fresh []string
	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		if _, ok := f.watched[id]; !ok {
			f.watched[id] = struct{}{}
			fresh = append(fresh, id)
		}
	}
	conn := f.conn
	connected := f.connected
	f.mu.Unlock()

	if len(fresh) > 0 && connected && conn != nil {
		f.sendSubscribe(conn, fresh)
	}
}

// Mid returns the latest midpoint for a token; ok is false when no quote
// has arrived yet.
func (f *PriceFeed) Mid(tokenID string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	mid, ok := f.mids[tokenID]
	return mid, ok
}

func (f *PriceFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Warn().Err(err).Msg("Price feed connect failed, retrying")
			select {
			case <-f.stopCh:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		f.readLoop()

		f.mu.Lock()
		f.connected = false
		f.mu.Unlock()

		select {
		case <-f.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *PriceFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	tokens := make([]string, 0, len(f.watched))
	for id := range f.watched {
		tokens = append(tokens, id)
	}
	f.mu.Unlock()

	if len(tokens) > 0 {
		f.sendSubscribe(conn, tokens)
	}

	go f.pingLoop(conn)
	return nil
}

func (f *PriceFeed) sendSubscribe(conn *websocket.Conn, tokens []string) {
	sub := map[string]any{
		"type":       "market",
		"assets_ids": tokens,
	}
	if err := conn.WriteJSON(sub); err != nil {
		log.Warn().Err(err).Msg("Price feed subscribe failed")
	}
}

func (f *PriceFeed) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type bookEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Bids      []struct {
		Price string `json:"price"`
	} `json:"bids"`
	Asks []struct {
		Price string `json:"price"`
	} `json:"asks"`
}

func (f *PriceFeed) readLoop() {
	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Msg("Price feed read error")
			return
		}

		// The market channel delivers arrays of events
		var events []bookEvent
		if err := json.Unmarshal(msg, &events); err != nil {
			var single bookEvent
			if err := json.Unmarshal(msg, &single); err != nil {
				continue
			}
			events = []bookEvent{single}
		}

		for _, ev := range events {
			if ev.EventType != "book" || ev.AssetID == "" {
				continue
			}
			f.updateMid(ev)
		}
	}
}

func (f *PriceFeed) updateMid(ev bookEvent) {
	var bestBid, bestAsk decimal.Decimal
	// Bids arrive ascending, asks descending: best levels are last
	if n := len(ev.Bids); n > 0 {
		bestBid, _ = decimal.NewFromString(ev.Bids[n-1].Price)
	}
	if n := len(ev.Asks); n > 0 {
		bestAsk, _ = decimal.NewFromString(ev.Asks[n-1].Price)
	}

	var mid decimal.Decimal
	switch {
	case bestBid.IsPositive() && bestAsk.IsPositive():
		mid = bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
	case bestBid.IsPositive():
		mid = bestBid
	case bestAsk.IsPositive():
		mid = bestAsk
	default:
		return
	}

	f.mu.Lock()
	f.mids[ev.AssetID] = mid
	f.mu.Unlock()
}
