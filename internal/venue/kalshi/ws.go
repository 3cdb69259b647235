package kalshi

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// level is one price/quantity pair of a Kalshi orderbook side.
type level struct {
	Price    int
	Quantity int
}

// book holds one ticker's full depth so deltas can be folded into it;
// only the best level of each side is ever published upstream.
type book struct {
	yes []level // yes-side bids, highest price first
	no  []level // no-side bids, highest price first
}

func (b *book) bestYesAskCents() (price, size uint16) {
	if len(b.no) == 0 {
		return 100, 0
	}
	return uint16(100 - b.no[0].Price), uint16(b.no[0].Quantity)
}

func (b *book) bestNoAskCents() (price, size uint16) {
	if len(b.yes) == 0 {
		return 100, 0
	}
	return uint16(100 - b.yes[0].Price), uint16(b.yes[0].Quantity)
}

// WSFeed implements venue.PriceFeed over Kalshi's orderbook_snapshot /
// orderbook_delta WebSocket channel, converting the NO-side bid book into
// the YES-equivalent ask the rest of the system consumes (100 - price),
// carrying over sdibella's orderbook folding logic.
type WSFeed struct {
	apiKeyID   string
	privateKey *rsa.PrivateKey
	wsURL      string
	logger     *zap.Logger

	connMu sync.RWMutex
	conn   *websocket.Conn

	booksMu sync.Mutex
	books   map[string]*book

	subMu      sync.RWMutex
	subscribed map[string]bool

	seq      atomic.Uint64
	updateCh chan venue.QuoteUpdate
}

// Config configures a new Kalshi WebSocket price feed.
type Config struct {
	APIKeyID   string
	PrivateKey *rsa.PrivateKey
	WSURL      string // e.g. wss://api.elections.kalshi.com/trade-api/ws/v2
	Logger     *zap.Logger
}

// New builds a Kalshi WebSocket feed.
func New(cfg Config) *WSFeed {
	return &WSFeed{
		apiKeyID:   cfg.APIKeyID,
		privateKey: cfg.PrivateKey,
		wsURL:      cfg.WSURL,
		logger:     cfg.Logger,
		books:      make(map[string]*book),
		subscribed: make(map[string]bool),
		updateCh:   make(chan venue.QuoteUpdate, 100000),
	}
}

// Subscribe tracks tickers for subscription on connect and, if already
// connected, sends the subscribe command immediately.
func (w *WSFeed) Subscribe(ctx context.Context, marketIDs []string) error {
	w.subMu.Lock()
	for _, m := range marketIDs {
		w.subscribed[m] = true
	}
	w.subMu.Unlock()

	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()

	if conn == nil {
		return nil
	}
	return w.sendSubscribe(conn, marketIDs)
}

// Run dials the feed and reconnects with a fixed backoff until ctx is
// cancelled, matching the teacher/sdibella reconnect-forever shape.
func (w *WSFeed) Run(ctx context.Context) error {
	for {
		if err := w.connect(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("kalshi-ws-disconnected", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (w *WSFeed) connect(ctx context.Context) error {
	headers, err := AuthHeaders(w.apiKeyID, w.privateKey, "GET", "/trade-api/ws/v2")
	if err != nil {
		return fmt.Errorf("generating ws auth: %w", err)
	}

	httpHeaders := make(map[string][]string, len(headers))
	for k, v := range headers {
		httpHeaders[k] = []string{v}
	}

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, httpHeaders)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	defer func() {
		conn.Close()
		w.connMu.Lock()
		w.conn = nil
		w.connMu.Unlock()
	}()

	if tickers := w.subscribedTickers(); len(tickers) > 0 {
		if err := w.sendSubscribe(conn, tickers); err != nil {
			w.logger.Warn("kalshi-ws-resubscribe-failed", zap.Error(err), zap.Int("tickers", len(tickers)))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		w.handleMessage(msg)
	}
}

func (w *WSFeed) sendSubscribe(conn *websocket.Conn, tickers []string) error {
	cmd := struct {
		ID     int `json:"id"`
		Cmd    string `json:"cmd"`
		Params struct {
			Channels      []string `json:"channels"`
			MarketTickers []string `json:"market_tickers"`
		} `json:"params"`
	}{ID: 1, Cmd: "subscribe"}
	cmd.Params.Channels = []string{"orderbook_delta"}
	cmd.Params.MarketTickers = tickers

	return conn.WriteJSON(cmd)
}

func (w *WSFeed) subscribedTickers() []string {
	w.subMu.RLock()
	defer w.subMu.RUnlock()
	tickers := make([]string, 0, len(w.subscribed))
	for t := range w.subscribed {
		tickers = append(tickers, t)
	}
	return tickers
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

type wsSnapshotMsg struct {
	Ticker string  `json:"market_ticker"`
	Yes    [][]int `json:"yes"`
	No     [][]int `json:"no"`
}

type wsDeltaMsg struct {
	Ticker string `json:"market_ticker"`
	Price  int    `json:"price"`
	Delta  int    `json:"delta"`
	Side   string `json:"side"`
}

func (w *WSFeed) handleMessage(data []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	switch env.Type {
	case "orderbook_snapshot":
		var snap wsSnapshotMsg
		if err := json.Unmarshal(env.Msg, &snap); err != nil {
			w.logger.Warn("bad-orderbook-snapshot", zap.Error(err))
			return
		}
		w.applySnapshot(snap)
	case "orderbook_delta":
		var delta wsDeltaMsg
		if err := json.Unmarshal(env.Msg, &delta); err != nil {
			w.logger.Warn("bad-orderbook-delta", zap.Error(err))
			return
		}
		w.applyDelta(delta)
	}
}

func (w *WSFeed) applySnapshot(snap wsSnapshotMsg) {
	b := &book{}
	for _, l := range snap.Yes {
		if len(l) >= 2 {
			b.yes = append(b.yes, level{Price: l[0], Quantity: l[1]})
		}
	}
	for _, l := range snap.No {
		if len(l) >= 2 {
			b.no = append(b.no, level{Price: l[0], Quantity: l[1]})
		}
	}

	w.booksMu.Lock()
	w.books[snap.Ticker] = b
	w.booksMu.Unlock()

	w.publish(snap.Ticker, b)
}

func (w *WSFeed) applyDelta(delta wsDeltaMsg) {
	w.booksMu.Lock()
	b := w.books[delta.Ticker]
	if b == nil {
		w.booksMu.Unlock()
		return
	}

	levels := &b.yes
	if delta.Side == "no" {
		levels = &b.no
	}

	found := false
	for i, l := range *levels {
		if l.Price == delta.Price {
			found = true
			newQty := l.Quantity + delta.Delta
			if newQty <= 0 {
				*levels = append((*levels)[:i], (*levels)[i+1:]...)
			} else {
				(*levels)[i].Quantity = newQty
			}
			break
		}
	}
	if !found && delta.Delta > 0 {
		*levels = append(*levels, level{Price: delta.Price, Quantity: delta.Delta})
		for i := len(*levels) - 1; i > 0 && (*levels)[i].Price > (*levels)[i-1].Price; i-- {
			(*levels)[i], (*levels)[i-1] = (*levels)[i-1], (*levels)[i]
		}
	}
	w.booksMu.Unlock()

	w.publish(delta.Ticker, b)
}

func (w *WSFeed) publish(ticker string, b *book) {
	yesAsk, yesSize := b.bestYesAskCents()
	noAsk, noSize := b.bestNoAskCents()

	update := venue.QuoteUpdate{
		Venue:       types.VenueKalshi,
		MarketID:    ticker,
		YesAskCents: yesAsk,
		YesSizeCts:  yesSize,
		NoAskCents:  noAsk,
		NoSizeCts:   noSize,
		Seq:         w.seq.Add(1),
		AtMS:        time.Now().UnixMilli(),
	}

	select {
	case w.updateCh <- update:
	default:
		w.logger.Error("CRITICAL-update-channel-full-DROPPING-DATA", zap.String("ticker", ticker))
	}
}

// Updates returns the channel of quote updates.
func (w *WSFeed) Updates() <-chan venue.QuoteUpdate {
	return w.updateCh
}

// Close closes the active connection, if any.
func (w *WSFeed) Close() error {
	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

var _ venue.PriceFeed = (*WSFeed)(nil)
