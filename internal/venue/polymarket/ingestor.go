// Package polymarket adapts the Polymarket CLOB WebSocket and REST APIs
// to the venue-neutral interfaces in internal/venue. The WebSocket
// dispatch (book/price_change) and reconnecting pool are carried over
// from the teacher's internal/orderbook/manager.go and pkg/websocket,
// generalized to publish into the lock-free quote store instead of an
// RWMutex-guarded map.
package polymarket

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/types"
	"github.com/petec4244/arbees/pkg/websocket"
	"go.uber.org/zap"
)

// Ingestor implements venue.PriceFeed over a Polymarket WebSocket pool.
type Ingestor struct {
	pool     *websocket.Pool
	logger   *zap.Logger
	updateCh chan venue.QuoteUpdate
	seq      atomic.Uint64

	// tokenToMarket maps a Polymarket asset (token) id to the market_id
	// and side it represents, resolved from market metadata at subscribe
	// time so incoming per-token messages can be folded into one Quote.
	tokenToMarket map[string]tokenRef

	// merged tracks the latest known ask/size for both sides of each
	// market, since book/price_change messages arrive per-token and the
	// Quote the rest of the system consumes is per-market.
	mergedMu sync.Mutex
	merged   map[string]venue.QuoteUpdate
}

type tokenRef struct {
	marketID string
	side     types.Side
}

// Config configures a new Ingestor.
type Config struct {
	Pool   *websocket.Pool
	Logger *zap.Logger
}

// New creates a Polymarket price ingestor.
func New(cfg Config) *Ingestor {
	return &Ingestor{
		pool:          cfg.Pool,
		logger:        cfg.Logger,
		updateCh:      make(chan venue.QuoteUpdate, 100000),
		tokenToMarket: make(map[string]tokenRef),
		merged:        make(map[string]venue.QuoteUpdate),
	}
}

// RegisterTokens records which market/side each Polymarket token id
// belongs to, so book/price_change messages (keyed by asset id) can be
// folded into the market-level Quote the rest of the system expects.
func (i *Ingestor) RegisterTokens(marketID string, yesTokenID, noTokenID string) {
	i.tokenToMarket[yesTokenID] = tokenRef{marketID: marketID, side: types.SideYes}
	i.tokenToMarket[noTokenID] = tokenRef{marketID: marketID, side: types.SideNo}
}

// Subscribe subscribes the underlying pool to the given Polymarket token ids.
func (i *Ingestor) Subscribe(ctx context.Context, tokenIDs []string) error {
	return i.pool.Subscribe(ctx, tokenIDs)
}

// Run starts the pool (if not already started) and processes its
// multiplexed message channel until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	if err := i.pool.Start(); err != nil {
		return fmt.Errorf("start websocket pool: %w", err)
	}

	msgChan := i.pool.MessageChan()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}
			i.handleMessage(msg)
		}
	}
}

func (i *Ingestor) handleMessage(msg *types.OrderbookMessage) {
	if msg.EventType != "book" && msg.EventType != "price_change" {
		return
	}

	ref, known := i.tokenToMarket[msg.AssetID]
	if !known {
		i.logger.Debug("ignoring-unregistered-token", zap.String("asset-id", msg.AssetID))
		return
	}

	askPrice, askSize, err := bestAsk(msg.Asks)
	if err != nil {
		i.logger.Debug("orderbook-empty", zap.String("asset-id", msg.AssetID), zap.Error(err))
		return
	}

	priceCents := uint16(askPrice * 100)
	sizeCts := uint16(askSize)

	i.mergedMu.Lock()
	update := i.merged[ref.marketID]
	update.Venue = types.VenuePolymarket
	update.MarketID = ref.marketID
	if ref.side == types.SideYes {
		update.YesAskCents = priceCents
		update.YesSizeCts = sizeCts
	} else {
		update.NoAskCents = priceCents
		update.NoSizeCts = sizeCts
	}
	update.Seq = i.seq.Add(1)
	update.AtMS = time.Now().UnixMilli()
	i.merged[ref.marketID] = update
	i.mergedMu.Unlock()

	select {
	case i.updateCh <- update:
	default:
		i.logger.Error("CRITICAL-update-channel-full-DROPPING-DATA", zap.String("market-id", ref.marketID))
	}
}

func bestAsk(levels []types.PriceLevel) (price, size float64, err error) {
	if len(levels) == 0 {
		return 0, 0, fmt.Errorf("no price levels")
	}

	price, err = strconv.ParseFloat(levels[0].Price, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse price: %w", err)
	}

	size, err = strconv.ParseFloat(levels[0].Size, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse size: %w", err)
	}

	return price, size, nil
}

// Updates returns the channel of quote updates.
func (i *Ingestor) Updates() <-chan venue.QuoteUpdate {
	return i.updateCh
}

// Close stops the underlying pool.
func (i *Ingestor) Close() error {
	return i.pool.Close()
}
