// Package ingestor supervises one venue.PriceFeed per venue (§4.A),
// folding every accepted quote update into the shared lock-free quote
// store and forwarding it downstream for publication. The forwarded
// snapshot carries no venue, so it is published as price.{market_id}.
package ingestor

import (
	"context"
	"sync"
	"time"

	"github.com/petec4244/arbees/internal/quote"
	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// Feed pairs a venue's PriceFeed with the venue tag its updates carry.
type Feed struct {
	Venue types.Venue
	Feed  venue.PriceFeed
}

// Supervisor runs every registered venue Feed concurrently, applies each
// accepted update to the shared Store, and republishes applied updates
// on Updates() for the transport layer to fan out.
type Supervisor struct {
	feeds    []Feed
	store    *quote.Store
	logger   *zap.Logger
	outCh    chan quote.Snapshot
	restartB time.Duration
}

// Config configures a Supervisor.
type Config struct {
	Feeds  []Feed
	Store  *quote.Store
	Logger *zap.Logger
	// RestartBackoff is how long to wait before restarting a feed whose
	// Run returned (a hard failure, per §4.A's "halt that ingestor until
	// credentials are re-validated" — restart here is a bounded retry,
	// not a hot loop).
	RestartBackoff time.Duration
}

// New builds a Supervisor from cfg.
func New(cfg Config) *Supervisor {
	restartBackoff := cfg.RestartBackoff
	if restartBackoff <= 0 {
		restartBackoff = 5 * time.Second
	}

	return &Supervisor{
		feeds:    cfg.Feeds,
		store:    cfg.Store,
		logger:   cfg.Logger,
		outCh:    make(chan quote.Snapshot, 100000),
		restartB: restartBackoff,
	}
}

// Updates returns the channel of applied, store-consistent snapshots.
func (s *Supervisor) Updates() <-chan quote.Snapshot {
	return s.outCh
}

// Run starts every feed's Run loop and its drain loop, restarting a feed
// with bounded backoff if its Run returns (disconnect exhausted its own
// internal reconnect budget). Blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, f := range s.feeds {
		wg.Add(2)
		go func(f Feed) {
			defer wg.Done()
			s.runFeedForever(ctx, f)
		}(f)
		go func(f Feed) {
			defer wg.Done()
			s.drain(ctx, f)
		}(f)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (s *Supervisor) runFeedForever(ctx context.Context, f Feed) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := f.Feed.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Error("ingestor-feed-halted", zap.String("venue", string(f.Venue)), zap.Error(err))
		}

		select {
		case <-time.After(s.restartB):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) drain(ctx context.Context, f Feed) {
	updates := f.Feed.Updates()

	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			s.apply(upd)
		}
	}
}

func (s *Supervisor) apply(upd venue.QuoteUpdate) {
	snap := quote.Snapshot{
		MarketID:    upd.MarketID,
		YesAskCents: upd.YesAskCents,
		YesSizeCts:  upd.YesSizeCts,
		NoAskCents:  upd.NoAskCents,
		NoSizeCts:   upd.NoSizeCts,
		Seq:         upd.Seq,
	}

	applied := s.store.Apply(string(upd.Venue), upd.MarketID, snap)
	if !applied {
		return
	}

	select {
	case s.outCh <- snap:
	default:
		s.logger.Error("CRITICAL-ingestor-output-channel-full-DROPPING-DATA",
			zap.String("venue", string(upd.Venue)), zap.String("market-id", upd.MarketID))
	}
}
