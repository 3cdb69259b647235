// Package orchestrator stands in for the external assignment control
// plane described in the system overview: it is the one piece of that
// boundary this repo still has to run standalone, so Event Monitor
// shards have something to assign/release against. It watches a
// JSON file of event-to-market links and diffs it against the
// previously seen set on a fixed poll cadence, notifying an assign for
// each new or changed link and a release for each removed one.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/petec4244/arbees/pkg/cache"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// Poller discovers event/market link assignments by polling a
// JSON-encoded file on a fixed interval, notifying Assign/Release for
// links added or removed since the last poll.
type Poller struct {
	linksPath    string
	pollInterval time.Duration
	cache        cache.Cache
	logger       *zap.Logger

	mu      sync.RWMutex
	known   map[string]*types.EventLink
	assign  chan *types.EventLink
	release chan string
}

// Config holds Poller construction parameters.
type Config struct {
	LinksPath    string
	PollInterval time.Duration
	Cache        cache.Cache // optional; backs GetLink lookups
	Logger       *zap.Logger
}

// New creates a Poller. If cfg.LinksPath is empty the poller becomes a
// no-op source: Run emits no links and blocks until ctx is cancelled,
// which is the expected shape for a deployment where assignment
// arrives over the orchestrator.{assign|release} topic instead of a
// local file (not wired in this repo, since the control plane is an
// external collaborator).
func New(cfg Config) *Poller {
	return &Poller{
		linksPath:    cfg.LinksPath,
		pollInterval: cfg.PollInterval,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
		known:        make(map[string]*types.EventLink),
		assign:       make(chan *types.EventLink, 64),
		release:      make(chan string, 64),
	}
}

// Assignments returns newly discovered (or changed) event links.
func (p *Poller) Assignments() <-chan *types.EventLink { return p.assign }

// Releases returns event ids removed from the links file since the
// last poll.
func (p *Poller) Releases() <-chan string { return p.release }

// Run polls the links file until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if p.linksPath == "" {
		p.logger.Info("orchestrator-poller-disabled-no-links-path")
		<-ctx.Done()
		return ctx.Err()
	}

	p.logger.Info("orchestrator-poller-starting",
		zap.String("links-path", p.linksPath),
		zap.Duration("poll-interval", p.pollInterval))

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	if err := p.poll(); err != nil {
		p.logger.Error("initial-links-poll-failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(); err != nil {
				p.logger.Error("links-poll-failed", zap.Error(err))
			}
		}
	}
}

// poll reads the links file and diffs it against the known set,
// emitting Assign for new or changed links and Release for links no
// longer present.
func (p *Poller) poll() error {
	raw, err := os.ReadFile(p.linksPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read links file: %w", err)
	}

	var links []*types.EventLink
	if err := json.Unmarshal(raw, &links); err != nil {
		return fmt.Errorf("decode links file: %w", err)
	}

	current := make(map[string]*types.EventLink, len(links))
	for _, link := range links {
		current[link.EventID] = link
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for eventID, link := range current {
		prior, seen := p.known[eventID]
		if seen && linksEqual(prior, link) {
			continue
		}
		p.known[eventID] = link
		p.cacheLink(link)
		select {
		case p.assign <- link:
		default:
			p.logger.Warn("orchestrator-assign-channel-full", zap.String("event-id", eventID))
		}
	}

	for eventID := range p.known {
		if _, stillPresent := current[eventID]; !stillPresent {
			delete(p.known, eventID)
			select {
			case p.release <- eventID:
			default:
				p.logger.Warn("orchestrator-release-channel-full", zap.String("event-id", eventID))
			}
		}
	}

	return nil
}

func linksEqual(a, b *types.EventLink) bool {
	if len(a.VenueMarkets) != len(b.VenueMarkets) {
		return false
	}
	for venue, marketID := range a.VenueMarkets {
		if b.VenueMarkets[venue] != marketID {
			return false
		}
	}
	return true
}

func (p *Poller) cacheLink(link *types.EventLink) {
	if p.cache == nil {
		return
	}
	const cacheTTL = 24 * time.Hour
	if ok := p.cache.Set(link.EventID, link, cacheTTL); !ok {
		p.logger.Warn("failed-to-cache-event-link", zap.String("event-id", link.EventID))
	}
}

// GetLink returns the cached link for eventID, or nil if absent.
func (p *Poller) GetLink(eventID string) *types.EventLink {
	if p.cache != nil {
		if v, found := p.cache.Get(eventID); found {
			if link, ok := v.(*types.EventLink); ok {
				return link
			}
		}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.known[eventID]
}

// Links returns every currently-known event link, for operator tooling.
func (p *Poller) Links() []*types.EventLink {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*types.EventLink, 0, len(p.known))
	for _, link := range p.known {
		out = append(out, link)
	}
	return out
}
