// Package venue defines the venue-neutral contracts the rest of the hot
// path programs against, and the canonical error taxonomy (§7) that
// venue-native errors are classified into at the ingress boundary.
package venue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/petec4244/arbees/pkg/types"
)

// PriceFeed authenticates to a venue's WebSocket and maintains Quote
// state for subscribed markets. Re-subscription on reconnect is the
// implementation's responsibility, not the caller's.
type PriceFeed interface {
	// Subscribe opens (or extends) a subscription for the given markets.
	Subscribe(ctx context.Context, marketIDs []string) error
	// Run connects and streams until ctx is cancelled, reconnecting with
	// bounded backoff on disconnect.
	Run(ctx context.Context) error
	// Updates returns the channel of quote updates this feed publishes.
	Updates() <-chan QuoteUpdate
	Close() error
}

// QuoteUpdate is one Price Ingestor publication: a Quote plus the
// monotonic sequence number and wall-clock timestamp §4.A requires on
// every price.{venue}.{market_id} message.
type QuoteUpdate struct {
	Venue       types.Venue
	MarketID    string
	YesAskCents uint16
	YesSizeCts  uint16
	NoAskCents  uint16
	NoSizeCts   uint16
	Seq         uint64
	AtMS        int64
}

// OrderClient places and queries IOC orders on one venue.
type OrderClient interface {
	// PlaceIOC submits a single immediate-or-cancel order and returns its
	// accepted order id, or an error classified per ClassifyError.
	PlaceIOC(ctx context.Context, req types.ExecutionRequest) (orderID string, err error)
	// OrderStatus polls a previously submitted order once.
	OrderStatus(ctx context.Context, orderID string) (status types.ExecutionStatus, filledQty, avgPrice float64, err error)
	// CancelAll best-effort cancels any resting orders (IOC orders should
	// already have self-expired; this exists for operator cleanup tools).
	CancelAll(ctx context.Context, marketID string) error
}

// BalanceFetcher reports venue-cached balance for the kill-switch/daily
// loss monitor (§4.D).
type BalanceFetcher interface {
	Balance(ctx context.Context) (usd float64, err error)
}

// ErrorKind is one of the eight closed error kinds of §7. It is a kind,
// not a Go type, so venue-native errors are mapped onto it by inspection.
type ErrorKind string

const (
	ErrTransientNetwork ErrorKind = "transient_network"
	ErrRateLimit        ErrorKind = "rate_limit"
	ErrValidation       ErrorKind = "validation"
	ErrAuthentication   ErrorKind = "authentication"
	ErrStaleData        ErrorKind = "stale_data"
	ErrInvariant        ErrorKind = "invariant_violation"
	ErrPartialFill      ErrorKind = "partial_fill"
	ErrReconciliation   ErrorKind = "reconciliation_mismatch"
	ErrUnknown          ErrorKind = "unknown"
)

// ClassifyError maps a venue-native error onto one of the kinds above by
// inspecting its message (ErrUnknown when nothing matches), generalizing the single-venue string-matching
// classifyError of the teacher's executor into the spec's full taxonomy.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return ErrRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "eof") || strings.Contains(msg, "reset by peer") ||
		strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		return ErrTransientNetwork
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") ||
		strings.Contains(msg, "invalid signature") || strings.Contains(msg, "invalid api key"):
		return ErrAuthentication
	case strings.Contains(msg, "not enough balance") || strings.Contains(msg, "insufficient"):
		return ErrValidation
	case strings.Contains(msg, "stale"):
		return ErrStaleData
	default:
		return ErrUnknown
	}
}

// IsTransient reports whether the kind should be retried with backoff
// (transient network and rate limit both retry; only transient network
// also trips the generic circuit breaker, per §7.1/§7.2).
func IsTransient(k ErrorKind) bool {
	return k == ErrTransientNetwork || k == ErrRateLimit
}

// TripsCircuitBreaker reports whether sustained failures of this kind
// should open the generic failure circuit breaker.
func TripsCircuitBreaker(k ErrorKind) bool {
	return k == ErrTransientNetwork
}

var ErrStale = errors.New("venue: stale quote")

// StalenessTTL is the default age after which event/price state is
// considered stale and signal emission is suppressed for that event.
const StalenessTTL = 5 * time.Second
