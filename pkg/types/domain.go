package types

import "time"

// Venue identifies a supported prediction-market exchange.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
)

// Side identifies the contract side a quote, signal, or order refers to.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// EventKind distinguishes sport events (which use the scoreboard model)
// from other kinds (which delegate to an equivalent probability provider).
type EventKind string

const (
	EventKindSport EventKind = "sport"
	EventKindOther EventKind = "other"
)

// EventState is the lifecycle state of an Event.
type EventState string

const (
	EventScheduled EventState = "scheduled"
	EventLive      EventState = "live"
	EventFinal     EventState = "final"
	EventSuspended EventState = "suspended"
)

// GameState is the latest known scoreboard snapshot for an Event.
type GameState struct {
	Period       int
	ClockSeconds int
	ScoreHome    int
	ScoreAway    int
	Possession   string // entity holding possession, empty if not applicable
	AsOf         time.Time
}

// Event is a real-world outcome being wagered on, identified by EventID.
type Event struct {
	EventID       string
	Kind          EventKind
	EntityHome    string
	EntityAway    string
	ScheduledAt   time.Time
	State         EventState
	Game          GameState
	PregamePrior  float64 // prior win probability for EntityHome, used as fallback
	FinalWinner   string  // set once State == EventFinal
	LastStateAt   time.Time
	ArchiveAfter  time.Time
}

// IsLive reports whether the event should still be actively monitored.
func (e *Event) IsLive() bool {
	return e.State == EventLive || e.State == EventScheduled
}

// EntityMatch binds a venue-native label to a canonical entity with a
// recorded confidence. Low-confidence matches must be excluded by callers.
type EntityMatch struct {
	Venue      Venue
	VenueLabel string
	Entity     string
	Confidence float64
}

// EventLink binds an Event to the Markets that cover its outcome on each
// venue. For a binary event each venue contributes at most one YES/NO pair.
type EventLink struct {
	EventID      string
	VenueMarkets map[Venue]string // venue -> market_id
	Entities     map[Venue]EntityMatch
}

// HasVenue reports whether the link carries a market for the given venue.
func (l *EventLink) HasVenue(v Venue) bool {
	_, ok := l.VenueMarkets[v]
	return ok
}

// BothVenuesLinked reports whether both supported venues are present,
// a precondition for cross-venue arbitrage detection.
func (l *EventLink) BothVenuesLinked() bool {
	return l.HasVenue(VenueKalshi) && l.HasVenue(VenuePolymarket)
}

// SignalKind distinguishes risk-free arbitrage from model-driven edge.
type SignalKind string

const (
	SignalArbitrage SignalKind = "arbitrage"
	SignalEdge      SignalKind = "edge"
)

// SignalLeg is one side of a (possibly two-legged) Signal.
type SignalLeg struct {
	Venue    Venue
	MarketID string
	Side     Side
	Price    float64 // limit price implied by the detected quote, dollars
	Size     float64 // liquidity-bounded size available at Price
}

// Signal is an opportunity detected from (Event, Quote) at an instant,
// not yet risk-validated.
type Signal struct {
	ID         string
	Kind       SignalKind
	EventID    string
	Entity     string // the entity the edge/arb direction refers to (TE1)
	Legs       []SignalLeg
	EdgeBPS    int     // signed edge in basis points, Edge signals only
	ModelProb  float64 // p_home or equivalent, Edge signals only
	MarketProb float64 // market-implied probability compared against ModelProb
	DetectedAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the signal is past its validity window as of now.
// Per spec boundary behavior, detected_at == expires_at is already expired.
func (s *Signal) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// RejectReason enumerates the structured reason codes emitted on gate or
// pipeline rejection. These are not errors; they are recorded outcomes.
type RejectReason string

const (
	ReasonExpired            RejectReason = "expired"
	ReasonDuplicate          RejectReason = "duplicate"
	ReasonCooldown           RejectReason = "cooldown_active"
	ReasonPriceUnsafe        RejectReason = "price_unsafe"
	ReasonPriceDrift         RejectReason = "price_drift"
	ReasonExposureCap        RejectReason = "exposure_cap"
	ReasonAuthorization      RejectReason = "authorization_not_engaged"
	ReasonKillSwitch         RejectReason = "kill_switch_active"
	ReasonRateLimited        RejectReason = "rate_limited"
	ReasonSizeCap            RejectReason = "size_cap"
	ReasonInsufficientFunds  RejectReason = "insufficient_balance"
	ReasonSizeTooSmall       RejectReason = "size_too_small"
)

// ExecutionRequest is a validated intent to place one order.
type ExecutionRequest struct {
	RequestID      string
	IdempotencyKey string // deterministic from signal id + leg index
	CorrelationID  string // links the two legs of an arbitrage pair
	Venue          Venue
	MarketID       string
	Side           Side
	LimitPrice     float64
	Size           float64
	EventID        string
	SignalID       string
	SignalType     SignalKind
	EdgeBPS        int
	CreatedAt      time.Time
}

// ExecutionStatus is the terminal outcome of an ExecutionRequest.
type ExecutionStatus string

const (
	StatusFilled    ExecutionStatus = "filled"
	StatusPartial   ExecutionStatus = "partial"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusRejected  ExecutionStatus = "rejected"
	StatusFailed    ExecutionStatus = "failed"
)

// ExecutionResult is the canonical, venue-neutral outcome of one
// ExecutionRequest. This supersedes the two-outcome-only shape the
// original single-venue executor used internally.
type ExecutionResult struct {
	RequestID       string
	IdempotencyKey  string
	CorrelationID   string
	Venue           Venue
	MarketID        string
	Side            Side
	Status          ExecutionStatus
	OrderID         string
	FilledQty       float64
	AvgPrice        float64
	Fees            float64
	LatencyMS       int64
	RejectionReason RejectReason
	ExecutedAt      time.Time
}

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// ExitTrigger names the reason a Position's exit.request was emitted.
type ExitTrigger string

const (
	ExitFinalSettlement ExitTrigger = "final_settlement"
	ExitStopLoss        ExitTrigger = "stop_loss"
	ExitTakeProfit      ExitTrigger = "take_profit"
	ExitMaxHoldTime     ExitTrigger = "max_hold_time"
	ExitModelReversal   ExitTrigger = "model_reversal"
)

// Position is an opened leg after a fill; ground truth lives exclusively
// with the Position Tracker.
type Position struct {
	PositionID     string
	SignalID       string
	RequestID      string
	EventID        string
	Venue          Venue
	MarketID       string
	Entity         string
	Side           Side
	EntryPrice     float64
	Size           float64
	EntryTime      time.Time
	CurrentMark    float64
	UnrealizedPnL  float64
	Status         PositionStatus
	ClosedAt       time.Time
	RealizedPnL    float64
	ExitTrigger    ExitTrigger
}
