package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/petec4244/arbees/internal/quote"
	"go.uber.org/zap"
)

// OrderbookHandler serves the best-ask quote state venue feeds have
// applied into the quote store, venue-neutral in place of the
// Gamma-slug-keyed orderbook API this was adapted from.
type OrderbookHandler struct {
	quotes *quote.Store
	logger *zap.Logger
}

// NewOrderbookHandler creates a new quote handler.
func NewOrderbookHandler(quotes *quote.Store, logger *zap.Logger) *OrderbookHandler {
	return &OrderbookHandler{
		quotes: quotes,
		logger: logger,
	}
}

// QuoteResponse mirrors a single quote.Snapshot over the wire.
type QuoteResponse struct {
	Venue       string `json:"venue"`
	MarketID    string `json:"market_id"`
	YesAskCents uint16 `json:"yes_ask_cents"`
	YesSizeCts  uint16 `json:"yes_size_contracts"`
	NoAskCents  uint16 `json:"no_ask_cents"`
	NoSizeCts   uint16 `json:"no_size_contracts"`
	Seq         uint64 `json:"seq"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleQuote handles GET /api/quote?venue=<venue>&market_id=<id>.
func (h *OrderbookHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	venue := r.URL.Query().Get("venue")
	marketID := r.URL.Query().Get("market_id")
	if venue == "" || marketID == "" {
		h.writeError(w, "missing required query parameters: venue, market_id", http.StatusBadRequest)
		return
	}

	snap, found := h.quotes.Get(venue, marketID)
	if !found {
		h.writeError(w, "no quote seen yet for venue/market", http.StatusNotFound)
		return
	}

	h.writeJSON(w, QuoteResponse{
		Venue:       venue,
		MarketID:    snap.MarketID,
		YesAskCents: snap.YesAskCents,
		YesSizeCts:  snap.YesSizeCts,
		NoAskCents:  snap.NoAskCents,
		NoSizeCts:   snap.NoSizeCts,
		Seq:         snap.Seq,
	})
}

// HandleQuotes handles GET /api/quotes, listing every quote currently held.
func (h *OrderbookHandler) HandleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := h.quotes.All()
	out := make([]QuoteResponse, 0, len(all))
	for key, snap := range all {
		venue, marketID := splitQuoteKey(key)
		out = append(out, QuoteResponse{
			Venue:       venue,
			MarketID:    marketID,
			YesAskCents: snap.YesAskCents,
			YesSizeCts:  snap.YesSizeCts,
			NoAskCents:  snap.NoAskCents,
			NoSizeCts:   snap.NoSizeCts,
			Seq:         snap.Seq,
		})
	}

	h.writeJSON(w, out)
}

// splitQuoteKey reverses quote.Key's "venue:market_id" composite.
func splitQuoteKey(key string) (venue, marketID string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func (h *OrderbookHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *OrderbookHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{Error: message}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed-to-encode-error-response", zap.Error(err))
	}
}
