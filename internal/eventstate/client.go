// Package eventstate implements the Event Monitor's external
// event-state source: an HTTP client polling a scoreboard/oracle feed
// for an event's current score, clock, and lifecycle state. The
// retry-with-backoff shape is carried over from
// internal/markets.MetadataClient's tick-size/min-order-size fetchers,
// generalized from Polymarket CLOB endpoints to a configurable
// scoreboard API base URL.
package eventstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// Client fetches Event state from a scoreboard/oracle HTTP API.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	logger            *zap.Logger
}

// Config configures a new Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Logger            *zap.Logger
}

// New creates a Client with the given configuration, filling in
// defaults for unset fields: 5s timeout, 3 retries, 250ms initial
// backoff capped at 5s, and a 2x multiplier.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		baseURL:           strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:        &http.Client{Timeout: cfg.Timeout},
		maxRetries:        cfg.MaxRetries,
		initialBackoff:    cfg.InitialBackoff,
		maxBackoff:        cfg.MaxBackoff,
		backoffMultiplier: cfg.BackoffMultiplier,
		logger:            cfg.Logger,
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, sub := range []string{"429", "500", "502", "503", "timeout", "connection refused", "connection reset"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

func (c *Client) fetchWithRetry(ctx context.Context, operation string, fetchFn func() error) error {
	backoff := c.initialBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := fetchFn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == c.maxRetries {
			return fmt.Errorf("max retries (%d) exceeded for %s: %w", c.maxRetries, operation, err)
		}

		c.logger.Warn("event-state-fetch-failed-retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * c.backoffMultiplier)
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
	return fmt.Errorf("unreachable")
}

// eventStateResponse mirrors the scoreboard API's wire shape.
type eventStateResponse struct {
	EventID      string  `json:"event_id"`
	Kind         string  `json:"kind"`
	EntityHome   string  `json:"entity_home"`
	EntityAway   string  `json:"entity_away"`
	ScheduledAt  int64   `json:"scheduled_at_ms"`
	State        string  `json:"state"`
	Period       int     `json:"period"`
	ClockSeconds int     `json:"clock_seconds"`
	ScoreHome    int     `json:"score_home"`
	ScoreAway    int     `json:"score_away"`
	Possession   string  `json:"possession"`
	PregamePrior float64 `json:"pregame_prior"`
	FinalWinner  string  `json:"final_winner"`
}

// Fetch implements internal/eventmonitor.EventStateSource.
func (c *Client) Fetch(ctx context.Context, eventID string) (*types.Event, error) {
	url := fmt.Sprintf("%s/events/%s", c.baseURL, eventID)

	var resp eventStateResponse
	err := c.fetchWithRetry(ctx, "fetch-event-state", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return fmt.Errorf("event-state API error: status %d", httpResp.StatusCode)
		}
		return json.NewDecoder(httpResp.Body).Decode(&resp)
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	event := &types.Event{
		EventID:      resp.EventID,
		Kind:         types.EventKind(resp.Kind),
		EntityHome:   resp.EntityHome,
		EntityAway:   resp.EntityAway,
		ScheduledAt:  time.UnixMilli(resp.ScheduledAt),
		State:        types.EventState(resp.State),
		PregamePrior: resp.PregamePrior,
		FinalWinner:  resp.FinalWinner,
		LastStateAt:  now,
		Game: types.GameState{
			Period:       resp.Period,
			ClockSeconds: resp.ClockSeconds,
			ScoreHome:    resp.ScoreHome,
			ScoreAway:    resp.ScoreAway,
			Possession:   resp.Possession,
			AsOf:         now,
		},
	}
	if event.Kind == "" {
		event.Kind = types.EventKindSport
	}
	return event, nil
}
