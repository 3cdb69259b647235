package kalshi

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/types"
	"go.uber.org/zap"
)

// OrderClient implements venue.OrderClient over Kalshi's REST trading
// API, signing every request RSA-PSS per auth.go and shaping orders the
// way the production dual-side bot in the pack does (ticker/side/action/
// count/price, time_in_force immediate_or_cancel for arbitrage legs).
type OrderClient struct {
	apiKeyID       string
	privateKey     *rsa.PrivateKey
	httpClient     *http.Client
	baseURL        string
	basePathPrefix string
	logger         *zap.Logger
}

// ClientConfig configures a new Kalshi OrderClient.
type ClientConfig struct {
	APIKeyID   string
	PrivateKey *rsa.PrivateKey
	BaseURL    string // e.g. https://api.elections.kalshi.com/trade-api/v2
	Logger     *zap.Logger
}

// NewOrderClient builds a Kalshi REST order client.
func NewOrderClient(cfg ClientConfig) (*OrderClient, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	return &OrderClient{
		apiKeyID:       cfg.APIKeyID,
		privateKey:     cfg.PrivateKey,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		baseURL:        cfg.BaseURL,
		basePathPrefix: parsed.Path,
		logger:         cfg.Logger,
	}, nil
}

func (c *OrderClient) signPath(path string) string {
	return c.basePathPrefix + path
}

type orderRequest struct {
	Ticker      string `json:"ticker"`
	Action      string `json:"action"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Count       int    `json:"count"`
	YesPrice    int    `json:"yes_price,omitempty"`
	NoPrice     int    `json:"no_price,omitempty"`
	TimeInForce string `json:"time_in_force,omitempty"`
}

type orderResponse struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	RemainingCount int    `json:"remaining_count"`
	FilledCount    int    `json:"place_count"`
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
}

// PlaceIOC submits an immediate-or-cancel limit order for one leg.
func (c *OrderClient) PlaceIOC(ctx context.Context, req types.ExecutionRequest) (string, error) {
	side := "yes"
	priceCents := int(req.LimitPrice * 100)
	reqBody := orderRequest{
		Ticker:      req.MarketID,
		Action:      "buy",
		Type:        "limit",
		Count:       int(req.Size),
		TimeInForce: "immediate_or_cancel",
	}
	if req.Side == types.SideNo {
		side = "no"
		reqBody.NoPrice = priceCents
	} else {
		reqBody.YesPrice = priceCents
	}
	reqBody.Side = side

	var result struct {
		Order orderResponse `json:"order"`
	}
	if err := c.post(ctx, "/portfolio/orders", reqBody, &result); err != nil {
		return "", err
	}

	return result.Order.OrderID, nil
}

// OrderStatus polls GET /portfolio/orders/{id} for fill state.
func (c *OrderClient) OrderStatus(ctx context.Context, orderID string) (types.ExecutionStatus, float64, float64, error) {
	var result struct {
		Order orderResponse `json:"order"`
	}
	if err := c.get(ctx, "/portfolio/orders/"+orderID, nil, &result); err != nil {
		return "", 0, 0, err
	}

	order := result.Order
	filled := float64(order.FilledCount)
	avgPrice := float64(order.YesPrice) / 100.0
	if order.NoPrice > 0 {
		avgPrice = float64(order.NoPrice) / 100.0
	}

	switch order.Status {
	case "executed":
		return types.StatusFilled, filled, avgPrice, nil
	case "canceled":
		if filled > 0 {
			return types.StatusPartial, filled, avgPrice, nil
		}
		return types.StatusCancelled, filled, avgPrice, nil
	case "resting", "pending":
		return types.StatusPartial, filled, avgPrice, nil
	default:
		return types.StatusFailed, filled, avgPrice, fmt.Errorf("unrecognized order status %q", order.Status)
	}
}

// CancelAll lists resting orders for marketID and cancels each; IOC legs
// self-expire, so this exists for operator cleanup only.
func (c *OrderClient) CancelAll(ctx context.Context, marketID string) error {
	params := url.Values{}
	params.Set("ticker", marketID)
	params.Set("status", "resting")

	var result struct {
		Orders []orderResponse `json:"orders"`
	}
	if err := c.get(ctx, "/portfolio/orders", params, &result); err != nil {
		return fmt.Errorf("list resting orders: %w", err)
	}

	for _, o := range result.Orders {
		if err := c.delete(ctx, "/portfolio/orders/"+o.OrderID); err != nil {
			return fmt.Errorf("cancel order %s: %w", o.OrderID, err)
		}
	}
	return nil
}

func (c *OrderClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	headers, err := AuthHeaders(c.apiKeyID, c.privateKey, http.MethodGet, c.signPath(path))
	if err != nil {
		return err
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Accept", "application/json")

	return c.do(httpReq, out)
}

func (c *OrderClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(data)))
	if err != nil {
		return err
	}

	headers, err := AuthHeaders(c.apiKeyID, c.privateKey, http.MethodPost, c.signPath(path))
	if err != nil {
		return err
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	return c.do(httpReq, out)
}

func (c *OrderClient) delete(ctx context.Context, path string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	headers, err := AuthHeaders(c.apiKeyID, c.privateKey, http.MethodDelete, c.signPath(path))
	if err != nil {
		return err
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	return c.do(httpReq, nil)
}

func (c *OrderClient) do(httpReq *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("kalshi request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Error("kalshi-api-error", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return fmt.Errorf("kalshi API error %d: %s", resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w (body: %s)", err, string(body))
		}
	}

	return nil
}

// BalanceClient implements venue.BalanceFetcher over GET /portfolio/balance.
type BalanceClient struct {
	client *OrderClient
}

// NewBalanceClient wraps an OrderClient's signed HTTP plumbing to report
// venue-cached balance for the kill-switch/daily-loss monitor.
func NewBalanceClient(client *OrderClient) *BalanceClient {
	return &BalanceClient{client: client}
}

func (b *BalanceClient) Balance(ctx context.Context) (float64, error) {
	var result struct {
		Balance int `json:"balance"`
	}
	if err := b.client.get(ctx, "/portfolio/balance", nil, &result); err != nil {
		return 0, err
	}
	return float64(result.Balance) / 100.0, nil
}

var _ venue.OrderClient = (*OrderClient)(nil)
var _ venue.BalanceFetcher = (*BalanceClient)(nil)
