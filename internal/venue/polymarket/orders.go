package polymarket

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/petec4244/arbees/internal/venue"
	"github.com/petec4244/arbees/pkg/types"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"go.uber.org/zap"
)

const baseURL = "https://clob.polymarket.com"

// OrderClient implements venue.OrderClient over the Polymarket CLOB REST
// API, signing each order EIP-712 with go-order-utils and authenticating
// each request with an HMAC-SHA256 L2 API key, exactly as the single-venue
// client this was adapted from did.
type OrderClient struct {
	apiKey        string
	secret        string
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string
	proxyAddress  string
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	logger        *zap.Logger

	// tickSizeByMarket supplies the rounding precision RegisterTickSize
	// recorded per token id, since the CLOB API itself doesn't
	// echo tick size on the order submission path.
	tickSizeByMarket map[string]float64
}

// ClientConfig configures a new Polymarket OrderClient.
type ClientConfig struct {
	APIKey        string
	Secret        string
	Passphrase    string
	PrivateKey    string // hex, with or without 0x prefix
	Address       string // EOA address; derived from PrivateKey if empty
	ProxyAddress  string // funder address for proxy/Gnosis-Safe signature types
	SignatureType int    // 0=EOA, 1=POLY_PROXY, 2=GNOSIS_SAFE
	Logger        *zap.Logger
}

// NewOrderClient builds a Polymarket OrderClient, deriving the EOA address
// from the private key when Address is not supplied.
func NewOrderClient(cfg ClientConfig) (*OrderClient, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := cfg.Address
	if address == "" {
		publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("derive address: not an ECDSA public key")
		}
		address = crypto.PubkeyToAddress(*publicKeyECDSA).Hex()
	}

	chainID := big.NewInt(137) // Polygon mainnet

	return &OrderClient{
		apiKey:           cfg.APIKey,
		secret:           cfg.Secret,
		passphrase:       cfg.Passphrase,
		privateKey:       privateKey,
		address:          address,
		proxyAddress:     cfg.ProxyAddress,
		signatureType:    model.SignatureType(cfg.SignatureType),
		orderBuilder:     builder.NewExchangeOrderBuilderImpl(chainID, nil),
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		logger:           cfg.Logger,
		tickSizeByMarket: make(map[string]float64),
	}, nil
}

// RegisterTickSize records the token tick size PlaceIOC needs for
// tick-size-dependent rounding, since the execution request carries only
// price and size.
func (c *OrderClient) RegisterTickSize(tokenID string, tickSize float64) {
	c.tickSizeByMarket[tokenID] = tickSize
}

func (c *OrderClient) makerAddress() string {
	if c.signatureType > model.EOA && c.proxyAddress != "" {
		return c.proxyAddress
	}
	return c.address
}

// PlaceIOC signs and submits a single order against req.MarketID (a
// Polymarket token id) and returns the accepted order id.
func (c *OrderClient) PlaceIOC(ctx context.Context, req types.ExecutionRequest) (string, error) {
	tickSize, ok := c.tickSizeByMarket[req.MarketID]
	if !ok {
		tickSize = 0.01
	}
	sizePrecision, amountPrecision := getRoundingConfig(tickSize)

	side := model.BUY
	takerTokens := roundAmount(req.Size/req.LimitPrice, sizePrecision)
	makerUSD := roundAmount(takerTokens*req.LimitPrice, amountPrecision)

	orderData := &model.OrderData{
		Maker:         c.makerAddress(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenId:       req.MarketID,
		MakerAmount:   usdToRawAmount(makerUSD),
		TakerAmount:   usdToRawAmount(takerTokens),
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}

	signed, err := c.orderBuilder.BuildSignedOrder(c.privateKey, orderData, model.CTFExchange)
	if err != nil {
		return "", fmt.Errorf("build signed order: %w", err)
	}

	resp, err := c.submitOrder(ctx, signed)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("order rejected: %s", resp.ErrorMsg)
	}

	return resp.OrderID, nil
}

// OrderStatus polls GET /order for the current fill state of orderID.
func (c *OrderClient) OrderStatus(ctx context.Context, orderID string) (types.ExecutionStatus, float64, float64, error) {
	path := "/order/" + orderID

	body, status, err := c.signedGet(ctx, path)
	if err != nil {
		return "", 0, 0, err
	}
	if status != http.StatusOK {
		return "", 0, 0, fmt.Errorf("order status query failed (status %d): %s", status, body)
	}

	var resp types.OrderQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", 0, 0, fmt.Errorf("parse order status: %w", err)
	}

	avgPrice := resp.Price
	switch resp.Status {
	case "matched":
		if resp.SizeFilled >= resp.Size {
			return types.StatusFilled, resp.SizeFilled, avgPrice, nil
		}
		return types.StatusPartial, resp.SizeFilled, avgPrice, nil
	case "unmatched", "delayed":
		return types.StatusCancelled, resp.SizeFilled, avgPrice, nil
	default:
		return types.StatusFailed, resp.SizeFilled, avgPrice, fmt.Errorf("unrecognized order status %q", resp.Status)
	}
}

// CancelAll cancels resting orders for marketID via DELETE /orders. IOC
// orders self-expire, so this exists purely as an operator cleanup path.
func (c *OrderClient) CancelAll(ctx context.Context, marketID string) error {
	path := "/orders?market=" + marketID

	body, err := json.Marshal(struct{}{})
	if err != nil {
		return err
	}

	status, respBody, err := c.signedRequest(ctx, http.MethodDelete, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("cancel all failed (status %d): %s", status, respBody)
	}

	return nil
}

func (c *OrderClient) submitOrder(ctx context.Context, signed *model.SignedOrder) (*types.OrderSubmissionResponse, error) {
	sideStr := "BUY"
	if signed.Side.Uint64() == uint64(model.SELL) {
		sideStr = "SELL"
	}

	jsonOrder := types.SignedOrderJSON{
		Salt:          signed.Salt.Int64(),
		Maker:         signed.Maker.Hex(),
		Signer:        signed.Signer.Hex(),
		Taker:         signed.Taker.Hex(),
		TokenID:       signed.TokenId.String(),
		MakerAmount:   signed.MakerAmount.String(),
		TakerAmount:   signed.TakerAmount.String(),
		Side:          sideStr,
		Expiration:    signed.Expiration.String(),
		Nonce:         signed.Nonce.String(),
		FeeRateBps:    signed.FeeRateBps.String(),
		SignatureType: int(signed.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(signed.Signature),
	}

	reqBody, err := json.Marshal(types.OrderSubmissionRequest{
		Order:     jsonOrder,
		Owner:     c.apiKey,
		OrderType: "FAK", // fill-and-kill: the venue-side equivalent of IOC
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	status, body, err := c.signedRequest(ctx, http.MethodPost, "/order", reqBody)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("order submission failed (status %d): %s", status, body)
	}

	var resp types.OrderSubmissionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}

	return &resp, nil
}

func (c *OrderClient) signedGet(ctx context.Context, path string) ([]byte, int, error) {
	status, body, err := c.signedRequest(ctx, http.MethodGet, path, nil)
	return body, status, err
}

// signedRequest signs method+path+body per Polymarket's L2 HMAC scheme
// and issues the request, returning the raw status code and body so
// callers can interpret venue-specific payloads.
func (c *OrderClient) signedRequest(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	signaturePayload := timestamp + method + path + string(body)

	secretBytes, err := base64.URLEncoding.DecodeString(c.secret)
	if err != nil {
		return 0, nil, fmt.Errorf("decode secret: %w", err)
	}

	h := hmac.New(sha256.New, secretBytes)
	h.Write([]byte(signaturePayload))
	signature := base64.URLEncoding.EncodeToString(h.Sum(nil))

	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", signature)
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	return httpResp.StatusCode, respBody, nil
}

// Balance satisfies venue.BalanceFetcher by resolving USDC balance via
// the wallet package; wired at construction time in internal/app.
type BalanceClient struct {
	fetch func(ctx context.Context) (float64, error)
}

func NewBalanceClient(fetch func(ctx context.Context) (float64, error)) *BalanceClient {
	return &BalanceClient{fetch: fetch}
}

func (b *BalanceClient) Balance(ctx context.Context) (float64, error) {
	return b.fetch(ctx)
}

var _ venue.OrderClient = (*OrderClient)(nil)
var _ venue.BalanceFetcher = (*BalanceClient)(nil)

// getRoundingConfig returns the (size, amount) decimal precision CLOB
// order sizes must be rounded to for a given token tick size, matching
// the Python reference client's ROUNDING_CONFIG table.
func getRoundingConfig(tickSize float64) (sizePrecision, amountPrecision int) {
	switch tickSize {
	case 0.1:
		return 2, 3
	case 0.01:
		return 2, 4
	case 0.001:
		return 2, 5
	case 0.0001:
		return 2, 6
	default:
		return 2, 4
	}
}

func roundAmount(value float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(value*multiplier) / multiplier
}

func usdToRawAmount(usd float64) string {
	return fmt.Sprintf("%d", int64(usd*1000000))
}
