package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Polymarket API
	PolymarketWSURL      string
	PolymarketGammaURL   string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolymarketAddress    string
	PolygonRPCURL        string

	// Kalshi API
	KalshiWSURL         string
	KalshiRESTURL       string
	KalshiAPIKeyID      string
	KalshiPrivateKeyPEM string

	// Risk gates (§4.C/§4.D)
	MinEdgeBPS            int
	ArbThresholdCents      int
	MinSafePrice           float64
	MaxSafePrice           float64
	PriorDriftMaxDelta     float64
	KellyCapFraction       float64
	MinOrderSize           float64
	MaxOrderSize           float64
	MaxOrderContracts      int
	FeeBufferFraction      float64
	ExposurePerMarketCap   float64
	ExposurePerEventCap    float64
	ExposureGlobalCap      float64
	ExposurePerCategoryCap float64
	SignalDedupWindow      time.Duration
	PostExitCooldown       time.Duration

	// Dual-flag live authorization (§5): both must be set for live orders.
	ExecutionPaperOff      bool
	ExecutionLiveAuthorized bool
	CompensationMaxLossBPS int

	// Kill switch (§4.D, G2)
	KillSwitchSentinelPath  string
	DailyLossCap            float64
	DailyLossTripFraction   float64
	BalanceRefreshInterval  time.Duration

	// Per-venue rate caps (G4)
	KalshiRateLimitPerSec     float64
	KalshiRateLimitBurst      float64
	PolymarketRateLimitPerSec float64
	PolymarketRateLimitBurst  float64
	MinuteOrderCap            int
	HourOrderCap              int
	FillPollTimeout           time.Duration

	TransportMirrorEnabled bool

	// Market Discovery
	DiscoveryPollInterval time.Duration
	DiscoveryMarketLimit  int
	MaxMarketDuration     time.Duration // Only subscribe to markets expiring within this duration

	// Market Cleanup
	CleanupInterval time.Duration // How often cleanup command checks for stale markets

	// WebSocket
	WSPoolSize              int // Number of WebSocket connections (default: 20)
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Arbitrage Detection
	ArbThreshold         float64
	ArbMinTradeSize      float64
	ArbMaxTradeSize      float64
	ArbDetectionInterval time.Duration
	ArbMakerFee          float64
	ArbTakerFee          float64

	// Execution
	ExecutionMode            string
	ExecutionMaxPositionSize float64

	// Circuit Breaker
	CircuitBreakerEnabled         bool
	CircuitBreakerCheckInterval   time.Duration
	CircuitBreakerTradeMultiplier float64
	CircuitBreakerMinAbsolute     float64
	CircuitBreakerHysteresisRatio float64

	// Storage
	StorageMode  string // "postgres", "console", or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Event Monitor (§4.B)
	EventStateAPIURL       string
	EventStateTimeout      time.Duration
	EventMonitorTick       time.Duration
	EventStalenessTTL      time.Duration
	MaxSizeCap             float64
	SignalTTL              time.Duration
	MaxConsecutiveFailures int

	// Orchestrator (external control-plane stand-in)
	EventLinksPath        string
	OrchestratorPollInterval time.Duration

	// Signal Processor (§4.C)
	NonSportVolatilityFactor float64

	// Execution Engine (§4.D)
	IdempotencyWindow time.Duration

	// Position Tracker (§4.E)
	ExitCheckInterval   time.Duration
	MinHoldTime         time.Duration
	StopLossBPS         int
	TakeProfitBPS       int
	MaxHoldTime         time.Duration
	ModelReversalBPS    int
	SlippageBufferCents int
	ExitFeeBufferFrac   float64
	ReconcileInterval   time.Duration
	MismatchTolerance   float64

	// Ingestor (§4.A)
	IngestorRestartBackoff time.Duration

	// Transport bridge (durable mirroring)
	BridgeQueueCapacity int
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Polymarket API defaults
		PolymarketWSURL:      getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketAddress:    os.Getenv("POLYMARKET_ADDRESS"),
		PolygonRPCURL:        getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		// Kalshi API defaults
		KalshiWSURL:         getEnvOrDefault("KALSHI_WS_URL", "wss://api.elections.kalshi.com/trade-api/ws/v2"),
		KalshiRESTURL:       getEnvOrDefault("KALSHI_REST_URL", "https://api.elections.kalshi.com"),
		KalshiAPIKeyID:      os.Getenv("KALSHI_API_KEY_ID"),
		KalshiPrivateKeyPEM: os.Getenv("KALSHI_PRIVATE_KEY_PEM"),

		// Risk gate defaults
		MinEdgeBPS:             getIntOrDefault("MIN_EDGE_BPS", 150),
		ArbThresholdCents:      getIntOrDefault("ARB_THRESHOLD_CENTS", 3),
		MinSafePrice:           getFloat64OrDefault("MIN_SAFE_PRICE", 0.05),
		MaxSafePrice:           getFloat64OrDefault("MAX_SAFE_PRICE", 0.95),
		PriorDriftMaxDelta:     getFloat64OrDefault("PRIOR_DRIFT_MAX_DELTA", 0.30),
		KellyCapFraction:       getFloat64OrDefault("KELLY_CAP_FRACTION", 0.25),
		MinOrderSize:           getFloat64OrDefault("MIN_ORDER_SIZE", 1.0),
		MaxOrderSize:           getFloat64OrDefault("MAX_ORDER_SIZE", 100.0),
		MaxOrderContracts:      getIntOrDefault("MAX_ORDER_CONTRACTS", 500),
		FeeBufferFraction:      getFloat64OrDefault("FEE_BUFFER_FRACTION", 0.02),
		ExposurePerMarketCap:   getFloat64OrDefault("EXPOSURE_PER_MARKET_CAP", 500.0),
		ExposurePerEventCap:    getFloat64OrDefault("EXPOSURE_PER_EVENT_CAP", 1000.0),
		ExposureGlobalCap:      getFloat64OrDefault("EXPOSURE_GLOBAL_CAP", 10000.0),
		ExposurePerCategoryCap: getFloat64OrDefault("EXPOSURE_PER_CATEGORY_CAP", 5000.0),
		SignalDedupWindow:      getDurationOrDefault("SIGNAL_DEDUP_WINDOW", 10*time.Minute),
		PostExitCooldown:       getDurationOrDefault("POST_EXIT_COOLDOWN", 2*time.Minute),

		// Live authorization defaults (both default false: paper trading)
		ExecutionPaperOff:       getBoolOrDefault("EXECUTION_PAPER_OFF", false),
		ExecutionLiveAuthorized: getBoolOrDefault("EXECUTION_LIVE_AUTHORIZED", false),
		CompensationMaxLossBPS:  getIntOrDefault("COMPENSATION_MAX_LOSS_BPS", 200),

		// Kill switch defaults
		KillSwitchSentinelPath: getEnvOrDefault("KILL_SWITCH_SENTINEL_PATH", "/var/run/arbees/kill_switch"),
		DailyLossCap:           getFloat64OrDefault("DAILY_LOSS_CAP", 1000.0),
		DailyLossTripFraction:  getFloat64OrDefault("DAILY_LOSS_TRIP_FRACTION", 0.8),
		BalanceRefreshInterval: getDurationOrDefault("BALANCE_REFRESH_INTERVAL", 60*time.Second),

		// Rate caps (G4)
		KalshiRateLimitPerSec:     getFloat64OrDefault("KALSHI_RATE_LIMIT_PER_SEC", 10.0),
		KalshiRateLimitBurst:      getFloat64OrDefault("KALSHI_RATE_LIMIT_BURST", 20.0),
		PolymarketRateLimitPerSec: getFloat64OrDefault("POLYMARKET_RATE_LIMIT_PER_SEC", 10.0),
		PolymarketRateLimitBurst:  getFloat64OrDefault("POLYMARKET_RATE_LIMIT_BURST", 20.0),
		MinuteOrderCap:            getIntOrDefault("MINUTE_ORDER_CAP", 60),
		HourOrderCap:              getIntOrDefault("HOUR_ORDER_CAP", 600),
		FillPollTimeout:           getDurationOrDefault("FILL_POLL_TIMEOUT", 5*time.Second),

		TransportMirrorEnabled: getBoolOrDefault("TRANSPORT_MIRROR_ENABLED", false),

		// Market Discovery defaults
		DiscoveryPollInterval: getDurationOrDefault("DISCOVERY_POLL_INTERVAL", 30*time.Second),
		DiscoveryMarketLimit:  getIntOrDefault("DISCOVERY_MARKET_LIMIT", 1000),
		MaxMarketDuration:     getDurationOrDefault("ARB_MAX_MARKET_DURATION", 0), // 0 = unlimited

		// Market Cleanup defaults
		CleanupInterval: getDurationOrDefault("CLEANUP_CHECK_INTERVAL", 5*time.Minute),

		// WebSocket defaults
		WSPoolSize:              getIntOrDefault("WS_POOL_SIZE", 20),
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 10000),

		// Arbitrage defaults
		ArbThreshold:         getFloat64OrDefault("ARB_THRESHOLD", 0.995),
		ArbMinTradeSize:      getFloat64OrDefault("ARB_MIN_TRADE_SIZE", 1.0),
		ArbMaxTradeSize:      getFloat64OrDefault("ARB_MAX_TRADE_SIZE", 2.0),
		ArbDetectionInterval: getDurationOrDefault("ARB_DETECTION_INTERVAL", 100*time.Millisecond),
		ArbMakerFee:          getFloat64OrDefault("ARB_MAKER_FEE", 0.0000), // 0% maker fee on Polymarket
		ArbTakerFee:          getFloat64OrDefault("ARB_TAKER_FEE", 0.0100), // 1% taker fee

		// Execution defaults
		ExecutionMode:            getEnvOrDefault("EXECUTION_MODE", "paper"),
		ExecutionMaxPositionSize: getFloat64OrDefault("EXECUTION_MAX_POSITION_SIZE", 1000.0),

		// Circuit Breaker defaults
		CircuitBreakerEnabled:         getBoolOrDefault("CIRCUIT_BREAKER_ENABLED", true),
		CircuitBreakerCheckInterval:   getDurationOrDefault("CIRCUIT_BREAKER_CHECK_INTERVAL", 300*time.Second),
		CircuitBreakerTradeMultiplier: getFloat64OrDefault("CIRCUIT_BREAKER_TRADE_MULTIPLIER", 3.0),
		CircuitBreakerMinAbsolute:     getFloat64OrDefault("CIRCUIT_BREAKER_MIN_ABSOLUTE", 5.0),
		CircuitBreakerHysteresisRatio: getFloat64OrDefault("CIRCUIT_BREAKER_HYSTERESIS_RATIO", 1.5),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "polymarket"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "polymarket123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "polymarket_arb"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		// Event Monitor defaults
		EventStateAPIURL:       getEnvOrDefault("EVENT_STATE_API_URL", "https://event-state.internal"),
		EventStateTimeout:      getDurationOrDefault("EVENT_STATE_TIMEOUT", 5*time.Second),
		EventMonitorTick:       getDurationOrDefault("EVENT_MONITOR_TICK", 1*time.Second),
		EventStalenessTTL:      getDurationOrDefault("EVENT_STALENESS_TTL", 10*time.Second),
		MaxSizeCap:             getFloat64OrDefault("EVENT_MONITOR_MAX_SIZE_CAP", 500.0),
		SignalTTL:              getDurationOrDefault("SIGNAL_TTL", 60*time.Second),
		MaxConsecutiveFailures: getIntOrDefault("EVENT_MONITOR_MAX_CONSECUTIVE_FAILURES", 5),

		// Orchestrator defaults
		EventLinksPath:           getEnvOrDefault("EVENT_LINKS_PATH", ""),
		OrchestratorPollInterval: getDurationOrDefault("ORCHESTRATOR_POLL_INTERVAL", 15*time.Second),

		// Signal Processor defaults
		NonSportVolatilityFactor: getFloat64OrDefault("NON_SPORT_VOLATILITY_FACTOR", 0.5),

		// Execution Engine defaults
		IdempotencyWindow: getDurationOrDefault("IDEMPOTENCY_WINDOW", 5*time.Minute),

		// Position Tracker defaults
		ExitCheckInterval:   getDurationOrDefault("EXIT_CHECK_INTERVAL", 1*time.Second),
		MinHoldTime:         getDurationOrDefault("MIN_HOLD_TIME", 5*time.Second),
		StopLossBPS:         getIntOrDefault("STOP_LOSS_BPS", 1500),
		TakeProfitBPS:       getIntOrDefault("TAKE_PROFIT_BPS", 2000),
		MaxHoldTime:         getDurationOrDefault("MAX_HOLD_TIME", 4*time.Hour),
		ModelReversalBPS:    getIntOrDefault("MODEL_REVERSAL_BPS", 1000),
		SlippageBufferCents: getIntOrDefault("SLIPPAGE_BUFFER_CENTS", 2),
		ExitFeeBufferFrac:   getFloat64OrDefault("EXIT_FEE_BUFFER_FRAC", 0.02),
		ReconcileInterval:   getDurationOrDefault("RECONCILE_INTERVAL", 1*time.Hour),
		MismatchTolerance:   getFloat64OrDefault("MISMATCH_TOLERANCE", 1.0),

		// Ingestor defaults
		IngestorRestartBackoff: getDurationOrDefault("INGESTOR_RESTART_BACKOFF", 2*time.Second),

		// Transport bridge defaults
		BridgeQueueCapacity: getIntOrDefault("BRIDGE_QUEUE_CAPACITY", 4096),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() (err error) {
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT cannot be empty")
	}

	if c.PolymarketWSURL == "" {
		return errors.New("POLYMARKET_WS_URL cannot be empty")
	}

	if c.PolymarketGammaURL == "" {
		return errors.New("POLYMARKET_GAMMA_API_URL cannot be empty")
	}

	if c.ArbThreshold <= 0 || c.ArbThreshold >= 1.0 {
		return fmt.Errorf("ARB_THRESHOLD must be between 0 and 1.0, got %f", c.ArbThreshold)
	}

	if c.ExecutionMode != "paper" && c.ExecutionMode != "live" && c.ExecutionMode != "dry-run" {
		return fmt.Errorf("EXECUTION_MODE must be 'paper', 'live', or 'dry-run', got %q", c.ExecutionMode)
	}

	// Validate trade size configuration
	if c.ArbMinTradeSize <= 0 {
		return fmt.Errorf("ARB_MIN_TRADE_SIZE must be positive, got %f", c.ArbMinTradeSize)
	}

	if c.ArbMaxTradeSize <= 0 {
		return fmt.Errorf("ARB_MAX_TRADE_SIZE must be positive, got %f", c.ArbMaxTradeSize)
	}

	if c.ArbMaxTradeSize < c.ArbMinTradeSize {
		return fmt.Errorf("ARB_MAX_TRADE_SIZE (%f) must be >= ARB_MIN_TRADE_SIZE (%f)",
			c.ArbMaxTradeSize, c.ArbMinTradeSize)
	}

	// Validate market filtering configuration
	if c.MaxMarketDuration < 0 {
		return fmt.Errorf("ARB_MAX_MARKET_DURATION must be non-negative (0 = unlimited), got %s", c.MaxMarketDuration)
	}

	if c.DiscoveryMarketLimit < 0 {
		return fmt.Errorf("DISCOVERY_MARKET_LIMIT must be non-negative (0 = unlimited), got %d", c.DiscoveryMarketLimit)
	}

	// Validate WebSocket pool configuration
	if c.WSPoolSize < 1 {
		return fmt.Errorf("WS_POOL_SIZE must be at least 1, got %d", c.WSPoolSize)
	}

	if c.WSPoolSize > 20 {
		return fmt.Errorf("WS_POOL_SIZE must not exceed 20, got %d", c.WSPoolSize)
	}

	// Validate cleanup configuration
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_CHECK_INTERVAL must be positive, got %s", c.CleanupInterval)
	}

	if c.MinSafePrice <= 0 || c.MaxSafePrice >= 1.0 || c.MinSafePrice >= c.MaxSafePrice {
		return fmt.Errorf("MIN_SAFE_PRICE/MAX_SAFE_PRICE must satisfy 0 < min < max < 1.0, got %f/%f",
			c.MinSafePrice, c.MaxSafePrice)
	}

	if c.KellyCapFraction <= 0 || c.KellyCapFraction > 1.0 {
		return fmt.Errorf("KELLY_CAP_FRACTION must be in (0, 1.0], got %f", c.KellyCapFraction)
	}

	if c.MaxOrderSize < c.MinOrderSize {
		return fmt.Errorf("MAX_ORDER_SIZE (%f) must be >= MIN_ORDER_SIZE (%f)", c.MaxOrderSize, c.MinOrderSize)
	}

	if c.DailyLossTripFraction <= 0 || c.DailyLossTripFraction > 1.0 {
		return fmt.Errorf("DAILY_LOSS_TRIP_FRACTION must be in (0, 1.0], got %f", c.DailyLossTripFraction)
	}

	return nil
}

// LiveTradingEnabled reports whether both authorization flags (§5's dual
// flag requirement) are set; a single flag is never sufficient.
func (c *Config) LiveTradingEnabled() bool {
	return c.ExecutionPaperOff && c.ExecutionLiveAuthorized
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}
