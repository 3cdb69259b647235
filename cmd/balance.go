package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/petec4244/arbees/internal/venue/kalshi"
	"github.com/petec4244/arbees/pkg/config"
	"github.com/petec4244/arbees/pkg/wallet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check wallet and trading balances on both venues",
	Long: `Reports MATIC gas, USDC, and USDC-vs-CTF-Exchange allowance for the
configured Polymarket wallet, plus the available USD balance on Kalshi
when Kalshi credentials are configured. Whichever venue is missing
credentials is skipped rather than failing the whole command.`,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found\n")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.PolymarketPrivateKey != "" {
		if err := printPolymarketBalance(ctx, cfg, logger); err != nil {
			fmt.Printf("Polymarket: error fetching balance: %v\n", err)
		}
	} else {
		fmt.Println("Polymarket: POLYMARKET_PRIVATE_KEY not set, skipping")
	}

	fmt.Println()

	if cfg.KalshiAPIKeyID != "" && cfg.KalshiPrivateKeyPEM != "" {
		if err := printKalshiBalance(ctx, cfg, logger); err != nil {
			fmt.Printf("Kalshi: error fetching balance: %v\n", err)
		}
	} else {
		fmt.Println("Kalshi: KALSHI_API_KEY_ID/KALSHI_PRIVATE_KEY_PEM not set, skipping")
	}

	return nil
}

func printPolymarketBalance(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	privateKey, err := crypto.HexToECDSA(trimHexPrefix(cfg.PolymarketPrivateKey))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	rpcURL := cfg.PolygonRPCURL
	if rpcURL == "" {
		rpcURL = "https://polygon-rpc.com"
	}

	walletClient, err := wallet.NewClient(rpcURL, logger)
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	balances, err := walletClient.GetBalances(ctx, address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	fmt.Printf("=== Polymarket (%s) ===\n", address.Hex())
	fmt.Printf("MATIC:          %s\n", weiToDecimalString(balances.MATIC, 18, 6))
	fmt.Printf("USDC:           %s\n", weiToDecimalString(balances.USDC, 6, 2))
	if balances.USDCAllowance.Cmp(big.NewInt(1e15)) > 0 {
		fmt.Printf("USDC Allowance: unlimited\n")
	} else {
		fmt.Printf("USDC Allowance: %s\n", weiToDecimalString(balances.USDCAllowance, 6, 2))
	}
	return nil
}

func printKalshiBalance(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	privateKey, err := kalshi.LoadPrivateKeyPEM([]byte(cfg.KalshiPrivateKeyPEM))
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}

	client, err := kalshi.NewOrderClient(kalshi.ClientConfig{
		APIKeyID:   cfg.KalshiAPIKeyID,
		PrivateKey: privateKey,
		BaseURL:    cfg.KalshiRESTURL,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create order client: %w", err)
	}

	usd, err := kalshi.NewBalanceClient(client).Balance(ctx)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}

	fmt.Printf("=== Kalshi ===\n")
	fmt.Printf("Available USD: $%.2f\n", usd)
	return nil
}

// weiToDecimalString divides raw by 10^decimals and renders the result as a
// fixed-point string with places digits after the point, e.g.
// weiToDecimalString(x, 6, 2) for USDC.
func weiToDecimalString(raw *big.Int, decimals, places int) string {
	if raw == nil {
		return "0"
	}
	f := new(big.Float).SetInt(raw)
	f.Quo(f, new(big.Float).SetFloat64(pow10(decimals)))
	return f.Text('f', places)
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
