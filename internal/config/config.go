// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// TokenAsset configures one accepted SPL payment asset.
type TokenAsset struct {
	Symbol string
	Mint   solana.PublicKey
	// Rate is the fixed output-per-unit rate; zero defers to live/fallback.
	Rate decimal.Decimal
}

// Config holds all runtime configuration derived from environment variables.
// TreasuryPrivateKey is raw key material and must never be logged.
type Config struct {
	HTTPPort string

	RPCURL             string
	TreasuryPrivateKey string
	OutputMint         solana.PublicKey
	OutputDecimals     uint8

	RatePerSOL     decimal.Decimal
	FallbackRate   decimal.Decimal
	OutputPriceUSD decimal.Decimal
	PriceFeedURL   string
	MaxSOLPurchase decimal.Decimal
	AcceptedTokens []TokenAsset

	DatabaseURL string
	RedisURL    string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	RPCTimeout             time.Duration
	ConfirmTimeout         time.Duration
	PriceFeedTimeout       time.Duration
	ReconciliationInterval time.Duration
	ReservationTTL         time.Duration

	PublicRateLimitRPS int
	AdminRateLimitRPS  int
	AllowedOrigins     []string
	LogLevel           string
}

// Load reads environment variables using viper and returns a typed config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	bindEnv(v, "port", "PORT", "BRIDGE_PORT")
	bindEnv(v, "rpc_url", "RPC_URL", "BRIDGE_RPC_URL")
	bindEnv(v, "treasury_private_key", "TREASURY_PRIVATE_KEY", "BRIDGE_TREASURY_PRIVATE_KEY")
	bindEnv(v, "output_mint", "MALT_MINT", "BRIDGE_MALT_MINT")
	bindEnv(v, "output_decimals", "TOKEN_DECIMALS", "BRIDGE_TOKEN_DECIMALS")
	bindEnv(v, "rate_per_sol", "RATE_MALT_PER_SOL", "BRIDGE_RATE_MALT_PER_SOL")
	bindEnv(v, "fallback_rate", "FALLBACK_RATE", "BRIDGE_FALLBACK_RATE")
	bindEnv(v, "output_price_usd", "MALT_PRICE_USD", "BRIDGE_MALT_PRICE_USD")
	bindEnv(v, "price_feed_url", "PRICE_FEED_URL", "BRIDGE_PRICE_FEED_URL")
	bindEnv(v, "max_sol_purchase", "MAX_SOL_PER_PURCHASE", "BRIDGE_MAX_SOL_PER_PURCHASE")
	bindEnv(v, "accepted_assets", "ACCEPTED_ASSETS", "BRIDGE_ACCEPTED_ASSETS")
	bindEnv(v, "database_url", "DATABASE_URL", "BRIDGE_DATABASE_URL")
	bindEnv(v, "redis_url", "REDIS_URL", "BRIDGE_REDIS_URL")
	bindEnv(v, "jwt_secret", "JWT_SECRET", "BRIDGE_JWT_SECRET")
	bindEnv(v, "jwt_issuer", "JWT_ISSUER", "BRIDGE_JWT_ISSUER")
	bindEnv(v, "jwt_audience", "JWT_AUDIENCE", "BRIDGE_JWT_AUDIENCE")
	bindEnv(v, "rpc_timeout", "RPC_TIMEOUT", "BRIDGE_RPC_TIMEOUT")
	bindEnv(v, "confirm_timeout", "CONFIRM_TIMEOUT", "BRIDGE_CONFIRM_TIMEOUT")
	bindEnv(v, "price_feed_timeout", "PRICE_FEED_TIMEOUT", "BRIDGE_PRICE_FEED_TIMEOUT")
	bindEnv(v, "reconciliation_interval", "RECONCILIATION_INTERVAL", "BRIDGE_RECONCILIATION_INTERVAL")
	bindEnv(v, "reservation_ttl", "RESERVATION_TTL", "BRIDGE_RESERVATION_TTL")
	bindEnv(v, "public_rate_limit_rps", "PUBLIC_RATE_LIMIT_RPS", "BRIDGE_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "admin_rate_limit_rps", "ADMIN_RATE_LIMIT_RPS", "BRIDGE_ADMIN_RATE_LIMIT_RPS")
	bindEnv(v, "allowed_origins", "ALLOWED_ORIGINS", "BRIDGE_ALLOWED_ORIGINS")
	bindEnv(v, "log_level", "LOG_LEVEL", "BRIDGE_LOG_LEVEL")

	v.SetDefault("port", "8080")
	v.SetDefault("rpc_url", "https://api.devnet.solana.com")
	v.SetDefault("output_decimals", 9)
	v.SetDefault("rate_per_sol", "200000")
	v.SetDefault("fallback_rate", "0")
	v.SetDefault("output_price_usd", "0")
	v.SetDefault("price_feed_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("max_sol_purchase", "100")
	v.SetDefault("accepted_assets", "")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "malt-bridge")
	v.SetDefault("jwt_audience", "malt-bridge-admin")
	v.SetDefault("rpc_timeout", "15s")
	v.SetDefault("confirm_timeout", "90s")
	v.SetDefault("price_feed_timeout", "5s")
	v.SetDefault("reconciliation_interval", "1m")
	v.SetDefault("reservation_ttl", "24h")
	v.SetDefault("public_rate_limit_rps", 10)
	v.SetDefault("admin_rate_limit_rps", 100)
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("log_level", "info")

	cfg := &Config{
		HTTPPort:           v.GetString("port"),
		RPCURL:             v.GetString("rpc_url"),
		TreasuryPrivateKey: v.GetString("treasury_private_key"),
		PriceFeedURL:       v.GetString("price_feed_url"),
		DatabaseURL:        v.GetString("database_url"),
		RedisURL:           v.GetString("redis_url"),
		JWTSecret:          v.GetString("jwt_secret"),
		JWTIssuer:          v.GetString("jwt_issuer"),
		JWTAudience:        v.GetString("jwt_audience"),
		PublicRateLimitRPS: max(v.GetInt("public_rate_limit_rps"), 1),
		AdminRateLimitRPS:  max(v.GetInt("admin_rate_limit_rps"), 1),
		AllowedOrigins:     splitCSV(v.GetString("allowed_origins")),
		LogLevel:           v.GetString("log_level"),
	}

	if strings.TrimSpace(cfg.TreasuryPrivateKey) == "" {
		return nil, fmt.Errorf("TREASURY_PRIVATE_KEY is required")
	}

	mintStr := strings.TrimSpace(v.GetString("output_mint"))
	if mintStr == "" {
		return nil, fmt.Errorf("MALT_MINT is required")
	}
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return nil, fmt.Errorf("invalid MALT_MINT: %w", err)
	}
	cfg.OutputMint = mint

	decimals := v.GetInt("output_decimals")
	if decimals < 0 || decimals > 18 {
		return nil, fmt.Errorf("TOKEN_DECIMALS must be between 0 and 18")
	}
	cfg.OutputDecimals = uint8(decimals)

	if cfg.RatePerSOL, err = parseDecimal(v, "rate_per_sol", "RATE_MALT_PER_SOL"); err != nil {
		return nil, err
	}
	if cfg.FallbackRate, err = parseDecimal(v, "fallback_rate", "FALLBACK_RATE"); err != nil {
		return nil, err
	}
	if cfg.OutputPriceUSD, err = parseDecimal(v, "output_price_usd", "MALT_PRICE_USD"); err != nil {
		return nil, err
	}
	if cfg.MaxSOLPurchase, err = parseDecimal(v, "max_sol_purchase", "MAX_SOL_PER_PURCHASE"); err != nil {
		return nil, err
	}
	if !cfg.MaxSOLPurchase.IsPositive() {
		return nil, fmt.Errorf("MAX_SOL_PER_PURCHASE must be positive")
	}

	if cfg.RPCTimeout, err = parseDuration(v, "rpc_timeout", "RPC_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.ConfirmTimeout, err = parseDuration(v, "confirm_timeout", "CONFIRM_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.PriceFeedTimeout, err = parseDuration(v, "price_feed_timeout", "PRICE_FEED_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.ReconciliationInterval, err = parseDuration(v, "reconciliation_interval", "RECONCILIATION_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.ReservationTTL, err = parseDuration(v, "reservation_ttl", "RESERVATION_TTL"); err != nil {
		return nil, err
	}

	tokens, err := parseAcceptedTokens(v)
	if err != nil {
		return nil, err
	}
	cfg.AcceptedTokens = tokens

	// the admin surface mounts whenever durable storage is configured, so
	// the credential must be present and strong up front
	if cfg.DatabaseURL != "" {
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return nil, fmt.Errorf("JWT_SECRET is required when DATABASE_URL is set")
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
		}
	}

	return cfg, nil
}

// parseAcceptedTokens reads ACCEPTED_ASSETS as a comma-separated symbol list
// and resolves each symbol's <SYMBOL>_MINT and optional <SYMBOL>_RATE.
func parseAcceptedTokens(v *viper.Viper) ([]TokenAsset, error) {
	raw := strings.TrimSpace(v.GetString("accepted_assets"))
	if raw == "" {
		return nil, nil
	}

	var out []TokenAsset
	for _, part := range strings.Split(raw, ",") {
		symbol := strings.ToUpper(strings.TrimSpace(part))
		if symbol == "" {
			continue
		}

		mintKey := strings.ToLower(symbol) + "_mint"
		rateKey := strings.ToLower(symbol) + "_rate"
		bindEnv(v, mintKey, symbol+"_MINT", "BRIDGE_"+symbol+"_MINT")
		bindEnv(v, rateKey, symbol+"_RATE", "BRIDGE_"+symbol+"_RATE")

		mintStr := strings.TrimSpace(v.GetString(mintKey))
		if mintStr == "" {
			return nil, fmt.Errorf("%s_MINT is required for accepted asset %s", symbol, symbol)
		}
		mint, err := solana.PublicKeyFromBase58(mintStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s_MINT: %w", symbol, err)
		}

		rate := decimal.Zero
		if rateStr := strings.TrimSpace(v.GetString(rateKey)); rateStr != "" {
			rate, err = decimal.NewFromString(rateStr)
			if err != nil || rate.IsNegative() {
				return nil, fmt.Errorf("invalid %s_RATE: %q", symbol, rateStr)
			}
		}

		out = append(out, TokenAsset{Symbol: symbol, Mint: mint, Rate: rate})
	}
	return out, nil
}

func parseDecimal(v *viper.Viper, key, envName string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", envName, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", envName)
	}
	return d, nil
}

func parseDuration(v *viper.Viper, key, envName string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envName, err)
	}
	return d, nil
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}
