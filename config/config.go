// Package config reads the prover's settings from the environment.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"

	"github.com/megabridge/withdrawal-prover/game"
	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

type Config struct {
	L1RPCURL  string
	L2RPCURLs []string
	// PrivateKey is nil when PRIVATE_KEY is unset; only submission needs it.
	PrivateKey            *ecdsa.PrivateKey
	OptimismPortalAddress common.Address
	L1ChainID             uint64
	L2ChainID             uint64

	GameLookbackWindow  uint64
	GameScanConcurrency int
	GameSelection       game.Selection

	RPCCallTimeout     time.Duration
	RootVersionOrder   []types.RootVersion
	RootVersionTTL     time.Duration
	MinL1BalanceWei    *big.Int
	GasLimitMultiplier float64

	DatabaseURI   string
	DatabaseName  string
	WatchInterval time.Duration
	APIPort       string
	LogLevel      slog.Level
}

// Deployment keys the root version hint.
func (c *Config) Deployment() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(c.OptimismPortalAddress.Hex()), c.L2ChainID)
}

// Load reads a .env file when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults for
// everything but the RPC endpoints.
func FromEnv() (*Config, error) {
	var err error
	c := &Config{
		L1RPCURL:     os.Getenv("L1_RPC_URL"),
		DatabaseURI:  os.Getenv("DATABASE_URI"),
		DatabaseName: envOr("DATABASE_NAME", "withdrawal-prover"),
		APIPort:      envOr("API_PORT", "8080"),
	}
	if c.L1RPCURL == "" {
		return nil, errors.New("L1_RPC_URL is required")
	}

	for _, u := range strings.Split(os.Getenv("L2_RPC_URLS"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			c.L2RPCURLs = append(c.L2RPCURLs, u)
		}
	}
	if len(c.L2RPCURLs) == 0 {
		return nil, errors.New("L2_RPC_URLS is required")
	}

	if key := strings.TrimPrefix(os.Getenv("PRIVATE_KEY"), "0x"); key != "" {
		c.PrivateKey, err = crypto.HexToECDSA(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PRIVATE_KEY: %w", err)
		}
	}

	c.OptimismPortalAddress = protocol.OptimismPortalAddress
	if v := os.Getenv("OPTIMISM_PORTAL_ADDRESS"); v != "" {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("failed to parse OPTIMISM_PORTAL_ADDRESS: %q is not an address", v)
		}
		c.OptimismPortalAddress = common.HexToAddress(v)
	}

	if c.L1ChainID, err = parseUint("L1_CHAIN_ID", protocol.L1ChainID); err != nil {
		return nil, err
	}
	if c.L2ChainID, err = parseUint("L2_CHAIN_ID", protocol.L2ChainID); err != nil {
		return nil, err
	}
	if c.GameLookbackWindow, err = parseUint("GAME_LOOKBACK_WINDOW", protocol.DefaultGameLookback); err != nil {
		return nil, err
	}
	if c.GameLookbackWindow == 0 {
		return nil, errors.New("GAME_LOOKBACK_WINDOW must be positive")
	}
	concurrency, err := parseUint("GAME_SCAN_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}
	if concurrency == 0 {
		return nil, errors.New("GAME_SCAN_CONCURRENCY must be positive")
	}
	c.GameScanConcurrency = int(concurrency)

	if c.GameSelection, err = game.ParseSelection(envOr("GAME_SELECTION", string(game.SelectLatest))); err != nil {
		return nil, fmt.Errorf("failed to parse GAME_SELECTION: %w", err)
	}

	if c.RPCCallTimeout, err = parseDuration("RPC_CALL_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if c.RootVersionTTL, err = parseDuration("ROOT_VERSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.WatchInterval, err = parseDuration("WATCH_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if c.RootVersionOrder, err = types.ParseRootVersionOrder(envOr("ROOT_VERSION_ORDER", "0x01,0x00")); err != nil {
		return nil, fmt.Errorf("failed to parse ROOT_VERSION_ORDER: %w", err)
	}
	if len(c.RootVersionOrder) == 0 {
		return nil, errors.New("ROOT_VERSION_ORDER lists no versions")
	}

	minBalance, ok := new(big.Int).SetString(envOr("MIN_L1_BALANCE_WEI", "1000000000000000"), 10)
	if !ok || minBalance.Sign() < 0 {
		return nil, fmt.Errorf("failed to parse MIN_L1_BALANCE_WEI: %q", os.Getenv("MIN_L1_BALANCE_WEI"))
	}
	c.MinL1BalanceWei = minBalance

	if c.GasLimitMultiplier, err = strconv.ParseFloat(envOr("GAS_LIMIT_MULTIPLIER", "1.2"), 64); err != nil {
		return nil, fmt.Errorf("failed to parse GAS_LIMIT_MULTIPLIER: %w", err)
	}
	if c.GasLimitMultiplier < 1 {
		return nil, fmt.Errorf("GAS_LIMIT_MULTIPLIER must be at least 1, got %v", c.GasLimitMultiplier)
	}

	if c.LogLevel, err = ParseLogLevel(os.Getenv("LOG_LEVEL")); err != nil {
		return nil, err
	}

	return c, nil
}

// ParseLogLevel accepts debug, info, warn or error. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("failed to parse LOG_LEVEL: %w", err)
	}
	return level, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	return d, nil
}
