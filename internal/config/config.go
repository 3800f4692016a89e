package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the service
type Config struct {
	Server      ServerConfig
	RecordStore RecordStoreConfig
	Database    DatabaseConfig
	Chains      map[int64]ChainConfig
	Wallet      WalletConfig

	// DefaultChainID is the chain the wallet starts on (the "connected"
	// network before any switch).
	DefaultChainID int64

	// ShareLinkOrigin is the origin used when building share links,
	// e.g. "https://basedgift.com".
	ShareLinkOrigin string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// RecordStoreConfig points at the off-chain gift record store.
type RecordStoreConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the record store service.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ChainConfig holds configuration for one EVM network.
type ChainConfig struct {
	ChainID       int64
	Name          string
	RPCEndpoint   string
	EscrowAddress string // gift escrow contract
	USDCAddress   string // USDC ERC20 contract

	// ConfirmTimeout bounds every confirmation wait on this chain.
	ConfirmTimeout time.Duration
}

// WalletConfig holds the signing wallet configuration.
type WalletConfig struct {
	PrivateKey string // hex, with or without 0x prefix
}

// Chain IDs of the supported networks.
const (
	ChainBase        int64 = 8453
	ChainBaseSepolia int64 = 84532
)

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		RecordStore: RecordStoreConfig{
			BaseURL: getEnv("RECORD_STORE_URL", "http://localhost:8081"),
			Timeout: getEnvDuration("RECORD_STORE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "basedgift"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Wallet: WalletConfig{
			PrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),
		},
		DefaultChainID:  int64(getEnvInt("DEFAULT_CHAIN_ID", int(ChainBaseSepolia))),
		ShareLinkOrigin: strings.TrimRight(getEnv("SHARE_LINK_ORIGIN", "https://basedgift.com"), "/"),
		Chains:          make(map[int64]ChainConfig),
	}

	loadChainConfigs(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadChainConfigs loads configuration for all supported chains
func loadChainConfigs(cfg *Config) {
	confirmTimeout := getEnvDuration("CONFIRM_TIMEOUT", 2*time.Minute)

	// Base mainnet
	if rpc := getEnv("BASE_RPC_ENDPOINT", ""); rpc != "" {
		cfg.Chains[ChainBase] = ChainConfig{
			ChainID:        ChainBase,
			Name:           "Base",
			RPCEndpoint:    rpc,
			EscrowAddress:  getEnv("BASE_ESCROW_ADDRESS", "0x2856EEC9898e66684928ADe2f42F178210BB9449"),
			USDCAddress:    getEnv("BASE_USDC_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			ConfirmTimeout: confirmTimeout,
		}
	}

	// Base Sepolia
	if rpc := getEnv("BASE_SEPOLIA_RPC_ENDPOINT", ""); rpc != "" {
		cfg.Chains[ChainBaseSepolia] = ChainConfig{
			ChainID:        ChainBaseSepolia,
			Name:           "Base Sepolia",
			RPCEndpoint:    rpc,
			EscrowAddress:  getEnv("BASE_SEPOLIA_ESCROW_ADDRESS", "0x9636A9c4bD8295071d063E82433E3d021D49D05d"),
			USDCAddress:    getEnv("BASE_SEPOLIA_USDC_ADDRESS", "0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
			ConfirmTimeout: confirmTimeout,
		}
	}
}

// RecordStoreServiceConfig is the standalone record store's configuration.
// It needs no chain or wallet settings.
type RecordStoreServiceConfig struct {
	Port     int
	Database DatabaseConfig
}

// LoadRecordStoreConfig loads configuration for the record store service
func LoadRecordStoreConfig() (*RecordStoreServiceConfig, error) {
	cfg := &RecordStoreServiceConfig{
		Port: getEnvInt("RECORD_STORE_PORT", 8081),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "basedgift"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
	}

	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid record store port: %d", cfg.Port)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.RecordStore.BaseURL == "" {
		return fmt.Errorf("record store URL is required")
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}

	if _, ok := c.Chains[c.DefaultChainID]; !ok {
		return fmt.Errorf("default chain %d is not configured", c.DefaultChainID)
	}

	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet private key is required")
	}

	for id, chain := range c.Chains {
		if chain.EscrowAddress == "" {
			return fmt.Errorf("escrow address is required for chain %d", id)
		}
	}

	return nil
}

// ChainName returns a human-readable name for a chain id.
func (c *Config) ChainName(chainID int64) string {
	if chain, ok := c.Chains[chainID]; ok {
		return chain.Name
	}
	return fmt.Sprintf("chain %d", chainID)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
