// Package blockchain wires the per-chain EVM clients into the gateway
// provider the workflows consume.
package blockchain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"basedgift/offchain/internal/blockchain/evm"
	"basedgift/offchain/internal/config"
	"basedgift/offchain/internal/workflow"
)

// ClientSet holds one connected client and escrow binding per configured
// chain, plus the notion of an active chain: the network the wallet is
// currently on. It implements workflow.GatewayProvider.
type ClientSet struct {
	mu       sync.RWMutex
	active   int64
	clients  map[int64]*evm.Client
	gateways map[int64]*evm.Escrow
	logger   *zap.Logger
}

// NewClientSet dials every configured chain. The default chain becomes the
// active one.
func NewClientSet(cfg *config.Config, logger *zap.Logger) (*ClientSet, error) {
	logger = logger.Named("evm")

	clients := make(map[int64]*evm.Client)
	gateways := make(map[int64]*evm.Escrow)

	for chainID, chainCfg := range cfg.Chains {
		chainCfgCopy := chainCfg

		client, err := evm.NewClient(&chainCfgCopy, cfg.Wallet.PrivateKey, logger)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("failed to create EVM client for chain %d: %w", chainID, err)
		}
		clients[chainID] = client

		escrow, err := evm.NewEscrow(client, &chainCfgCopy, logger)
		if err != nil {
			for _, c := range clients {
				c.Close()
			}
			return nil, fmt.Errorf("failed to create escrow binding for chain %d: %w", chainID, err)
		}
		gateways[chainID] = escrow

		logger.Info("Connected chain",
			zap.String("chain", cfg.ChainName(chainID)),
			zap.Int64("chain_id", chainID),
			zap.Duration("confirm_timeout", client.ConfirmTimeout()))
	}

	return &ClientSet{
		active:   cfg.DefaultChainID,
		clients:  clients,
		gateways: gateways,
		logger:   logger,
	}, nil
}

// ActiveChainID returns the chain the wallet is currently on.
func (s *ClientSet) ActiveChainID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Gateway returns the escrow gateway for chainID, if configured.
func (s *ClientSet) Gateway(chainID int64) (workflow.EscrowGateway, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gw, ok := s.gateways[chainID]
	if !ok {
		return nil, false
	}
	return gw, true
}

// Switch makes chainID the active chain and returns its gateway. Switching
// to an unconfigured chain fails.
func (s *ClientSet) Switch(ctx context.Context, chainID int64) (workflow.EscrowGateway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gw, ok := s.gateways[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d is not configured", chainID)
	}

	if s.active != chainID {
		s.logger.Info("Switching active chain",
			zap.Int64("from", s.active),
			zap.Int64("to", chainID))
		s.active = chainID
	}
	return gw, nil
}

// Close closes every chain's RPC connection.
func (s *ClientSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for chainID, client := range s.clients {
		client.Close()
		s.logger.Debug("Closed EVM client", zap.Int64("chain_id", chainID))
	}
}
