package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"basedgift/offchain/internal/config"
)

// ErrConfirmationTimeout reports that a confirmation wait ran out before a
// receipt appeared. The transaction may still land; callers treat this as a
// retryable-by-user outcome, never as success or definite failure.
var ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")

// RevertError reports a transaction that was mined and reverted. Reason is
// the contract's revert string when it could be recovered, "" otherwise.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash.Hex(), e.Reason)
}

// Client wraps Ethereum client functionality for one EVM network.
type Client struct {
	ethClient   *ethclient.Client
	chainConfig *config.ChainConfig
	privateKey  *ecdsa.PrivateKey
	fromAddress common.Address
	logger      *zap.Logger
}

// NewClient connects to the chain's RPC endpoint and prepares the signer.
func NewClient(chainCfg *config.ChainConfig, walletPrivateKey string, logger *zap.Logger) (*Client, error) {
	ethClient, err := ethclient.Dial(chainCfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint %s: %w", chainCfg.RPCEndpoint, err)
	}

	privateKeyHex := strings.TrimPrefix(walletPrivateKey, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}
	fromAddress := crypto.PubkeyToAddress(*publicKey)

	logger.Info("EVM client initialized",
		zap.Int64("chain_id", chainCfg.ChainID),
		zap.String("chain_name", chainCfg.Name),
		zap.String("wallet_address", fromAddress.Hex()))

	return &Client{
		ethClient:   ethClient,
		chainConfig: chainCfg,
		privateKey:  privateKey,
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() {
	c.ethClient.Close()
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() int64 {
	return c.chainConfig.ChainID
}

// WalletAddress returns the signing wallet's address.
func (c *Client) WalletAddress() common.Address {
	return c.fromAddress
}

// ConfirmTimeout returns the chain's confirmation wait bound.
func (c *Client) ConfirmTimeout() time.Duration {
	return c.chainConfig.ConfirmTimeout
}

// GetETHBalance returns the ETH balance of an address.
func (c *Client) GetETHBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, address, nil)
}

// CallView executes a read-only contract call.
func (c *Client) CallView(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.ethClient.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// SignAndSendTransaction creates, signs, and broadcasts a transaction with a
// fixed gas limit. Fixed limits bypass estimation, so contract-state
// failures (already claimed, expired) surface in the receipt instead of as
// opaque estimation errors.
func (c *Client) SignAndSendTransaction(
	ctx context.Context,
	to common.Address,
	data []byte,
	value *big.Int,
	gasLimit uint64,
) (common.Hash, error) {
	chainID := big.NewInt(c.chainConfig.ChainID)

	nonce, err := c.ethClient.PendingNonceAt(ctx, c.fromAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), c.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.ethClient.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Info("Transaction sent",
		zap.String("tx_hash", signedTx.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit))

	return signedTx.Hash(), nil
}

// WaitForTransaction polls for the receipt of txHash until the chain's
// confirmation timeout. Reverts and timeouts fail distinctly: a revert
// returns *RevertError with the recovered reason string, a timeout returns
// ErrConfirmationTimeout.
func (c *Client) WaitForTransaction(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.chainConfig.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, txHash.Hex())
		case <-ticker.C:
			receipt, err := c.ethClient.TransactionReceipt(waitCtx, txHash)
			if err != nil || receipt == nil {
				continue // not yet mined
			}
			if receipt.Status == types.ReceiptStatusFailed {
				reason := c.revertReason(ctx, txHash, receipt)
				return receipt, &RevertError{TxHash: txHash, Reason: reason}
			}
			return receipt, nil
		}
	}
}

// SendAndConfirm broadcasts a transaction and waits for its confirmation.
func (c *Client) SendAndConfirm(
	ctx context.Context,
	to common.Address,
	data []byte,
	value *big.Int,
	gasLimit uint64,
) (common.Hash, error) {
	txHash, err := c.SignAndSendTransaction(ctx, to, data, value, gasLimit)
	if err != nil {
		return common.Hash{}, err
	}
	if _, err := c.WaitForTransaction(ctx, txHash); err != nil {
		return txHash, err
	}
	return txHash, nil
}

// revertReason replays the failed transaction as a call at its mined block
// to recover the contract's revert string. Best-effort: an empty string
// means the reason could not be recovered.
func (c *Client) revertReason(ctx context.Context, txHash common.Hash, receipt *types.Receipt) string {
	tx, _, err := c.ethClient.TransactionByHash(ctx, txHash)
	if err != nil || tx == nil {
		return ""
	}

	msg := ethereum.CallMsg{
		From:  c.fromAddress,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}

	_, callErr := c.ethClient.CallContract(ctx, msg, receipt.BlockNumber)
	if callErr == nil {
		return ""
	}
	return ParseRevertReason(callErr)
}

// ParseRevertReason extracts the revert string from an RPC error message of
// the form "execution reverted: <reason>".
func ParseRevertReason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	const marker = "execution reverted"
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return ""
	}
	reason := msg[idx+len(marker):]
	reason = strings.TrimPrefix(reason, ":")
	return strings.TrimSpace(reason)
}
