package workflow

import (
	"context"
	"math/big"

	"basedgift/offchain/internal/models"
)

// EscrowGateway is the chain capability the workflows consume: sign and
// broadcast the escrow's entry points, wait for confirmation, read contract
// state. One gateway per network; evm.Escrow is the production
// implementation, tests substitute fakes.
//
// Every mutating call confirms on-chain before returning. Failures are
// distinguishable: *evm.RevertError for mined reverts (with the contract's
// reason), evm.ErrConfirmationTimeout for unresolved waits, other errors for
// signer/broadcast problems.
type EscrowGateway interface {
	ChainID() int64
	SenderAddress() string

	ETHBalance(ctx context.Context) (*big.Int, error)
	USDCBalance(ctx context.Context) (*big.Int, error)

	ApproveUSDC(ctx context.Context, amount *big.Int) (string, error)
	ApproveNFT(ctx context.Context, nftAddress string, tokenID *big.Int) (string, error)

	DepositUSDC(ctx context.Context, giftKey, secretHash [32]byte, amount *big.Int) (string, error)
	DepositETH(ctx context.Context, giftKey, secretHash [32]byte, amount *big.Int) (string, error)
	DepositNFT(ctx context.Context, giftKey, secretHash [32]byte, nftAddress string, tokenID *big.Int) (string, error)

	ClaimGift(ctx context.Context, giftKey [32]byte, secret []byte) (string, error)
	GiftInfo(ctx context.Context, giftKey [32]byte) (*models.GiftState, error)
}

// GatewayProvider exposes the per-chain gateways plus the active-chain
// notion: which network the wallet is currently on, and switching it, which
// the wallet's owner may decline.
type GatewayProvider interface {
	ActiveChainID() int64
	Gateway(chainID int64) (EscrowGateway, bool)
	Switch(ctx context.Context, chainID int64) (EscrowGateway, error)
}

// RecordStore is the off-chain record persistence the workflows consume.
// Get returns (nil, nil) when the record is absent.
type RecordStore interface {
	Create(ctx context.Context, record *models.GiftRecord) (*models.GiftRecord, error)
	Get(ctx context.Context, id string) (*models.GiftRecord, error)
	MarkClaimed(ctx context.Context, id, receiverAddress, claimTxHash string) (*models.GiftRecord, error)
}
