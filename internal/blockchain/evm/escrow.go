package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"basedgift/offchain/internal/config"
	"basedgift/offchain/internal/models"
)

// EscrowABI is the gift escrow contract interface. Every deposit entry
// point takes the bytes32 gift key and the keccak256 digest of the claim
// secret as its first two parameters; claimGift takes the raw secret and the
// contract verifies it against the stored digest before transferring.
const EscrowABI = `[
	{
		"inputs": [
			{"name": "giftId", "type": "bytes32"},
			{"name": "secretHash", "type": "bytes32"},
			{"name": "usdcAddress", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "createUSDCGift",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "giftId", "type": "bytes32"},
			{"name": "secretHash", "type": "bytes32"}
		],
		"name": "createETHGift",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "giftId", "type": "bytes32"},
			{"name": "secretHash", "type": "bytes32"},
			{"name": "nftAddress", "type": "address"},
			{"name": "tokenId", "type": "uint256"}
		],
		"name": "createNFTGift",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "giftId", "type": "bytes32"},
			{"name": "secret", "type": "bytes"}
		],
		"name": "claimGift",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "giftId", "type": "bytes32"}],
		"name": "refundGift",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "giftId", "type": "bytes32"}],
		"name": "refundExpiredGift",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "GIFT_EXPIRY",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "giftId", "type": "bytes32"}],
		"name": "getGiftInfo",
		"outputs": [
			{"name": "sender", "type": "address"},
			{"name": "tokenAddress", "type": "address"},
			{"name": "amountOrTokenId", "type": "uint256"},
			{"name": "isNFT", "type": "bool"},
			{"name": "claimed", "type": "bool"},
			{"name": "refunded", "type": "bool"},
			{"name": "createdAt", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "giftId", "type": "bytes32"},
			{"indexed": true, "name": "sender", "type": "address"},
			{"indexed": false, "name": "tokenAddress", "type": "address"},
			{"indexed": false, "name": "amountOrTokenId", "type": "uint256"},
			{"indexed": false, "name": "isNFT", "type": "bool"}
		],
		"name": "GiftCreated",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "giftId", "type": "bytes32"},
			{"indexed": true, "name": "recipient", "type": "address"}
		],
		"name": "GiftClaimed",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "name": "giftId", "type": "bytes32"},
			{"indexed": true, "name": "sender", "type": "address"}
		],
		"name": "GiftRefunded",
		"type": "event"
	}
]`

// Fixed gas limits per call. Estimation is bypassed on purpose: for claims
// especially, estimation fails for already-claimed or expired gifts and
// would hide the revert reason.
const (
	gasApprove    = 100_000
	gasCreateUSDC = 200_000
	gasCreateETH  = 150_000
	gasCreateNFT  = 250_000
	gasClaim      = 200_000
)

// Escrow binds the gift escrow contract on one chain.
type Escrow struct {
	client      *Client
	chainConfig *config.ChainConfig
	address     common.Address
	abi         abi.ABI
	erc20       abi.ABI
	erc721      abi.ABI
	logger      *zap.Logger
}

// NewEscrow creates an escrow binding for the client's chain.
func NewEscrow(client *Client, chainCfg *config.ChainConfig, logger *zap.Logger) (*Escrow, error) {
	parsedABI, err := abi.JSON(strings.NewReader(EscrowABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}
	erc20, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	erc721, err := abi.JSON(strings.NewReader(ERC721ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC721 ABI: %w", err)
	}

	return &Escrow{
		client:      client,
		chainConfig: chainCfg,
		address:     common.HexToAddress(chainCfg.EscrowAddress),
		abi:         parsedABI,
		erc20:       erc20,
		erc721:      erc721,
		logger:      logger,
	}, nil
}

// ChainID returns the chain this escrow binding targets.
func (e *Escrow) ChainID() int64 {
	return e.client.ChainID()
}

// SenderAddress returns the signing wallet's address as a hex string.
func (e *Escrow) SenderAddress() string {
	return e.client.WalletAddress().Hex()
}

// USDCAddress returns the chain's USDC token contract address.
func (e *Escrow) USDCAddress() string {
	return e.chainConfig.USDCAddress
}

// ETHBalance returns the wallet's ETH balance.
func (e *Escrow) ETHBalance(ctx context.Context) (*big.Int, error) {
	return e.client.GetETHBalance(ctx, e.client.WalletAddress())
}

// USDCBalance returns the wallet's USDC balance.
func (e *Escrow) USDCBalance(ctx context.Context) (*big.Int, error) {
	data, err := e.erc20.Pack("balanceOf", e.client.WalletAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf: %w", err)
	}
	out, err := e.client.CallView(ctx, common.HexToAddress(e.chainConfig.USDCAddress), data)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("invalid balance response length: %d", len(out))
	}
	return new(big.Int).SetBytes(out), nil
}

// ApproveUSDC approves the escrow to pull exactly amount of USDC and waits
// for confirmation. The allowance is never unlimited.
func (e *Escrow) ApproveUSDC(ctx context.Context, amount *big.Int) (string, error) {
	data, err := e.erc20.Pack("approve", e.address, amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack approve: %w", err)
	}

	e.logger.Info("Approving USDC",
		zap.Int64("chain_id", e.ChainID()),
		zap.String("amount", amount.String()))

	txHash, err := e.client.SendAndConfirm(ctx, common.HexToAddress(e.chainConfig.USDCAddress), data, big.NewInt(0), gasApprove)
	if err != nil {
		return txHash.Hex(), err
	}
	return txHash.Hex(), nil
}

// ApproveNFT grants the escrow single-token transfer approval and waits for
// confirmation.
func (e *Escrow) ApproveNFT(ctx context.Context, nftAddress string, tokenID *big.Int) (string, error) {
	data, err := e.erc721.Pack("approve", e.address, tokenID)
	if err != nil {
		return "", fmt.Errorf("failed to pack NFT approve: %w", err)
	}

	e.logger.Info("Approving NFT transfer",
		zap.Int64("chain_id", e.ChainID()),
		zap.String("nft_address", nftAddress),
		zap.String("token_id", tokenID.String()))

	txHash, err := e.client.SendAndConfirm(ctx, common.HexToAddress(nftAddress), data, big.NewInt(0), gasApprove)
	if err != nil {
		return txHash.Hex(), err
	}
	return txHash.Hex(), nil
}

// DepositUSDC calls createUSDCGift and waits for confirmation. The contract
// pulls the funds via the prior approval.
func (e *Escrow) DepositUSDC(ctx context.Context, giftKey, secretHash [32]byte, amount *big.Int) (string, error) {
	usdc := common.HexToAddress(e.chainConfig.USDCAddress)
	data, err := e.abi.Pack("createUSDCGift", giftKey, secretHash, usdc, amount)
	if err != nil {
		return "", fmt.Errorf("failed to pack createUSDCGift: %w", err)
	}
	return e.deposit(ctx, "createUSDCGift", data, big.NewInt(0), gasCreateUSDC)
}

// DepositETH calls createETHGift with value = amount.
func (e *Escrow) DepositETH(ctx context.Context, giftKey, secretHash [32]byte, amount *big.Int) (string, error) {
	data, err := e.abi.Pack("createETHGift", giftKey, secretHash)
	if err != nil {
		return "", fmt.Errorf("failed to pack createETHGift: %w", err)
	}
	return e.deposit(ctx, "createETHGift", data, amount, gasCreateETH)
}

// DepositNFT calls createNFTGift. The token must be approved to the escrow
// first.
func (e *Escrow) DepositNFT(ctx context.Context, giftKey, secretHash [32]byte, nftAddress string, tokenID *big.Int) (string, error) {
	data, err := e.abi.Pack("createNFTGift", giftKey, secretHash, common.HexToAddress(nftAddress), tokenID)
	if err != nil {
		return "", fmt.Errorf("failed to pack createNFTGift: %w", err)
	}
	return e.deposit(ctx, "createNFTGift", data, big.NewInt(0), gasCreateNFT)
}

func (e *Escrow) deposit(ctx context.Context, method string, data []byte, value *big.Int, gasLimit uint64) (string, error) {
	e.logger.Info("Calling escrow deposit",
		zap.Int64("chain_id", e.ChainID()),
		zap.String("method", method))

	txHash, err := e.client.SendAndConfirm(ctx, e.address, data, value, gasLimit)
	if err != nil {
		return txHash.Hex(), err
	}

	e.logger.Info("Deposit confirmed",
		zap.Int64("chain_id", e.ChainID()),
		zap.String("method", method),
		zap.String("tx_hash", txHash.Hex()))

	return txHash.Hex(), nil
}

// ClaimGift calls claimGift with the raw secret and waits for confirmation.
// The contract verifies the secret against the stored digest and transfers
// the asset to the caller atomically; reverts carry the contract's reason.
func (e *Escrow) ClaimGift(ctx context.Context, giftKey [32]byte, secret []byte) (string, error) {
	data, err := e.abi.Pack("claimGift", giftKey, secret)
	if err != nil {
		return "", fmt.Errorf("failed to pack claimGift: %w", err)
	}

	e.logger.Info("Submitting claim",
		zap.Int64("chain_id", e.ChainID()))

	txHash, err := e.client.SendAndConfirm(ctx, e.address, data, big.NewInt(0), gasClaim)
	if err != nil {
		return txHash.Hex(), err
	}

	e.logger.Info("Claim confirmed",
		zap.Int64("chain_id", e.ChainID()),
		zap.String("tx_hash", txHash.Hex()))

	return txHash.Hex(), nil
}

// GiftInfo reads getGiftInfo and decodes the tuple into models.GiftState at
// this boundary; nothing past it indexes into positional outputs. A zero
// sender address means the gift does not exist on-chain, returned as nil.
func (e *Escrow) GiftInfo(ctx context.Context, giftKey [32]byte) (*models.GiftState, error) {
	data, err := e.abi.Pack("getGiftInfo", giftKey)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getGiftInfo: %w", err)
	}

	out, err := e.client.CallView(ctx, e.address, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call getGiftInfo: %w", err)
	}

	return e.decodeGiftInfo(out)
}

func (e *Escrow) decodeGiftInfo(out []byte) (*models.GiftState, error) {
	values, err := e.abi.Unpack("getGiftInfo", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getGiftInfo: %w", err)
	}
	if len(values) != 7 {
		return nil, fmt.Errorf("unexpected getGiftInfo arity: %d", len(values))
	}

	sender, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected sender type %T", values[0])
	}
	if sender == (common.Address{}) {
		return nil, nil // gift absent on-chain
	}

	tokenAddress, _ := values[1].(common.Address)
	amountOrTokenID, _ := values[2].(*big.Int)
	isNFT, _ := values[3].(bool)
	claimed, _ := values[4].(bool)
	refunded, _ := values[5].(bool)
	createdAt, _ := values[6].(*big.Int)

	state := &models.GiftState{
		Sender:          sender.Hex(),
		TokenAddress:    tokenAddress.Hex(),
		AmountOrTokenID: amountOrTokenID,
		IsNFT:           isNFT,
		Claimed:         claimed,
		Refunded:        refunded,
	}
	if createdAt != nil && createdAt.Sign() > 0 {
		state.CreatedAt = time.Unix(createdAt.Int64(), 0).UTC()
	}
	return state, nil
}

// Expiry reads the contract's fixed GIFT_EXPIRY duration.
func (e *Escrow) Expiry(ctx context.Context) (time.Duration, error) {
	data, err := e.abi.Pack("GIFT_EXPIRY")
	if err != nil {
		return 0, fmt.Errorf("failed to pack GIFT_EXPIRY: %w", err)
	}

	out, err := e.client.CallView(ctx, e.address, data)
	if err != nil {
		return 0, fmt.Errorf("failed to call GIFT_EXPIRY: %w", err)
	}

	values, err := e.abi.Unpack("GIFT_EXPIRY", out)
	if err != nil {
		return 0, fmt.Errorf("failed to decode GIFT_EXPIRY: %w", err)
	}
	seconds, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected GIFT_EXPIRY type %T", values[0])
	}
	return time.Duration(seconds.Int64()) * time.Second, nil
}
