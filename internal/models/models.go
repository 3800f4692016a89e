package models

import (
	"math/big"
	"time"
)

// AssetKind identifies what kind of asset a gift holds
type AssetKind string

const (
	AssetUSDC AssetKind = "USDC"
	AssetETH  AssetKind = "ETH"
	AssetNFT  AssetKind = "NFT"
)

// RecordStatus is the off-chain status tracked by the record store.
// Refund and expiry are contract-only and never mirrored here.
type RecordStatus string

const (
	RecordStatusCreated RecordStatus = "created"
	RecordStatusClaimed RecordStatus = "claimed"
)

// ClaimTxPending is the placeholder accepted by the record store's claim
// PATCH when the real transaction hash is not yet known.
const ClaimTxPending = "pending"

// VisualAssets holds purely cosmetic presentation data. Opaque to the
// workflows; stored as JSON by the record store.
type VisualAssets struct {
	SenderName string `json:"senderName,omitempty"`
	BgImage    string `json:"bgImage,omitempty"`
	Sticker    string `json:"sticker,omitempty"`
}

// GiftRecord is the off-chain gift record. It deliberately has no field for
// the claim secret: the secret lives only in the share link.
type GiftRecord struct {
	ID              string        `json:"id" db:"id"`
	OnChainID       string        `json:"giftId" db:"on_chain_id"` // bytes32 hex, contract-side key
	ChainID         int64         `json:"chainId" db:"chain_id"`
	GiftLink        string        `json:"giftLink,omitempty" db:"gift_link"`
	SenderAddress   string        `json:"senderAddress" db:"sender_address"`
	ReceiverAddress *string       `json:"receiverAddress,omitempty" db:"receiver_address"`
	TokenType       AssetKind     `json:"tokenType" db:"token_type"`
	TokenAddress    *string       `json:"tokenAddress,omitempty" db:"token_address"` // ERC20/ERC721 contract, nil for ETH
	TokenID         *string       `json:"tokenId,omitempty" db:"token_id"`           // NFT only
	Amount          string        `json:"amount" db:"amount"`                        // decimal string, "0" for NFT
	Message         string        `json:"message,omitempty" db:"message"`
	ColorStart      string        `json:"colorStart,omitempty" db:"color_start"`
	ColorEnd        string        `json:"colorEnd,omitempty" db:"color_end"`
	Emoji           string        `json:"emoji,omitempty" db:"emoji"`
	VisualAssets    *VisualAssets `json:"visualAssets,omitempty" db:"-"`
	Status          RecordStatus  `json:"status" db:"status"`
	EscrowTxHash    *string       `json:"escrowTxHash,omitempty" db:"escrow_tx_hash"`
	ClaimTxHash     *string       `json:"claimTxHash,omitempty" db:"claim_tx_hash"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
}

// GiftState is the on-chain gift state returned by the escrow contract's
// getGiftInfo view. This is the authoritative source for claimed/refunded.
type GiftState struct {
	Sender          string
	TokenAddress    string
	AmountOrTokenID *big.Int
	IsNFT           bool
	Claimed         bool
	Refunded        bool
	CreatedAt       time.Time
}

// EffectiveGiftStatus is the status derived by reconciling the off-chain
// record with on-chain state. Never persisted, recomputed on every read.
type EffectiveGiftStatus string

const (
	StatusLoading        EffectiveGiftStatus = "loading"
	StatusNotFound       EffectiveGiftStatus = "not-found"
	StatusReadyToClaim   EffectiveGiftStatus = "ready-to-claim"
	StatusWrongNetwork   EffectiveGiftStatus = "wrong-network"
	StatusAlreadyClaimed EffectiveGiftStatus = "already-claimed"
	StatusRefunded       EffectiveGiftStatus = "refunded"
	StatusError          EffectiveGiftStatus = "error"
)

// Terminal reports whether the status can never change again.
func (s EffectiveGiftStatus) Terminal() bool {
	return s == StatusAlreadyClaimed || s == StatusRefunded
}
