package api

import (
	"time"

	"basedgift/offchain/internal/models"
)

// ==================== Health ====================

// HealthResponse represents service health status
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ==================== Gift Creation ====================

// CreateGiftRequest represents a request to create a gift
type CreateGiftRequest struct {
	ChainID int64  `json:"chain_id"`
	Asset   string `json:"asset"`  // USDC, ETH or NFT
	Amount  string `json:"amount"` // decimal string, USDC/ETH only

	NFTAddress string `json:"nft_address,omitempty"`
	NFTTokenID string `json:"nft_token_id,omitempty"`

	Message      string               `json:"message,omitempty"`
	ColorStart   string               `json:"color_start,omitempty"`
	ColorEnd     string               `json:"color_end,omitempty"`
	Emoji        string               `json:"emoji,omitempty"`
	VisualAssets *models.VisualAssets `json:"visual_assets,omitempty"`
}

// CreateGiftResponse represents a created gift. The share link carries the
// claim secret; it appears here and nowhere else.
type CreateGiftResponse struct {
	ID              string `json:"id"`
	ShareLink       string `json:"share_link"`
	DepositTxHash   string `json:"deposit_tx_hash"`
	ChainID         int64  `json:"chain_id"`
	RecordPersisted bool   `json:"record_persisted"`
}

// ==================== Gift Claim ====================

// ClaimGiftRequest carries the secret parsed from a share link
type ClaimGiftRequest struct {
	Secret string `json:"secret"`
}

// ClaimGiftResponse represents a finished claim
type ClaimGiftResponse struct {
	ID              string             `json:"id"`
	ClaimTxHash     string             `json:"claim_tx_hash,omitempty"`
	ReceiverAddress string             `json:"receiver_address,omitempty"`
	AlreadyOpened   bool               `json:"already_opened"`
	Gift            *models.GiftRecord `json:"gift,omitempty"`
}

// ==================== Gift Status ====================

// GiftStatusResponse represents the reconciled status of a gift. ExpiresAt
// is present while the gift is claimable and marks when it becomes
// refundable to the sender.
type GiftStatusResponse struct {
	ID        string                     `json:"id"`
	Status    models.EffectiveGiftStatus `json:"status"`
	Gift      *models.GiftRecord         `json:"gift,omitempty"`
	ExpiresAt *time.Time                 `json:"expires_at,omitempty"`
}

// ==================== Errors ====================

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
