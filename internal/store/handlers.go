package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"basedgift/offchain/internal/models"
)

// GiftStore is the persistence surface the handlers need. *DB implements
// it; tests use an in-memory substitute.
type GiftStore interface {
	CreateGift(ctx context.Context, record *models.GiftRecord) (*models.GiftRecord, error)
	GetGift(ctx context.Context, id string) (*models.GiftRecord, error)
	UpdateGiftClaimed(ctx context.Context, id, receiverAddress, claimTxHash string) (*models.GiftRecord, error)
}

// Handler serves the gift record REST surface
type Handler struct {
	store  GiftStore
	logger *zap.Logger
}

// NewHandler creates a record store handler
func NewHandler(store GiftStore, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// validationError is the 400 body: {message, field}
type validationError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// claimUpdate is the PATCH body for marking a gift claimed
type claimUpdate struct {
	Status          string `json:"status"`
	ReceiverAddress string `json:"receiverAddress"`
	ClaimTxHash     string `json:"claimTxHash"`
}

// HandleCreateGift handles POST /api/gifts
func (h *Handler) HandleCreateGift(w http.ResponseWriter, r *http.Request) {
	var record models.GiftRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeValidationError(w, "invalid request body", "")
		return
	}

	if field, message := validateNewGift(&record); field != "" {
		writeValidationError(w, message, field)
		return
	}

	// New records always start as created regardless of what the caller
	// sent. Claimed is reachable only through the claim PATCH.
	record.Status = models.RecordStatusCreated
	record.ReceiverAddress = nil
	record.ClaimTxHash = nil

	stored, err := h.store.CreateGift(r.Context(), &record)
	if err != nil {
		h.logger.Error("Failed to create gift record",
			zap.String("gift_id", record.ID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store gift")
		return
	}

	h.logger.Info("Gift record created",
		zap.String("gift_id", stored.ID),
		zap.Int64("chain_id", stored.ChainID),
		zap.String("token_type", string(stored.TokenType)))

	writeJSON(w, http.StatusCreated, stored)
}

// HandleGetGift handles GET /api/gifts/{giftId}
func (h *Handler) HandleGetGift(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["giftId"]

	record, err := h.store.GetGift(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load gift record",
			zap.String("gift_id", id),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load gift")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "gift not found")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// HandleClaimGift handles PATCH /api/gifts/{giftId}/claim
func (h *Handler) HandleClaimGift(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["giftId"]

	var update claimUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeValidationError(w, "invalid request body", "")
		return
	}

	if update.Status != string(models.RecordStatusClaimed) {
		writeValidationError(w, `status must be "claimed"`, "status")
		return
	}
	if update.ReceiverAddress == "" {
		writeValidationError(w, "receiverAddress is required", "receiverAddress")
		return
	}
	if update.ClaimTxHash == "" {
		update.ClaimTxHash = models.ClaimTxPending
	}
	if update.ClaimTxHash != models.ClaimTxPending && !strings.HasPrefix(update.ClaimTxHash, "0x") {
		writeValidationError(w, `claimTxHash must be a 0x-prefixed hash or "pending"`, "claimTxHash")
		return
	}

	record, err := h.store.UpdateGiftClaimed(r.Context(), id, update.ReceiverAddress, update.ClaimTxHash)
	if err != nil {
		h.logger.Error("Failed to update gift record",
			zap.String("gift_id", id),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update gift")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "gift not found")
		return
	}

	h.logger.Info("Gift record claimed",
		zap.String("gift_id", id),
		zap.String("receiver", update.ReceiverAddress))

	writeJSON(w, http.StatusOK, record)
}

func validateNewGift(record *models.GiftRecord) (field, message string) {
	switch {
	case record.ID == "":
		return "id", "id is required"
	case record.ChainID == 0:
		return "chainId", "chainId is required"
	case record.SenderAddress == "":
		return "senderAddress", "senderAddress is required"
	case record.Amount == "":
		return "amount", "amount is required"
	}

	switch record.TokenType {
	case models.AssetUSDC, models.AssetETH, models.AssetNFT:
	default:
		return "tokenType", fmt.Sprintf("unknown token type %q", record.TokenType)
	}

	if record.TokenType == models.AssetNFT {
		if record.TokenAddress == nil || *record.TokenAddress == "" {
			return "tokenAddress", "tokenAddress is required for NFT gifts"
		}
		if record.TokenID == nil || *record.TokenID == "" {
			return "tokenId", "tokenId is required for NFT gifts"
		}
	}

	return "", ""
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}

func writeValidationError(w http.ResponseWriter, message, field string) {
	writeJSON(w, http.StatusBadRequest, validationError{Message: message, Field: field})
}
