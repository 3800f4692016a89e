package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"basedgift/offchain/internal/models"
	"basedgift/offchain/internal/workflow"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	creation *workflow.CreationWorkflow
	claim    *workflow.ClaimWorkflow
	logger   *zap.Logger

	// claimLocks serializes claim attempts per gift so concurrent requests
	// for the same gift cannot both reach the transaction step.
	claimMu    sync.Mutex
	claimLocks map[string]*sync.Mutex
}

// NewHandler creates a new API handler
func NewHandler(creation *workflow.CreationWorkflow, claim *workflow.ClaimWorkflow, logger *zap.Logger) *Handler {
	return &Handler{
		creation:   creation,
		claim:      claim,
		logger:     logger,
		claimLocks: make(map[string]*sync.Mutex),
	}
}

// ==================== Health Check ====================

// HandleHealth returns service health status
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	})
}

// ==================== Gift Creation ====================

// HandleCreateGift handles POST /api/v1/gifts
func (h *Handler) HandleCreateGift(w http.ResponseWriter, r *http.Request) {
	var req CreateGiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.ChainID == 0 {
		respondError(w, http.StatusBadRequest, "chain_id is required", nil)
		return
	}
	if req.Asset == "" {
		respondError(w, http.StatusBadRequest, "asset is required", nil)
		return
	}

	h.logger.Info("Creating gift",
		zap.Int64("chain_id", req.ChainID),
		zap.String("asset", req.Asset))

	result, err := h.creation.Run(r.Context(), workflow.CreationInput{
		ChainID:      req.ChainID,
		Asset:        models.AssetKind(req.Asset),
		Amount:       req.Amount,
		NFTAddress:   req.NFTAddress,
		NFTTokenID:   req.NFTTokenID,
		Message:      req.Message,
		ColorStart:   req.ColorStart,
		ColorEnd:     req.ColorEnd,
		Emoji:        req.Emoji,
		VisualAssets: req.VisualAssets,
	})
	if err != nil {
		respondWorkflowError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateGiftResponse{
		ID:              result.Record.ID,
		ShareLink:       result.ShareLink,
		DepositTxHash:   result.DepositTxHash,
		ChainID:         result.Record.ChainID,
		RecordPersisted: result.RecordPersisted,
	})
}

// ==================== Gift Claim ====================

// HandleClaimGift handles POST /api/v1/gifts/{giftId}/claim
func (h *Handler) HandleClaimGift(w http.ResponseWriter, r *http.Request) {
	giftID := mux.Vars(r)["giftId"]

	var req ClaimGiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lock := h.lockFor(giftID)
	lock.Lock()
	defer lock.Unlock()

	result, err := h.claim.Run(r.Context(), workflow.ClaimInput{
		GiftID: giftID,
		Secret: req.Secret,
	})
	if err != nil {
		respondWorkflowError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ClaimGiftResponse{
		ID:              giftID,
		ClaimTxHash:     result.ClaimTxHash,
		ReceiverAddress: result.ReceiverAddress,
		AlreadyOpened:   result.AlreadyOpened,
		Gift:            result.Record,
	})
}

// lockFor returns the per-gift claim mutex, creating it on first use.
func (h *Handler) lockFor(giftID string) *sync.Mutex {
	h.claimMu.Lock()
	defer h.claimMu.Unlock()
	lock, ok := h.claimLocks[giftID]
	if !ok {
		lock = &sync.Mutex{}
		h.claimLocks[giftID] = lock
	}
	return lock
}

// ==================== Gift Status ====================

// HandleGiftStatus handles GET /api/v1/gifts/{giftId}/status
func (h *Handler) HandleGiftStatus(w http.ResponseWriter, r *http.Request) {
	giftID := mux.Vars(r)["giftId"]

	var walletChainID int64
	if raw := r.URL.Query().Get("wallet_chain_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid wallet_chain_id", err)
			return
		}
		walletChainID = parsed
	}

	view, err := h.claim.Status(r.Context(), giftID, walletChainID)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}

	code := http.StatusOK
	if view.Status == models.StatusNotFound {
		code = http.StatusNotFound
	}

	respondJSON(w, code, GiftStatusResponse{
		ID:        giftID,
		Status:    view.Status,
		Gift:      view.Record,
		ExpiresAt: view.ExpiresAt,
	})
}

// ==================== Helper Functions ====================

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("Failed to encode JSON response: %v\n", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}
	respondJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Message: errorMsg,
	})
}

// respondWorkflowError maps the workflow failure taxonomy onto HTTP status
// codes. The taxonomy member goes into the error field verbatim so clients
// can branch on it without parsing messages.
func respondWorkflowError(w http.ResponseWriter, err error) {
	var werr *workflow.Error
	if !errors.As(err, &werr) {
		respondError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	var code int
	switch werr.Reason {
	case workflow.ReasonValidation:
		code = http.StatusBadRequest
	case workflow.ReasonNotFound:
		code = http.StatusNotFound
	case workflow.ReasonInvalidSecret:
		code = http.StatusForbidden
	case workflow.ReasonAlreadyClaimed, workflow.ReasonRefunded,
		workflow.ReasonWrongNetwork, workflow.ReasonUserRejected:
		code = http.StatusConflict
	case workflow.ReasonExpired:
		code = http.StatusGone
	case workflow.ReasonInsufficientBalance:
		code = http.StatusPaymentRequired
	case workflow.ReasonTimeout:
		code = http.StatusGatewayTimeout
	default:
		code = http.StatusBadGateway
	}

	respondJSON(w, code, ErrorResponse{
		Error:     string(werr.Reason),
		Message:   werr.Message,
		Retryable: werr.Retryable(),
	})
}
