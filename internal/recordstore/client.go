// Package recordstore is the typed HTTP client for the off-chain gift
// record store. The store holds display metadata and the human-friendly id
// mapping only; claim secrets never travel through it.
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"basedgift/offchain/internal/config"
	"basedgift/offchain/internal/models"
)

// ErrNotFound reports a 404 from the record store.
var ErrNotFound = errors.New("gift record not found")

// ValidationError is the store's 400 response: {message, field}.
type ValidationError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record store rejected request: %s", e.Message)
	}
	return fmt.Sprintf("record store rejected field %s: %s", e.Field, e.Message)
}

// Client talks to the record store's REST surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a record store client.
func NewClient(cfg config.RecordStoreConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("recordstore"),
	}
}

// claimUpdate is the PATCH body for marking a record claimed.
type claimUpdate struct {
	Status          models.RecordStatus `json:"status"`
	ReceiverAddress string              `json:"receiverAddress"`
	ClaimTxHash     string              `json:"claimTxHash"`
}

// Create stores a new gift record. Returns the stored record from the 201
// response.
func (c *Client) Create(ctx context.Context, record *models.GiftRecord) (*models.GiftRecord, error) {
	var stored models.GiftRecord
	if err := c.do(ctx, http.MethodPost, "/api/gifts", record, http.StatusCreated, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Get fetches a record by id. Returns (nil, nil) when the record is absent.
func (c *Client) Get(ctx context.Context, id string) (*models.GiftRecord, error) {
	var record models.GiftRecord
	err := c.do(ctx, http.MethodGet, "/api/gifts/"+url.PathEscape(id), nil, http.StatusOK, &record)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarkClaimed PATCHes the record to claimed. claimTxHash must be a
// 0x-prefixed transaction hash or the literal "pending".
func (c *Client) MarkClaimed(ctx context.Context, id, receiverAddress, claimTxHash string) (*models.GiftRecord, error) {
	if claimTxHash == "" {
		claimTxHash = models.ClaimTxPending
	}

	body := claimUpdate{
		Status:          models.RecordStatusClaimed,
		ReceiverAddress: receiverAddress,
		ClaimTxHash:     claimTxHash,
	}

	var updated models.GiftRecord
	if err := c.do(ctx, http.MethodPatch, "/api/gifts/"+url.PathEscape(id)+"/claim", body, http.StatusOK, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, wantStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("record store request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == wantStatus:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode record store response: %w", err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)

	case resp.StatusCode == http.StatusBadRequest:
		var validation ValidationError
		if err := json.NewDecoder(resp.Body).Decode(&validation); err != nil || validation.Message == "" {
			validation.Message = "invalid request"
		}
		return &validation

	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("Unexpected record store response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("record store returned status %d: %s", resp.StatusCode, string(raw))
	}
}
