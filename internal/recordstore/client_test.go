package recordstore_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"basedgift/offchain/internal/config"
	"basedgift/offchain/internal/models"
	"basedgift/offchain/internal/recordstore"
	"basedgift/offchain/internal/store"
)

// memStore mirrors the store handler's persistence surface in memory.
type memStore struct {
	mu      sync.Mutex
	records map[string]*models.GiftRecord
}

func (s *memStore) CreateGift(ctx context.Context, record *models.GiftRecord) (*models.GiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	clone.CreatedAt = time.Now()
	s.records[record.ID] = &clone
	return &clone, nil
}

func (s *memStore) GetGift(ctx context.Context, id string) (*models.GiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (s *memStore) UpdateGiftClaimed(ctx context.Context, id, receiverAddress, claimTxHash string) (*models.GiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	record.Status = models.RecordStatusClaimed
	record.ReceiverAddress = &receiverAddress
	record.ClaimTxHash = &claimTxHash
	clone := *record
	return &clone, nil
}

func newClientFixture(t *testing.T) *recordstore.Client {
	t.Helper()
	logger := zap.NewNop()
	handler := store.NewHandler(&memStore{records: make(map[string]*models.GiftRecord)}, logger)
	server := httptest.NewServer(store.SetupRouter(handler, logger))
	t.Cleanup(server.Close)

	return recordstore.NewClient(config.RecordStoreConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	}, logger)
}

func TestClientRoundTrip(t *testing.T) {
	client := newClientFixture(t)
	ctx := context.Background()

	record := &models.GiftRecord{
		ID:            "abc123xyz",
		OnChainID:     "0x0000000000000000000000000000000000000000000000616263313233787a",
		ChainID:       8453,
		SenderAddress: "0x1111111111111111111111111111111111111111",
		TokenType:     models.AssetUSDC,
		Amount:        "25",
	}

	stored, err := client.Create(ctx, record)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if stored.Status != models.RecordStatusCreated {
		t.Errorf("expected status created, got %s", stored.Status)
	}

	fetched, err := client.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.ID != record.ID {
		t.Fatalf("unexpected fetch result: %+v", fetched)
	}

	updated, err := client.MarkClaimed(ctx, record.ID, "0x2222222222222222222222222222222222222222", "0xclaimhash")
	if err != nil {
		t.Fatalf("MarkClaimed failed: %v", err)
	}
	if updated.Status != models.RecordStatusClaimed {
		t.Errorf("expected status claimed, got %s", updated.Status)
	}
	if updated.ReceiverAddress == nil || *updated.ReceiverAddress != "0x2222222222222222222222222222222222222222" {
		t.Errorf("receiver not recorded: %v", updated.ReceiverAddress)
	}
}

func TestClientGetAbsent(t *testing.T) {
	client := newClientFixture(t)

	record, err := client.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get must not error on absent record: %v", err)
	}
	if record != nil {
		t.Errorf("expected nil record, got %+v", record)
	}
}

func TestClientValidationError(t *testing.T) {
	client := newClientFixture(t)

	_, err := client.Create(context.Background(), &models.GiftRecord{
		// missing required fields
		TokenType: models.AssetUSDC,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *recordstore.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if verr.Field != "id" {
		t.Errorf("expected field id, got %q", verr.Field)
	}
}

func TestClientMarkClaimedDefaultsPending(t *testing.T) {
	client := newClientFixture(t)
	ctx := context.Background()

	record := &models.GiftRecord{
		ID:            "gift-pending",
		ChainID:       8453,
		SenderAddress: "0x1111111111111111111111111111111111111111",
		TokenType:     models.AssetETH,
		Amount:        "0.5",
	}
	if _, err := client.Create(ctx, record); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated, err := client.MarkClaimed(ctx, record.ID, "0x2222222222222222222222222222222222222222", "")
	if err != nil {
		t.Fatalf("MarkClaimed failed: %v", err)
	}
	if updated.ClaimTxHash == nil || *updated.ClaimTxHash != models.ClaimTxPending {
		t.Errorf("expected pending placeholder, got %v", updated.ClaimTxHash)
	}
}

func TestClientNotFoundOnClaim(t *testing.T) {
	client := newClientFixture(t)

	_, err := client.MarkClaimed(context.Background(), "missing", "0x2", "0xhash")
	if !errors.Is(err, recordstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
