package workflow

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"basedgift/offchain/internal/blockchain/evm"
	"basedgift/offchain/internal/lifecycle"
	"basedgift/offchain/internal/models"
	"basedgift/offchain/internal/secret"
)

type claimFixture struct {
	wf       *ClaimWorkflow
	gw       *fakeGateway
	provider *fakeProvider
	records  *fakeRecords
	markers  *lifecycle.Markers

	giftID string
	secret string
}

// seedGift plants a created USDC gift in both the record store and the
// fake chain, the way a finished creation workflow would leave them.
func seedGift(t *testing.T, gw *fakeGateway, records *fakeRecords, chainID int64) (string, string) {
	t.Helper()

	giftID, err := secret.NewGiftID()
	if err != nil {
		t.Fatalf("NewGiftID: %v", err)
	}
	claimSecret, err := secret.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	giftKey, err := secret.DeriveOnChainID(giftID)
	if err != nil {
		t.Fatalf("DeriveOnChainID: %v", err)
	}

	gw.gifts[giftKey] = &models.GiftState{
		Sender:          "0x9999999999999999999999999999999999999999",
		TokenAddress:    gw.usdc,
		AmountOrTokenID: big.NewInt(25_000000),
	}

	onChainHex, _ := secret.OnChainIDHex(giftID)
	records.records[giftID] = &models.GiftRecord{
		ID:            giftID,
		OnChainID:     onChainHex,
		ChainID:       chainID,
		SenderAddress: "0x9999999999999999999999999999999999999999",
		TokenType:     models.AssetUSDC,
		Amount:        "25",
		Status:        models.RecordStatusCreated,
	}

	return giftID, claimSecret
}

func newClaimFixture(t *testing.T) *claimFixture {
	t.Helper()
	gw := newFakeGateway(8453)
	provider := newFakeProvider(gw)
	records := newFakeRecords()
	markers := lifecycle.NewMarkers()
	wf := NewClaimWorkflow(provider, records, markers, zap.NewNop())

	giftID, claimSecret := seedGift(t, gw, records, 8453)

	return &claimFixture{
		wf:       wf,
		gw:       gw,
		provider: provider,
		records:  records,
		markers:  markers,
		giftID:   giftID,
		secret:   claimSecret,
	}
}

func TestClaimHappyPath(t *testing.T) {
	f := newClaimFixture(t)

	result, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.AlreadyOpened {
		t.Error("first claim must not report already opened")
	}
	if result.ClaimTxHash == "" {
		t.Error("expected a claim tx hash")
	}
	if result.ReceiverAddress != f.gw.sender {
		t.Errorf("expected receiver %s, got %s", f.gw.sender, result.ReceiverAddress)
	}
	if f.gw.claimCalls != 1 {
		t.Errorf("expected 1 claim transaction, got %d", f.gw.claimCalls)
	}

	// Both sides converge on claimed.
	if result.Record.Status != models.RecordStatusClaimed {
		t.Errorf("expected record status claimed, got %s", result.Record.Status)
	}
	giftKey, _ := secret.DeriveOnChainID(f.giftID)
	state, _ := f.gw.GiftInfo(context.Background(), giftKey)
	if !state.Claimed {
		t.Error("expected gift claimed on-chain")
	}
	if !f.markers.AlreadyClaimed(f.giftID) {
		t.Error("expected a claim marker")
	}
}

func TestClaimMissingSecret(t *testing.T) {
	f := newClaimFixture(t)

	_, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID})
	if err == nil {
		t.Fatal("expected invalid-secret error")
	}
	werr := asWorkflowError(t, err)
	if werr.Reason != ReasonInvalidSecret {
		t.Errorf("expected reason %s, got %s", ReasonInvalidSecret, werr.Reason)
	}
	if f.gw.claimCalls != 0 {
		t.Errorf("expected no claim transaction, got %d", f.gw.claimCalls)
	}
}

func TestClaimUnknownGift(t *testing.T) {
	f := newClaimFixture(t)

	_, err := f.wf.Run(context.Background(), ClaimInput{GiftID: "no-such-gift-id-here", Secret: f.secret})
	if err == nil {
		t.Fatal("expected not-found error")
	}
	werr := asWorkflowError(t, err)
	if werr.Reason != ReasonNotFound {
		t.Errorf("expected reason %s, got %s", ReasonNotFound, werr.Reason)
	}
}

func TestClaimSecondAttemptShortCircuits(t *testing.T) {
	f := newClaimFixture(t)

	first, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	second, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
	if err != nil {
		t.Fatalf("second claim must resolve, not fail: %v", err)
	}
	if !second.AlreadyOpened {
		t.Error("second claim must report already opened")
	}
	if f.gw.claimCalls != 1 {
		t.Errorf("second claim must not submit a transaction, got %d claims", f.gw.claimCalls)
	}
	if second.ClaimTxHash != first.ClaimTxHash {
		t.Errorf("second claim tx %q does not match first %q", second.ClaimTxHash, first.ClaimTxHash)
	}
}

func TestClaimStaleRecordStillBlocked(t *testing.T) {
	// The record store says created but the chain says claimed. The chain
	// wins: no transaction is submitted.
	f := newClaimFixture(t)

	giftKey, _ := secret.DeriveOnChainID(f.giftID)
	f.gw.gifts[giftKey].Claimed = true

	result, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
	if err != nil {
		t.Fatalf("expected already-opened resolution, got error: %v", err)
	}
	if !result.AlreadyOpened {
		t.Error("expected already opened")
	}
	if f.gw.claimCalls != 0 {
		t.Errorf("expected no claim transaction, got %d", f.gw.claimCalls)
	}
}

func TestClaimRefundedGift(t *testing.T) {
	f := newClaimFixture(t)

	giftKey, _ := secret.DeriveOnChainID(f.giftID)
	f.gw.gifts[giftKey].Refunded = true

	_, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
	if err == nil {
		t.Fatal("expected refunded error")
	}
	werr := asWorkflowError(t, err)
	if werr.Reason != ReasonRefunded {
		t.Errorf("expected reason %s, got %s", ReasonRefunded, werr.Reason)
	}
	if f.gw.claimCalls != 0 {
		t.Errorf("expected no claim transaction, got %d", f.gw.claimCalls)
	}
}

func TestClaimRaceLoserResolvesAlreadyClaimed(t *testing.T) {
	// Two claimants race. The contract lets exactly one through; the loser's
	// revert is translated to already-claimed and marked locally.
	f := newClaimFixture(t)

	var wg sync.WaitGroup
	results := make([]*ClaimResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
		}(i)
	}
	wg.Wait()

	if f.gw.claimCalls > 2 {
		t.Errorf("expected at most 2 claim transactions, got %d", f.gw.claimCalls)
	}

	winners := 0
	for i := 0; i < 2; i++ {
		if errs[i] == nil && !results[i].AlreadyOpened {
			winners++
			continue
		}
		if errs[i] != nil {
			werr := asWorkflowError(t, errs[i])
			if werr.Reason != ReasonAlreadyClaimed {
				t.Errorf("loser got reason %s, want %s", werr.Reason, ReasonAlreadyClaimed)
			}
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly 1 winning claim, got %d", winners)
	}
	if !f.markers.AlreadyClaimed(f.giftID) {
		t.Error("expected a claim marker after the race")
	}
}

func TestClaimSwitchesToGiftChain(t *testing.T) {
	base := newFakeGateway(8453)
	sepolia := newFakeGateway(84532)
	provider := newFakeProvider(base, sepolia) // base active
	records := newFakeRecords()
	markers := lifecycle.NewMarkers()
	wf := NewClaimWorkflow(provider, records, markers, zap.NewNop())

	giftID, claimSecret := seedGift(t, sepolia, records, 84532)

	result, err := wf.Run(context.Background(), ClaimInput{GiftID: giftID, Secret: claimSecret})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if provider.ActiveChainID() != 84532 {
		t.Errorf("expected active chain 84532 after switch, got %d", provider.ActiveChainID())
	}
	if sepolia.claimCalls != 1 || base.claimCalls != 0 {
		t.Errorf("claim landed on the wrong chain: sepolia=%d base=%d",
			sepolia.claimCalls, base.claimCalls)
	}
	if result.ClaimTxHash == "" {
		t.Error("expected a claim tx hash")
	}
}

func TestClaimSwitchDeclined(t *testing.T) {
	base := newFakeGateway(8453)
	sepolia := newFakeGateway(84532)
	provider := newFakeProvider(base, sepolia)
	records := newFakeRecords()
	wf := NewClaimWorkflow(provider, records, lifecycle.NewMarkers(), zap.NewNop())

	giftID, claimSecret := seedGift(t, sepolia, records, 84532)
	provider.switchErr = &evm.RevertError{Reason: "user rejected the request"}

	_, err := wf.Run(context.Background(), ClaimInput{GiftID: giftID, Secret: claimSecret})
	if err == nil {
		t.Fatal("expected wrong-network error")
	}
	werr := asWorkflowError(t, err)
	if werr.Reason != ReasonWrongNetwork {
		t.Errorf("expected reason %s, got %s", ReasonWrongNetwork, werr.Reason)
	}
	if sepolia.claimCalls != 0 {
		t.Errorf("expected no claim transaction, got %d", sepolia.claimCalls)
	}
}

func TestClaimInvalidSecretRevert(t *testing.T) {
	f := newClaimFixture(t)
	f.gw.claimErr = &evm.RevertError{Reason: "Invalid secret"}

	_, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
	if err == nil {
		t.Fatal("expected invalid-secret error")
	}
	werr := asWorkflowError(t, err)
	if werr.Reason != ReasonInvalidSecret {
		t.Errorf("expected reason %s, got %s", ReasonInvalidSecret, werr.Reason)
	}
	if f.markers.AlreadyClaimed(f.giftID) {
		t.Error("invalid secret must not mark the gift claimed")
	}
}

func TestClaimExpiredRevert(t *testing.T) {
	f := newClaimFixture(t)
	f.gw.claimErr = &evm.RevertError{Reason: "Gift has expired"}

	_, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
	if err == nil {
		t.Fatal("expected expired error")
	}
	werr := asWorkflowError(t, err)
	if werr.Reason != ReasonExpired {
		t.Errorf("expected reason %s, got %s", ReasonExpired, werr.Reason)
	}
}

func TestClaimRecordUpdateFailureStillOpens(t *testing.T) {
	f := newClaimFixture(t)
	f.records.markErr = &mockHTTPError{}

	result, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret})
	if err != nil {
		t.Fatalf("record update failure after confirmed claim must not fail: %v", err)
	}
	if result.ClaimTxHash == "" {
		t.Error("expected a claim tx hash")
	}
	if !f.markers.AlreadyClaimed(f.giftID) {
		t.Error("expected a claim marker despite record update failure")
	}
}

func TestClaimStatus(t *testing.T) {
	f := newClaimFixture(t)

	view, err := f.wf.Status(context.Background(), f.giftID, 8453)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.Status != models.StatusReadyToClaim {
		t.Errorf("expected %s, got %s", models.StatusReadyToClaim, view.Status)
	}
	if view.Record == nil {
		t.Fatal("expected a record")
	}

	// Wrong wallet chain.
	view, err = f.wf.Status(context.Background(), f.giftID, 1)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.Status != models.StatusWrongNetwork {
		t.Errorf("expected %s, got %s", models.StatusWrongNetwork, view.Status)
	}

	// Unknown gift.
	view, err = f.wf.Status(context.Background(), "missing-gift", 8453)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.Status != models.StatusNotFound || view.Record != nil {
		t.Errorf("expected not-found with nil record, got %s / %v", view.Status, view.Record)
	}

	// After a claim, terminal regardless of wallet chain.
	if _, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	view, err = f.wf.Status(context.Background(), f.giftID, 1)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.Status != models.StatusAlreadyClaimed {
		t.Errorf("expected %s, got %s", models.StatusAlreadyClaimed, view.Status)
	}
}

func TestClaimStatusReportsExpiry(t *testing.T) {
	f := newClaimFixture(t)
	f.gw.expiry = 30 * 24 * time.Hour

	createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	giftKey, _ := secret.DeriveOnChainID(f.giftID)
	f.gw.gifts[giftKey].CreatedAt = createdAt

	view, err := f.wf.Status(context.Background(), f.giftID, 8453)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.ExpiresAt == nil {
		t.Fatal("expected an expiry for a claimable gift")
	}
	if want := createdAt.Add(30 * 24 * time.Hour); !view.ExpiresAt.Equal(want) {
		t.Errorf("expiry %s, want %s", view.ExpiresAt, want)
	}

	// Terminal statuses carry no window.
	if _, err := f.wf.Run(context.Background(), ClaimInput{GiftID: f.giftID, Secret: f.secret}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	view, err = f.wf.Status(context.Background(), f.giftID, 8453)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if view.ExpiresAt != nil {
		t.Errorf("claimed gift must carry no expiry, got %s", view.ExpiresAt)
	}
}
