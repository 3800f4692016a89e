package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"basedgift/offchain/internal/lifecycle"
	"basedgift/offchain/internal/models"
	"basedgift/offchain/internal/secret"
)

// ClaimState tracks the claim sequence.
type ClaimState string

const (
	ClaimIdle             ClaimState = "idle"
	ClaimValidating       ClaimState = "validating"
	ClaimSwitchingNetwork ClaimState = "switching-network"
	ClaimClaiming         ClaimState = "claiming"
	ClaimOpening          ClaimState = "opening"
	ClaimDone             ClaimState = "done"
	ClaimFailed           ClaimState = "failed"
)

// ClaimInput identifies the gift and carries the secret parsed from the
// share link.
type ClaimInput struct {
	GiftID string
	Secret string
}

// ClaimResult reports a finished claim. AlreadyOpened is set when the gift
// was claimed earlier in this process and no new transaction was submitted.
type ClaimResult struct {
	Record          *models.GiftRecord
	ClaimTxHash     string
	ReceiverAddress string
	AlreadyOpened   bool
}

// ClaimWorkflow verifies a gift against both the record store and the
// chain, then submits the claim transaction. A process-local marker set
// keeps concurrent claims of the same gift from double-submitting.
type ClaimWorkflow struct {
	gateways GatewayProvider
	records  RecordStore
	markers  *lifecycle.Markers
	logger   *zap.Logger
}

// NewClaimWorkflow wires a claim workflow.
func NewClaimWorkflow(gateways GatewayProvider, records RecordStore, markers *lifecycle.Markers, logger *zap.Logger) *ClaimWorkflow {
	return &ClaimWorkflow{
		gateways: gateways,
		records:  records,
		markers:  markers,
		logger:   logger.Named("claim"),
	}
}

// Run executes the claim sequence. Chain state always wins over the record
// store: a stale "created" record does not allow a second claim, and a
// missing record blocks a claim outright.
func (w *ClaimWorkflow) Run(ctx context.Context, input ClaimInput) (*ClaimResult, error) {
	state := ClaimValidating
	log := w.logger.With(zap.String("gift_id", input.GiftID))

	if input.Secret == "" {
		return nil, w.fail(log, state, failure(ReasonInvalidSecret, msgMissingSecret, nil))
	}

	secretBytes, err := secret.SecretBytes(input.Secret)
	if err != nil {
		return nil, w.fail(log, state, failure(ReasonInvalidSecret, msgMissingSecret, err))
	}
	giftKey, err := secret.DeriveOnChainID(input.GiftID)
	if err != nil {
		return nil, w.fail(log, state, failure(ReasonNotFound, msgNotFound, err))
	}

	record, err := w.records.Get(ctx, input.GiftID)
	if err != nil {
		return nil, w.fail(log, state, classifyRecordStoreError(err))
	}
	if record == nil {
		return nil, w.fail(log, state, failure(ReasonNotFound, msgNotFound, nil))
	}

	// The on-chain read must target the gift's chain, not whatever chain
	// the wallet happens to be on.
	chainState, werr := w.freshChainState(ctx, record, giftKey)
	if werr != nil {
		return nil, w.fail(log, state, werr)
	}

	status := lifecycle.Reconcile(record, lifecycle.ChainRead{State: chainState}, w.gateways.ActiveChainID())
	switch status {
	case models.StatusAlreadyClaimed:
		return w.resolveAlreadyClaimed(log, record)
	case models.StatusRefunded:
		return nil, w.fail(log, state, failure(ReasonRefunded, msgRefunded, nil))
	case models.StatusWrongNetwork:
		// Claimable, wrong active chain. Handled by the switch below.
	case models.StatusReadyToClaim:
	default:
		return nil, w.fail(log, state, failure(ReasonNotFound, msgNotFound, nil))
	}

	if w.markers.AlreadyClaimed(input.GiftID) {
		return w.resolveAlreadyClaimed(log, record)
	}

	gw, ok := w.gateways.Gateway(record.ChainID)
	if !ok || w.gateways.ActiveChainID() != record.ChainID {
		state = w.advance(log, state, ClaimSwitchingNetwork)
		gw, err = w.gateways.Switch(ctx, record.ChainID)
		if err != nil {
			return nil, w.fail(log, state, failure(ReasonWrongNetwork, msgWrongNetwork, err))
		}
	}

	// Re-check just before submitting. Another claimant may have won the
	// race while we were validating or switching networks.
	if w.markers.AlreadyClaimed(input.GiftID) {
		return w.resolveAlreadyClaimed(log, record)
	}
	if fresh, err := gw.GiftInfo(ctx, giftKey); err == nil && fresh != nil && fresh.Claimed {
		w.markers.MarkClaimed(input.GiftID)
		return w.resolveAlreadyClaimed(log, record)
	}

	state = w.advance(log, state, ClaimClaiming)

	txHash, err := gw.ClaimGift(ctx, giftKey, secretBytes)
	if err != nil {
		werr := classifyChainError(err)
		if werr.Reason == ReasonAlreadyClaimed {
			w.markers.MarkClaimed(input.GiftID)
		}
		return nil, w.fail(log, state, werr)
	}

	// Mark before anything else so a concurrent claim in this process
	// short-circuits even if the record store update below is slow.
	w.markers.MarkClaimed(input.GiftID)

	state = w.advance(log, state, ClaimOpening)

	receiver := gw.SenderAddress()
	result := &ClaimResult{
		Record:          record,
		ClaimTxHash:     txHash,
		ReceiverAddress: receiver,
	}

	updated, err := w.records.MarkClaimed(ctx, input.GiftID, receiver, txHash)
	if err != nil {
		// The claim transaction confirmed; the gift opens regardless. The
		// record store catches up from chain state on the next read.
		log.Error("Record store claim update failed after confirmed claim",
			zap.String("claim_tx", txHash),
			zap.Error(err))
	} else {
		result.Record = updated
	}

	w.advance(log, state, ClaimDone)
	log.Info("Gift claimed",
		zap.String("claim_tx", txHash),
		zap.String("receiver", receiver))

	return result, nil
}

// StatusView is the reconciled state reported by Status.
type StatusView struct {
	Status models.EffectiveGiftStatus
	Record *models.GiftRecord

	// ExpiresAt is the end of the claim window, set while the gift is
	// still claimable and the chain reported its creation time.
	ExpiresAt *time.Time
}

// Status reports the effective lifecycle status of a gift without touching
// chain state mutably. walletChainID of zero means no wallet context.
func (w *ClaimWorkflow) Status(ctx context.Context, giftID string, walletChainID int64) (*StatusView, error) {
	record, err := w.records.Get(ctx, giftID)
	if err != nil {
		return nil, classifyRecordStoreError(err)
	}
	if record == nil {
		return &StatusView{Status: models.StatusNotFound}, nil
	}
	if w.markers.AlreadyClaimed(giftID) {
		return &StatusView{Status: models.StatusAlreadyClaimed, Record: record}, nil
	}

	giftKey, err := secret.DeriveOnChainID(giftID)
	if err != nil {
		return &StatusView{Status: models.StatusError, Record: record}, nil
	}

	read := lifecycle.ChainRead{}
	var gw EscrowGateway
	if g, ok := w.gateways.Gateway(record.ChainID); ok {
		gw = g
		read.State, read.Err = gw.GiftInfo(ctx, giftKey)
	} else {
		read.Pending = true
	}

	view := &StatusView{
		Status: lifecycle.Reconcile(record, read, walletChainID),
		Record: record,
	}
	if !view.Status.Terminal() {
		view.ExpiresAt = claimWindowEnd(ctx, gw, read.State)
	}
	return view, nil
}

// claimWindowEnd derives when the gift becomes refundable to the sender.
// Gateways that do not expose the contract's expiry simply yield no window.
func claimWindowEnd(ctx context.Context, gw EscrowGateway, state *models.GiftState) *time.Time {
	if gw == nil || state == nil || state.CreatedAt.IsZero() {
		return nil
	}
	aware, ok := gw.(interface {
		Expiry(ctx context.Context) (time.Duration, error)
	})
	if !ok {
		return nil
	}
	window, err := aware.Expiry(ctx)
	if err != nil || window <= 0 {
		return nil
	}
	end := state.CreatedAt.Add(window)
	return &end
}

// freshChainState reads the gift from its home chain. A claimed or absent
// gift found here stops the workflow before any transaction is built.
func (w *ClaimWorkflow) freshChainState(ctx context.Context, record *models.GiftRecord, giftKey [32]byte) (*models.GiftState, *Error) {
	gw, ok := w.gateways.Gateway(record.ChainID)
	if !ok {
		var err error
		gw, err = w.gateways.Switch(ctx, record.ChainID)
		if err != nil {
			return nil, failure(ReasonWrongNetwork, msgWrongNetwork, err)
		}
	}
	chainState, err := gw.GiftInfo(ctx, giftKey)
	if err != nil {
		return nil, classifyChainError(err)
	}
	return chainState, nil
}

func (w *ClaimWorkflow) resolveAlreadyClaimed(log *zap.Logger, record *models.GiftRecord) (*ClaimResult, error) {
	w.markers.MarkClaimed(record.ID)
	log.Info("Claim short-circuited, gift already claimed")

	result := &ClaimResult{Record: record, AlreadyOpened: true}
	if record.ClaimTxHash != nil {
		result.ClaimTxHash = *record.ClaimTxHash
	}
	if record.ReceiverAddress != nil {
		result.ReceiverAddress = *record.ReceiverAddress
	}
	return result, nil
}

func (w *ClaimWorkflow) advance(log *zap.Logger, from, to ClaimState) ClaimState {
	log.Debug("Claim state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return to
}

func (w *ClaimWorkflow) fail(log *zap.Logger, state ClaimState, werr *Error) error {
	log.Warn("Claim failed",
		zap.String("state", string(state)),
		zap.String("reason", string(werr.Reason)),
		zap.Error(werr))
	return werr
}
