package workflow

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"basedgift/offchain/internal/models"
	"basedgift/offchain/internal/secret"
)

// CreationState tracks the deposit sequence. Strictly sequential; failed is
// reachable from every non-terminal state.
type CreationState string

const (
	CreationIdle       CreationState = "idle"
	CreationApproving  CreationState = "approving"
	CreationApproved   CreationState = "approved"
	CreationDepositing CreationState = "depositing"
	CreationDeposited  CreationState = "deposited"
	CreationPersisting CreationState = "persisting"
	CreationDone       CreationState = "done"
	CreationFailed     CreationState = "failed"
)

// CreationInput describes the gift to create.
type CreationInput struct {
	ChainID int64
	Asset   models.AssetKind
	Amount  string // decimal string, USDC/ETH only

	// NFT gifts
	NFTAddress string
	NFTTokenID string

	// Presentation, opaque to the workflow
	Message      string
	ColorStart   string
	ColorEnd     string
	Emoji        string
	VisualAssets *models.VisualAssets
}

// CreationResult is handed to the caller after a confirmed deposit.
type CreationResult struct {
	Record        *models.GiftRecord
	ShareLink     string
	DepositTxHash string

	// RecordPersisted is false when the deposit confirmed on-chain but the
	// record store write failed. The deposit is still truth; the share link
	// remains valid and the failure is logged, not surfaced as an error.
	RecordPersisted bool
}

// CreationWorkflow orchestrates the asset-specific deposit sequence:
// bounds check, network switch, approval, escrow deposit, confirmation,
// then record persistence. No record is ever written for an unconfirmed or
// failed deposit.
type CreationWorkflow struct {
	gateways GatewayProvider
	records  RecordStore
	origin   string
	logger   *zap.Logger
}

// NewCreationWorkflow wires a creation workflow.
func NewCreationWorkflow(gateways GatewayProvider, records RecordStore, shareLinkOrigin string, logger *zap.Logger) *CreationWorkflow {
	return &CreationWorkflow{
		gateways: gateways,
		records:  records,
		origin:   shareLinkOrigin,
		logger:   logger.Named("creation"),
	}
}

// Run executes the full creation sequence. Any step failure halts the
// machine with a typed *Error and no partial persistence.
func (w *CreationWorkflow) Run(ctx context.Context, input CreationInput) (*CreationResult, error) {
	state := CreationIdle

	amount, nftTokenID, werr := w.validate(input)
	if werr != nil {
		return nil, w.fail(state, werr)
	}

	gw, werr := w.gatewayFor(ctx, input.ChainID)
	if werr != nil {
		return nil, w.fail(state, werr)
	}

	if werr := w.checkBalance(ctx, gw, input.Asset, amount); werr != nil {
		return nil, w.fail(state, werr)
	}

	// Identity and secret are minted once per gift. The raw secret goes
	// into the share link only; the contract sees its digest.
	giftID, err := secret.NewGiftID()
	if err != nil {
		return nil, w.fail(state, failure(ReasonValidation, "could not generate gift id", err))
	}
	claimSecret, err := secret.GenerateSecret()
	if err != nil {
		return nil, w.fail(state, failure(ReasonValidation, "could not generate claim secret", err))
	}
	giftKey, err := secret.DeriveOnChainID(giftID)
	if err != nil {
		return nil, w.fail(state, failure(ReasonValidation, "could not derive on-chain id", err))
	}
	secretHash, err := secret.HashSecret(claimSecret)
	if err != nil {
		return nil, w.fail(state, failure(ReasonValidation, "could not hash claim secret", err))
	}

	log := w.logger.With(
		zap.String("gift_id", giftID),
		zap.Int64("chain_id", input.ChainID),
		zap.String("asset", string(input.Asset)))

	// Approval step, USDC and NFT only. The deposit must not start until
	// the approval is confirmed: the contract pulls funds via it.
	switch input.Asset {
	case models.AssetUSDC:
		state = w.advance(log, state, CreationApproving)
		if _, err := gw.ApproveUSDC(ctx, amount); err != nil {
			return nil, w.fail(state, classifyChainError(err))
		}
		state = w.advance(log, state, CreationApproved)

	case models.AssetNFT:
		state = w.advance(log, state, CreationApproving)
		if _, err := gw.ApproveNFT(ctx, input.NFTAddress, nftTokenID); err != nil {
			return nil, w.fail(state, classifyChainError(err))
		}
		state = w.advance(log, state, CreationApproved)
	}

	state = w.advance(log, state, CreationDepositing)

	var depositTx string
	switch input.Asset {
	case models.AssetUSDC:
		depositTx, err = gw.DepositUSDC(ctx, giftKey, secretHash, amount)
	case models.AssetETH:
		depositTx, err = gw.DepositETH(ctx, giftKey, secretHash, amount)
	case models.AssetNFT:
		depositTx, err = gw.DepositNFT(ctx, giftKey, secretHash, input.NFTAddress, nftTokenID)
	}
	if err != nil {
		return nil, w.fail(state, classifyChainError(err))
	}

	state = w.advance(log, state, CreationDeposited)

	// Persistence happens only now, after the deposit is confirmed. A
	// reverted or unresolved deposit never produces a spendable-looking
	// record.
	state = w.advance(log, state, CreationPersisting)

	shareLink := secret.BuildShareLink(w.origin, giftID, claimSecret)
	record := w.buildRecord(input, gw, giftID, depositTx)

	result := &CreationResult{
		ShareLink:       shareLink,
		DepositTxHash:   depositTx,
		RecordPersisted: true,
	}

	stored, err := w.records.Create(ctx, record)
	if err != nil {
		// The asset is escrowed on-chain; the record store is a display
		// cache. Surface success with the share link and log the gap for
		// later reconciliation.
		log.Error("Record persistence failed after confirmed deposit",
			zap.String("deposit_tx", depositTx),
			zap.Error(err))
		result.Record = record
		result.RecordPersisted = false
	} else {
		result.Record = stored
	}

	w.advance(log, state, CreationDone)
	log.Info("Gift created", zap.String("deposit_tx", depositTx))

	return result, nil
}

func (w *CreationWorkflow) validate(input CreationInput) (*big.Int, *big.Int, *Error) {
	switch input.Asset {
	case models.AssetUSDC, models.AssetETH:
		amount, werr := parseAmount(input.Asset, input.Amount)
		if werr != nil {
			return nil, nil, werr
		}
		return amount, nil, nil

	case models.AssetNFT:
		if input.NFTAddress == "" || input.NFTTokenID == "" {
			return nil, nil, failure(ReasonValidation, "NFT gifts need a contract address and token id", nil)
		}
		tokenID, ok := new(big.Int).SetString(input.NFTTokenID, 10)
		if !ok {
			return nil, nil, failure(ReasonValidation, fmt.Sprintf("invalid NFT token id %q", input.NFTTokenID), nil)
		}
		return nil, tokenID, nil

	default:
		return nil, nil, failure(ReasonValidation, fmt.Sprintf("unsupported asset kind %q", input.Asset), nil)
	}
}

func (w *CreationWorkflow) gatewayFor(ctx context.Context, chainID int64) (EscrowGateway, *Error) {
	if w.gateways.ActiveChainID() == chainID {
		if gw, ok := w.gateways.Gateway(chainID); ok {
			return gw, nil
		}
	}
	gw, err := w.gateways.Switch(ctx, chainID)
	if err != nil {
		return nil, failure(ReasonWrongNetwork, msgWrongNetwork, err)
	}
	return gw, nil
}

// checkBalance is a client-side courtesy check; the chain is the real
// enforcement.
func (w *CreationWorkflow) checkBalance(ctx context.Context, gw EscrowGateway, kind models.AssetKind, amount *big.Int) *Error {
	var balance *big.Int
	var err error

	switch kind {
	case models.AssetUSDC:
		balance, err = gw.USDCBalance(ctx)
	case models.AssetETH:
		balance, err = gw.ETHBalance(ctx)
	default:
		return nil // NFT ownership is checked by the approval itself
	}

	if err != nil {
		return classifyChainError(err)
	}
	if amount.Cmp(balance) > 0 {
		return failure(ReasonInsufficientBalance, msgInsufficient, nil)
	}
	return nil
}

// buildRecord assembles the off-chain record. The persisted link is the
// claim page without the secret; the record store never sees the secret in
// any field.
func (w *CreationWorkflow) buildRecord(input CreationInput, gw EscrowGateway, giftID, depositTx string) *models.GiftRecord {
	onChainHex, _ := secret.OnChainIDHex(giftID)

	record := &models.GiftRecord{
		ID:            giftID,
		OnChainID:     onChainHex,
		ChainID:       input.ChainID,
		GiftLink:      secret.ClaimPageLink(w.origin, giftID),
		SenderAddress: gw.SenderAddress(),
		TokenType:     input.Asset,
		Amount:        input.Amount,
		Message:       input.Message,
		ColorStart:    input.ColorStart,
		ColorEnd:      input.ColorEnd,
		Emoji:         input.Emoji,
		VisualAssets:  input.VisualAssets,
		Status:        models.RecordStatusCreated,
		EscrowTxHash:  &depositTx,
	}

	switch input.Asset {
	case models.AssetUSDC:
		usdc := usdcAddressOf(gw)
		if usdc != "" {
			record.TokenAddress = &usdc
		}
	case models.AssetNFT:
		addr := input.NFTAddress
		tokenID := input.NFTTokenID
		record.TokenAddress = &addr
		record.TokenID = &tokenID
		record.Amount = "0"
	}

	return record
}

// usdcAddressOf asks gateways that know their USDC token address for it.
// Optional: record display still works without it.
func usdcAddressOf(gw EscrowGateway) string {
	type usdcAware interface{ USDCAddress() string }
	if aware, ok := gw.(usdcAware); ok {
		return aware.USDCAddress()
	}
	return ""
}

func (w *CreationWorkflow) advance(log *zap.Logger, from, to CreationState) CreationState {
	log.Debug("Creation state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return to
}

func (w *CreationWorkflow) fail(state CreationState, werr *Error) error {
	w.logger.Warn("Creation failed",
		zap.String("state", string(state)),
		zap.String("reason", string(werr.Reason)),
		zap.Error(werr))
	return werr
}
