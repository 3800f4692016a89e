// Package lifecycle derives one authoritative gift status from the two
// independently-updated sources of truth: the off-chain record store and the
// on-chain escrow contract. Every claim-eligibility decision routes through
// Reconcile; nothing re-derives it ad hoc.
package lifecycle

import (
	"basedgift/offchain/internal/models"
)

// ChainRead is the outcome of the most recent on-chain getGiftInfo read.
type ChainRead struct {
	// State is the decoded gift state; nil when the gift is absent on-chain.
	State *models.GiftState
	// Pending is true while the read has not completed yet.
	Pending bool
	// Err is set when the read failed.
	Err error
}

// Reconcile computes the effective status of a gift. It is pure and total:
// any combination of inputs maps to exactly one status.
//
// Priority order:
//  1. record absent               -> not-found
//  2. chain read pending          -> loading
//  3. chain read failed           -> error
//  4. refunded on-chain           -> refunded (terminal)
//  5. claimed on either source    -> already-claimed (terminal)
//  6. wallet on a different chain -> wrong-network
//  7. otherwise                   -> ready-to-claim
//
// Rule 5 is a union, not an intersection: a confirmed on-chain claim whose
// off-chain PATCH never landed must still read as claimed.
//
// walletChainID 0 means no wallet is connected; the network check is skipped.
func Reconcile(record *models.GiftRecord, chain ChainRead, walletChainID int64) models.EffectiveGiftStatus {
	if record == nil {
		return models.StatusNotFound
	}

	if chain.Pending {
		return models.StatusLoading
	}

	if chain.Err != nil {
		return models.StatusError
	}

	if chain.State != nil && chain.State.Refunded {
		return models.StatusRefunded
	}

	claimedOnChain := chain.State != nil && chain.State.Claimed
	claimedOffChain := record.Status == models.RecordStatusClaimed
	if claimedOnChain || claimedOffChain {
		return models.StatusAlreadyClaimed
	}

	if walletChainID != 0 && walletChainID != record.ChainID {
		return models.StatusWrongNetwork
	}

	return models.StatusReadyToClaim
}
