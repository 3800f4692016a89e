package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"basedgift/offchain/internal/blockchain/evm"
	"basedgift/offchain/internal/recordstore"
)

// Reason is the failure taxonomy surfaced to callers. Raw provider and
// contract errors never leave the workflows; every failure is translated to
// exactly one Reason with a human-readable message.
type Reason string

const (
	ReasonUserRejected        Reason = "user-rejected"
	ReasonWrongNetwork        Reason = "wrong-network"
	ReasonInsufficientBalance Reason = "insufficient-balance"
	ReasonAlreadyClaimed      Reason = "already-claimed"
	ReasonRefunded            Reason = "refunded"
	ReasonNotFound            Reason = "not-found"
	ReasonInvalidSecret       Reason = "invalid-secret"
	ReasonExpired             Reason = "expired"
	ReasonRevertOther         Reason = "revert-other"
	ReasonTimeout             Reason = "timeout"
	ReasonHTTPFailure         Reason = "http-failure"
	ReasonValidation          Reason = "validation"
)

// Error is a workflow failure mapped onto the taxonomy.
type Error struct {
	Reason  Reason
	Message string // human-readable, safe to show as-is
	Err     error  // underlying cause, for logs only
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the same action can plausibly succeed.
// Timeouts are unresolved, not failed; terminal contract states are not.
func (e *Error) Retryable() bool {
	switch e.Reason {
	case ReasonTimeout, ReasonHTTPFailure:
		return true
	default:
		return false
	}
}

func failure(reason Reason, message string, err error) *Error {
	return &Error{Reason: reason, Message: message, Err: err}
}

// Human-readable messages per taxonomy member.
const (
	msgAlreadyClaimed = "This gift has already been claimed"
	msgRefunded       = "This gift has been refunded to the sender"
	msgNotFound       = "Gift not found on this network"
	msgInvalidSecret  = "This link appears to be invalid or tampered with"
	msgMissingSecret  = "This link is missing its claim secret"
	msgExpired        = "This gift has expired"
	msgUserRejected   = "Transaction cancelled"
	msgWrongNetwork   = "Please switch to the gift's network"
	msgTimeout        = "Confirmation timed out. The transaction may still land; please check again shortly"
	msgInsufficient   = "Insufficient balance"
	msgRevertOther    = "The transaction was rejected by the contract"
	msgHTTPFailure    = "The gift service is unavailable. Please try again"
)

// classifyChainError maps a chain-gateway failure to the taxonomy. Revert
// reason strings come from the escrow contract.
func classifyChainError(err error) *Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, evm.ErrConfirmationTimeout) {
		return failure(ReasonTimeout, msgTimeout, err)
	}

	// A cancelled context is the caller abandoning the request, not the
	// contract rejecting it; a deadline is just another unresolved wait.
	if errors.Is(err, context.Canceled) {
		return failure(ReasonUserRejected, msgUserRejected, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure(ReasonTimeout, msgTimeout, err)
	}

	var revert *evm.RevertError
	if errors.As(err, &revert) {
		return classifyRevertReason(revert.Reason, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"), strings.Contains(msg, "user denied"):
		return failure(ReasonUserRejected, msgUserRejected, err)
	case strings.Contains(msg, "insufficient funds"):
		return failure(ReasonInsufficientBalance, msgInsufficient, err)
	case strings.Contains(msg, "execution reverted"):
		return classifyRevertReason(evm.ParseRevertReason(err), err)
	default:
		return failure(ReasonRevertOther, msgRevertOther, err)
	}
}

// classifyRevertReason matches the escrow contract's revert strings.
func classifyRevertReason(reason string, err error) *Error {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "already claimed"):
		return failure(ReasonAlreadyClaimed, msgAlreadyClaimed, err)
	case strings.Contains(lower, "refunded"):
		return failure(ReasonRefunded, msgRefunded, err)
	case strings.Contains(lower, "does not exist"), strings.Contains(lower, "not found"):
		return failure(ReasonNotFound, msgNotFound, err)
	case strings.Contains(lower, "invalid secret"):
		return failure(ReasonInvalidSecret, msgInvalidSecret, err)
	case strings.Contains(lower, "expired"):
		return failure(ReasonExpired, msgExpired, err)
	default:
		return failure(ReasonRevertOther, msgRevertOther, err)
	}
}

// classifyRecordStoreError maps record store client failures.
func classifyRecordStoreError(err error) *Error {
	if err == nil {
		return nil
	}

	var validation *recordstore.ValidationError
	if errors.As(err, &validation) {
		return failure(ReasonValidation, validation.Message, err)
	}

	if errors.Is(err, recordstore.ErrNotFound) {
		return failure(ReasonNotFound, msgNotFound, err)
	}

	return failure(ReasonHTTPFailure, msgHTTPFailure, err)
}
