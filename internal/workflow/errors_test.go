package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"basedgift/offchain/internal/blockchain/evm"
	"basedgift/offchain/internal/recordstore"
)

func TestClassifyChainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"timeout sentinel", evm.ErrConfirmationTimeout, ReasonTimeout},
		{"wrapped timeout", fmt.Errorf("deposit: %w", evm.ErrConfirmationTimeout), ReasonTimeout},
		{"revert already claimed", &evm.RevertError{Reason: "Gift already claimed"}, ReasonAlreadyClaimed},
		{"revert does not exist", &evm.RevertError{Reason: "Gift does not exist"}, ReasonNotFound},
		{"revert invalid secret", &evm.RevertError{Reason: "Invalid secret"}, ReasonInvalidSecret},
		{"revert expired", &evm.RevertError{Reason: "Gift has expired"}, ReasonExpired},
		{"revert unknown reason", &evm.RevertError{Reason: "paused"}, ReasonRevertOther},
		{"context canceled", context.Canceled, ReasonUserRejected},
		{"wrapped context canceled", fmt.Errorf("claim: %w", context.Canceled), ReasonUserRejected},
		{"context deadline", context.DeadlineExceeded, ReasonTimeout},
		{"user rejected", errors.New("user rejected the request"), ReasonUserRejected},
		{"user denied", errors.New("MetaMask Tx Signature: User denied transaction signature"), ReasonUserRejected},
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), ReasonInsufficientBalance},
		{"bare revert string", errors.New("execution reverted: already claimed"), ReasonAlreadyClaimed},
		{"anything else", errors.New("connection refused"), ReasonRevertOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyChainError(tt.err)
			if got.Reason != tt.want {
				t.Errorf("classifyChainError(%v) = %s, want %s", tt.err, got.Reason, tt.want)
			}
			if got.Message == "" {
				t.Error("classified error has no message")
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error does not wrap the cause")
			}
		})
	}
}

func TestClassifyRecordStoreError(t *testing.T) {
	if got := classifyRecordStoreError(recordstore.ErrNotFound); got.Reason != ReasonNotFound {
		t.Errorf("not found -> %s, want %s", got.Reason, ReasonNotFound)
	}

	verr := &recordstore.ValidationError{Message: "amount out of range", Field: "amount"}
	if got := classifyRecordStoreError(verr); got.Reason != ReasonValidation {
		t.Errorf("validation -> %s, want %s", got.Reason, ReasonValidation)
	} else if got.Message != "amount out of range" {
		t.Errorf("validation message %q not propagated", got.Message)
	}

	if got := classifyRecordStoreError(errors.New("dial tcp: refused")); got.Reason != ReasonHTTPFailure {
		t.Errorf("transport -> %s, want %s", got.Reason, ReasonHTTPFailure)
	}
	if !classifyRecordStoreError(errors.New("dial tcp: refused")).Retryable() {
		t.Error("transport failures must be retryable")
	}
}
