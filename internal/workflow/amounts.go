package workflow

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"basedgift/offchain/internal/models"
)

// Gift amount bounds, checked before any on-chain call. The contract is the
// real enforcement; these keep obviously-wrong deposits off the chain.
var (
	usdcMin = decimal.RequireFromString("0.1")
	usdcMax = decimal.RequireFromString("1000")
	ethMin  = decimal.RequireFromString("0.0001")
	ethMax  = decimal.RequireFromString("1")
)

const (
	usdcDecimals = 6
	ethDecimals  = 18
)

// parseAmount validates the decimal amount for the asset kind and converts
// it to base units (USDC 6 decimals, ETH wei).
func parseAmount(kind models.AssetKind, amount string) (*big.Int, *Error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, failure(ReasonValidation, fmt.Sprintf("invalid amount %q", amount), err)
	}

	var min, max decimal.Decimal
	var decimals int32
	switch kind {
	case models.AssetUSDC:
		min, max, decimals = usdcMin, usdcMax, usdcDecimals
	case models.AssetETH:
		min, max, decimals = ethMin, ethMax, ethDecimals
	default:
		return nil, failure(ReasonValidation, fmt.Sprintf("asset kind %s has no amount", kind), nil)
	}

	if d.LessThan(min) {
		return nil, failure(ReasonValidation,
			fmt.Sprintf("Minimum %s gift is %s %s", kind, min.String(), kind), nil)
	}
	if d.GreaterThan(max) {
		return nil, failure(ReasonValidation,
			fmt.Sprintf("Maximum %s gift is %s %s", kind, max.String(), kind), nil)
	}

	base := d.Shift(decimals)
	if !base.IsInteger() {
		return nil, failure(ReasonValidation,
			fmt.Sprintf("%s supports at most %d decimal places", kind, decimals), nil)
	}

	return base.BigInt(), nil
}
