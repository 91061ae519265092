package order

import (
	"fmt"
	"math/big"
	"time"

	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ValidationError is returned before anything is signed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return apperrors.New(apperrors.ErrInvalidOrder, e.Error(), nil)
}

var one = decimal.NewFromInt(1)

func validateIntent(in Intent, now time.Time) error {
	if in.TokenID == "" {
		return &ValidationError{Field: "tokenId", Reason: "required"}
	}
	if n, ok := new(big.Int).SetString(in.TokenID, 10); !ok || n.Sign() < 0 {
		return &ValidationError{Field: "tokenId", Reason: "must be an unsigned decimal integer"}
	}
	if in.Side != Buy && in.Side != Sell {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %d", uint8(in.Side))}
	}
	if !in.Price.IsPositive() || in.Price.GreaterThanOrEqual(one) {
		return &ValidationError{Field: "price", Reason: fmt.Sprintf("%s outside (0, 1)", in.Price)}
	}
	if !in.Size.IsPositive() {
		return &ValidationError{Field: "size", Reason: fmt.Sprintf("%s must be positive", in.Size)}
	}
	if in.Expiration != 0 && now.Unix() > 0 && in.Expiration < uint64(now.Unix()) {
		return &ValidationError{Field: "expiration", Reason: fmt.Sprintf("%d is in the past", in.Expiration)}
	}
	if in.Taker != "" && !common.IsHexAddress(in.Taker) {
		return &ValidationError{Field: "taker", Reason: fmt.Sprintf("%q is not an address", in.Taker)}
	}
	return nil
}
