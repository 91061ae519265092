package order

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the on-chain precision of collateral and outcome tokens.
const AmountDecimals = 6

// Amounts returns maker and taker amounts rounded half away from zero to six
// places. A BUY pays collateral for tokens; a SELL pays tokens for collateral.
func Amounts(side Side, price, size decimal.Decimal) (maker, taker string) {
	notional := price.Mul(size).StringFixed(AmountDecimals)
	quantity := size.StringFixed(AmountDecimals)
	if side == Buy {
		return notional, quantity
	}
	return quantity, notional
}

func isZeroAmount(amount string) bool {
	d, err := decimal.NewFromString(amount)
	return err == nil && d.IsZero()
}

func toBaseUnits(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", amount)
	}
	scaled := d.Shift(AmountDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s exceeds %d decimals", amount, AmountDecimals)
	}
	return scaled.BigInt(), nil
}
