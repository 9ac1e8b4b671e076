/*
This file contains common utility functions for converting between different types,
particularly between wei-scaled SDK integers and float64 scores.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// Float64ToSDKInt converts a float64 to SDK Int with proper precision handling
func Float64ToSDKInt(amount float64, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	// Use string conversion to avoid floating point precision issues
	formatStr := fmt.Sprintf("%%.%df", precision)
	amountStr := fmt.Sprintf(formatStr, amount)

	decAmount, err := sdkmath.LegacyNewDecFromStr(amountStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}

	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}

	result := decAmount.Mul(factor).TruncateInt()
	if result.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	return result, nil
}

// WeiToFloat64 converts a wei-scaled (1e18) amount or rate to its float64 value. Negative values
// are allowed.
func WeiToFloat64(amount sdkmath.Int) (float64, error) {
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	return decToFloat64(sdkmath.LegacyNewDecFromIntWithPrec(amount, WeiDecimals))
}

// IntRatio returns num/denom as a float64, rounded to 18 decimals.
func IntRatio(num, denom sdkmath.Int) (float64, error) {
	if num.IsNil() || denom.IsNil() {
		return 0, ErrAmountNil
	}
	if denom.IsZero() {
		return 0, fmt.Errorf("%w: zero denominator", ErrConversionFailed)
	}
	return decToFloat64(sdkmath.LegacyNewDecFromInt(num).Quo(sdkmath.LegacyNewDecFromInt(denom)))
}

func decToFloat64(d sdkmath.LegacyDec) (float64, error) {
	f, err := d.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// Float64ToWei converts a float64 to a wei-scaled integer. Only the first nine decimals are kept,
// which avoids binary float noise such as 0.03 becoming 29999999999999999.
func Float64ToWei(amount float64) (sdkmath.Int, error) {
	scaled, err := Float64ToSDKInt(amount, 9)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return scaled.Mul(sdkmath.NewInt(1_000_000_000)), nil
}

// MustFloat64ToWei is Float64ToWei for package-level constants and tests.
func MustFloat64ToWei(amount float64) sdkmath.Int {
	v, err := Float64ToWei(amount)
	if err != nil {
		panic(err)
	}
	return v
}
