package ethutil

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a non-negative integer amount in base units.
//
// Accepted forms: "12345", "1_000_000", and "<int>e<exp>" (e.g. "1000e18").
func ParseAmount(raw string) (*big.Int, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	mantissa, exp := s, int64(0)
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mantissa = s[:i]
		e, err := strconv.ParseInt(s[i+1:], 10, 32)
		if err != nil || e < 0 || e > 77 {
			return nil, fmt.Errorf("invalid amount exponent in %q", raw)
		}
		exp = e
	}

	v, ok := new(big.Int).SetString(mantissa, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", raw)
	}
	if exp > 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
	}
	return v, nil
}

// FormatUnits renders an integer amount with the given number of decimals
// ("1234567", 6 -> "1.234567"). Nil renders as "0".
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}
