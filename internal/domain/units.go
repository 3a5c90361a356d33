package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// ToBaseUnits converts a decimal token string (e.g. "12.5") to base units at
// the given precision. The conversion is exact fixed-point: it never passes
// through binary floating point. Fractional digits beyond the precision are
// truncated, matching ledger semantics.
func ToBaseUnits(amount string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" || s == "0" {
		return new(big.Int), nil
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac = frac + strings.Repeat("0", decimals-len(frac))

	digits := whole + frac
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("domain: invalid decimal amount %q", amount)
		}
	}

	base, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("domain: invalid decimal amount %q", amount)
	}
	if neg {
		base.Neg(base)
	}
	return base, nil
}

// WholeTokensToBase converts an integer token count to base units.
func WholeTokensToBase(tokens int64, decimals int) *big.Int {
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(tokens), pow)
}

// FormatBaseUnits renders base units as a decimal token string with trailing
// zeros trimmed.
func FormatBaseUnits(base *big.Int, decimals int) string {
	if base == nil {
		return "0"
	}
	x := new(big.Int).Abs(base)
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(x, pow, new(big.Int))

	out := whole.String()
	if frac.Sign() != 0 {
		fs := strings.TrimRight(fmt.Sprintf("%0*s", decimals, frac.String()), "0")
		out += "." + fs
	}
	if base.Sign() < 0 {
		out = "-" + out
	}
	return out
}
