package units

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/novabot/nova/internal/errors"
)

// NativeDecimals is the fixed scale of native coin amounts (wei per coin).
const NativeDecimals = 18

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount parses a human-unit amount such as "0.1" or "25".
func ParseAmount(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, clierr.New(clierr.CodeUsage, "amount is required")
	}
	if !decimalPattern.MatchString(value) {
		return decimal.Zero, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %q must be in decimal form like 1.23", raw))
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeUsage, "invalid decimal amount", err)
	}
	return amount, nil
}

// ToBaseUnits scales a human amount by 10^decimals, truncating any excess
// precision toward zero. The result must fit in a uint256.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, clierr.New(clierr.CodeUsage, "amount must be non-negative")
	}
	base := amount.Shift(int32(decimals)).Truncate(0).BigInt()
	if base.BitLen() > 256 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %s exceeds uint256 at %d decimals", amount.String(), decimals))
	}
	return base, nil
}

// PositiveBaseUnits is ToBaseUnits for amounts that are about to be moved on
// chain: the scaled value must be at least one base unit.
func PositiveBaseUnits(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	base, err := ToBaseUnits(amount, decimals)
	if err != nil {
		return nil, err
	}
	if base.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("amount %s rounds to zero at %d decimals", amount.String(), decimals))
	}
	return base, nil
}

// FormatUnits renders base units as a human amount without trailing zeros.
func FormatUnits(baseUnits *big.Int, decimals uint8) string {
	if baseUnits == nil {
		return "0"
	}
	return decimal.NewFromBigInt(baseUnits, -int32(decimals)).String()
}
