package paymentgateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents maps ISO 4217 codes to their minor-unit exponent.
var currencyExponents = map[string]int32{
	"OMR": 3,
	"BHD": 3,
	"KWD": 3,
	"JOD": 3,
	"AED": 2,
	"SAR": 2,
	"QAR": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"JPY": 0,
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsSupportedCurrency(code string) bool {
	_, ok := currencyExponents[NormalizeCurrency(code)]
	return ok
}

func SupportedCurrencies() []string {
	out := make([]string, 0, len(currencyExponents))
	for c := range currencyExponents {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Exponent returns the number of minor-unit digits for code.
func Exponent(code string) (int32, error) {
	exp, ok := currencyExponents[NormalizeCurrency(code)]
	if !ok {
		return 0, fmt.Errorf("unsupported currency %q", code)
	}
	return exp, nil
}

// ToMinorUnits converts 25.000 OMR to 25000 baisa. Amounts with more precision
// than the currency carries are rejected instead of rounded.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return 0, err
	}
	if !amount.IsPositive() {
		return 0, fmt.Errorf("amount must be positive, got %s", amount.String())
	}
	shifted := amount.Shift(exp)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places for %s", amount.String(), exp, NormalizeCurrency(currency))
	}
	return shifted.IntPart(), nil
}

func FromMinorUnits(minor int64, currency string) (decimal.Decimal, error) {
	exp, err := Exponent(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -exp), nil
}

// FormatAmount renders an amount the way it appears to clients, e.g. "25.000 OMR".
func FormatAmount(amount decimal.Decimal, currency string) string {
	exp, err := Exponent(currency)
	if err != nil {
		exp = 2
	}
	return fmt.Sprintf("%s %s", amount.StringFixed(exp), NormalizeCurrency(currency))
}
