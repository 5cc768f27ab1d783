package utils

import (
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

var indianGrouping = regexp.MustCompile(`^-?₹(\d{1,3}|\d{1,2}(,\d{2})*,\d{3})\.\d{2}$`)

// TestProperty_INRFormatting tests that FormatINR always produces Indian
// digit grouping with two decimals and preserves the value.
func TestProperty_INRFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatINR uses lakh and crore grouping", prop.ForAll(
		func(paise int64) bool {
			amount := decimal.New(paise, -2)
			formatted := FormatINR(amount)
			if !indianGrouping.MatchString(formatted) {
				t.Logf("bad format for %s: %s", amount, formatted)
				return false
			}
			if (paise < 0) != strings.HasPrefix(formatted, "-") {
				return false
			}

			digits := strings.NewReplacer("₹", "", ",", "").Replace(formatted)
			back, err := decimal.NewFromString(digits)
			return err == nil && back.Equal(amount)
		},
		gen.Int64Range(-1e15, 1e15),
	))

	properties.Property("FormatQuantity matches FormatINR grouping", prop.ForAll(
		func(qty int64) bool {
			inr := FormatINR(decimal.NewFromInt(qty))
			want := strings.TrimSuffix(strings.Replace(inr, "₹", "", 1), ".00")
			return FormatQuantity(qty) == want
		},
		gen.Int64Range(-1e12, 1e12),
	))

	properties.Property("FormatPnL signs gains", prop.ForAll(
		func(paise int64) bool {
			amount := decimal.New(paise, -2)
			s := FormatPnL(amount)
			switch {
			case paise > 0:
				return strings.HasPrefix(s, "+₹")
			case paise < 0:
				return strings.HasPrefix(s, "-₹")
			}
			return s == "₹0.00"
		},
		gen.Int64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}
