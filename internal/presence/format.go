package presence

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPrice renders price per spec §4.4's magnitude/decimals table,
// comma-grouping the integer part, using decimal.Decimal instead of float
// arithmetic so rounding never drifts the displayed digit (spec §8
// invariant 7: nickname formatting is a pure function of price magnitude).
func FormatPrice(price float64) string {
	d := decimal.NewFromFloat(price)
	decimals := decimalsFor(price)
	rounded := d.Round(int32(decimals))
	return groupThousands(rounded.StringFixed(int32(decimals)))
}

func decimalsFor(price float64) int {
	switch {
	case price >= 1000:
		return 0
	case price >= 100:
		return 2
	case price >= 1:
		return 3
	default:
		return 4
	}
}

// groupThousands inserts comma separators into the integer part of a
// fixed-decimal string, leaving the fractional part untouched.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	intPart, fracPart := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx:]
	}

	if len(intPart) > 3 {
		var b strings.Builder
		rem := len(intPart) % 3
		if rem > 0 {
			b.WriteString(intPart[:rem])
			if len(intPart) > rem {
				b.WriteByte(',')
			}
		}
		for i := rem; i < len(intPart); i += 3 {
			b.WriteString(intPart[i : i+3])
			if i+3 < len(intPart) {
				b.WriteByte(',')
			}
		}
		intPart = b.String()
	}

	out := intPart + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// FormatNickname renders the bot's visible nickname "<ASSET> <price>"
// (spec §4.4).
func FormatNickname(asset string, price float64) string {
	return fmt.Sprintf("%s %s", asset, FormatPrice(price))
}
