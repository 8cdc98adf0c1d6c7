// Package format renders money and counts for operator-facing messages.
package format

import (
	"math"
	"strconv"
	"strings"
)

// Yen renders v rounded to whole yen with thousand separators, e.g. "¥12,345".
func Yen(v float64) string {
	return "¥" + Thousands(v)
}

// Thousands renders v rounded to an integer with thousand separators.
func Thousands(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Number renders v without trailing zeros, e.g. 50 -> "50", 2.5 -> "2.5".
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
