package commands

import (
	"math"
	"strings"
)

// Normalize keeps printable ASCII only, trims surrounding whitespace and upper-cases the line
func Normalize(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c >= 32 && c <= 126 {
			b.WriteByte(c)
		}
	}
	return strings.ToUpper(strings.TrimSpace(b.String()))
}

// ToInt reads a leading integer like C's atol: optional whitespace and sign, then digits up to the first
// other character. A zero result is invalid unless s is literally "0"
func ToInt(s string) (int, bool) {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}

	negative := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		negative = s[i] == '-'
		i++
	}

	// int is 32 bits on the firmware target
	var n int64
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = min(n*10+int64(s[i]-'0'), math.MaxInt32)
	}

	if negative {
		n = -n
	}

	if n == 0 && s != "0" {
		return 0, false
	}
	return int(n), true
}
