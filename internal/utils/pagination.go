// Package utils provides small helpers shared by the transport layer.
package utils

import (
	"strconv"
	"strings"
)

// ParseLimit parses a page-size query value. Empty, malformed and
// non-positive values give def; values above maxLimit are clamped.
//
// Example:
//
//	utils.ParseLimit("20", 50, 200)  // 20
//	utils.ParseLimit("", 50, 200)    // 50
//	utils.ParseLimit("999", 50, 200) // 200
func ParseLimit(s string, def, maxLimit int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		n = def
	}
	if maxLimit > 0 && n > maxLimit {
		n = maxLimit
	}
	return n
}
