package utils

import (
	"fmt"
	"math"
	"strconv"
)

var byteUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatBytes renders a byte count with binary (1024-based) units, rounded to
// two decimals with trailing zeros dropped: 0 -> "0 Bytes", 1536 -> "1.5 KB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(n)) / math.Log(1024)))
	if i >= len(byteUnits) {
		i = len(byteUnits) - 1
	}
	v := float64(n) / math.Pow(1024, float64(i))
	// Round half away from zero at two decimals, then let FormatFloat drop
	// the trailing zeros.
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + byteUnits[i]
}

// FormatSeconds renders a millisecond duration as seconds with two decimals.
func FormatSeconds(ms float64) string {
	return fmt.Sprintf("%.2f s", ms/1000)
}
