package ctxmgr

import (
	"fmt"
	"math"
)

var byteUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatByteCount renders a byte count with 1024-based units and two decimals.
// Counts of a terabyte or more stay in GB.
func FormatByteCount(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}

	value := math.Abs(float64(bytes))
	unit := 0
	for value >= 1024 && unit < len(byteUnits)-1 {
		value /= 1024
		unit++
	}
	if bytes < 0 {
		value = -value
	}

	return fmt.Sprintf("%.2f %s", value, byteUnits[unit])
}
