package status

import (
	"fmt"
	"math"
)

// Ratio returns done/total clamped to [0, 1], or 0 when total is not positive.
func Ratio(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	r := float64(done) / float64(total)
	return math.Max(0, math.Min(1, r))
}

// Percent rounds ratio*100 half to even.
func Percent(ratio float64) int {
	return int(math.RoundToEven(ratio * 100))
}

func formatProgress(done, total, percent int) string {
	return fmt.Sprintf("%d/%d (%d%%)", done, total, percent)
}
