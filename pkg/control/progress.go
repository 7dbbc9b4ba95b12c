package control

import (
	"math"
	"strings"
)

// ProgressBar renders a fixed-width text bar from start toward target.
func ProgressBar(cur, target, start float64, width int) string {
	if width <= 0 {
		width = 20
	}
	if math.Abs(target-start) < 0.1 {
		return "[" + strings.Repeat("#", width) + "]"
	}
	p := (cur - start) / (target - start)
	p = math.Max(0, math.Min(1, p))
	filled := int(p * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("_", width-filled) + "]"
}
