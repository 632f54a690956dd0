package indicator

// RollingMean returns the arithmetic mean of values[max(0,i-w+1)..i].
// The window shrinks near the start of the series; it never returns an
// undefined value for 0 <= i < len(values) and w >= 1.
func RollingMean(values []float64, i, w int) float64 {
	start := i - w + 1
	if start < 0 {
		start = 0
	}
	return windowMean(values[start:i+1], nil)
}

// windowMean averages head followed by tail (oldest first) as deviations
// from the oldest value. A window of equal values returns that value exactly
// and the mean never leaves [min, max] by more than rounding of the deviations.
func windowMean(head, tail []float64) float64 {
	n := len(head) + len(tail)
	if n == 0 {
		return 0
	}
	ref := 0.0
	if len(head) > 0 {
		ref = head[0]
	} else {
		ref = tail[0]
	}
	dev := 0.0
	for _, v := range head {
		dev += v - ref
	}
	for _, v := range tail {
		dev += v - ref
	}
	return ref + dev/float64(n)
}
