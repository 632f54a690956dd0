package indicator

import "strconv"

// EMA calculates Exponential Moving Average.
// The first price seeds the average; O(1) per update, no window storage.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with smoothing factor 2/(period+1).
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(price float64) {
	e.count++
	if e.count == 1 {
		e.current = price
		return
	}

	// EMA = EMA_prev + multiplier * (Price - EMA_prev); a flat series stays put.
	e.current += e.multiplier * (price - e.current)
}

func (e *EMA) Value() float64 { return e.current }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}
