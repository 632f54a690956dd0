package indicator

import (
	"math"
	"strconv"
)

// rsiEpsilon keeps RS finite when the lookback has no losses.
const rsiEpsilon = 1e-9

// RSI calculates the Relative Strength Index from simple rolling means of
// gains and losses. The first bar contributes a zero change.
type RSI struct {
	period    int
	count     int
	prevClose float64
	gains     *SMA
	losses    *SMA
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  NewSMA(period),
		losses: NewSMA(period),
	}
}

func (r *RSI) Name() string { return "RSI_" + strconv.Itoa(r.period) }

func (r *RSI) Update(price float64) {
	delta := 0.0
	if r.count > 0 {
		delta = price - r.prevClose
	}
	r.prevClose = price
	r.count++

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}
	r.gains.Update(gain)
	r.losses.Update(loss)
}

func (r *RSI) Value() float64 {
	if r.count == 0 {
		return 0
	}
	gain, loss := math.Max(r.gains.Value(), 0), math.Max(r.losses.Value(), 0)
	rs := gain / (loss + rsiEpsilon)
	return math.Min(math.Max(100.0-(100.0/(1.0+rs)), 0), 100)
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.gains.Reset()
	r.losses.Reset()
}
