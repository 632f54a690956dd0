package indicator

import "strconv"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer; before the buffer fills, the mean is
// taken over the values seen so far. Value recomputes the mean from the
// window on every call, so a window of identical prices yields exactly that
// price and the result matches RollingMean bit for bit.
type SMA struct {
	period int
	buf    []float64 // preallocated circular buffer
	idx    int       // current write position
	count  int       // total values received
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA_" + strconv.Itoa(s.period) }

func (s *SMA) Update(price float64) {
	s.buf[s.idx] = price
	s.idx = (s.idx + 1) % s.period
	s.count++
}

func (s *SMA) Value() float64 {
	if s.count == 0 {
		return 0
	}
	if s.count < s.period {
		return windowMean(s.buf[:s.count], nil)
	}
	// Oldest value sits at the write position once the buffer has wrapped.
	return windowMean(s.buf[s.idx:], s.buf[:s.idx])
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}
