package backtest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
)

// CacheKey identifies a request by everything that determines its result:
// symbol, strategy, windows, risk limits and the bar series itself.
func CacheKey(strategyName string, req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Symbol))
	h.Write([]byte{0})
	h.Write([]byte(strategyName))
	h.Write([]byte{0})

	var buf [8]byte
	putInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	putInt(req.Indicators.Fast)
	putInt(req.Indicators.Slow)
	putInt(req.Indicators.Trend)
	putInt(req.Indicators.RSI)
	putFloat(req.Risk.InitialCash)
	putFloat(req.Risk.StopLossPct)
	putFloat(req.Risk.TakeProfitPct)

	putInt(len(req.Bars))
	for _, b := range req.Bars {
		putInt(int(b.TS.Unix()))
		putFloat(b.Close)
	}

	return "bt:result:" + req.Symbol + ":" + strconv.Itoa(len(req.Bars)) + ":" + hex.EncodeToString(h.Sum(nil)[:12])
}
