package gateway

import (
	"strconv"
	"time"

	"market-analyzer/internal/store/redis"
)

// Broadcaster constructs envelope JSON and sends filtered messages to clients.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Broadcast sends data on a channel to all subscribed clients.
// data must be a valid JSON document; it is embedded in the envelope as is.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	b.hub.seq++
	seq := b.hub.seq

	rl, exists := b.hub.reports[channel]
	if !exists {
		rl = newReportLog(replayCapacity)
		b.hub.reports[channel] = rl
	}
	b.hub.mu.Unlock()

	buf := buildEnvelope(channel, data, now, seq, channelSeq)
	rl.add(channelSeq, runIDOf(data), buf)

	sent := 0
	b.hub.mu.RLock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
			sent++
		default:
		}
	}
	b.hub.mu.RUnlock()

	if b.hub.metrics != nil && sent > 0 {
		b.hub.metrics.WSMessagesSent.Add(float64(sent))
	}
}

// buildEnvelope hand-crafts
// {"channel":"...","symbol":"...","data":...,"ts":"...","seq":N,"channel_seq":M}
// without re-encoding data.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	symbol := redis.SymbolFromChannel(channel)
	buf := make([]byte, 0, len(channel)+len(symbol)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"symbol":`...)
	buf = strconv.AppendQuote(buf, symbol)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
