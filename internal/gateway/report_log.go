package gateway

import (
	"encoding/json"
	"sort"
	"sync"
)

// loggedReport is one delivered envelope kept for gap backfill.
type loggedReport struct {
	ChannelSeq int64
	RunID      string
	Envelope   []byte
}

// reportLog holds the most recent envelopes of one report channel, ordered
// by channel_seq. Once full, the lowest sequence is dropped first.
type reportLog struct {
	mu      sync.RWMutex
	entries []loggedReport
	limit   int
}

func newReportLog(limit int) *reportLog {
	if limit <= 0 {
		limit = replayCapacity
	}
	return &reportLog{entries: make([]loggedReport, 0, limit), limit: limit}
}

// add stores a copy of env. Broadcasts on one channel may finish out of
// order, so the entry is inserted at its sequence position.
func (l *reportLog) add(channelSeq int64, runID string, env []byte) {
	e := loggedReport{ChannelSeq: channelSeq, RunID: runID, Envelope: append([]byte(nil), env...)}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.search(channelSeq)
	if len(l.entries) == l.limit {
		if i == 0 {
			return // older than everything retained
		}
		copy(l.entries, l.entries[1:i])
		l.entries[i-1] = e
		return
	}
	l.entries = append(l.entries, loggedReport{})
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = e
}

// between returns the envelopes with channel_seq in [fromSeq, toSeq].
// A non-empty runID keeps only that run's reports.
func (l *reportLog) between(fromSeq, toSeq int64, runID string) [][]byte {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out [][]byte
	for _, e := range l.entries[l.search(fromSeq):] {
		if e.ChannelSeq > toSeq {
			break
		}
		if runID != "" && e.RunID != runID {
			continue
		}
		out = append(out, e.Envelope)
	}
	return out
}

func (l *reportLog) size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// search returns the first index whose channel_seq is >= seq.
func (l *reportLog) search(seq int64) int {
	return sort.Search(len(l.entries), func(i int) bool { return l.entries[i].ChannelSeq >= seq })
}

// runIDOf reads the run_id of a report payload. Payloads that are not
// report objects yield "".
func runIDOf(data []byte) string {
	var head struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	return head.RunID
}
