package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"market-analyzer/internal/backtest"
)

// reportWriter is the write side BufferedWriter guards.
type reportWriter interface {
	WriteReport(ctx context.Context, rep *backtest.Report) error
}

// BufferedWriter wraps a report writer with a circuit breaker.
// During circuit-open state, reports are buffered locally and flushed
// when the circuit closes again. It implements backtest.Sink.
type BufferedWriter struct {
	writer reportWriter
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []*backtest.Report
	maxBuf int // max buffered reports before dropping oldest (default: 1000)

	// Callbacks
	OnBuffer func()          // called when a report is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered reports
}

// NewBufferedWriter creates a BufferedWriter wrapping w. ctx bounds the
// background flushes.
func NewBufferedWriter(ctx context.Context, w reportWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]*backtest.Report, 0, 64),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// Record implements backtest.Sink. A report that cannot be written while
// the circuit is open is buffered, not lost.
func (bw *BufferedWriter) Record(ctx context.Context, rep *backtest.Report) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteReport(ctx, rep)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferWrite(rep)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(rep *backtest.Report) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full, drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, rep)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered reports through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]*backtest.Report, 0, 64)
	bw.mu.Unlock()

	flushed := 0
	for _, rep := range toFlush {
		if err := bw.writer.WriteReport(bw.ctx, rep); err != nil {
			log.Printf("[buffered-writer] replay of run %s failed: %v", rep.RunID, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered reports", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered reports waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
