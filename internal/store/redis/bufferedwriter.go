package redis

import (
	"context"
	"log"
	"sync"

	"chart-indicators/internal/model"
)

// batchWriter is the part of Writer the buffered writer drives.
type batchWriter interface {
	writeIndicatorBatch(ctx context.Context, results []model.IndicatorResult) error
	writeBars(ctx context.Context, bars []model.Bar) error
}

// pendingWrite is a batch buffered while the circuit was open.
type pendingWrite struct {
	results []model.IndicatorResult
	bars    []model.Bar
}

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// While the circuit is open, confirmed results and closed bars are buffered
// in memory and flushed once the circuit closes again. Live previews are
// dropped instead: they are stale by the time Redis is back.
type BufferedWriter struct {
	writer batchWriter
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered batches before dropping the oldest

	// Callbacks
	OnBuffer func()          // called when a batch is buffered
	OnFlush  func(count int) // called after flushing buffered batches
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	return newBufferedWriter(ctx, w, cb, maxBufferSize)
}

func newBufferedWriter(ctx context.Context, w batchWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 64),
		maxBuf: maxBufferSize,
	}

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

// WriteIndicatorBatch writes results through the circuit breaker.
// It satisfies model.ResultWriter.
func (bw *BufferedWriter) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) {
	err := bw.cb.Execute(func() error {
		return bw.writer.writeIndicatorBatch(ctx, results)
	})
	if err == nil {
		return
	}
	confirmed := confirmedResults(results)
	if len(confirmed) == 0 {
		return
	}
	if err != ErrCircuitOpen {
		log.Printf("[buffered-writer] indicator batch failed (%d results): %v", len(results), err)
	}
	bw.push(pendingWrite{results: confirmed})
}

// WriteBars writes closed bars through the circuit breaker.
func (bw *BufferedWriter) WriteBars(bars []model.Bar) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.writeBars(bw.ctx, bars)
	})
	if err == nil {
		return nil
	}
	closed := make([]model.Bar, 0, len(bars))
	for _, b := range bars {
		if !b.Forming {
			closed = append(closed, b)
		}
	}
	if len(closed) > 0 {
		bw.push(pendingWrite{bars: closed})
	}
	if err == ErrCircuitOpen {
		return nil // buffered, not lost
	}
	return err
}

func confirmedResults(results []model.IndicatorResult) []model.IndicatorResult {
	var out []model.IndicatorResult
	for _, r := range results {
		if r.Ready && !r.Live {
			out = append(out, r)
		}
	}
	return out
}

func (bw *BufferedWriter) push(pw pendingWrite) {
	bw.mu.Lock()
	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pw)
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered batches in arrival order.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 64)
	bw.mu.Unlock()

	flushed := 0
	for i, pw := range toFlush {
		var err error
		if len(pw.results) > 0 {
			err = bw.writer.writeIndicatorBatch(bw.ctx, pw.results)
		} else {
			err = bw.writer.writeBars(bw.ctx, pw.bars)
		}
		if err != nil {
			log.Printf("[buffered-writer] flush stopped after %d batches: %v", flushed, err)
			bw.requeue(toFlush[i:])
			break
		}
		flushed++
	}

	if flushed > 0 {
		log.Printf("[buffered-writer] flushed %d buffered batches", flushed)
	}
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// requeue puts unflushed batches back ahead of anything buffered since.
func (bw *BufferedWriter) requeue(rest []pendingWrite) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	merged := append(append([]pendingWrite(nil), rest...), bw.buffer...)
	if len(merged) > bw.maxBuf {
		merged = merged[len(merged)-bw.maxBuf:]
	}
	bw.buffer = merged
}

// PendingCount returns the number of buffered batches waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
