// Package sink batches decode results in memory and writes them to
// Postgres with COPY when either the batch size or flush timeout is reached.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/telemetry"
)

// maxBufferCapacity is the hard upper limit on buffered records to prevent OOM.
// When this limit is reached, Append applies backpressure by returning an error.
const maxBufferCapacity = 100_000

// Writer persists batches of records. *storage.DB implements it.
type Writer interface {
	InsertExtrinsics(ctx context.Context, recs []model.ExtrinsicRecord) (int64, error)
	InsertStorageItems(ctx context.Context, recs []model.StorageItemRecord) (int64, error)
}

// Buffer accumulates records and flushes them in the background.
type Buffer struct {
	w            Writer
	logger       *slog.Logger
	maxSize      int
	flushTimeout time.Duration

	mu         sync.Mutex
	extrinsics []model.ExtrinsicRecord
	items      []model.StorageItemRecord

	dropped atomic.Int64 // records dropped due to capacity after flush failure
	written atomic.Int64
	started atomic.Bool

	flushCh    chan struct{}
	done       chan struct{}
	cancelLoop context.CancelFunc
	drainCtx   context.Context // set by Drain so the final flush respects the caller's deadline
}

// NewBuffer creates a new record buffer.
func NewBuffer(w Writer, logger *slog.Logger, maxSize int, flushTimeout time.Duration) *Buffer {
	return &Buffer{
		w:            w,
		logger:       logger,
		maxSize:      max(maxSize, 1),
		flushTimeout: flushTimeout,
		flushCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Start begins the background flush loop and registers OTEL metrics. Call
// Drain to stop. A second call is a no-op.
func (b *Buffer) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		b.logger.Warn("sink: buffer already started")
		return
	}
	b.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	b.cancelLoop = cancel
	go b.flushLoop(loopCtx)
}

// AppendExtrinsics queues extrinsic records. Returns an error if the buffer
// is at capacity.
func (b *Buffer) AppendExtrinsics(recs ...model.ExtrinsicRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lenLocked()+len(recs) > maxBufferCapacity {
		return fmt.Errorf("sink: buffer at capacity (%d records), try again later", b.lenLocked())
	}
	b.extrinsics = append(b.extrinsics, recs...)
	b.signalLocked()
	return nil
}

// AppendStorageItems queues storage item records. Returns an error if the
// buffer is at capacity.
func (b *Buffer) AppendStorageItems(recs ...model.StorageItemRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lenLocked()+len(recs) > maxBufferCapacity {
		return fmt.Errorf("sink: buffer at capacity (%d records), try again later", b.lenLocked())
	}
	b.items = append(b.items, recs...)
	b.signalLocked()
	return nil
}

func (b *Buffer) signalLocked() {
	if b.lenLocked() >= b.maxSize {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
}

func (b *Buffer) lenLocked() int { return len(b.extrinsics) + len(b.items) }

func (b *Buffer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(b.flushTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// ctx is already done, so the final flush uses the drain context.
			if b.drainCtx != nil {
				b.flush(b.drainCtx)
			} else {
				fallbackCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				b.flush(fallbackCtx)
				cancel()
			}
			close(b.done)
			return
		case <-ticker.C:
			b.flush(ctx)
		case <-b.flushCh:
			b.flush(ctx)
		}
	}
}

func (b *Buffer) flush(ctx context.Context) {
	b.mu.Lock()
	if b.lenLocked() == 0 {
		b.mu.Unlock()
		return
	}
	exts, items := b.extrinsics, b.items
	b.extrinsics, b.items = nil, nil
	b.mu.Unlock()

	start := time.Now()
	n, err := b.w.InsertExtrinsics(ctx, exts)
	if err != nil {
		b.requeue(exts, items, err)
		return
	}
	b.written.Add(n)
	m, err := b.w.InsertStorageItems(ctx, items)
	if err != nil {
		b.requeue(nil, items, err)
		return
	}
	b.written.Add(m)

	b.logger.Debug("sink: batch flushed",
		"batch_size", n+m,
		"flush_duration_ms", time.Since(start).Milliseconds(),
	)
}

// requeue puts a failed batch back for the next flush, respecting the
// capacity limit.
func (b *Buffer) requeue(exts []model.ExtrinsicRecord, items []model.StorageItemRecord, err error) {
	size := len(exts) + len(items)
	b.logger.Error("sink: flush failed", "error", err, "batch_size", size)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lenLocked()+size > maxBufferCapacity {
		b.dropped.Add(int64(size))
		b.logger.Error("sink: dropping records, buffer at capacity after flush failure", "dropped", size)
		return
	}
	b.extrinsics = append(exts, b.extrinsics...)
	b.items = append(items, b.items...)
}

// Drain signals the background flush loop to stop, waits for its final
// flush, and returns. ctx bounds the wait and the final flush.
func (b *Buffer) Drain(ctx context.Context) {
	b.drainCtx = ctx
	if b.cancelLoop == nil {
		return
	}
	b.cancelLoop()
	select {
	case <-b.done:
	case <-ctx.Done():
		b.logger.Warn("sink: drain timed out waiting for flush loop")
	}
}

func (b *Buffer) registerMetrics() {
	meter := telemetry.Meter("kiroku/sink")

	_, _ = meter.Int64ObservableGauge("kiroku.sink.depth",
		metric.WithDescription("Current number of records in the write buffer"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(b.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("kiroku.sink.dropped_total",
		metric.WithDescription("Total records dropped due to buffer capacity exhaustion"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(b.Dropped())
			return nil
		}),
	)
}

// Len returns the current number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lenLocked()
}

// Dropped returns the total number of records dropped after flush failures.
// A non-zero value indicates data loss.
func (b *Buffer) Dropped() int64 { return b.dropped.Load() }

// Written returns the total number of records persisted.
func (b *Buffer) Written() int64 { return b.written.Load() }
