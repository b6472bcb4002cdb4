// Package queue buffers finalized conversations between the proxy
// engine and the store, batching writes to amortize SQLite round-trips
// (§4.6).
package queue

import (
	"context"
	"time"

	"github.com/llmproxy/capture-proxy/internal/store"
)

const (
	capacity      = 1000
	batchSize     = 10
	batchTimeout  = 5 * time.Second
)

// Queue is a bounded FIFO of conversations awaiting a batch write.
// Enqueue never blocks the proxy's request path: a full queue drops
// the item and logs, matching §4.6 "Enqueue failures are logged but do
// not affect the client response."
type Queue struct {
	ch chan store.Interaction

	onDropped func(store.Interaction)
}

// New creates a Queue with a fixed capacity of 1000 pending interactions.
// onDropped, if non-nil, is called (off the request path) whenever
// Enqueue has to drop an item because the queue is full.
func New(onDropped func(store.Interaction)) *Queue {
	return &Queue{
		ch:        make(chan store.Interaction, capacity),
		onDropped: onDropped,
	}
}

// Enqueue adds rec to the queue, returning false if the queue was full
// and the item was dropped.
func (q *Queue) Enqueue(rec store.Interaction) bool {
	select {
	case q.ch <- rec:
		return true
	default:
		if q.onDropped != nil {
			q.onDropped(rec)
		}
		return false
	}
}

// TryDequeue pops one pending interaction without blocking, for tests
// and diagnostics that need to inspect what Enqueue accepted without
// running a full BatchWriter.
func (q *Queue) TryDequeue() (store.Interaction, bool) {
	select {
	case rec := <-q.ch:
		return rec, true
	default:
		return store.Interaction{}, false
	}
}

// BatchWriter drains a Queue into a Store, flushing on whichever comes
// first: batchSize items buffered, or batchTimeout elapsed since the
// last flush with at least one item pending (§4.6 "Batch writer").
type BatchWriter struct {
	queue *Queue
	st    *store.Store

	onInsertError func(store.Interaction, error)

	done chan struct{}
}

// NewBatchWriter starts the writer goroutine immediately.
func NewBatchWriter(q *Queue, st *store.Store, onInsertError func(store.Interaction, error)) *BatchWriter {
	w := &BatchWriter{
		queue:         q,
		st:            st,
		onInsertError: onInsertError,
		done:          make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *BatchWriter) run() {
	defer close(w.done)

	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()

	var buf []store.Interaction

	flush := func() {
		if len(buf) == 0 {
			return
		}
		w.writeBatch(buf)
		buf = buf[:0]
		ticker.Reset(batchTimeout)
	}

	for {
		select {
		case rec, ok := <-w.queue.ch:
			if !ok {
				flush()
				return
			}
			buf = append(buf, rec)
			if len(buf) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// writeBatch inserts each record in turn; one record's failure is
// logged (via onInsertError) and does not abort the rest of the batch
// (§4.6 "A single record's insert failure does not abort the batch
// writer").
func (w *BatchWriter) writeBatch(batch []store.Interaction) {
	ctx := context.Background()
	for _, rec := range batch {
		if err := w.st.InsertInteraction(ctx, rec); err != nil {
			if w.onInsertError != nil {
				w.onInsertError(rec, err)
			}
		}
	}
}

// Shutdown cancels the writer: closes the queue's channel so run()
// drains whatever remains in one final batch, then waits for it to
// exit, bounded by ctx (§4.6 "Shutdown", §5 "Graceful shutdown cancels
// the batch-writer task; it must observe the cancellation and exit
// only after draining").
func (w *BatchWriter) Shutdown(ctx context.Context) error {
	close(w.queue.ch)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
