package logger

import (
	"context"
	"log/slog"
	"sync"
)

// AsyncHandler buffers records on a channel and hands them to the wrapped
// handler from a single background goroutine, so callers never block on I/O.
// When the buffer is full, DropOnFull controls whether new records are
// dropped (true) or the caller blocks until there is room (false).
type AsyncHandler struct {
	next      slog.Handler
	records   chan asyncRecord
	dropOnFull bool
	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

type asyncRecord struct {
	ctx context.Context
	r   slog.Record
}

// NewAsyncHandler starts the background writer goroutine immediately.
func NewAsyncHandler(next slog.Handler, bufferSize int, dropOnFull bool) *AsyncHandler {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	h := &AsyncHandler{
		next:       next,
		records:    make(chan asyncRecord, bufferSize),
		dropOnFull: dropOnFull,
		done:       make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *AsyncHandler) run() {
	defer h.wg.Done()
	for rec := range h.records {
		_ = h.next.Handle(rec.ctx, rec.r)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := asyncRecord{ctx: ctx, r: r.Clone()}
	if h.dropOnFull {
		select {
		case h.records <- rec:
		default:
			// buffer full, drop rather than block the caller
		}
		return nil
	}
	select {
	case h.records <- rec:
	case <-h.done:
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), records: h.records, dropOnFull: h.dropOnFull, done: h.done}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), records: h.records, dropOnFull: h.dropOnFull, done: h.done}
}

// Close drains the buffer and stops the background goroutine. Safe to call
// more than once.
func (h *AsyncHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.records)
		close(h.done)
	})
	h.wg.Wait()
}
