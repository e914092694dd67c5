package memory

import (
	"context"
	"log/slog"
	"sync"

	appoutbox "carshare/internal/app/outbox"
)

// Outbox delivers records in process. Records added during a command are held in the
// command's batch and handed to the sink on Flush, after the unit of work committed.
type Outbox struct {
	Sink   appoutbox.Handler
	Logger *slog.Logger

	mu        sync.Mutex
	delivered []appoutbox.EventRecord
}

func NewOutbox(sink appoutbox.Handler, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{Sink: sink, Logger: logger}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if batch, ok := appoutbox.BatchFrom(ctx); ok {
		batch.Append(record)
		return nil
	}
	o.deliver(ctx, record)
	return nil
}

// Flush never fails the command; delivery errors are only logged.
func (o *Outbox) Flush(ctx context.Context) error {
	batch, ok := appoutbox.BatchFrom(ctx)
	if !ok {
		return nil
	}
	for _, rec := range batch.Take() {
		o.deliver(ctx, rec)
	}
	return nil
}

// Delivered returns every record handed to the sink so far.
func (o *Outbox) Delivered() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]appoutbox.EventRecord(nil), o.delivered...)
}

func (o *Outbox) deliver(ctx context.Context, rec appoutbox.EventRecord) {
	o.mu.Lock()
	o.delivered = append(o.delivered, rec)
	o.mu.Unlock()
	if o.Sink == nil {
		return
	}
	if err := o.Sink.HandleEvent(ctx, rec); err != nil && o.Logger != nil {
		o.Logger.Warn("event delivery failed", "event", rec.Name, "aggregate", rec.Aggregate, "error", err)
	}
}

var _ appoutbox.Outbox = (*Outbox)(nil)
