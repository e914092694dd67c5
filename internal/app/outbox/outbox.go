package outbox

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"carshare/internal/domain/shared/events"
)

type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

// Outbox stores event records alongside the state change that produced them. Flush is
// called after the surrounding unit of work commits.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt().UTC(),
		Aggregate:  ev.AggregateID(),
		Headers:    map[string]string{},
	}, nil
}

// Drainer is implemented by aggregates embedding events.EventRecorder.
type Drainer interface {
	Drain() []events.DomainEvent
}

// RecordDomainEvents drains every aggregate and adds the encoded events to box.
func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, sources ...Drainer) error {
	if box == nil {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, ev := range src.Drain() {
			rec, err := encoder.Encode(ev)
			if err != nil {
				return err
			}
			if err := box.Add(ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

type batchKey struct{}

// Batch collects records added during one command so they can be delivered once the
// command's unit of work has committed.
type Batch struct {
	mu      sync.Mutex
	records []EventRecord
}

func (b *Batch) Append(rec EventRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
}

// Take returns the collected records and empties the batch.
func (b *Batch) Take() []EventRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.records
	b.records = nil
	return out
}

func WithBatch(ctx context.Context) (context.Context, *Batch) {
	batch := &Batch{}
	return context.WithValue(ctx, batchKey{}, batch), batch
}

func BatchFrom(ctx context.Context) (*Batch, bool) {
	batch, ok := ctx.Value(batchKey{}).(*Batch)
	return batch, ok
}

// Handler consumes delivered event records.
type Handler interface {
	HandleEvent(ctx context.Context, rec EventRecord) error
}

type HandlerFunc func(ctx context.Context, rec EventRecord) error

func (f HandlerFunc) HandleEvent(ctx context.Context, rec EventRecord) error {
	return f(ctx, rec)
}
