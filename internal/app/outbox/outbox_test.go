package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/domain/shared/events"
)

type sampleEvent struct {
	BookingID string    `json:"booking_id"`
	At        time.Time `json:"at"`
}

func (e sampleEvent) EventName() string     { return "booking.sample" }
func (e sampleEvent) AggregateID() string   { return e.BookingID }
func (e sampleEvent) OccurredAt() time.Time { return e.At }

type aggregate struct {
	events.EventRecorder
}

type captureOutbox struct {
	records []EventRecord
}

func (c *captureOutbox) Add(_ context.Context, rec EventRecord) error {
	c.records = append(c.records, rec)
	return nil
}

func (c *captureOutbox) Flush(context.Context) error { return nil }

func TestRecordDomainEventsDrainsAggregates(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	agg := &aggregate{}
	agg.Record(sampleEvent{BookingID: "bk-1", At: at})

	box := &captureOutbox{}
	enc := JSONEventEncoder{IDGenerator: func() string { return "evt-1" }}
	require.NoError(t, RecordDomainEvents(context.Background(), box, enc, agg))

	require.Len(t, box.records, 1)
	assert.Equal(t, "evt-1", box.records[0].ID)
	assert.Equal(t, "booking.sample", box.records[0].Name)
	assert.JSONEq(t, `{"booking_id":"bk-1","at":"2025-03-01T00:00:00Z"}`, string(box.records[0].Payload))
	assert.Empty(t, agg.PendingEvents())
}

func TestCloudEventRoundTrip(t *testing.T) {
	rec := EventRecord{
		ID:         "evt-9",
		Name:       "booking.paid",
		Payload:    []byte(`{"booking_id":"bk-1"}`),
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Aggregate:  "bk-1",
		Headers:    map[string]string{"traceparent": "00-abc-def-01"},
	}
	raw, err := EncodeCloudEvent(rec, "app://carshare")
	require.NoError(t, err)

	back, err := DecodeCloudEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, rec.Name, back.Name)
	assert.Equal(t, rec.Aggregate, back.Aggregate)
	assert.JSONEq(t, string(rec.Payload), string(back.Payload))
	assert.Equal(t, "00-abc-def-01", back.Headers["traceparent"])

	_, err = DecodeCloudEvent([]byte(`{"id":""}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
