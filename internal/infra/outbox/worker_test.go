package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "carshare/internal/app/outbox"
)

type fakeQueue struct {
	mu     sync.Mutex
	due    []*EventDocument
	sent   []string
	failed map[string]time.Time
}

func (q *fakeQueue) Claim(context.Context, string) (*EventDocument, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.due) == 0 {
		return nil, nil
	}
	doc := q.due[0]
	q.due = q.due[1:]
	return doc, nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id string) error {
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id string, next time.Time, _ string) error {
	if q.failed == nil {
		q.failed = map[string]time.Time{}
	}
	q.failed[id] = next
	return nil
}

type published struct {
	topic, key string
	payload    []byte
	headers    map[string]string
}

type fakeProducer struct {
	out  []published
	fail map[string]bool
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.fail[key] {
		return errors.New("broker unavailable")
	}
	p.out = append(p.out, published{topic, key, payload, headers})
	return nil
}

func doc(id, name, aggregate, payload string) *EventDocument {
	return &EventDocument{
		ID:         id,
		Name:       name,
		Payload:    []byte(payload),
		Aggregate:  aggregate,
		OccurredAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Headers:    map[string]string{"traceparent": "00-abc-01"},
	}
}

func TestWorkerDrain(t *testing.T) {
	queue := &fakeQueue{due: []*EventDocument{
		doc("e-1", "booking.paid", "b-1", `{"booking_id":"b-1"}`),
		doc("e-2", "booking.extended", "b-2", `{"booking_id":"b-2"}`),
		doc("e-3", "booking.paid", "b-3", `not json`),
	}}
	producer := &fakeProducer{fail: map[string]bool{"b-2": true}}
	w := &Worker{Store: queue, Producer: producer, TopicPrefix: "dev.", Backoff: []time.Duration{time.Minute}}

	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, producer.out, 1)
	msg := producer.out[0]
	assert.Equal(t, "dev.booking.events.v1", msg.topic)
	assert.Equal(t, "b-1", msg.key)
	assert.Equal(t, appoutbox.ContentType, msg.headers["content-type"])
	assert.Equal(t, "00-abc-01", msg.headers["traceparent"])

	rec, err := appoutbox.DecodeCloudEvent(msg.payload)
	require.NoError(t, err)
	assert.Equal(t, "e-1", rec.ID)
	assert.Equal(t, "booking.paid", rec.Name)

	assert.Equal(t, []string{"e-1"}, queue.sent)
	assert.Contains(t, queue.failed, "e-2")
	assert.Contains(t, queue.failed, "e-3")
	assert.WithinDuration(t, time.Now().Add(time.Minute), queue.failed["e-2"], 5*time.Second)
}

func TestWorkerBatchLimit(t *testing.T) {
	queue := &fakeQueue{}
	for i := 0; i < 5; i++ {
		queue.due = append(queue.due, doc("e", "booking.paid", "b", `{}`))
	}
	w := &Worker{Store: queue, Producer: &fakeProducer{}, BatchSize: 2}
	n, err := w.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, queue.due, 3)
}

func TestWorkerNotConfigured(t *testing.T) {
	_, err := (&Worker{}).Drain(context.Background())
	assert.ErrorIs(t, err, ErrWorkerNotConfigured)
	assert.ErrorIs(t, (&Worker{}).Run(context.Background()), ErrWorkerNotConfigured)
}

func TestLocalProducer(t *testing.T) {
	var got []appoutbox.EventRecord
	p := LocalProducer{Handler: appoutbox.HandlerFunc(func(_ context.Context, rec appoutbox.EventRecord) error {
		got = append(got, rec)
		return nil
	})}
	payload, err := appoutbox.EncodeCloudEvent(doc("e-9", "booking.refunded", "b-9", `{"booking_id":"b-9"}`).Record(), "test")
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), "t", "b-9", payload, nil))
	require.Len(t, got, 1)
	assert.Equal(t, "booking.refunded", got[0].Name)
	assert.JSONEq(t, `{"booking_id":"b-9"}`, string(got[0].Payload))

	assert.Error(t, p.Publish(context.Background(), "t", "k", []byte("garbage"), nil))
}
