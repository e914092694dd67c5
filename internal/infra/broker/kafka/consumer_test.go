package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "carshare/internal/app/outbox"
)

func TestEventHandler(t *testing.T) {
	payload, err := appoutbox.EncodeCloudEvent(appoutbox.EventRecord{
		ID:         "e-1",
		Name:       "booking.paid",
		Payload:    []byte(`{"booking_id":"b-1"}`),
		OccurredAt: time.Now(),
		Aggregate:  "b-1",
	}, "test")
	require.NoError(t, err)

	t.Run("delivers", func(t *testing.T) {
		var got appoutbox.EventRecord
		h := EventHandler{Handler: appoutbox.HandlerFunc(func(_ context.Context, rec appoutbox.EventRecord) error {
			got = rec
			return nil
		})}
		require.NoError(t, h.Handle(context.Background(), &sarama.ConsumerMessage{Value: payload}))
		assert.Equal(t, "e-1", got.ID)
		assert.Equal(t, "b-1", got.Aggregate)
	})

	t.Run("retries then skips", func(t *testing.T) {
		calls := 0
		h := EventHandler{
			Backoff: []time.Duration{time.Millisecond, time.Millisecond},
			Handler: appoutbox.HandlerFunc(func(context.Context, appoutbox.EventRecord) error {
				calls++
				return errors.New("smtp down")
			}),
		}
		require.NoError(t, h.Handle(context.Background(), &sarama.ConsumerMessage{Value: payload}))
		assert.Equal(t, 3, calls)
	})

	t.Run("malformed skipped", func(t *testing.T) {
		h := EventHandler{Handler: appoutbox.HandlerFunc(func(context.Context, appoutbox.EventRecord) error {
			t.Fatal("handler must not run")
			return nil
		})}
		assert.NoError(t, h.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")}))
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		h := EventHandler{
			Backoff: []time.Duration{time.Hour},
			Handler: appoutbox.HandlerFunc(func(context.Context, appoutbox.EventRecord) error {
				cancel()
				return errors.New("fail")
			}),
		}
		assert.ErrorIs(t, h.Handle(ctx, &sarama.ConsumerMessage{Value: payload}), context.Canceled)
	})
}
