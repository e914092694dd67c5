package inbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "carshare/internal/app/outbox"
)

type mapLedger map[string]bool

func (l mapLedger) Seen(_ context.Context, id string) (bool, error) {
	if l[id] {
		return true, nil
	}
	l[id] = true
	return false, nil
}

func (l mapLedger) Forget(_ context.Context, id string) error {
	delete(l, id)
	return nil
}

func TestDeduplicator(t *testing.T) {
	calls := 0
	failNext := false
	d := Deduplicator{Ledger: mapLedger{}, Next: appoutbox.HandlerFunc(func(context.Context, appoutbox.EventRecord) error {
		calls++
		if failNext {
			return errors.New("smtp down")
		}
		return nil
	})}
	ctx := context.Background()

	require.NoError(t, d.HandleEvent(ctx, appoutbox.EventRecord{ID: "e-1"}))
	require.NoError(t, d.HandleEvent(ctx, appoutbox.EventRecord{ID: "e-1"}))
	assert.Equal(t, 1, calls)

	failNext = true
	assert.Error(t, d.HandleEvent(ctx, appoutbox.EventRecord{ID: "e-2"}))
	failNext = false
	require.NoError(t, d.HandleEvent(ctx, appoutbox.EventRecord{ID: "e-2"}))
	assert.Equal(t, 3, calls)
}
