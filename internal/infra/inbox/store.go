package inbox

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	appoutbox "carshare/internal/app/outbox"
	mongodb "carshare/internal/infra/db/mongo"
)

// Ledger remembers which events a consumer has already accepted.
type Ledger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Store is the Mongo ledger; the unique (event_id, consumer) index makes Seen atomic.
type Store struct {
	col      *mongo.Collection
	consumer string
}

func NewStore(db *mongo.Database, consumer string) *Store {
	return &Store{col: db.Collection(mongodb.InboxCollection), consumer: consumer}
}

// Seen records eventID and reports whether it had been recorded before.
func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	doc := bson.M{"event_id": eventID, "consumer": s.consumer, "received_at": time.Now().UTC()}
	_, err := s.col.InsertOne(ctx, doc)
	if err == nil {
		return false, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return true, nil
	}
	return false, err
}

func (s *Store) Forget(ctx context.Context, eventID string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"event_id": eventID, "consumer": s.consumer})
	return err
}

// Deduplicator drops redelivered events before they reach Next. When Next fails the
// event is forgotten again so the redelivery is processed.
type Deduplicator struct {
	Ledger Ledger
	Next   appoutbox.Handler
	Logger *slog.Logger
}

func (d Deduplicator) HandleEvent(ctx context.Context, rec appoutbox.EventRecord) error {
	seen, err := d.Ledger.Seen(ctx, rec.ID)
	if err != nil {
		return err
	}
	if seen {
		if d.Logger != nil {
			d.Logger.Debug("duplicate event skipped", "event", rec.Name, "id", rec.ID)
		}
		return nil
	}
	if err := d.Next.HandleEvent(ctx, rec); err != nil {
		if forgetErr := d.Ledger.Forget(ctx, rec.ID); forgetErr != nil && d.Logger != nil {
			d.Logger.Error("inbox forget failed", "id", rec.ID, "error", forgetErr)
		}
		return err
	}
	return nil
}

var _ Ledger = (*Store)(nil)
var _ appoutbox.Handler = Deduplicator{}
