package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "carshare/internal/domain/booking"
	domainmessages "carshare/internal/domain/messages"
	domainreviews "carshare/internal/domain/reviews"
	domainvehicles "carshare/internal/domain/vehicles"
)

const (
	reviewsCollection  = "reviews"
	messagesCollection = "messages"
)

type ReviewRepository struct {
	col *mongo.Collection
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{col: db.Collection(reviewsCollection)}
}

func (r *ReviewRepository) ByBooking(ctx context.Context, bookingID domainbooking.BookingID) (*domainreviews.Review, error) {
	var doc reviewDocument
	if err := r.col.FindOne(ctx, bson.M{"booking_id": string(bookingID)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainreviews.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ReviewRepository) ListByVehicle(ctx context.Context, vehicleID domainvehicles.VehicleID, limit, offset int) ([]*domainreviews.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	cur, err := r.col.Find(ctx, bson.M{"vehicle_id": string(vehicleID)}, opts)
	if err != nil {
		return nil, err
	}
	var docs []reviewDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainreviews.Review, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

// Save relies on the unique booking_id index: a second review of one booking fails.
func (r *ReviewRepository) Save(ctx context.Context, review *domainreviews.Review) error {
	doc := reviewDocument{
		ID:        string(review.ID),
		BookingID: string(review.BookingID),
		VehicleID: string(review.VehicleID),
		AuthorID:  review.AuthorID,
		Rating:    review.Rating,
		Text:      review.Text,
		CreatedAt: timeToTimestamp(review.CreatedAt),
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return domainreviews.ErrAlreadyReviewed
	}
	return err
}

type reviewDocument struct {
	ID        string `bson:"_id"`
	BookingID string `bson:"booking_id"`
	VehicleID string `bson:"vehicle_id"`
	AuthorID  string `bson:"author_id"`
	Rating    int    `bson:"rating"`
	Text      string `bson:"text"`
	CreatedAt int64  `bson:"created_at"`
}

func (d reviewDocument) toAggregate() *domainreviews.Review {
	return &domainreviews.Review{
		ID:        domainreviews.ReviewID(d.ID),
		BookingID: domainbooking.BookingID(d.BookingID),
		VehicleID: domainvehicles.VehicleID(d.VehicleID),
		AuthorID:  d.AuthorID,
		Rating:    d.Rating,
		Text:      d.Text,
		CreatedAt: timestampToTime(d.CreatedAt),
	}
}

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(messagesCollection)}
}

func (r *MessageRepository) Save(ctx context.Context, msg *domainmessages.Message) error {
	doc := messageDocument{
		ID:          string(msg.ID),
		BookingID:   string(msg.BookingID),
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Body:        msg.Body,
		SentAt:      timeToTimestamp(msg.SentAt),
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// ListByBooking returns messages oldest first.
func (r *MessageRepository) ListByBooking(ctx context.Context, bookingID domainbooking.BookingID, limit int) ([]*domainmessages.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"booking_id": string(bookingID)}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainmessages.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, &domainmessages.Message{
			ID:          domainmessages.MessageID(d.ID),
			BookingID:   domainbooking.BookingID(d.BookingID),
			SenderID:    d.SenderID,
			RecipientID: d.RecipientID,
			Body:        d.Body,
			SentAt:      timestampToTime(d.SentAt),
		})
	}
	return out, nil
}

type messageDocument struct {
	ID          string `bson:"_id"`
	BookingID   string `bson:"booking_id"`
	SenderID    string `bson:"sender_id"`
	RecipientID string `bson:"recipient_id"`
	Body        string `bson:"body"`
	SentAt      int64  `bson:"sent_at"`
}

var _ domainreviews.Repository = (*ReviewRepository)(nil)
var _ domainmessages.Repository = (*MessageRepository)(nil)
