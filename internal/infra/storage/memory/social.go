package memory

import (
	"context"
	"sort"
	"sync"

	domainbooking "carshare/internal/domain/booking"
	domainmessages "carshare/internal/domain/messages"
	domainreviews "carshare/internal/domain/reviews"
	"carshare/internal/domain/shared/events"
	domainvehicles "carshare/internal/domain/vehicles"
)

type ReviewRepository struct {
	mu    sync.RWMutex
	items []domainreviews.Review
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{}
}

func (r *ReviewRepository) ByBooking(_ context.Context, bookingID domainbooking.BookingID) (*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rv := range r.items {
		if rv.BookingID == bookingID {
			out := rv
			return &out, nil
		}
	}
	return nil, domainreviews.ErrNotFound
}

func (r *ReviewRepository) ListByVehicle(_ context.Context, vehicleID domainvehicles.VehicleID, limit, offset int) ([]*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainreviews.Review, 0)
	for _, rv := range r.items {
		if rv.VehicleID == vehicleID {
			cp := rv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *ReviewRepository) Save(_ context.Context, review *domainreviews.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *review
	stored.EventRecorder = events.EventRecorder{}
	for i := range r.items {
		if r.items[i].ID == review.ID {
			r.items[i] = stored
			return nil
		}
	}
	r.items = append(r.items, stored)
	return nil
}

type MessageRepository struct {
	mu    sync.RWMutex
	items []domainmessages.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

func (r *MessageRepository) Save(_ context.Context, msg *domainmessages.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *msg)
	return nil
}

// ListByBooking returns messages oldest first.
func (r *MessageRepository) ListByBooking(_ context.Context, bookingID domainbooking.BookingID, limit int) ([]*domainmessages.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainmessages.Message, 0)
	for _, m := range r.items {
		if m.BookingID == bookingID {
			cp := m
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var (
	_ domainreviews.Repository  = (*ReviewRepository)(nil)
	_ domainmessages.Repository = (*MessageRepository)(nil)
)
