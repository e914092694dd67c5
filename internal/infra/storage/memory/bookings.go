package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainbooking "carshare/internal/domain/booking"
	domainvehicles "carshare/internal/domain/vehicles"
)

// BookingRepository keeps deep copies so callers never share state with the store.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

func (r *BookingRepository) ByID(_ context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (r *BookingRepository) Save(_ context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(b)
	return nil
}

func (r *BookingRepository) SaveIfPaymentStatus(_ context.Context, b *domainbooking.Booking, expected domainbooking.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[b.ID]
	if !ok {
		return domainbooking.ErrBookingNotFound
	}
	if current.PaymentStatus != expected {
		return domainbooking.ErrPaymentStatusChanged
	}
	r.put(b)
	return nil
}

// put stores a copy of b but keeps the stored reminder flag, which only
// MarkReturnReminderSent may change. Callers hold the write lock.
func (r *BookingRepository) put(b *domainbooking.Booking) {
	stored := b.Clone()
	stored.ReturnReminderSent = false
	if current, ok := r.items[b.ID]; ok {
		stored.ReturnReminderSent = current.ReturnReminderSent
	}
	r.items[b.ID] = stored
}

func (r *BookingRepository) ListByDriver(_ context.Context, driverID string) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool { return b.DriverID == driverID }), nil
}

func (r *BookingRepository) ListByHost(_ context.Context, hostID domainvehicles.HostID) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool { return b.HostID == hostID }), nil
}

func (r *BookingRepository) ListByVehicle(_ context.Context, vehicleID domainvehicles.VehicleID, statuses []domainbooking.Status) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.VehicleID == vehicleID && hasStatus(statuses, b.Status)
	}), nil
}

func (r *BookingRepository) ListDueForReminder(_ context.Context, endBefore time.Time) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.Status == domainbooking.StatusActive && !b.ReturnReminderSent && !b.Range.End.After(endBefore)
	}), nil
}

func (r *BookingRepository) MarkReturnReminderSent(_ context.Context, id domainbooking.BookingID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[id]
	if !ok {
		return domainbooking.ErrBookingNotFound
	}
	b.ReturnReminderSent = true
	return nil
}

func (r *BookingRepository) ListMissingCode(_ context.Context, limit int) ([]*domainbooking.Booking, error) {
	out := r.filter(func(b *domainbooking.Booking) bool { return b.Code == "" })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *BookingRepository) SetCode(_ context.Context, id domainbooking.BookingID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.items[id]
	if !ok {
		return domainbooking.ErrBookingNotFound
	}
	if b.Code == "" {
		b.Code = code
	}
	return nil
}

// filter returns copies ordered by creation time, newest first.
func (r *BookingRepository) filter(keep func(*domainbooking.Booking) bool) []*domainbooking.Booking {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainbooking.Booking, 0)
	for _, b := range r.items {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func hasStatus(set []domainbooking.Status, s domainbooking.Status) bool {
	if len(set) == 0 {
		return true
	}
	for _, c := range set {
		if c == s {
			return true
		}
	}
	return false
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
