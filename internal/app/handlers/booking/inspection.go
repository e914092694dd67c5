package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/outbox"
	"carshare/internal/app/policies"
	domainbooking "carshare/internal/domain/booking"
)

const (
	startRentalKey    = "booking.start_rental"
	completeRentalKey = "booking.complete_rental"

	phasePickup = "pickup"
	phaseReturn = "return"
)

var ErrUploaderMissing = errors.New("booking: photo uploader not configured")

// Photo is either an already hosted URL or a file to upload.
type Photo struct {
	URL         string
	Body        io.Reader
	Filename    string
	ContentType string
}

func (p Photo) empty() bool {
	return strings.TrimSpace(p.URL) == "" && p.Body == nil
}

type InspectionInput struct {
	Front Photo
	Back  Photo
	Left  Photo
	Right Photo
	Notes string `validate:"max=2000"`
}

type StartRentalCommand struct {
	ActorID    string `validate:"required"`
	BookingID  string `validate:"required"`
	Inspection InspectionInput
}

func (c StartRentalCommand) Key() string   { return startRentalKey }
func (c StartRentalCommand) Actor() string { return c.ActorID }

type CompleteRentalCommand struct {
	ActorID    string `validate:"required"`
	BookingID  string `validate:"required"`
	Inspection InspectionInput
}

func (c CompleteRentalCommand) Key() string   { return completeRentalKey }
func (c CompleteRentalCommand) Actor() string { return c.ActorID }

// InspectionHandler records pickup and return inspections. Guards run before any photo
// is uploaded so a rejected request stores nothing.
type InspectionHandler struct {
	Uploader policies.Uploader
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Logger   *slog.Logger
	Now      func() time.Time
}

func (h *InspectionHandler) StartRental(ctx context.Context, cmd StartRentalCommand) (*dto.Booking, error) {
	return h.record(ctx, cmd.ActorID, cmd.BookingID, phasePickup, cmd.Inspection)
}

func (h *InspectionHandler) CompleteRental(ctx context.Context, cmd CompleteRentalCommand) (*dto.Booking, error) {
	return h.record(ctx, cmd.ActorID, cmd.BookingID, phaseReturn, cmd.Inspection)
}

func (h *InspectionHandler) record(ctx context.Context, actorID, bookingID, phase string, input InspectionInput) (*dto.Booking, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(bookingID))
	if err != nil {
		return nil, err
	}
	now := clock(h.Now)
	placeholder, err := domainbooking.NewInspection(domainbooking.InspectionPhotos{Front: "-", Back: "-", Left: "-", Right: "-"}, "", now)
	if err != nil {
		return nil, err
	}
	if err := apply(b.Clone(), actorID, phase, placeholder); err != nil {
		return nil, err
	}
	if input.Front.empty() || input.Back.empty() || input.Left.empty() || input.Right.empty() {
		return nil, domainbooking.ErrPhotosRequired
	}

	photos := domainbooking.InspectionPhotos{}
	sides := []struct {
		name string
		in   Photo
		out  *string
	}{
		{"front", input.Front, &photos.Front},
		{"back", input.Back, &photos.Back},
		{"left", input.Left, &photos.Left},
		{"right", input.Right, &photos.Right},
	}
	for _, side := range sides {
		url, err := h.store(ctx, b.ID, phase, side.name, side.in)
		if err != nil {
			return nil, err
		}
		*side.out = url
	}
	inspection, err := domainbooking.NewInspection(photos, input.Notes, now)
	if err != nil {
		return nil, err
	}
	if err := apply(b, actorID, phase, inspection); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	if phase == phaseReturn {
		vehicle, err := unit.Vehicles().ByID(ctx, b.VehicleID)
		if err != nil {
			return nil, err
		}
		vehicle.IncrementTrips(now)
		if err := unit.Vehicles().Save(ctx, vehicle); err != nil {
			return nil, err
		}
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, b); err != nil {
		return nil, err
	}
	logger(h.Logger).Info("inspection recorded", "booking_id", b.ID, "phase", phase, "status", b.Status)
	out := dto.MapBooking(b)
	return &out, nil
}

func apply(b *domainbooking.Booking, actorID, phase string, inspection domainbooking.Inspection) error {
	if phase == phasePickup {
		return b.StartRental(actorID, inspection)
	}
	return b.CompleteRental(actorID, inspection)
}

func (h *InspectionHandler) store(ctx context.Context, id domainbooking.BookingID, phase, side string, p Photo) (string, error) {
	if url := strings.TrimSpace(p.URL); url != "" {
		return url, nil
	}
	if h.Uploader == nil {
		return "", ErrUploaderMissing
	}
	key := fmt.Sprintf("bookings/%s/%s/%s-%s%s", id, phase, side, uuid.NewString(), extension(p.Filename, p.ContentType))
	return h.Uploader.Upload(ctx, key, p.Body, p.ContentType)
}

func extension(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

