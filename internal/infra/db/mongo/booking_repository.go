package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/pricing"
	"carshare/internal/domain/shared/daterange"
	"carshare/internal/domain/shared/money"
	"carshare/internal/domain/vehicles"
)

const bookingsCollection = "bookings"

// BookingRepository stores bookings as one document each. Save rewrites every field
// except the reminder marker, which only MarkReturnReminderSent sets; only
// SaveIfPaymentStatus is conditional.
type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection(bookingsCollection)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	update, err := bookingUpdate(doc)
	if err != nil {
		return err
	}
	_, err = r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, update, options.Update().SetUpsert(true))
	return err
}

// SaveIfPaymentStatus updates the document only while its payment status still equals
// expected.
func (r *BookingRepository) SaveIfPaymentStatus(ctx context.Context, b *domainbooking.Booking, expected domainbooking.PaymentStatus) error {
	doc := newBookingDocument(b)
	update, err := bookingUpdate(doc)
	if err != nil {
		return err
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID, "payment_status": string(expected)}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return r.missingOr(ctx, doc.ID, domainbooking.ErrPaymentStatusChanged)
}

func (r *BookingRepository) ListByDriver(ctx context.Context, driverID string) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"driver_id": driverID}, 0)
}

func (r *BookingRepository) ListByHost(ctx context.Context, hostID vehicles.HostID) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"host_id": string(hostID)}, 0)
}

func (r *BookingRepository) ListByVehicle(ctx context.Context, vehicleID vehicles.VehicleID, statuses []domainbooking.Status) ([]*domainbooking.Booking, error) {
	filter := bson.M{"vehicle_id": string(vehicleID)}
	if len(statuses) > 0 {
		in := make([]string, len(statuses))
		for i, s := range statuses {
			in[i] = string(s)
		}
		filter["status"] = bson.M{"$in": in}
	}
	return r.find(ctx, filter, 0)
}

func (r *BookingRepository) ListDueForReminder(ctx context.Context, endBefore time.Time) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"status":               string(domainbooking.StatusActive),
		"return_reminder_sent": bson.M{"$ne": true},
		"range.end":            bson.M{"$lte": timeToTimestamp(endBefore)},
	}
	return r.find(ctx, filter, 0)
}

// MarkReturnReminderSent is a targeted update so it never clobbers a concurrent full save.
func (r *BookingRepository) MarkReturnReminderSent(ctx context.Context, id domainbooking.BookingID, at time.Time) error {
	update := bson.M{"$set": bson.M{"return_reminder_sent": true, "return_reminder_at": timeToTimestamp(at)}}
	res, err := r.col.UpdateByID(ctx, string(id), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainbooking.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) ListMissingCode(ctx context.Context, limit int) ([]*domainbooking.Booking, error) {
	return r.find(ctx, missingCodeFilter(bson.M{}), int64(limit))
}

// SetCode assigns code unless the booking already carries one.
func (r *BookingRepository) SetCode(ctx context.Context, id domainbooking.BookingID, code string) error {
	res, err := r.col.UpdateOne(ctx, missingCodeFilter(bson.M{"_id": string(id)}), bson.M{"$set": bson.M{"code": code}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return r.missingOr(ctx, string(id), nil)
}

// bookingUpdate turns doc into a $set of every persisted field except _id and the
// reminder marker. A stale aggregate therefore cannot clear a reminder that was
// flagged after it was read.
func bookingUpdate(doc bookingDocument) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	fields := bson.M{}
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "_id")
	delete(fields, "return_reminder_sent")
	delete(fields, "return_reminder_at")
	return bson.M{
		"$set":         fields,
		"$setOnInsert": bson.M{"return_reminder_sent": false},
	}, nil
}

func (r *BookingRepository) find(ctx context.Context, filter bson.M, limit int64) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bookingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainbooking.Booking, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

// missingOr returns ErrBookingNotFound when id does not exist and fallback otherwise.
func (r *BookingRepository) missingOr(ctx context.Context, id string, fallback error) error {
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return domainbooking.ErrBookingNotFound
	}
	return fallback
}

func missingCodeFilter(base bson.M) bson.M {
	base["$or"] = bson.A{
		bson.M{"code": bson.M{"$exists": false}},
		bson.M{"code": ""},
	}
	return base
}

type bookingDocument struct {
	ID                 string              `bson:"_id"`
	Code               string              `bson:"code,omitempty"`
	VehicleID          string              `bson:"vehicle_id"`
	DriverID           string              `bson:"driver_id"`
	HostID             string              `bson:"host_id"`
	Range              rangeDocument       `bson:"range"`
	PickupTime         string              `bson:"pickup_time"`
	DropoffTime        string              `bson:"dropoff_time"`
	RentalType         string              `bson:"rental_type"`
	Quantity           int                 `bson:"quantity"`
	TotalDays          int                 `bson:"total_days"`
	PricePerDay        money.Money         `bson:"price_per_day"`
	RentalPrice        money.Money         `bson:"rental_price"`
	TotalPrice         money.Money         `bson:"total_price"`
	Status             string              `bson:"status"`
	PaymentStatus      string              `bson:"payment_status"`
	PaymentRef         string              `bson:"payment_ref,omitempty"`
	Extensions         []extensionDocument `bson:"extensions"`
	Switches           []switchDocument    `bson:"switches"`
	Insurance          *insuranceDocument  `bson:"insurance,omitempty"`
	PickupInspection   *inspectionDocument `bson:"pickup_inspection,omitempty"`
	ReturnInspection   *inspectionDocument `bson:"return_inspection,omitempty"`
	ReturnReminderSent bool                `bson:"return_reminder_sent"`
	CreatedAt          int64               `bson:"created_at"`
	UpdatedAt          int64               `bson:"updated_at"`
}

type rangeDocument struct {
	Start int64 `bson:"start"`
	End   int64 `bson:"end"`
}

type extensionDocument struct {
	Days       int         `bson:"days"`
	Cost       money.Money `bson:"cost"`
	PaymentRef string      `bson:"payment_ref"`
	At         int64       `bson:"at"`
}

type switchDocument struct {
	PreviousVehicle string      `bson:"previous_vehicle"`
	NewVehicle      string      `bson:"new_vehicle"`
	PreviousPrice   money.Money `bson:"previous_price"`
	NewPrice        money.Money `bson:"new_price"`
	PriceDifference money.Money `bson:"price_difference"`
	Reason          string      `bson:"reason,omitempty"`
	At              int64       `bson:"at"`
}

type insuranceDocument struct {
	Tier         string                 `bson:"tier"`
	Provider     string                 `bson:"provider"`
	PolicyNumber string                 `bson:"policy_number"`
	PerDay       money.Money            `bson:"per_day"`
	Total        money.Money            `bson:"total"`
	Coverage     domainbooking.Coverage `bson:"coverage"`
	SelectedAt   int64                  `bson:"selected_at"`
}

type inspectionDocument struct {
	Front       string `bson:"front"`
	Back        string `bson:"back"`
	Left        string `bson:"left"`
	Right       string `bson:"right"`
	Notes       string `bson:"notes,omitempty"`
	CompletedAt int64  `bson:"completed_at"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	doc := bookingDocument{
		ID:                 string(b.ID),
		Code:               b.Code,
		VehicleID:          string(b.VehicleID),
		DriverID:           b.DriverID,
		HostID:             string(b.HostID),
		Range:              rangeDocument{Start: timeToTimestamp(b.Range.Start), End: timeToTimestamp(b.Range.End)},
		PickupTime:         b.PickupTime,
		DropoffTime:        b.DropoffTime,
		RentalType:         string(b.RentalType),
		Quantity:           b.Quantity,
		TotalDays:          b.TotalDays,
		PricePerDay:        b.PricePerDay,
		RentalPrice:        b.RentalPrice,
		TotalPrice:         b.TotalPrice,
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		PaymentRef:         b.PaymentRef,
		Extensions:         make([]extensionDocument, 0, len(b.Extensions)),
		Switches:           make([]switchDocument, 0, len(b.Switches)),
		PickupInspection:   newInspectionDocument(b.PickupInspection),
		ReturnInspection:   newInspectionDocument(b.ReturnInspection),
		ReturnReminderSent: b.ReturnReminderSent,
		CreatedAt:          timeToTimestamp(b.CreatedAt),
		UpdatedAt:          timeToTimestamp(b.UpdatedAt),
	}
	for _, e := range b.Extensions {
		doc.Extensions = append(doc.Extensions, extensionDocument{Days: e.Days, Cost: e.Cost, PaymentRef: e.PaymentRef, At: timeToTimestamp(e.At)})
	}
	for _, s := range b.Switches {
		doc.Switches = append(doc.Switches, switchDocument{
			PreviousVehicle: string(s.PreviousVehicle),
			NewVehicle:      string(s.NewVehicle),
			PreviousPrice:   s.PreviousPrice,
			NewPrice:        s.NewPrice,
			PriceDifference: s.PriceDifference,
			Reason:          s.Reason,
			At:              timeToTimestamp(s.At),
		})
	}
	if ins := b.Insurance; ins != nil {
		doc.Insurance = &insuranceDocument{
			Tier:         string(ins.Tier),
			Provider:     ins.Provider,
			PolicyNumber: ins.PolicyNumber,
			PerDay:       ins.PerDay,
			Total:        ins.Total,
			Coverage:     ins.Coverage,
			SelectedAt:   timeToTimestamp(ins.SelectedAt),
		}
	}
	return doc
}

func newInspectionDocument(in *domainbooking.Inspection) *inspectionDocument {
	if in == nil {
		return nil
	}
	return &inspectionDocument{
		Front:       in.Photos.Front,
		Back:        in.Photos.Back,
		Left:        in.Photos.Left,
		Right:       in.Photos.Right,
		Notes:       in.Notes,
		CompletedAt: timeToTimestamp(in.CompletedAt),
	}
}

func (d inspectionDocument) toInspection() *domainbooking.Inspection {
	return &domainbooking.Inspection{
		Photos:      domainbooking.InspectionPhotos{Front: d.Front, Back: d.Back, Left: d.Left, Right: d.Right},
		Notes:       d.Notes,
		CompletedAt: timestampToTime(d.CompletedAt),
	}
}

func (d bookingDocument) toAggregate() *domainbooking.Booking {
	agg := &domainbooking.Booking{
		ID:                 domainbooking.BookingID(d.ID),
		Code:               d.Code,
		VehicleID:          vehicles.VehicleID(d.VehicleID),
		DriverID:           d.DriverID,
		HostID:             vehicles.HostID(d.HostID),
		Range:              daterange.DateRange{Start: timestampToTime(d.Range.Start), End: timestampToTime(d.Range.End)},
		PickupTime:         d.PickupTime,
		DropoffTime:        d.DropoffTime,
		RentalType:         pricing.RentalType(d.RentalType),
		Quantity:           d.Quantity,
		TotalDays:          d.TotalDays,
		PricePerDay:        d.PricePerDay,
		RentalPrice:        d.RentalPrice,
		TotalPrice:         d.TotalPrice,
		Status:             domainbooking.Status(d.Status),
		PaymentStatus:      domainbooking.PaymentStatus(d.PaymentStatus),
		PaymentRef:         d.PaymentRef,
		ReturnReminderSent: d.ReturnReminderSent,
		CreatedAt:          timestampToTime(d.CreatedAt),
		UpdatedAt:          timestampToTime(d.UpdatedAt),
	}
	for _, e := range d.Extensions {
		agg.Extensions = append(agg.Extensions, domainbooking.Extension{Days: e.Days, Cost: e.Cost, PaymentRef: e.PaymentRef, At: timestampToTime(e.At)})
	}
	for _, s := range d.Switches {
		agg.Switches = append(agg.Switches, domainbooking.VehicleSwitch{
			PreviousVehicle: vehicles.VehicleID(s.PreviousVehicle),
			NewVehicle:      vehicles.VehicleID(s.NewVehicle),
			PreviousPrice:   s.PreviousPrice,
			NewPrice:        s.NewPrice,
			PriceDifference: s.PriceDifference,
			Reason:          s.Reason,
			At:              timestampToTime(s.At),
		})
	}
	if ins := d.Insurance; ins != nil {
		agg.Insurance = &domainbooking.InsuranceSelection{
			Tier:         domainbooking.PlanTier(ins.Tier),
			Provider:     ins.Provider,
			PolicyNumber: ins.PolicyNumber,
			PerDay:       ins.PerDay,
			Total:        ins.Total,
			Coverage:     ins.Coverage,
			SelectedAt:   timestampToTime(ins.SelectedAt),
		}
	}
	if d.PickupInspection != nil {
		agg.PickupInspection = d.PickupInspection.toInspection()
	}
	if d.ReturnInspection != nil {
		agg.ReturnInspection = d.ReturnInspection.toInspection()
	}
	return agg
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
