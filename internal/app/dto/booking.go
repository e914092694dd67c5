package dto

import (
	"time"

	domainbooking "carshare/internal/domain/booking"
	"carshare/internal/domain/shared/money"
)

type Booking struct {
	ID                 string          `json:"id"`
	Code               string          `json:"reservationCode"`
	VehicleID          string          `json:"vehicleId"`
	DriverID           string          `json:"driverId"`
	HostID             string          `json:"hostId"`
	StartDate          time.Time       `json:"startDate"`
	EndDate            time.Time       `json:"endDate"`
	PickupTime         string          `json:"pickupTime"`
	DropoffTime        string          `json:"dropoffTime"`
	RentalType         string          `json:"rentalType"`
	Quantity           int             `json:"quantity"`
	TotalDays          int             `json:"totalDays"`
	PricePerDay        Money           `json:"pricePerDay"`
	RentalPrice        Money           `json:"rentalPrice"`
	TotalPrice         Money           `json:"totalPrice"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"paymentStatus"`
	Extensions         []Extension     `json:"extensions"`
	VehicleSwitches    []VehicleSwitch `json:"vehicleSwitches"`
	Insurance          *Insurance      `json:"insurance,omitempty"`
	PickupInspection   *Inspection     `json:"pickupInspection,omitempty"`
	ReturnInspection   *Inspection     `json:"returnInspection,omitempty"`
	ReturnReminderSent bool            `json:"returnReminderSent"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

type Extension struct {
	Days       int       `json:"days"`
	Cost       Money     `json:"cost"`
	PaymentRef string    `json:"paymentIntentId,omitempty"`
	At         time.Time `json:"extendedAt"`
}

type VehicleSwitch struct {
	PreviousVehicleID string    `json:"previousVehicleId"`
	NewVehicleID      string    `json:"newVehicleId"`
	PreviousPrice     Money     `json:"previousPrice"`
	NewPrice          Money     `json:"newPrice"`
	PriceDifference   Money     `json:"priceDifference"`
	Reason            string    `json:"reason,omitempty"`
	At                time.Time `json:"switchedAt"`
}

type Insurance struct {
	Plan         string          `json:"plan"`
	Provider     string          `json:"provider"`
	PolicyNumber string          `json:"policyNumber"`
	PerDay       Money           `json:"perDay"`
	Total        Money           `json:"total"`
	Coverage     map[string]bool `json:"coverage"`
	SelectedAt   time.Time       `json:"selectedAt"`
}

type Inspection struct {
	Front       string    `json:"front"`
	Back        string    `json:"back"`
	Left        string    `json:"left"`
	Right       string    `json:"right"`
	Notes       string    `json:"notes,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
}

type BookingCollection struct {
	Items []Booking `json:"items"`
}

type ExtensionQuote struct {
	BookingID       string    `json:"bookingId"`
	Days            int       `json:"days"`
	Cost            Money     `json:"cost"`
	CurrentEndDate  time.Time `json:"currentEndDate"`
	NewEndDate      time.Time `json:"newEndDate"`
	NewTotal        Money     `json:"newTotal"`
	PaymentIntentID string    `json:"paymentIntentId"`
	ClientSecret    string    `json:"clientSecret"`
}

type SwitchCandidate struct {
	Vehicle     Vehicle `json:"vehicle"`
	RentalPrice Money   `json:"rentalPrice"`
	PriceDiff   Money   `json:"priceDifference"`
	PricePerDay Money   `json:"pricePerDay"`
}

type SwitchCandidateCollection struct {
	Items []SwitchCandidate `json:"items"`
}

type InsurancePlan struct {
	Tier        string          `json:"tier"`
	Name        string          `json:"name"`
	PerDay      Money           `json:"perDay"`
	Deductible  Money           `json:"deductible"`
	Coverage    map[string]bool `json:"coverage"`
	Description string          `json:"description"`
}

type InsurancePlanCollection struct {
	Items []InsurancePlan `json:"items"`
}

func MapBooking(b *domainbooking.Booking) Booking {
	out := Booking{
		ID:                 string(b.ID),
		Code:               b.Code,
		VehicleID:          string(b.VehicleID),
		DriverID:           b.DriverID,
		HostID:             string(b.HostID),
		StartDate:          b.Range.Start,
		EndDate:            b.Range.End,
		PickupTime:         b.PickupTime,
		DropoffTime:        b.DropoffTime,
		RentalType:         string(b.RentalType),
		Quantity:           b.Quantity,
		TotalDays:          b.TotalDays,
		PricePerDay:        MapMoney(b.PricePerDay),
		RentalPrice:        MapMoney(b.RentalPrice),
		TotalPrice:         MapMoney(b.TotalPrice),
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		Extensions:         make([]Extension, 0, len(b.Extensions)),
		VehicleSwitches:    make([]VehicleSwitch, 0, len(b.Switches)),
		ReturnReminderSent: b.ReturnReminderSent,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
	for _, ext := range b.Extensions {
		out.Extensions = append(out.Extensions, Extension{Days: ext.Days, Cost: MapMoney(ext.Cost), PaymentRef: ext.PaymentRef, At: ext.At})
	}
	for _, sw := range b.Switches {
		out.VehicleSwitches = append(out.VehicleSwitches, VehicleSwitch{
			PreviousVehicleID: string(sw.PreviousVehicle),
			NewVehicleID:      string(sw.NewVehicle),
			PreviousPrice:     MapMoney(sw.PreviousPrice),
			NewPrice:          MapMoney(sw.NewPrice),
			PriceDifference:   MapMoney(sw.PriceDifference),
			Reason:            sw.Reason,
			At:                sw.At,
		})
	}
	if ins := b.Insurance; ins != nil {
		out.Insurance = &Insurance{
			Plan:         string(ins.Tier),
			Provider:     ins.Provider,
			PolicyNumber: ins.PolicyNumber,
			PerDay:       MapMoney(ins.PerDay),
			Total:        MapMoney(ins.Total),
			Coverage:     mapCoverage(ins.Coverage),
			SelectedAt:   ins.SelectedAt,
		}
	}
	out.PickupInspection = mapInspection(b.PickupInspection)
	out.ReturnInspection = mapInspection(b.ReturnInspection)
	return out
}

func MapBookings(items []*domainbooking.Booking) BookingCollection {
	out := BookingCollection{Items: make([]Booking, 0, len(items))}
	for _, b := range items {
		out.Items = append(out.Items, MapBooking(b))
	}
	return out
}

func MapInsurancePlan(p domainbooking.InsurancePlan, currency string) InsurancePlan {
	return InsurancePlan{
		Tier:        string(p.Tier),
		Name:        p.Name,
		PerDay:      MapMoney(money.Money{Amount: p.PerDayCents, Currency: currency}),
		Deductible:  MapMoney(money.Money{Amount: p.DeductibleCents, Currency: currency}),
		Coverage:    mapCoverage(p.Coverage),
		Description: p.Description,
	}
}

func mapInspection(in *domainbooking.Inspection) *Inspection {
	if in == nil {
		return nil
	}
	return &Inspection{
		Front:       in.Photos.Front,
		Back:        in.Photos.Back,
		Left:        in.Photos.Left,
		Right:       in.Photos.Right,
		Notes:       in.Notes,
		CompletedAt: in.CompletedAt,
	}
}

func mapCoverage(c domainbooking.Coverage) map[string]bool {
	return map[string]bool{
		"liability":          c.Liability,
		"collision":          c.Collision,
		"comprehensive":      c.Comprehensive,
		"personalInjury":     c.PersonalInjury,
		"roadsideAssistance": c.RoadsideAssistance,
	}
}
