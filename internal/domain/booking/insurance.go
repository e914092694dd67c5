package booking

import (
	"strings"
	"time"

	"carshare/internal/domain/shared/apperr"
	"carshare/internal/domain/shared/money"
)

var ErrUnknownPlan = apperr.New(apperr.ErrInvalidInput, "booking: unknown insurance plan")

type PlanTier string

const (
	PlanNone     PlanTier = "none"
	PlanBasic    PlanTier = "basic"
	PlanStandard PlanTier = "standard"
	PlanPremium  PlanTier = "premium"
)

type Coverage struct {
	Liability          bool
	Collision          bool
	Comprehensive      bool
	RoadsideAssistance bool
	PersonalInjury     bool
}

type InsurancePlan struct {
	Tier            PlanTier
	Name            string
	Description     string
	PerDayCents     int64
	DeductibleCents int64
	Coverage        Coverage
}

var insuranceCatalog = []InsurancePlan{
	{
		Tier:            PlanBasic,
		Name:            "Basic",
		Description:     "Third-party liability only.",
		PerDayCents:     1500,
		DeductibleCents: 150000,
		Coverage:        Coverage{Liability: true},
	},
	{
		Tier:            PlanStandard,
		Name:            "Standard",
		Description:     "Liability and collision damage with roadside assistance.",
		PerDayCents:     2500,
		DeductibleCents: 75000,
		Coverage:        Coverage{Liability: true, Collision: true, RoadsideAssistance: true},
	},
	{
		Tier:            PlanPremium,
		Name:            "Premium",
		Description:     "Full coverage including theft, weather and personal injury.",
		PerDayCents:     4000,
		DeductibleCents: 0,
		Coverage:        Coverage{Liability: true, Collision: true, Comprehensive: true, RoadsideAssistance: true, PersonalInjury: true},
	},
}

// InsurancePlans returns a copy of the plan catalog.
func InsurancePlans() []InsurancePlan {
	return append([]InsurancePlan(nil), insuranceCatalog...)
}

func ParsePlanTier(raw string) (PlanTier, error) {
	tier := PlanTier(strings.ToLower(strings.TrimSpace(raw)))
	if tier == PlanNone || tier == "" {
		return PlanNone, nil
	}
	if _, ok := PlanByTier(tier); !ok {
		return "", ErrUnknownPlan
	}
	return tier, nil
}

func PlanByTier(tier PlanTier) (InsurancePlan, bool) {
	for _, plan := range insuranceCatalog {
		if plan.Tier == tier {
			return plan, true
		}
	}
	return InsurancePlan{}, false
}

type InsuranceSelection struct {
	Tier         PlanTier
	Provider     string
	PolicyNumber string
	PerDay       money.Money
	Total        money.Money
	Coverage     Coverage
	SelectedAt   time.Time
}

// SelectInsurance replaces the current selection, or clears it for PlanNone, and
// shifts the total by the insurance difference. Paid bookings are frozen.
func (b *Booking) SelectInsurance(actorID string, tier PlanTier, provider, policyNumber string, now time.Time) error {
	if err := b.RequireDriver(actorID); err != nil {
		return err
	}
	if b.Status.Terminal() {
		return ErrInvalidTransition
	}
	if b.PaymentStatus == PaymentPaid || b.PaymentStatus == PaymentRefunded {
		return ErrInsuranceLocked
	}
	var next *InsuranceSelection
	if tier != PlanNone {
		plan, ok := PlanByTier(tier)
		if !ok {
			return ErrUnknownPlan
		}
		perDay := money.Money{Amount: plan.PerDayCents, Currency: b.PricePerDay.Currency}
		next = &InsuranceSelection{
			Tier:         plan.Tier,
			Provider:     strings.TrimSpace(provider),
			PolicyNumber: policyNumber,
			PerDay:       perDay,
			Total:        perDay.Multiply(int64(b.TotalDays)),
			Coverage:     plan.Coverage,
			SelectedAt:   now.UTC(),
		}
	}

	total := b.TotalPrice
	var err error
	if b.Insurance != nil {
		if total, err = total.Sub(b.Insurance.Total); err != nil {
			return err
		}
	}
	if next != nil {
		if total, err = total.Add(next.Total); err != nil {
			return err
		}
	}
	b.Insurance = next
	b.TotalPrice = total
	b.UpdatedAt = now.UTC()
	return nil
}
