package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"carshare/internal/app/commands"
	"carshare/internal/app/dto"
	"carshare/internal/app/handlers/support"
	"carshare/internal/app/queries"
	domainbooking "carshare/internal/domain/booking"
)

const (
	listInsurancePlansKey = "insurance.plans"
	selectInsuranceKey    = "booking.select_insurance"
	defaultProvider       = "Carshare Mutual"
)

type ListInsurancePlansQuery struct{}

func (ListInsurancePlansQuery) Key() string { return listInsurancePlansKey }

type ListInsurancePlansHandler struct {
	Currency string
}

func (h *ListInsurancePlansHandler) Handle(_ context.Context, _ ListInsurancePlansQuery) (dto.InsurancePlanCollection, error) {
	plans := domainbooking.InsurancePlans()
	out := dto.InsurancePlanCollection{Items: make([]dto.InsurancePlan, 0, len(plans))}
	for _, p := range plans {
		out.Items = append(out.Items, dto.MapInsurancePlan(p, h.Currency))
	}
	return out, nil
}

// SelectInsuranceCommand picks a plan, or removes the current one with plan "none".
type SelectInsuranceCommand struct {
	ActorID   string `validate:"required"`
	BookingID string `validate:"required"`
	Plan      string `validate:"required,oneof=none basic standard premium"`
}

func (c SelectInsuranceCommand) Key() string   { return selectInsuranceKey }
func (c SelectInsuranceCommand) Actor() string { return c.ActorID }

type SelectInsuranceHandler struct {
	Provider string
	Logger   *slog.Logger
	Now      func() time.Time
}

func (h *SelectInsuranceHandler) Handle(ctx context.Context, cmd SelectInsuranceCommand) (*dto.Booking, error) {
	unit, err := support.CurrentUnit(ctx)
	if err != nil {
		return nil, err
	}
	tier, err := domainbooking.ParsePlanTier(cmd.Plan)
	if err != nil {
		return nil, err
	}
	b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}
	policy := ""
	if tier != domainbooking.PlanNone {
		policy = policyNumber(b)
	}
	if err := b.SelectInsurance(cmd.ActorID, tier, h.provider(), policy, clock(h.Now)); err != nil {
		return nil, err
	}
	if err := unit.Bookings().Save(ctx, b); err != nil {
		return nil, err
	}
	logger(h.Logger).Info("insurance selected", "booking_id", b.ID, "plan", tier, "total", b.TotalPrice.String())
	out := dto.MapBooking(b)
	return &out, nil
}

func (h *SelectInsuranceHandler) provider() string {
	if p := strings.TrimSpace(h.Provider); p != "" {
		return p
	}
	return defaultProvider
}

func policyNumber(b *domainbooking.Booking) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	if b.Code != "" {
		return fmt.Sprintf("POL-%s-%s", strings.TrimPrefix(b.Code, "RSV-"), suffix)
	}
	return "POL-" + suffix
}

var _ queries.Handler[ListInsurancePlansQuery, dto.InsurancePlanCollection] = (*ListInsurancePlansHandler)(nil)
var _ commands.Handler[SelectInsuranceCommand, *dto.Booking] = (*SelectInsuranceHandler)(nil)
