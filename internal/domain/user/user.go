package user

import (
	"context"
	"strings"
	"time"

	"carshare/internal/domain/shared/apperr"
)

var (
	ErrIDRequired          = apperr.New(apperr.ErrInvalidInput, "user: id is required")
	ErrEmailRequired       = apperr.New(apperr.ErrInvalidInput, "user: email is required")
	ErrPasswordHashMissing = apperr.New(apperr.ErrInvalidInput, "user: password hash is required")
	ErrNameRequired        = apperr.New(apperr.ErrInvalidInput, "user: name is required")
	ErrInvalidRole         = apperr.New(apperr.ErrInvalidInput, "user: invalid role")
	ErrEmailAlreadyUsed    = apperr.New(apperr.ErrInvalidState, "user: email already used")
	ErrNotFound            = apperr.New(apperr.ErrNotFound, "user: not found")
)

type ID string

type Role string

const (
	RoleDriver Role = "driver"
	RoleHost   Role = "host"
	RoleAdmin  Role = "admin"
)

type User struct {
	ID                ID
	Email             string
	Name              string
	Phone             string
	PasswordHash      string
	Roles             []Role
	PaymentCustomerID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, user *User) error
}

type CreateParams struct {
	ID           ID
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	Roles        []Role
	CreatedAt    time.Time
}

func NewUser(params CreateParams) (*User, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	email := NormalizeEmail(params.Email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	if strings.TrimSpace(params.PasswordHash) == "" {
		return nil, ErrPasswordHashMissing
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	roles, err := normalizeRoles(params.Roles)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		roles = []Role{RoleDriver}
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &User{
		ID:           ID(id),
		Email:        email,
		Name:         name,
		Phone:        strings.TrimSpace(params.Phone),
		PasswordHash: params.PasswordHash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (u *User) EnsureRole(role Role, now time.Time) error {
	role = normalizeRole(role)
	if !validRole(role) {
		return ErrInvalidRole
	}
	if u.HasRole(role) {
		return nil
	}
	u.Roles = append(u.Roles, role)
	u.touch(now)
	return nil
}

func (u *User) HasRole(role Role) bool {
	role = normalizeRole(role)
	for _, current := range u.Roles {
		if normalizeRole(current) == role {
			return true
		}
	}
	return false
}

// SetPaymentCustomer remembers the processor customer created for this user.
func (u *User) SetPaymentCustomer(id string, now time.Time) {
	u.PaymentCustomerID = strings.TrimSpace(id)
	u.touch(now)
}

func (u *User) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	u.UpdatedAt = now.UTC()
}

func ParseRoles(raw []string) ([]Role, error) {
	roles := make([]Role, 0, len(raw))
	for _, r := range raw {
		roles = append(roles, Role(r))
	}
	return normalizeRoles(roles)
}

func normalizeRoles(roles []Role) ([]Role, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	seen := make(map[Role]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, role := range roles {
		role = normalizeRole(role)
		if !validRole(role) {
			return nil, ErrInvalidRole
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out, nil
}

func normalizeRole(role Role) Role {
	return Role(strings.ToLower(strings.TrimSpace(string(role))))
}

func validRole(role Role) bool {
	switch role {
	case RoleDriver, RoleHost, RoleAdmin:
		return true
	}
	return false
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
