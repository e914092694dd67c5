package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"carshare/internal/domain/shared/apperr"
)

// bcrypt silently ignores input past 72 bytes; reject it instead.
const maxPasswordBytes = 72

var ErrPasswordTooLong = apperr.New(apperr.ErrInvalidInput, "password: longer than 72 bytes")

type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cost())
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return apperr.New(apperr.ErrUnauthorized, "password: mismatch")
	}
	return err
}

func (h BcryptHasher) cost() int {
	if h.Cost >= bcrypt.MinCost && h.Cost <= bcrypt.MaxCost {
		return h.Cost
	}
	return bcrypt.DefaultCost
}
