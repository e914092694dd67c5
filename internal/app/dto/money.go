package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"carshare/internal/domain/shared/money"
)

// Money is rendered in decimal currency units.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func MapMoney(m money.Money) Money {
	return Money{Amount: m.Decimal(), Currency: m.Currency}
}

// Decimal is an amount in currency units that accepts JSON numbers or numeric strings.
type Decimal string

var errDecimal = errors.New("amount must be a number")

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return errDecimal
		}
	}
	*d = Decimal(raw)
	return nil
}

// UnmarshalText lets form and query binding use Decimal.
func (d *Decimal) UnmarshalText(text []byte) error {
	return d.UnmarshalJSON(text)
}

func (d Decimal) IsZero() bool { return strings.TrimSpace(string(d)) == "" }

func (d Decimal) Money(currency string) (money.Money, error) {
	return money.ParseDecimal(string(d), currency)
}

// OptionalMoney converts d when it is set.
func (d Decimal) OptionalMoney(currency string) (*money.Money, error) {
	if d.IsZero() {
		return nil, nil
	}
	m, err := d.Money(currency)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
