package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Cash   PaymentMethod = "CASH"
	Debit  PaymentMethod = "DEBIT"
	Credit PaymentMethod = "CREDIT"
)

const (
	Monthly RecurrenceType = "MONTHLY"
	Yearly  RecurrenceType = "YEARLY"
	Weekly  RecurrenceType = "WEEKLY"
	Daily   RecurrenceType = "DAILY"
)

type (
	PaymentMethod  string
	RecurrenceType string

	// Date is a calendar date in UTC.
	Date struct {
		time.Time
	}

	// Purchase is a single spending fact entered by the user.
	Purchase struct {
		ID            string          `json:"id,omitempty"`
		UserID        string          `json:"userId"`
		Value         decimal.Decimal `json:"value"`
		Date          Date            `json:"date"`
		PaymentMethod PaymentMethod   `json:"paymentMethod"`
		IsInstallment bool            `json:"isInstallment,omitempty"`
		PartsCount    int             `json:"partsCount,omitempty"`
		CardID        string          `json:"cardId,omitempty"`
	}

	// Card is a payment instrument. Purchases made after BillingCutoffDay
	// are billed in the following cycle.
	Card struct {
		ID               string `json:"id" db:"id"`
		UserID           string `json:"userId" db:"user_id"`
		BillingCutoffDay int    `json:"billingCutoffDay" db:"billing_cutoff_day"`
	}

	Subscription struct {
		ID     string          `json:"id,omitempty"`
		UserID string          `json:"userId"`
		Value  decimal.Decimal `json:"value"`
		Type   RecurrenceType  `json:"type"`
	}

	// MonthKey identifies a monthly aggregate. Month is zero based (0 = January).
	MonthKey struct {
		UserID string `json:"userId"`
		Month  int    `json:"month"`
		Year   int    `json:"year"`
	}

	MonthlyAggregate struct {
		MonthKey
		Value     decimal.Decimal `json:"value"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	FixedCostAggregate struct {
		UserID    string          `json:"userId"`
		Value     decimal.Decimal `json:"value"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}
)

// NewDate creates a new Date from year, month (1-12), day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// Validate rejects the zero date.
func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidEvent)
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format(time.DateOnly))
}

// UnmarshalJSON accepts "2006-01-02" or a full RFC3339 timestamp.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t.UTC()
	return nil
}

func (p PaymentMethod) IsValid() bool {
	switch p {
	case Cash, Debit, Credit:
		return true
	}
	return false
}

// IsImmediate reports whether the payment settles in the purchase month.
func (p PaymentMethod) IsImmediate() bool {
	return p == Cash || p == Debit
}

// Parts returns how many billing cycles the purchase is spread over.
func (p Purchase) Parts() int {
	if p.PaymentMethod != Credit || !p.IsInstallment || p.PartsCount < 1 {
		return 1
	}
	return p.PartsCount
}

func (p Purchase) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrEmptyUser
	}
	if !p.Value.IsPositive() {
		return ErrInvalidAmount
	}
	if err := p.Date.Validate(); err != nil {
		return err
	}
	if !p.PaymentMethod.IsValid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidEvent, p.PaymentMethod)
	}
	if p.PaymentMethod == Credit {
		if strings.TrimSpace(p.CardID) == "" {
			return fmt.Errorf("%w: credit purchase without card", ErrInvalidEvent)
		}
		if p.IsInstallment && p.PartsCount < 1 {
			return fmt.Errorf("%w: installment purchase needs at least one part", ErrInvalidEvent)
		}
	}
	return nil
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: card id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(c.UserID) == "" {
		return ErrEmptyUser
	}
	if c.BillingCutoffDay < 1 || c.BillingCutoffDay > 31 {
		return ErrInvalidCutoffDay
	}
	return nil
}

// AffectsFixedCost reports whether the subscription counts towards the fixed cost.
func (s Subscription) AffectsFixedCost() bool {
	return s.Type == Monthly
}

func (s Subscription) Validate() error {
	if strings.TrimSpace(s.UserID) == "" {
		return ErrEmptyUser
	}
	if !s.Value.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(string(s.Type)) == "" {
		return fmt.Errorf("%w: subscription type is required", ErrInvalidEvent)
	}
	return nil
}

func (k MonthKey) Validate() error {
	if strings.TrimSpace(k.UserID) == "" {
		return ErrEmptyUser
	}
	if k.Month < 0 || k.Month > 11 {
		return ErrInvalidMonth
	}
	return nil
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%s/%04d-%02d", k.UserID, k.Year, k.Month+1)
}
