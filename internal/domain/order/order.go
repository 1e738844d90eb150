package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// StatusCreated is the status every order starts in, before the payment
// provider has seen it.
const StatusCreated = "CREATED"

// Sentinel errors for the order ledger.
var (
	ErrInvalidAmount = errors.New("amount must be a positive whole number of minor units")
	ErrNotFound      = errors.New("order not found")
)

// Order is a durable record of a payment attempt.
//
// Status mirrors the provider vocabulary verbatim and is the only field that
// changes after creation (besides UpdatedAt).
type Order struct {
	ID            string
	Amount        int64 // minor units
	Currency      string
	Status        string
	Provider      string
	OwnerID       string
	Note          string
	CustomerEmail string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Rename(ctx context.Context, oldID, newID string) error
	Delete(ctx context.Context, id string) error
	ListByStatus(ctx context.Context, statuses []string, createdBefore time.Time, limit int) ([]Order, error)
}

// ParseAmount parses a client supplied amount expressed in minor units.
// Fractional, non-numeric and non-positive values yield ErrInvalidAmount.
func ParseAmount(raw string) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAmount, "parse %q", raw)
	}
	if !d.IsInteger() || !d.IsPositive() {
		return 0, errors.Wrapf(ErrInvalidAmount, "amount %s", d)
	}
	if !d.LessThanOrEqual(decimal.NewFromInt(1<<53)) {
		return 0, errors.Wrapf(ErrInvalidAmount, "amount %s out of range", d)
	}
	return d.IntPart(), nil
}
