package order

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// CreateRequest holds the input for recording a new payment attempt.
type CreateRequest struct {
	OwnerID       string
	Amount        int64
	Currency      string
	Note          string
	CustomerEmail string
}

// Ledger records payment attempts. Rows are written before any call to the
// payment provider so that every provider-side order has a local owner.
type Ledger struct {
	repo     Repository
	provider string
	now      func() time.Time
}

// NewLedger creates a Ledger that tags orders with the given provider name.
func NewLedger(repo Repository, provider string) *Ledger {
	return &Ledger{repo: repo, provider: provider, now: time.Now}
}

// Create validates the amount and persists a new order in StatusCreated.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.OwnerID == "" {
		return nil, errors.New("owner id required")
	}

	now := l.now().UTC()
	o := &Order{
		ID:            NewID(req.OwnerID, now),
		Amount:        req.Amount,
		Currency:      req.Currency,
		Status:        StatusCreated,
		Provider:      l.provider,
		OwnerID:       req.OwnerID,
		Note:          req.Note,
		CustomerEmail: req.CustomerEmail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.repo.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("owner_id", o.OwnerID),
		zap.Int64("amount", o.Amount),
	)
	return o, nil
}

// Get returns the order with the given id or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (*Order, error) {
	return l.repo.Get(ctx, id)
}

// UpdateStatus overwrites the stored status. Last write wins.
func (l *Ledger) UpdateStatus(ctx context.Context, id, status string) error {
	if err := l.repo.UpdateStatus(ctx, id, status); err != nil {
		return errors.Wrapf(err, "update status of %s", id)
	}
	return nil
}

// Rename adopts the provider's canonical order id.
func (l *Ledger) Rename(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	if err := l.repo.Rename(ctx, oldID, newID); err != nil {
		return errors.Wrapf(err, "rename %s to %s", oldID, newID)
	}
	zctx.From(ctx).Info("Order id replaced by provider id",
		zap.String("order_id", oldID),
		zap.String("provider_order_id", newID),
	)
	return nil
}

// Delete removes an order. It is only used to roll back a creation whose
// provider-side counterpart could not be created.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if err := l.repo.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete order %s", id)
	}
	return nil
}

// ListStale returns orders still in one of the given statuses that were
// created more than olderThan ago.
func (l *Ledger) ListStale(ctx context.Context, statuses []string, olderThan time.Duration, limit int) ([]Order, error) {
	orders, err := l.repo.ListByStatus(ctx, statuses, l.now().Add(-olderThan), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list stale orders")
	}
	return orders, nil
}

// NewID builds a process-unique order id from the creation time and a suffix
// of the owner id.
func NewID(ownerID string, at time.Time) string {
	suffix := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, ownerID)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "order_" + strconv.FormatInt(at.UnixMilli(), 10) + "_" + suffix
}
