package payment

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/order"
)

// ErrPriceMismatch is returned when the requested amount differs from the
// catalog price of the course.
var ErrPriceMismatch = errors.New("amount does not match course price")

// Ledger is the part of the order ledger used to open checkouts.
type Ledger interface {
	Create(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	Rename(ctx context.Context, oldID, newID string) error
	Delete(ctx context.Context, id string) error
}

// CheckoutRequest holds the input for starting a course purchase.
type CheckoutRequest struct {
	OwnerID     string
	Email       string
	CourseID    string
	CourseTitle string
	Amount      int64
}

// CheckoutResult holds the recorded order and the provider session.
type CheckoutResult struct {
	Order    *order.Order
	Checkout *Checkout
}

// CheckoutService records an order and opens the provider checkout for it.
type CheckoutService struct {
	ledger   Ledger
	courses  CourseFinder
	gateway  Gateway
	currency string
}

// NewCheckoutService creates a CheckoutService charging in currency.
func NewCheckoutService(ledger Ledger, courses CourseFinder, gateway Gateway, currency string) *CheckoutService {
	return &CheckoutService{ledger: ledger, courses: courses, gateway: gateway, currency: currency}
}

// Start creates the order, then the provider session. When the provider call
// fails the order is deleted again so no CREATED row is left without a
// provider-side counterpart.
func (s *CheckoutService) Start(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if req.Amount <= 0 {
		return nil, order.ErrInvalidAmount
	}
	crs, err := s.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, errors.Wrapf(err, "get course %s", req.CourseID)
	}
	if crs.Price != req.Amount {
		return nil, errors.Wrapf(ErrPriceMismatch, "course %s costs %d, got %d", crs.ID, crs.Price, req.Amount)
	}
	title := strings.TrimSpace(req.CourseTitle)
	if title == "" {
		title = crs.Title
	}

	o, err := s.ledger.Create(ctx, order.CreateRequest{
		OwnerID:       req.OwnerID,
		Amount:        req.Amount,
		Currency:      s.currency,
		Note:          course.FormatNote(crs.Slug, title),
		CustomerEmail: req.Email,
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	ck, err := s.gateway.BeginCheckout(ctx, o)
	if err != nil {
		if delErr := s.ledger.Delete(ctx, o.ID); delErr != nil {
			lg.Error("Order rollback failed", zap.Error(delErr))
		} else {
			lg.Info("Order rolled back after checkout failure", zap.Error(err))
		}
		return nil, errors.Wrap(err, "begin checkout")
	}

	if ck.ProviderOrderID != "" && ck.ProviderOrderID != o.ID {
		if err := s.ledger.Rename(ctx, o.ID, ck.ProviderOrderID); err != nil {
			return nil, err
		}
		o.ID = ck.ProviderOrderID
	}
	return &CheckoutResult{Order: o, Checkout: ck}, nil
}
