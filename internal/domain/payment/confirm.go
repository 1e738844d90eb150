package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/order"
)

// ErrForbidden is returned when the caller does not own the order.
var ErrForbidden = errors.New("order belongs to another user")

// Trigger names the entry point that asked for a confirmation.
type Trigger string

const (
	TriggerWebhook     Trigger = "webhook"
	TriggerSuccessPage Trigger = "success_page"
	TriggerVerify      Trigger = "verify"
	TriggerMock        Trigger = "mock"
	TriggerOperator    Trigger = "operator"
)

// Source tells where the status used for a confirmation came from.
type Source string

const (
	SourceProvider Source = "provider"
	SourceWebhook  Source = "webhook"
	SourceLocal    Source = "local"
)

// Observation is a status report received outside of a provider fetch,
// such as a signed webhook payload.
type Observation struct {
	Status      string
	Note        string
	Amount      int64
	AmountKnown bool
}

// ConfirmRequest asks to confirm the payment state of one order.
type ConfirmRequest struct {
	OrderID string
	// Principal is the authenticated caller. Empty means a trusted caller
	// (verified webhook or operator) and skips the ownership check.
	Principal string
	Trigger   Trigger
	// Observed is used instead of the stored status when the provider
	// cannot be reached.
	Observed *Observation
}

// Confirmation is the result of a confirmation.
type Confirmation struct {
	Order  *order.Order
	Status Status
	Source Source
	// Fallback is the gateway error that forced a non-provider source.
	Fallback error
	Course   *course.Course
	Result   *Result
}

// Orders is the part of the order ledger used by confirmations.
type Orders interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// CourseResolver maps order hints to a course.
type CourseResolver interface {
	Resolve(ctx context.Context, h course.Hints) (*course.Course, error)
}

// CourseFinder looks courses up by id.
type CourseFinder interface {
	GetByID(ctx context.Context, id string) (*course.Course, error)
}

// Confirmer is the single fetch, resolve and reconcile pipeline behind every
// payment trigger surface.
type Confirmer struct {
	orders     Orders
	gateway    Gateway
	resolver   CourseResolver
	courses    CourseFinder
	reconciler *Reconciler
	metrics    *Metrics
}

// NewConfirmer wires the pipeline. metrics may be nil.
func NewConfirmer(
	orders Orders,
	gateway Gateway,
	resolver CourseResolver,
	courses CourseFinder,
	reconciler *Reconciler,
	metrics *Metrics,
) *Confirmer {
	return &Confirmer{
		orders:     orders,
		gateway:    gateway,
		resolver:   resolver,
		courses:    courses,
		reconciler: reconciler,
		metrics:    metrics,
	}
}

// Confirm fetches the authoritative status of an order, mirrors it into the
// ledger and, on success, makes sure the owner is enrolled.
//
// Gateway failures are not returned: the confirmation proceeds with the
// observed or stored status instead.
func (c *Confirmer) Confirm(ctx context.Context, req ConfirmRequest) (*Confirmation, error) {
	conf, err := c.confirm(ctx, req)
	c.metrics.confirmed(ctx, req.Trigger, outcomeLabel(conf, err))
	return conf, err
}

func (c *Confirmer) confirm(ctx context.Context, req ConfirmRequest) (*Confirmation, error) {
	lg := zctx.From(ctx).With(
		zap.String("order_id", req.OrderID),
		zap.String("trigger", string(req.Trigger)),
	)

	o, err := c.owned(ctx, req.OrderID, req.Principal)
	if err != nil {
		return nil, err
	}

	obs := Observation{Status: o.Status, Note: o.Note}
	source := SourceLocal
	po, fetchErr := c.gateway.FetchOrderStatus(ctx, o.ID)
	switch {
	case fetchErr == nil:
		obs = Observation{Status: po.Status, Note: po.Note, Amount: po.Amount, AmountKnown: po.AmountKnown}
		source = SourceProvider
	case req.Observed != nil:
		// A redelivered webhook may predate the payment. Without the
		// provider to arbitrate, a stored success is not demoted.
		if req.Observed.Status != "" &&
			ClassifyStatus(o.Status).IsSuccess() &&
			!ClassifyStatus(req.Observed.Status).IsSuccess() {
			lg.Warn("Ignoring stale webhook status for paid order",
				zap.String("stored", o.Status),
				zap.String("observed", req.Observed.Status),
			)
			break
		}
		obs = *req.Observed
		source = SourceWebhook
	}
	if fetchErr != nil {
		lg.Warn("Order status fetch failed, using last known status",
			zap.String("source", string(source)),
			zap.Bool("terminal", errors.Is(fetchErr, ErrOrderNotFound)),
			zap.Error(fetchErr),
		)
		c.metrics.fellBack(ctx, req.Trigger, source)
	}
	if obs.Note == "" {
		obs.Note = o.Note
	}
	if obs.Status == "" {
		obs.Status = o.Status
	}

	if obs.Status != o.Status {
		if err := c.orders.UpdateStatus(ctx, o.ID, obs.Status); err != nil {
			return nil, errors.Wrap(err, "mirror provider status")
		}
		o.Status = obs.Status
	}

	conf := &Confirmation{
		Order:    o,
		Status:   ClassifyStatus(obs.Status),
		Source:   source,
		Fallback: fetchErr,
	}
	if !conf.Status.IsSuccess() {
		conf.Result = &Result{Outcome: OutcomeNoAction}
		lg.Debug("Order not paid", zap.String("status", obs.Status))
		return conf, nil
	}

	hints := course.Hints{
		Note:        obs.Note,
		Amount:      obs.Amount,
		AmountKnown: obs.AmountKnown,
		OrderAmount: o.Amount,
	}
	crs, err := c.resolver.Resolve(ctx, hints)
	if err != nil {
		return nil, errors.Wrap(err, "resolve course")
	}
	conf.Course = crs

	res, err := c.reconciler.Reconcile(ctx, o, conf.Status, crs)
	if err != nil {
		var unresolved *UnresolvedCourseError
		if errors.As(err, &unresolved) {
			unresolved.Hints = hints
			lg.Error("Paid order has no resolvable course",
				zap.String("note", hints.Note),
				zap.Int64("amount", hints.Amount),
				zap.Bool("amount_known", hints.AmountKnown),
				zap.Int64("order_amount", hints.OrderAmount),
			)
			return nil, unresolved
		}
		return nil, err
	}
	conf.Result = res
	return conf, nil
}

// ConfirmMock marks an order paid and enrolls its owner in the given course
// without contacting the provider. It exists for local development only.
func (c *Confirmer) ConfirmMock(ctx context.Context, orderID, courseID, principal string) (*Confirmation, error) {
	conf, err := c.confirmMock(ctx, orderID, courseID, principal)
	c.metrics.confirmed(ctx, TriggerMock, outcomeLabel(conf, err))
	return conf, err
}

func (c *Confirmer) confirmMock(ctx context.Context, orderID, courseID, principal string) (*Confirmation, error) {
	o, err := c.owned(ctx, orderID, principal)
	if err != nil {
		return nil, err
	}
	crs, err := c.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, errors.Wrapf(err, "get course %s", courseID)
	}

	const mockStatus = "PAID"
	if o.Status != mockStatus {
		if err := c.orders.UpdateStatus(ctx, o.ID, mockStatus); err != nil {
			return nil, errors.Wrap(err, "mark order paid")
		}
		o.Status = mockStatus
	}
	zctx.From(ctx).Warn("Mock payment confirmation",
		zap.String("order_id", o.ID),
		zap.String("course_id", crs.ID),
	)

	status := ClassifyStatus(mockStatus)
	res, err := c.reconciler.Reconcile(ctx, o, status, crs)
	if err != nil {
		return nil, err
	}
	return &Confirmation{Order: o, Status: status, Source: SourceLocal, Course: crs, Result: res}, nil
}

// owned loads an order and checks that principal, when set, owns it.
func (c *Confirmer) owned(ctx context.Context, orderID, principal string) (*order.Order, error) {
	if orderID == "" {
		return nil, errors.Wrap(order.ErrNotFound, "empty order id")
	}
	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", orderID)
	}
	if principal != "" && principal != o.OwnerID {
		return nil, ErrForbidden
	}
	return o, nil
}

func outcomeLabel(conf *Confirmation, err error) string {
	var unresolved *UnresolvedCourseError
	switch {
	case err == nil && conf != nil && conf.Result != nil:
		return string(conf.Result.Outcome)
	case errors.As(err, &unresolved):
		return "unresolved_course"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, order.ErrNotFound):
		return "order_not_found"
	default:
		return "error"
	}
}
