package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/enrollment"
	"github.com/xenking/coursehub/internal/domain/order"
)

// Outcome is what a reconciliation did.
type Outcome string

const (
	OutcomeNoAction        Outcome = "no_action"
	OutcomeCreated         Outcome = "created"
	OutcomeAlreadyEnrolled Outcome = "already_enrolled"
)

// Result is the outcome of a successful reconciliation.
type Result struct {
	Outcome    Outcome
	Enrollment *enrollment.Enrollment
}

// UnresolvedCourseError reports a paid order whose course could not be
// determined. It needs manual intervention and is never retried.
type UnresolvedCourseError struct {
	OrderID string
	Hints   course.Hints
}

func (e *UnresolvedCourseError) Error() string {
	amount := "unknown"
	if e.Hints.AmountKnown {
		amount = fmt.Sprint(e.Hints.Amount)
	}
	return fmt.Sprintf("cannot resolve course for order %s (note %q, provider amount %s, order amount %d)",
		e.OrderID, e.Hints.Note, amount, e.Hints.OrderAmount)
}

// notifyTimeout bounds a single enrollment notification.
const notifyTimeout = 10 * time.Second

// Enrollments creates enrollments if absent.
type Enrollments interface {
	Ensure(ctx context.Context, userID, courseID string, paymentID *string) (*enrollment.Enrollment, bool, error)
}

// Reconciler turns a verified payment status into at most one enrollment.
type Reconciler struct {
	enrollments Enrollments
	notifier    enrollment.Notifier
}

// NewReconciler creates a Reconciler. notifier may be nil.
func NewReconciler(enrollments Enrollments, notifier enrollment.Notifier) *Reconciler {
	return &Reconciler{enrollments: enrollments, notifier: notifier}
}

// Reconcile grants the order owner access to c when status is a success.
// It is safe to call any number of times, concurrently, for the same order.
func (r *Reconciler) Reconcile(ctx context.Context, o *order.Order, status Status, c *course.Course) (*Result, error) {
	if !status.IsSuccess() {
		return &Result{Outcome: OutcomeNoAction}, nil
	}
	if c == nil {
		return nil, &UnresolvedCourseError{
			OrderID: o.ID,
			Hints:   course.Hints{Note: o.Note, OrderAmount: o.Amount},
		}
	}

	paymentID := o.ID
	e, created, err := r.enrollments.Ensure(ctx, o.OwnerID, c.ID, &paymentID)
	if err != nil {
		return nil, errors.Wrapf(err, "enroll %s in %s", o.OwnerID, c.ID)
	}
	if !created {
		return &Result{Outcome: OutcomeAlreadyEnrolled, Enrollment: e}, nil
	}

	lg := zctx.From(ctx)
	lg.Info("Enrollment created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.OwnerID),
		zap.String("course_id", c.ID),
		zap.String("enrollment_id", e.ID),
	)
	if r.notifier != nil {
		ev := enrollment.Event{Enrollment: *e, CourseTitle: c.Title, Email: o.CustomerEmail}
		// The enrollment is committed and later triggers see it as
		// already enrolled, so the caller going away must not drop the
		// only notification.
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := r.notifier.EnrollmentCreated(nctx, ev); err != nil {
			lg.Warn("Enrollment notification failed", zap.String("enrollment_id", e.ID), zap.Error(err))
		}
	}
	return &Result{Outcome: OutcomeCreated, Enrollment: e}, nil
}
