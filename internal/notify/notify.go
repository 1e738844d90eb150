// Package notify delivers enrollment notifications to buyers and to other
// services.
package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/xenking/coursehub/internal/domain/enrollment"
)

// Multi fans an event out to several notifiers and reports every failure.
type Multi []enrollment.Notifier

var _ enrollment.Notifier = Multi(nil)

// EnrollmentCreated implements enrollment.Notifier.
func (m Multi) EnrollmentCreated(ctx context.Context, ev enrollment.Event) error {
	var err error
	for _, n := range m {
		err = multierr.Append(err, n.EnrollmentCreated(ctx, ev))
	}
	return err
}

// Nop discards events.
type Nop struct{}

// EnrollmentCreated implements enrollment.Notifier.
func (Nop) EnrollmentCreated(context.Context, enrollment.Event) error { return nil }
