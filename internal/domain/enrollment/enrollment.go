package enrollment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// StatusActive marks an enrollment that grants access to its course.
const StatusActive = "ACTIVE"

// Sentinel errors for enrollment persistence.
var (
	ErrNotFound = errors.New("enrollment not found")
	// ErrAlreadyExists is returned when the (user, course) pair is already
	// enrolled. It is the translation of the uniqueness constraint violation.
	ErrAlreadyExists = errors.New("enrollment already exists")
	// ErrPaymentUsed is returned when the funding order already paid for a
	// different enrollment.
	ErrPaymentUsed = errors.New("payment already funds another enrollment")
)

// Enrollment grants a user access to a course.
type Enrollment struct {
	ID       string
	UserID   string
	CourseID string
	Status   string
	// PaymentID is the order that funded the enrollment; nil for grants made
	// by an administrator.
	PaymentID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines persistence operations for enrollments.
type Repository interface {
	Find(ctx context.Context, userID, courseID string) (*Enrollment, error)
	// Create inserts e. It must return ErrAlreadyExists when the storage
	// uniqueness constraint on (user, course) rejects the row.
	Create(ctx context.Context, e *Enrollment) error
	ListByUser(ctx context.Context, userID string) ([]Enrollment, error)
}

// Event describes a newly created enrollment for downstream consumers.
type Event struct {
	Enrollment  Enrollment
	CourseTitle string
	// Email is the purchaser address recorded on the funding order, if any.
	Email string
}

// Notifier is told about enrollments after they are committed.
type Notifier interface {
	EnrollmentCreated(ctx context.Context, ev Event) error
}
