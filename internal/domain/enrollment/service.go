package enrollment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service creates enrollments idempotently.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a Service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Find returns the enrollment for the pair or ErrNotFound.
func (s *Service) Find(ctx context.Context, userID, courseID string) (*Enrollment, error) {
	return s.repo.Find(ctx, userID, courseID)
}

// ListByUser returns the enrollments of a user, oldest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Enrollment, error) {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list enrollments")
	}
	return list, nil
}

// Ensure creates an active enrollment unless one already exists. created
// reports whether this call inserted the row.
//
// The existence check is only a shortcut. Concurrent callers are arbitrated
// by the repository's uniqueness constraint: the loser gets ErrAlreadyExists
// and returns the winner's row.
func (s *Service) Ensure(ctx context.Context, userID, courseID string, paymentID *string) (e *Enrollment, created bool, err error) {
	existing, err := s.repo.Find(ctx, userID, courseID)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, errors.Wrap(err, "find enrollment")
	}

	now := s.now().UTC()
	e = &Enrollment{
		ID:        uuid.NewString(),
		UserID:    userID,
		CourseID:  courseID,
		Status:    StatusActive,
		PaymentID: paymentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		if !errors.Is(err, ErrAlreadyExists) && !errors.Is(err, ErrPaymentUsed) {
			return nil, false, errors.Wrap(err, "create enrollment")
		}
		// A concurrent insert for the same payment can trip the payment
		// index before the (user, course) one; both mean a winner exists.
		winner, findErr := s.repo.Find(ctx, userID, courseID)
		switch {
		case errors.Is(findErr, ErrNotFound) && errors.Is(err, ErrPaymentUsed):
			return nil, false, errors.Wrap(err, "create enrollment")
		case findErr != nil:
			return nil, false, errors.Wrap(findErr, "find enrollment after conflict")
		}
		zctx.From(ctx).Debug("Enrollment created concurrently",
			zap.String("user_id", userID),
			zap.String("course_id", courseID),
		)
		return winner, false, nil
	}
	return e, true, nil
}

// Grant enrolls a user without a payment, for administrators.
func (s *Service) Grant(ctx context.Context, userID, courseID string) (*Enrollment, bool, error) {
	if userID == "" || courseID == "" {
		return nil, false, errors.New("user id and course id required")
	}
	e, created, err := s.Ensure(ctx, userID, courseID, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "grant enrollment")
	}
	zctx.From(ctx).Info("Enrollment granted",
		zap.String("user_id", userID),
		zap.String("course_id", courseID),
		zap.Bool("created", created),
	)
	return e, created, nil
}
