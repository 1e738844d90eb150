package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coursehub/internal/domain/enrollment"
)

const (
	enrollmentColumns = `id, user_id, course_id, status, payment_id, created_at, updated_at`

	findEnrollmentSQL = `SELECT ` + enrollmentColumns + ` FROM enrollments
	WHERE user_id = $1 AND course_id = $2`

	insertEnrollmentSQL = `INSERT INTO enrollments (` + enrollmentColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (user_id, course_id) DO NOTHING
	RETURNING id`

	listEnrollmentsByUserSQL = `SELECT ` + enrollmentColumns + ` FROM enrollments
	WHERE user_id = $1 ORDER BY created_at, id`

	paymentConstraint    = "enrollments_payment_idx"
	userCourseConstraint = "enrollments_user_course_key"
)

var _ enrollment.Repository = (*EnrollmentRepository)(nil)

// EnrollmentRepository implements enrollment.Repository backed by PostgreSQL.
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository returns an EnrollmentRepository that uses the given pool.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// Find returns the enrollment of a user in a course.
func (r *EnrollmentRepository) Find(ctx context.Context, userID, courseID string) (*enrollment.Enrollment, error) {
	rows, err := r.pool.Query(ctx, findEnrollmentSQL, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding enrollment: %w", err)
	}

	e, err := pgx.CollectExactlyOneRow(rows, scanEnrollment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, enrollment.ErrNotFound
		}
		return nil, fmt.Errorf("finding enrollment: %w", err)
	}
	return &e, nil
}

// Create inserts an enrollment. A row already present for the (user, course)
// pair yields enrollment.ErrAlreadyExists, whether it was visible to the
// statement or committed concurrently.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, insertEnrollmentSQL,
			e.ID, e.UserID, e.CourseID, e.Status, e.PaymentID, e.CreatedAt, e.UpdatedAt,
		).Scan(&id)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, pgx.ErrNoRows):
			return enrollment.ErrAlreadyExists
		}

		if name, ok := uniqueConstraint(err); ok {
			switch name {
			case paymentConstraint:
				return enrollment.ErrPaymentUsed
			case userCourseConstraint:
				return enrollment.ErrAlreadyExists
			}
		}
		return fmt.Errorf("inserting enrollment: %w", err)
	})
}

// ListByUser returns all enrollments of a user.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]enrollment.Enrollment, error) {
	rows, err := r.pool.Query(ctx, listEnrollmentsByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing enrollments: %w", err)
	}
	return pgx.CollectRows(rows, scanEnrollment)
}

func scanEnrollment(row pgx.CollectableRow) (enrollment.Enrollment, error) {
	var e enrollment.Enrollment
	err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Status, &e.PaymentID, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
