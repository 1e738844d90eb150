package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coursehub/internal/domain/course"
)

const (
	courseColumns = `id, slug, title, price, created_at`

	getCourseByIDSQL = `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`

	getCourseBySlugSQL = `SELECT ` + courseColumns + ` FROM courses WHERE slug = $1`

	listCoursesByPriceSQL = `SELECT ` + courseColumns + ` FROM courses
	WHERE price = $1 ORDER BY created_at, id`

	listCoursesSQL = `SELECT ` + courseColumns + ` FROM courses ORDER BY created_at, id`

	upsertCourseSQL = `INSERT INTO courses (id, slug, title, price)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET slug = EXCLUDED.slug, title = EXCLUDED.title, price = EXCLUDED.price`
)

var _ course.Repository = (*CourseRepository)(nil)

// CourseRepository implements course.Repository backed by PostgreSQL.
type CourseRepository struct {
	pool *pgxpool.Pool
}

// NewCourseRepository returns a CourseRepository that uses the given pool.
func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// GetByID returns a single course by its identifier.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*course.Course, error) {
	return r.getOne(ctx, getCourseByIDSQL, id)
}

// GetBySlug returns a single course by its slug.
func (r *CourseRepository) GetBySlug(ctx context.Context, slug string) (*course.Course, error) {
	return r.getOne(ctx, getCourseBySlugSQL, slug)
}

// ListByPrice returns every course priced at exactly price minor units.
func (r *CourseRepository) ListByPrice(ctx context.Context, price int64) ([]course.Course, error) {
	rows, err := r.pool.Query(ctx, listCoursesByPriceSQL, price)
	if err != nil {
		return nil, fmt.Errorf("listing courses at price %d: %w", price, err)
	}
	return pgx.CollectRows(rows, scanCourse)
}

// List returns the whole catalog.
func (r *CourseRepository) List(ctx context.Context) ([]course.Course, error) {
	rows, err := r.pool.Query(ctx, listCoursesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return pgx.CollectRows(rows, scanCourse)
}

// Upsert inserts a course or updates the catalog fields of an existing one.
// The creation time of existing rows is kept.
func (r *CourseRepository) Upsert(ctx context.Context, c course.Course) error {
	if _, err := r.pool.Exec(ctx, upsertCourseSQL, c.ID, c.Slug, c.Title, c.Price); err != nil {
		return fmt.Errorf("upserting course %q: %w", c.ID, err)
	}
	return nil
}

func (r *CourseRepository) getOne(ctx context.Context, sql, key string) (*course.Course, error) {
	rows, err := r.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting course %q: %w", key, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCourse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, course.ErrNotFound
		}
		return nil, fmt.Errorf("getting course %q: %w", key, err)
	}
	return &c, nil
}

func scanCourse(row pgx.CollectableRow) (course.Course, error) {
	var c course.Course
	err := row.Scan(&c.ID, &c.Slug, &c.Title, &c.Price, &c.CreatedAt)
	return c, err
}
