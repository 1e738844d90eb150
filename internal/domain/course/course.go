package course

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested course does not exist.
var ErrNotFound = errors.New("course not found")

// Course is the catalog entry an order pays for. Price is in minor units.
type Course struct {
	ID        string
	Slug      string
	Title     string
	Price     int64
	CreatedAt time.Time
}

// Repository defines read operations for the course catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Course, error)
	GetBySlug(ctx context.Context, slug string) (*Course, error)
	// ListByPrice returns every course with exactly the given price, ordered
	// by creation time and then id.
	ListByPrice(ctx context.Context, price int64) ([]Course, error)
}
