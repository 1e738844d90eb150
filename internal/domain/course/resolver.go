package course

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Hints are the clues an order carries about the course it pays for.
type Hints struct {
	// Note is the order note, echoed by the provider or stored locally.
	Note string
	// Amount is the provider-reported amount in minor units. It is only
	// consulted when AmountKnown is set.
	Amount      int64
	AmountKnown bool
	// OrderAmount is the locally stored order amount in minor units.
	OrderAmount int64
}

// Resolver maps order hints back to a catalog course.
type Resolver struct {
	repo Repository
}

// NewResolver creates a Resolver over the given catalog.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve tries, in order: the slug embedded in the note, an exact price
// match on the provider amount, and an exact price match on the stored order
// amount. It returns (nil, nil) when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, h Hints) (*Course, error) {
	if slug, _, ok := ParseNote(h.Note); ok {
		c, err := r.repo.GetBySlug(ctx, slug)
		switch {
		case err == nil:
			return c, nil
		case errors.Is(err, ErrNotFound):
			zctx.From(ctx).Warn("Course slug from note not found", zap.String("slug", slug))
		default:
			return nil, errors.Wrapf(err, "get course by slug %q", slug)
		}
	}

	if h.AmountKnown && h.Amount > 0 {
		c, err := r.byPrice(ctx, h.Amount)
		if err != nil || c != nil {
			return c, err
		}
	}

	if h.OrderAmount > 0 && (!h.AmountKnown || h.OrderAmount != h.Amount) {
		return r.byPrice(ctx, h.OrderAmount)
	}
	return nil, nil
}

// byPrice picks the first course at the given price. Several courses sharing
// a price cannot be told apart; the pick is deterministic and logged.
func (r *Resolver) byPrice(ctx context.Context, price int64) (*Course, error) {
	courses, err := r.repo.ListByPrice(ctx, price)
	if err != nil {
		return nil, errors.Wrapf(err, "list courses by price %d", price)
	}
	if len(courses) == 0 {
		return nil, nil
	}
	if len(courses) > 1 {
		ids := make([]string, len(courses))
		for i, c := range courses {
			ids[i] = c.ID
		}
		zctx.From(ctx).Warn("Ambiguous price match, picking first course",
			zap.Int64("price", price),
			zap.Strings("candidates", ids),
			zap.String("picked", courses[0].ID),
		)
	}
	c := courses[0]
	return &c, nil
}
