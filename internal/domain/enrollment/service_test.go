package enrollment

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// memRepo enforces the (user, course) uniqueness the way the database does.
// findMiss forces Find to report ErrNotFound, simulating callers that all
// passed the pre-check before any of them inserted.
type memRepo struct {
	mu        sync.Mutex
	rows      map[[2]string]Enrollment
	findMiss  bool
	inserts   int
	findErr   error
	createErr error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[[2]string]Enrollment)}
}

func (m *memRepo) Find(_ context.Context, userID, courseID string) (*Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.findMiss {
		m.findMiss = false
		return nil, ErrNotFound
	}
	e, ok := m.rows[[2]string{userID, courseID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *memRepo) Create(_ context.Context, e *Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	key := [2]string{e.UserID, e.CourseID}
	if _, ok := m.rows[key]; ok {
		return ErrAlreadyExists
	}
	m.rows[key] = *e
	m.inserts++
	return nil
}

func (m *memRepo) ListByUser(_ context.Context, userID string) ([]Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Enrollment
	for k, e := range m.rows {
		if k[0] == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestEnsure_CreatesOnce(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	pay := "order_1"

	e, created, err := svc.Ensure(context.Background(), "u1", "c1", &pay)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, StatusActive, e.Status)
	require.NotNil(t, e.PaymentID)
	assert.Equal(t, "order_1", *e.PaymentID)

	again, created, err := svc.Ensure(context.Background(), "u1", "c1", &pay)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e.ID, again.ID)
	assert.Equal(t, 1, repo.inserts)
}

func TestEnsure_ConflictReturnsWinner(t *testing.T) {
	repo := newMemRepo()
	repo.rows[[2]string{"u1", "c1"}] = Enrollment{ID: "winner", UserID: "u1", CourseID: "c1", Status: StatusActive}
	repo.findMiss = true
	svc := NewService(repo)

	e, created, err := svc.Ensure(context.Background(), "u1", "c1", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", e.ID)
}

func TestEnsure_Concurrent(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	var (
		mu      sync.Mutex
		created int
	)
	g, ctx := errgroup.WithContext(context.Background())
	for range 16 {
		g.Go(func() error {
			_, ok, err := svc.Ensure(ctx, "u1", "c1", nil)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, repo.inserts)
}

func TestEnsure_FindError(t *testing.T) {
	repo := newMemRepo()
	repo.findErr = errors.New("db down")
	svc := NewService(repo)

	_, _, err := svc.Ensure(context.Background(), "u1", "c1", nil)
	require.Error(t, err)
	assert.Equal(t, 0, repo.inserts)
}

func TestGrant(t *testing.T) {
	svc := NewService(newMemRepo())

	e, created, err := svc.Grant(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, e.PaymentID)

	_, created, err = svc.Grant(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = svc.Grant(context.Background(), "", "c1")
	require.Error(t, err)

	list, err := svc.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEnsure_PaymentConflict(t *testing.T) {
	pay := "order_1"

	t.Run("same pair already enrolled", func(t *testing.T) {
		repo := newMemRepo()
		svc := NewService(repo)
		first, _, err := svc.Ensure(context.Background(), "u1", "c1", &pay)
		require.NoError(t, err)

		repo.findMiss = true
		repo.createErr = errors.Wrap(ErrPaymentUsed, "insert")
		e, created, err := svc.Ensure(context.Background(), "u1", "c1", &pay)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, e.ID)
	})

	t.Run("payment funds another course", func(t *testing.T) {
		repo := newMemRepo()
		repo.createErr = ErrPaymentUsed
		svc := NewService(repo)

		_, _, err := svc.Ensure(context.Background(), "u1", "c2", &pay)
		require.ErrorIs(t, err, ErrPaymentUsed)
	})
}
