package payment

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/enrollment"
	"github.com/xenking/coursehub/internal/domain/order"
)

// --- Mock implementations ---

type memOrders struct {
	mu      sync.Mutex
	rows    map[string]order.Order
	updates []string
	deleted []string
}

func newMemOrders(orders ...order.Order) *memOrders {
	m := &memOrders{rows: make(map[string]order.Order)}
	for _, o := range orders {
		m.rows[o.ID] = o
	}
	return m
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[o.ID] = *o
	return nil
}

func (m *memOrders) Get(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	m.rows[id] = o
	m.updates = append(m.updates, status)
	return nil
}

func (m *memOrders) Rename(_ context.Context, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[oldID]
	if !ok {
		return order.ErrNotFound
	}
	delete(m.rows, oldID)
	o.ID = newID
	m.rows[newID] = o
	return nil
}

func (m *memOrders) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memOrders) ListByStatus(_ context.Context, _ []string, _ time.Time, _ int) ([]order.Order, error) {
	return nil, nil
}

func (m *memOrders) status(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Status
}

type memCourses struct {
	courses []course.Course
}

func (m *memCourses) GetByID(_ context.Context, id string) (*course.Course, error) {
	for i := range m.courses {
		if m.courses[i].ID == id {
			c := m.courses[i]
			return &c, nil
		}
	}
	return nil, course.ErrNotFound
}

func (m *memCourses) GetBySlug(_ context.Context, slug string) (*course.Course, error) {
	for i := range m.courses {
		if m.courses[i].Slug == slug {
			c := m.courses[i]
			return &c, nil
		}
	}
	return nil, course.ErrNotFound
}

func (m *memCourses) ListByPrice(_ context.Context, price int64) ([]course.Course, error) {
	var out []course.Course
	for _, c := range m.courses {
		if c.Price == price {
			out = append(out, c)
		}
	}
	return out, nil
}

// memEnrollments enforces (user, course) uniqueness like the database
// constraint does.
type memEnrollments struct {
	mu      sync.Mutex
	rows    map[[2]string]enrollment.Enrollment
	inserts int
}

func newMemEnrollments() *memEnrollments {
	return &memEnrollments{rows: make(map[[2]string]enrollment.Enrollment)}
}

func (m *memEnrollments) Find(_ context.Context, userID, courseID string) (*enrollment.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[[2]string{userID, courseID}]
	if !ok {
		return nil, enrollment.ErrNotFound
	}
	return &e, nil
}

func (m *memEnrollments) Create(_ context.Context, e *enrollment.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{e.UserID, e.CourseID}
	if _, ok := m.rows[key]; ok {
		return enrollment.ErrAlreadyExists
	}
	m.rows[key] = *e
	m.inserts++
	return nil
}

func (m *memEnrollments) ListByUser(_ context.Context, userID string) ([]enrollment.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []enrollment.Enrollment
	for k, e := range m.rows {
		if k[0] == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEnrollments) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type mockGateway struct {
	mu       sync.Mutex
	provider *ProviderOrder
	fetchErr error
	checkout *Checkout
	beginErr error
	fetches  int
	begun    []string
}

func (m *mockGateway) BeginCheckout(_ context.Context, o *order.Order) (*Checkout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begun = append(m.begun, o.ID)
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	if m.checkout != nil {
		return m.checkout, nil
	}
	return &Checkout{ProviderOrderID: o.ID, SessionToken: "session_" + o.ID, Status: "ACTIVE"}, nil
}

func (m *mockGateway) FetchOrderStatus(_ context.Context, orderID string) (*ProviderOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	p := *m.provider
	p.OrderID = orderID
	return &p, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []enrollment.Event
	calls  []notifyCall
	err    error
}

// notifyCall is the context state observed during a notification.
type notifyCall struct {
	err         error
	deadline    time.Time
	hasDeadline bool
}

func (n *recordingNotifier) EnrollmentCreated(ctx context.Context, ev enrollment.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	deadline, ok := ctx.Deadline()
	n.calls = append(n.calls, notifyCall{err: ctx.Err(), deadline: deadline, hasDeadline: ok})
	return n.err
}

// --- Helpers ---

func testCourses() *memCourses {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &memCourses{courses: []course.Course{
		{ID: "c-basic", Slug: "igcse-basic", Title: "IGCSE Music Basic", Price: 15400, CreatedAt: base},
		{ID: "c-adv", Slug: "igcse-advanced", Title: "IGCSE Music Advanced", Price: 29900, CreatedAt: base.Add(time.Hour)},
	}}
}

func testOrder(status string) order.Order {
	return order.Order{
		ID:            "order_1700000000000_user01",
		Amount:        15400,
		Currency:      "INR",
		Status:        status,
		Provider:      "cashfree",
		OwnerID:       "user-a",
		Note:          "course:igcse-basic|IGCSE Music Basic",
		CustomerEmail: "a@example.com",
	}
}

type fixture struct {
	orders      *memOrders
	courses     *memCourses
	enrollments *memEnrollments
	gateway     *mockGateway
	notifier    *recordingNotifier
	reconciler  *Reconciler
	confirmer   *Confirmer
}

func newFixture(o order.Order, provider *ProviderOrder) *fixture {
	f := &fixture{
		orders:      newMemOrders(o),
		courses:     testCourses(),
		enrollments: newMemEnrollments(),
		gateway:     &mockGateway{provider: provider},
		notifier:    &recordingNotifier{},
	}
	f.reconciler = NewReconciler(enrollment.NewService(f.enrollments), f.notifier)
	f.confirmer = NewConfirmer(
		order.NewLedger(f.orders, "cashfree"),
		f.gateway,
		course.NewResolver(f.courses),
		f.courses,
		f.reconciler,
		nil,
	)
	return f
}
