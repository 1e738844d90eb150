// Package handler exposes the checkout and payment confirmation surfaces
// over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/enrollment"
	"github.com/xenking/coursehub/internal/domain/payment"
)

// Checkout opens provider checkouts.
type Checkout interface {
	Start(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutResult, error)
}

// Confirmer runs the shared confirmation pipeline.
type Confirmer interface {
	Confirm(ctx context.Context, req payment.ConfirmRequest) (*payment.Confirmation, error)
	ConfirmMock(ctx context.Context, orderID, courseID, principal string) (*payment.Confirmation, error)
}

// Enrollments grants and lists enrollments.
type Enrollments interface {
	Grant(ctx context.Context, userID, courseID string) (*enrollment.Enrollment, bool, error)
	ListByUser(ctx context.Context, userID string) ([]enrollment.Enrollment, error)
}

// Courses looks courses up by id.
type Courses interface {
	GetByID(ctx context.Context, id string) (*course.Course, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// WebhookSecret signs provider webhook deliveries.
	WebhookSecret string
	// WebhookTolerance bounds the age of a webhook timestamp. Zero disables
	// the check.
	WebhookTolerance time.Duration
	// DevMock mounts the gateway-bypassing mock confirmation route.
	DevMock bool
}

// Handler serves the payment routes.
type Handler struct {
	cfg         Config
	checkout    Checkout
	confirmer   Confirmer
	enrollments Enrollments
	courses     Courses
	validate    *validator.Validate
	now         func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	checkout Checkout,
	confirmer Confirmer,
	enrollments Enrollments,
	courses Courses,
) *Handler {
	return &Handler{
		cfg:         cfg,
		checkout:    checkout,
		confirmer:   confirmer,
		enrollments: enrollments,
		courses:     courses,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/payments/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/payments/verify", h.Verify)
	mux.HandleFunc("POST /api/payments/webhook", h.Webhook)
	mux.HandleFunc("POST /api/admin/enrollments", h.AdminEnroll)
	mux.HandleFunc("GET /payment/success", h.SuccessPage)
	mux.HandleFunc("GET /dashboard", h.Dashboard)
	if h.cfg.DevMock {
		mux.HandleFunc("POST /api/payments/mock-success", h.MockSuccess)
	}
}
