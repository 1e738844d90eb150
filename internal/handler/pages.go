package handler

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/auth"
	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/order"
	"github.com/xenking/coursehub/internal/domain/payment"
)

const layout = `{{define "layout"}}<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<main>
{{template "content" .}}
</main>
</body>
</html>{{end}}`

var (
	successTmpl = template.Must(template.Must(template.New("success").Parse(layout)).Parse(`{{define "content"}}
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{with .Course}}<p>Course: <strong>{{.Title}}</strong></p>{{end}}
<p>Order <code>{{.OrderID}}</code>, status {{.Status}}.</p>
<p><a href="/dashboard">Go to your dashboard</a></p>
{{end}}`))

	dashboardTmpl = template.Must(template.Must(template.New("dashboard").Parse(layout)).Parse(`{{define "content"}}
<h1>{{.Title}}</h1>
{{with .Notice}}<p class="notice">{{.}}</p>{{end}}
{{if .Courses}}<ul>
{{range .Courses}}<li>{{.}}</li>
{{end}}</ul>{{else}}<p>You are not enrolled in any course yet.</p>{{end}}
{{end}}`))
)

type successView struct {
	Title   string
	Message string
	Course  *course.Course
	OrderID string
	Status  string
}

type dashboardView struct {
	Title   string
	Notice  string
	Courses []string
}

// paymentNotices are shown on the dashboard after a redirect from the
// success page.
var paymentNotices = map[string]string{
	"missing":    "No order was specified.",
	"not_found":  "We could not find that order.",
	"forbidden":  "That order belongs to another account.",
	"unresolved": "Your payment was received but we could not match it to a course. Our team has been notified.",
	"error":      "We could not confirm your payment right now. Please refresh in a minute.",
}

// SuccessPage is where the provider sends the buyer after checkout. It
// confirms the order itself rather than trusting the query string.
func (h *Handler) SuccessPage(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		redirectLogin(w, r)
		return
	}
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		redirectDashboard(w, r, "missing")
		return
	}

	conf, err := h.confirmer.Confirm(r.Context(), payment.ConfirmRequest{
		OrderID:   orderID,
		Principal: p.UserID,
		Trigger:   payment.TriggerSuccessPage,
	})
	if err != nil {
		var unresolved *payment.UnresolvedCourseError
		switch {
		case errors.Is(err, payment.ErrForbidden):
			redirectDashboard(w, r, "forbidden")
		case errors.Is(err, order.ErrNotFound):
			redirectDashboard(w, r, "not_found")
		case errors.As(err, &unresolved):
			redirectDashboard(w, r, "unresolved")
		default:
			zctx.From(r.Context()).Error("Success page confirmation failed",
				zap.String("order_id", orderID),
				zap.Error(err),
			)
			redirectDashboard(w, r, "error")
		}
		return
	}

	view := successView{
		Title:   "Payment successful",
		Message: confirmationMessage(conf),
		Course:  conf.Course,
		OrderID: conf.Order.ID,
		Status:  conf.Status.Raw,
	}
	if conf.Result.Outcome == payment.OutcomeNoAction {
		view.Title = "Payment not completed"
	}
	render(w, r, successTmpl, view)
}

// Dashboard lists the caller's enrollments.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.FromContext(r.Context())
	if !ok {
		redirectLogin(w, r)
		return
	}
	ctx := r.Context()

	list, err := h.enrollments.ListByUser(ctx, p.UserID)
	if err != nil {
		zctx.From(ctx).Error("List enrollments failed", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	view := dashboardView{
		Title:  "My courses",
		Notice: paymentNotices[r.URL.Query().Get("payment")],
	}
	for _, e := range list {
		title := e.CourseID
		if c, err := h.courses.GetByID(ctx, e.CourseID); err == nil {
			title = c.Title
		}
		view.Courses = append(view.Courses, title)
	}
	render(w, r, dashboardTmpl, view)
}

func render(w http.ResponseWriter, r *http.Request, t *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		zctx.From(r.Context()).Error("Render page", zap.String("template", t.Name()), zap.Error(err))
	}
}

func redirectLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
}

func redirectDashboard(w http.ResponseWriter, r *http.Request, flag string) {
	http.Redirect(w, r, "/dashboard?payment="+url.QueryEscape(flag), http.StatusSeeOther)
}
