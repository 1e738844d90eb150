package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/order"
	"github.com/xenking/coursehub/internal/domain/payment"
)

// Verify confirms an order on demand and reports the enrollment.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	p, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeResult(w, http.StatusBadRequest, "order_id required")
		return
	}

	conf, err := h.confirmer.Confirm(r.Context(), payment.ConfirmRequest{
		OrderID:   orderID,
		Principal: p.UserID,
		Trigger:   payment.TriggerVerify,
	})
	if err != nil {
		h.confirmFailed(w, r, orderID, err)
		return
	}
	writeConfirmation(w, conf)
}

type mockSuccessRequest struct {
	OrderID  string `validate:"required"`
	CourseID string `validate:"required"`
}

// MockSuccess marks an order paid without the provider. Development only.
func (h *Handler) MockSuccess(w http.ResponseWriter, r *http.Request) {
	p, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req mockSuccessRequest
	if err := decodeFields(body, func(key, value string) {
		switch key {
		case "orderId":
			req.OrderID = value
		case "courseId":
			req.CourseID = value
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	conf, err := h.confirmer.ConfirmMock(r.Context(), req.OrderID, req.CourseID, p.UserID)
	if err != nil {
		h.confirmFailed(w, r, req.OrderID, err)
		return
	}
	writeConfirmation(w, conf)
}

// confirmFailed maps confirmation errors for the JSON surfaces.
func (h *Handler) confirmFailed(w http.ResponseWriter, r *http.Request, orderID string, err error) {
	var unresolved *payment.UnresolvedCourseError
	switch {
	case errors.Is(err, payment.ErrForbidden):
		writeResult(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, order.ErrNotFound):
		writeResult(w, http.StatusNotFound, "order not found")
	case errors.Is(err, course.ErrNotFound):
		writeResult(w, http.StatusNotFound, "course not found")
	case errors.As(err, &unresolved):
		writeResult(w, http.StatusUnprocessableEntity, "payment received but the course could not be determined; contact support")
	default:
		zctx.From(r.Context()).Error("Confirmation failed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		writeResult(w, http.StatusInternalServerError, "internal error")
	}
}

func writeResult(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(false)
		e.FieldStart("error")
		e.Str(msg)
		e.FieldStart("enrollment")
		e.Null()
		e.ObjEnd()
	})
}

func writeConfirmation(w http.ResponseWriter, conf *payment.Confirmation) {
	success := conf.Result.Outcome != payment.OutcomeNoAction
	msg := confirmationMessage(conf)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("success")
		e.Bool(success)
		e.FieldStart("message")
		e.Str(msg)
		e.FieldStart("status")
		e.Str(conf.Status.Raw)
		e.FieldStart("enrollment")
		encodeEnrollment(e, conf.Result.Enrollment)
		e.ObjEnd()
	})
}

func confirmationMessage(conf *payment.Confirmation) string {
	switch conf.Result.Outcome {
	case payment.OutcomeCreated:
		return "Payment confirmed, enrollment created"
	case payment.OutcomeAlreadyEnrolled:
		return "Payment confirmed, already enrolled"
	}
	switch conf.Status.Kind {
	case payment.KindFailed:
		return "Payment failed"
	case payment.KindPending:
		return "Payment pending"
	default:
		return "Payment status unknown"
	}
}
