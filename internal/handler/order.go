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

type createOrderRequest struct {
	CourseID    string `validate:"required,max=128"`
	CourseTitle string `validate:"max=256"`
	OrderAmount string `validate:"required,numeric"`
}

// CreateOrder records an order for a course and opens the provider checkout.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := requireUser(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req createOrderRequest
	if err := decodeFields(body, func(key, value string) {
		switch key {
		case "courseId":
			req.CourseID = value
		case "courseTitle":
			req.CourseTitle = value
		case "orderAmount":
			req.OrderAmount = value
		}
	}); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	amount, err := order.ParseAmount(req.OrderAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.checkout.Start(r.Context(), payment.CheckoutRequest{
		OwnerID:     p.UserID,
		Email:       p.Email,
		CourseID:    req.CourseID,
		CourseTitle: req.CourseTitle,
		Amount:      amount,
	})
	if err != nil {
		code, msg := mapCheckoutError(err)
		if code >= http.StatusInternalServerError {
			zctx.From(r.Context()).Error("Create order failed",
				zap.String("course_id", req.CourseID),
				zap.Error(err),
			)
		}
		writeError(w, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("orderId")
		e.Str(res.Order.ID)
		e.FieldStart("payment_session_id")
		e.Str(res.Checkout.SessionToken)
		e.FieldStart("data")
		e.ObjStart()
		e.FieldStart("order_id")
		e.Str(res.Order.ID)
		e.FieldStart("order_status")
		e.Str(res.Checkout.Status)
		e.FieldStart("order_amount")
		e.Int64(res.Order.Amount)
		e.FieldStart("order_currency")
		e.Str(res.Order.Currency)
		e.FieldStart("order_note")
		e.Str(res.Order.Note)
		e.FieldStart("payment_session_id")
		e.Str(res.Checkout.SessionToken)
		e.ObjEnd()
		e.ObjEnd()
	})
}

// mapCheckoutError converts domain errors to a status code and message.
func mapCheckoutError(err error) (int, string) {
	switch {
	case errors.Is(err, order.ErrInvalidAmount):
		return http.StatusBadRequest, order.ErrInvalidAmount.Error()
	case errors.Is(err, course.ErrNotFound):
		return http.StatusNotFound, course.ErrNotFound.Error()
	case errors.Is(err, payment.ErrPriceMismatch):
		return http.StatusUnprocessableEntity, payment.ErrPriceMismatch.Error()
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "payment provider unavailable"
	case errors.Is(err, payment.ErrGatewayRejected):
		return http.StatusBadGateway, "payment provider rejected the order"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
