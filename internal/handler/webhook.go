package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coursehub/internal/domain/order"
	"github.com/xenking/coursehub/internal/domain/payment"
	"github.com/xenking/coursehub/internal/gateway"
)

// webhookPayload holds the fields read from a provider delivery. The
// provider sends them either at the top level or nested under data.order
// and data.payment.
type webhookPayload struct {
	OrderID       string
	OrderStatus   string
	PaymentStatus string
	Amount        string
	Note          string
}

func (p *webhookPayload) status() string {
	if p.OrderStatus != "" {
		return p.OrderStatus
	}
	return p.PaymentStatus
}

func parseWebhook(data []byte) (*webhookPayload, error) {
	var p webhookPayload
	orderField := func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "order_id":
			dst = &p.OrderID
		case "order_status":
			dst = &p.OrderStatus
		case "order_amount":
			dst = &p.Amount
		case "order_note":
			dst = &p.Note
		default:
			return d.Skip()
		}
		v, ok, err := readScalar(d)
		if ok && *dst == "" {
			*dst = v
		}
		return err
	}

	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		if key != "data" {
			return orderField(d, key)
		}
		if d.Next() != jx.Object {
			return d.Skip()
		}
		return d.Obj(func(d *jx.Decoder, key string) error {
			if d.Next() != jx.Object {
				return d.Skip()
			}
			switch key {
			case "order":
				return d.Obj(orderField)
			case "payment":
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "payment_status" {
						return d.Skip()
					}
					v, _, err := readScalar(d)
					p.PaymentStatus = v
					return err
				})
			default:
				return d.Skip()
			}
		})
	})
	if err != nil {
		return nil, errors.Wrap(errBadJSON, err.Error())
	}
	return &p, nil
}

// Webhook handles provider notifications. Deliveries are acknowledged with
// 200 once processed or deliberately ignored, so redelivery is harmless.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.verifyWebhook(r, body); err != nil {
		lg.Warn("Rejected webhook", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	p, err := parseWebhook(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if p.OrderID == "" {
		writeError(w, http.StatusBadRequest, "missing order_id")
		return
	}

	obs := &payment.Observation{Status: p.status(), Note: p.Note}
	if p.Amount != "" {
		if minor, err := gateway.ToMinor(p.Amount); err == nil {
			obs.Amount = minor
			obs.AmountKnown = true
		}
	}

	conf, err := h.confirmer.Confirm(ctx, payment.ConfirmRequest{
		OrderID:  p.OrderID,
		Trigger:  payment.TriggerWebhook,
		Observed: obs,
	})
	var unresolved *payment.UnresolvedCourseError
	switch {
	case errors.Is(err, order.ErrNotFound):
		lg.Info("Webhook for unknown order", zap.String("order_id", p.OrderID))
		writeAck(w, "ignored", "unknown order")
	case errors.As(err, &unresolved):
		// Logged by the pipeline; redelivery cannot fix a catalog problem.
		writeAck(w, "error", "unresolved course")
	case err != nil:
		lg.Error("Webhook processing failed", zap.String("order_id", p.OrderID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeAck(w, "outcome", string(conf.Result.Outcome))
	}
}

func writeAck(w http.ResponseWriter, key, value string) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("received")
		e.Bool(true)
		e.FieldStart(key)
		e.Str(value)
		e.ObjEnd()
	})
}
