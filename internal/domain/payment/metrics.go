package payment

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts confirmation outcomes per trigger surface.
type Metrics struct {
	confirmations metric.Int64Counter
	fallbacks     metric.Int64Counter
}

// NewMetrics registers the payment instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("github.com/xenking/coursehub/internal/domain/payment")

	confirmations, err := meter.Int64Counter("coursehub.payment.confirmations",
		metric.WithDescription("Payment confirmations by trigger and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "confirmations counter")
	}
	fallbacks, err := meter.Int64Counter("coursehub.payment.status_fallbacks",
		metric.WithDescription("Confirmations that used a non-provider status"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "fallbacks counter")
	}
	return &Metrics{confirmations: confirmations, fallbacks: fallbacks}, nil
}

func (m *Metrics) confirmed(ctx context.Context, trigger Trigger, outcome string) {
	if m == nil {
		return
	}
	m.confirmations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", string(trigger)),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) fellBack(ctx context.Context, trigger Trigger, source Source) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", string(trigger)),
		attribute.String("source", string(source)),
	))
}
