package payment

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/coursehub/internal/domain/order"
)

// Gateway errors. ErrGatewayUnavailable is transient: callers fall back to
// the last known status. ErrOrderNotFound and ErrGatewayRejected are
// terminal and must not be retried.
var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrOrderNotFound      = errors.New("order not found at payment provider")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
)

// Checkout is the provider-side session opened for an order.
type Checkout struct {
	// ProviderOrderID is the provider's canonical id for the order. It may
	// differ from the id that was requested.
	ProviderOrderID string
	SessionToken    string
	Status          string
}

// ProviderOrder is the authoritative view of an order at the provider.
type ProviderOrder struct {
	OrderID string
	Status  string
	Note    string
	// Amount is in minor units and only meaningful when AmountKnown is set.
	Amount      int64
	AmountKnown bool
}

// Gateway is the payment provider.
type Gateway interface {
	BeginCheckout(ctx context.Context, o *order.Order) (*Checkout, error)
	FetchOrderStatus(ctx context.Context, orderID string) (*ProviderOrder, error)
}
