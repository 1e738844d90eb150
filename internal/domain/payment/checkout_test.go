package payment

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coursehub/internal/domain/course"
	"github.com/xenking/coursehub/internal/domain/order"
)

func newCheckoutFixture(gw *mockGateway) (*CheckoutService, *memOrders) {
	orders := newMemOrders()
	return NewCheckoutService(order.NewLedger(orders, "cashfree"), testCourses(), gw, "INR"), orders
}

func TestCheckout_Start(t *testing.T) {
	gw := &mockGateway{}
	svc, orders := newCheckoutFixture(gw)

	res, err := svc.Start(context.Background(), CheckoutRequest{
		OwnerID:     "user-a",
		Email:       "a@example.com",
		CourseID:    "c-basic",
		CourseTitle: "IGCSE Music Basic",
		Amount:      15400,
	})
	require.NoError(t, err)

	assert.Equal(t, "course:igcse-basic|IGCSE Music Basic", res.Order.Note)
	assert.Equal(t, order.StatusCreated, res.Order.Status)
	assert.Equal(t, "INR", res.Order.Currency)
	assert.Equal(t, "session_"+res.Order.ID, res.Checkout.SessionToken)

	stored, err := orders.Get(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(15400), stored.Amount)
	assert.Equal(t, "a@example.com", stored.CustomerEmail)
}

func TestCheckout_DefaultsTitleToCatalog(t *testing.T) {
	svc, _ := newCheckoutFixture(&mockGateway{})

	res, err := svc.Start(context.Background(), CheckoutRequest{OwnerID: "user-a", CourseID: "c-adv", Amount: 29900})
	require.NoError(t, err)
	assert.Equal(t, "course:igcse-advanced|IGCSE Music Advanced", res.Order.Note)
}

func TestCheckout_RollsBackOnGatewayFailure(t *testing.T) {
	for _, gwErr := range []error{ErrGatewayUnavailable, ErrGatewayRejected} {
		t.Run(gwErr.Error(), func(t *testing.T) {
			gw := &mockGateway{beginErr: gwErr}
			svc, orders := newCheckoutFixture(gw)

			_, err := svc.Start(context.Background(), CheckoutRequest{OwnerID: "user-a", CourseID: "c-basic", Amount: 15400})
			require.ErrorIs(t, err, gwErr)

			require.Len(t, gw.begun, 1)
			assert.Equal(t, []string{gw.begun[0]}, orders.deleted)
			_, err = orders.Get(context.Background(), gw.begun[0])
			assert.ErrorIs(t, err, order.ErrNotFound)
		})
	}
}

func TestCheckout_AdoptsProviderOrderID(t *testing.T) {
	gw := &mockGateway{checkout: &Checkout{ProviderOrderID: "cf_order_42", SessionToken: "sess", Status: "ACTIVE"}}
	svc, orders := newCheckoutFixture(gw)

	res, err := svc.Start(context.Background(), CheckoutRequest{OwnerID: "user-a", CourseID: "c-basic", Amount: 15400})
	require.NoError(t, err)
	assert.Equal(t, "cf_order_42", res.Order.ID)

	_, err = orders.Get(context.Background(), "cf_order_42")
	require.NoError(t, err)
	_, err = orders.Get(context.Background(), gw.begun[0])
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestCheckout_Validation(t *testing.T) {
	gw := &mockGateway{}
	svc, _ := newCheckoutFixture(gw)

	_, err := svc.Start(context.Background(), CheckoutRequest{OwnerID: "user-a", CourseID: "c-basic", Amount: 0})
	require.ErrorIs(t, err, order.ErrInvalidAmount)

	_, err = svc.Start(context.Background(), CheckoutRequest{OwnerID: "user-a", CourseID: "nope", Amount: 100})
	require.True(t, errors.Is(err, course.ErrNotFound))

	_, err = svc.Start(context.Background(), CheckoutRequest{OwnerID: "user-a", CourseID: "c-basic", Amount: 100})
	require.ErrorIs(t, err, ErrPriceMismatch)
	assert.Empty(t, gw.begun)
}
