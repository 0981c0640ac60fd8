package orders

import (
	"context"
	"testing"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) payOrder(t *testing.T, orderID, txn string) *models.Order {
	t.Helper()
	order, err := e.service.ConfirmPayment(context.Background(), buyer, orderID, ConfirmPaymentRequest{TransactionID: txn})
	require.NoError(t, err)
	return order
}

func TestShipUnpaidOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	_, err := env.service.Ship(context.Background(), seller, order.ID, ShipRequest{})
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))
}

func TestShipRequiresSellerOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)
	env.payOrder(t, order.ID, "TXN-1")

	_, err := env.service.Ship(context.Background(), buyer, order.ID, ShipRequest{})
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	stranger := models.Actor{ID: "seller-999", Role: models.RoleSeller}
	_, err = env.service.Ship(context.Background(), stranger, order.ID, ShipRequest{})
	assert.Equal(t, KindAuthorization, KindOf(err))

	// admin may ship even without items on the order
	shipped, err := env.service.Ship(context.Background(), admin, order.ID, ShipRequest{Carrier: "dhl", TrackingNumber: "T1"})
	require.NoError(t, err)
	assert.Equal(t, "dhl", shipped.ShippingDetails.Carrier)
}

func TestShipTwiceRejected(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)
	env.payOrder(t, order.ID, "TXN-1")

	_, err := env.service.Ship(context.Background(), seller, order.ID, ShipRequest{})
	require.NoError(t, err)

	_, err = env.service.Ship(context.Background(), seller, order.ID, ShipRequest{})
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))
}

func TestShipNotifiesBuyer(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)
	env.payOrder(t, order.ID, "TXN-1")

	_, err := env.service.Ship(context.Background(), seller, order.ID, ShipRequest{TrackingNumber: "TRK-1"})
	require.NoError(t, err)

	notes := env.outbox.byTemplate(notify.TemplateOrderShipped)
	require.Len(t, notes, 1)
	assert.Equal(t, buyer.ID, notes[0].RecipientID)
	assert.Equal(t, "TRK-1", notes[0].Data["trackingNumber"])
}

func TestConfirmDeliveryRequiresShipment(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)
	env.payOrder(t, order.ID, "TXN-1")

	_, err := env.service.ConfirmDelivery(context.Background(), buyer, order.ID)
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))
}

func TestAdminForcedDeliverySkipsReceiptMarker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t)
	env.payOrder(t, order.ID, "TXN-1")
	_, err := env.service.Ship(ctx, seller, order.ID, ShipRequest{})
	require.NoError(t, err)

	delivered, err := env.service.ConfirmDelivery(ctx, admin, order.ID)
	require.NoError(t, err)
	assert.True(t, delivered.IsDelivered())
	assert.Nil(t, delivered.ConfirmedReceiptAt)
}

func TestDeliverySellerNotificationsDeduplicated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	// two line items from the same seller
	env.catalog.products["prod-3"] = &models.Product{ID: "prod-3", Name: "Pine Shelf", UnitPrice: "5.00", SellerID: "seller-1", Stock: 9}
	order := env.createOrder(t,
		RequestedItem{ProductID: "prod-1", Quantity: 1},
		RequestedItem{ProductID: "prod-3", Quantity: 1})
	env.payOrder(t, order.ID, "TXN-1")
	_, err := env.service.Ship(ctx, seller, order.ID, ShipRequest{})
	require.NoError(t, err)

	_, err = env.service.ConfirmDelivery(ctx, buyer, order.ID)
	require.NoError(t, err)

	notes := env.outbox.byTemplate(notify.TemplateOrderDelivered)
	require.Len(t, notes, 1)
	assert.Equal(t, "seller-1", notes[0].RecipientID)
}

func TestCancelPendingOrder(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	cancelled, err := env.service.Cancel(context.Background(), buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.IsCancelled())
}

func TestCancelCompletedOrderRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t)
	env.payOrder(t, order.ID, "TXN-1")
	_, err := env.service.Ship(ctx, seller, order.ID, ShipRequest{})
	require.NoError(t, err)
	_, err = env.service.ConfirmDelivery(ctx, buyer, order.ID)
	require.NoError(t, err)

	_, err = env.service.Cancel(ctx, buyer, order.ID)
	require.Error(t, err)
	assert.Equal(t, KindPrecondition, KindOf(err))
}

func TestCancelRequiresOwnerOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	_, err := env.service.Cancel(context.Background(), seller, order.ID)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))

	_, err = env.service.Cancel(context.Background(), admin, order.ID)
	require.NoError(t, err)
}

func TestCancelledOrderCannotBePaidOrShipped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t)
	_, err := env.service.Cancel(ctx, buyer, order.ID)
	require.NoError(t, err)

	_, err = env.service.ConfirmPayment(ctx, buyer, order.ID, ConfirmPaymentRequest{TransactionID: "TXN-1"})
	assert.Equal(t, KindPrecondition, KindOf(err))

	_, err = env.service.Ship(ctx, seller, order.ID, ShipRequest{})
	assert.Equal(t, KindPrecondition, KindOf(err))
}

func TestOverrideStatusAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	_, err := env.service.OverrideStatus(context.Background(), buyer, order.ID, models.OrderStatusDelivered)
	require.Error(t, err)
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestOverrideStatusRejectsUnknownValue(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	_, err := env.service.OverrideStatus(context.Background(), admin, order.ID, "teleported")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestOverrideStatusBypassesOrderingGuards(t *testing.T) {
	env := newTestEnv(t)
	order := env.createOrder(t)

	// straight to delivered without payment or shipment history
	forced, err := env.service.OverrideStatus(context.Background(), admin, order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, forced.Status)
	assert.True(t, forced.IsDelivered())
	assert.False(t, forced.IsPaid())
	assert.False(t, forced.IsShipped())
}

func TestGetAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t)

	for _, actor := range []models.Actor{buyer, seller, admin} {
		got, err := env.service.Get(ctx, actor, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
	}

	stranger := models.Actor{ID: "nobody", Role: models.RoleBuyer}
	_, err := env.service.Get(ctx, stranger, order.ID)
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestSellerBadges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inFlight := env.createOrder(t)
	env.payOrder(t, inFlight.ID, "TXN-1")

	cancelled := env.createOrder(t)
	_, err := env.service.Cancel(ctx, buyer, cancelled.ID)
	require.NoError(t, err)

	badges, err := env.service.Badges(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(1), badges.NewSales)
	assert.Equal(t, int64(0), badges.OpenDisputes)
}

func TestAdminSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.createOrder(t)
	env.payOrder(t, first.ID, "TXN-1")
	env.createOrder(t)

	_, err := env.service.Summary(ctx, seller, 12)
	assert.Equal(t, KindAuthorization, KindOf(err))

	summary, err := env.service.Summary(ctx, admin, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.CountsByStatus[models.OrderStatusProcessing])
	assert.Equal(t, int64(1), summary.CountsByStatus[models.OrderStatusPending])
	assert.Equal(t, "350.00", summary.PaidRevenue)
}
