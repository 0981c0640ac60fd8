package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/notify"
	"github.com/example/marketplace/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	buyer  = models.Actor{ID: "buyer-1", Email: "buyer@example.com", Role: models.RoleBuyer}
	seller = models.Actor{ID: "seller-1", Email: "seller@example.com", Role: models.RoleSeller}
	admin  = models.Actor{ID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin}
)

type testEnv struct {
	service *Service
	store   *fakeStore
	catalog *fakeCatalog
	replay  *fakeReplay
	outbox  *fakeOutbox
	clock   *fakeClock
}

// fakeClock ticks forward one second per call so consecutive transitions
// get strictly increasing timestamps.
type fakeClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(time.Second)
	return c.at
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	policy, err := pricing.NewPolicy("0.075", "0.5", "35.00")
	require.NoError(t, err)

	env := &testEnv{
		store: newFakeStore(),
		catalog: newFakeCatalog(
			&models.Product{ID: "prod-1", Name: "Walnut Desk", UnitPrice: "100.00", SellerID: "seller-1", Stock: 10},
			&models.Product{ID: "prod-2", Name: "Oak Chair", UnitPrice: "19.99", SellerID: "seller-2", Stock: 5},
		),
		replay: newFakeReplay(),
		outbox: &fakeOutbox{},
		clock:  &fakeClock{at: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
	}
	env.service = NewService(env.store, env.catalog, &fakeVerifier{}, env.replay,
		env.outbox, policy, zap.NewNop(),
		WithClock(env.clock.Now),
		WithAdminEmail("disputes@marketplace.example"))
	return env
}

func (e *testEnv) createOrder(t *testing.T, items ...RequestedItem) *models.Order {
	t.Helper()
	if items == nil {
		items = []RequestedItem{{ProductID: "prod-1", Quantity: 2}}
	}
	order, err := e.service.Create(context.Background(), buyer, CreateOrderRequest{
		Items:         items,
		PaymentMethod: models.PaymentPayPal,
		ShippingAddress: models.ShippingAddress{
			Street: "12 Pier Lane", City: "Portsmouth", PostalCode: "PO1 2AB", Country: "GB",
		},
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrderPricesFromCatalog(t *testing.T) {
	env := newTestEnv(t)

	order := env.createOrder(t)

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.DisputeStatusNone, order.DisputeStatus)
	assert.False(t, order.IsPaid())
	assert.False(t, order.IsShipped())
	assert.False(t, order.IsDelivered())
	assert.False(t, order.IsCancelled())

	// 2 x 100.00 with 50% fee, 7.5% tax, 35.00 shipping
	assert.Equal(t, "200.00", order.ItemsPrice)
	assert.Equal(t, "100.00", order.ServiceFee)
	assert.Equal(t, "15.00", order.TaxPrice)
	assert.Equal(t, "35.00", order.ShippingPrice)
	assert.Equal(t, "350.00", order.TotalPrice)

	require.Len(t, order.Items, 1)
	assert.Equal(t, "100.00", order.Items[0].UnitPrice)
	assert.Equal(t, "seller-1", order.Items[0].SellerID)
	assert.Equal(t, "Walnut Desk", order.Items[0].Name)
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Create(context.Background(), buyer, CreateOrderRequest{
		PaymentMethod: models.PaymentPayPal,
	})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateOrderRejectsUnknownProduct(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Create(context.Background(), buyer, CreateOrderRequest{
		Items: []RequestedItem{
			{ProductID: "prod-1", Quantity: 1},
			{ProductID: "prod-gone", Quantity: 1},
		},
		PaymentMethod: models.PaymentPayPal,
	})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))

	// whole order rejected, nothing persisted
	counts, err := env.store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Create(context.Background(), buyer, CreateOrderRequest{
		Items:         []RequestedItem{{ProductID: "prod-1", Quantity: 0}},
		PaymentMethod: models.PaymentPayPal,
	})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = env.service.Create(context.Background(), buyer, CreateOrderRequest{
		Items:         []RequestedItem{{ProductID: "prod-1", Quantity: 1}},
		PaymentMethod: "barter",
	})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t)

	paid, err := env.service.ConfirmPayment(ctx, buyer, order.ID, ConfirmPaymentRequest{TransactionID: "TXN-1"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, paid.Status)
	require.True(t, paid.IsPaid())
	require.NotNil(t, paid.PaymentResult)
	assert.Equal(t, "TXN-1", paid.PaymentResult.TransactionID)

	shipped, err := env.service.Ship(ctx, seller, order.ID, ShipRequest{TrackingNumber: "TRK-9"})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)
	require.True(t, shipped.IsShipped())
	require.NotNil(t, shipped.ShippingDetails)
	assert.Equal(t, "standard-shipping", shipped.ShippingDetails.Carrier)
	assert.True(t, shipped.ShippedAt.After(*paid.PaidAt))

	delivered, err := env.service.ConfirmDelivery(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
	require.True(t, delivered.IsDelivered())
	assert.NotNil(t, delivered.ConfirmedReceiptAt)
	assert.True(t, delivered.DeliveredAt.After(*shipped.ShippedAt))

	// milestones survived every transition untouched
	assert.Equal(t, paid.PaidAt.Unix(), delivered.PaidAt.Unix())
	assert.Equal(t, shipped.ShippedAt.Unix(), delivered.ShippedAt.Unix())
	assert.False(t, delivered.IsCancelled())
}

func TestConfirmPaymentDecrementsStockOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t, RequestedItem{ProductID: "prod-1", Quantity: 2}, RequestedItem{ProductID: "prod-2", Quantity: 3})

	_, err := env.service.ConfirmPayment(ctx, buyer, order.ID, ConfirmPaymentRequest{TransactionID: "TXN-1"})
	require.NoError(t, err)

	// second confirmation is idempotent
	again, err := env.service.ConfirmPayment(ctx, buyer, order.ID, ConfirmPaymentRequest{TransactionID: "TXN-1"})
	require.NoError(t, err)
	assert.True(t, again.IsPaid())

	assert.Equal(t, int64(2), env.catalog.decrements["prod-1"])
	assert.Equal(t, int64(3), env.catalog.decrements["prod-2"])
}

func TestConcurrentPaymentConfirmations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t, RequestedItem{ProductID: "prod-1", Quantity: 4})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.service.ConfirmPayment(ctx, buyer, order.ID, ConfirmPaymentRequest{TransactionID: "TXN-RACE"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// exactly one confirmation decremented stock
	assert.Equal(t, int64(4), env.catalog.decrements["prod-1"])

	final, err := env.store.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, final.IsPaid())
	assert.Equal(t, models.OrderStatusProcessing, final.Status)
}

func TestConfirmPaymentRejectsReplayedTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createOrder(t)
	second := env.createOrder(t)

	_, err := env.service.ConfirmPayment(ctx, buyer, first.ID, ConfirmPaymentRequest{TransactionID: "TXN-DUP"})
	require.NoError(t, err)

	_, err = env.service.ConfirmPayment(ctx, buyer, second.ID, ConfirmPaymentRequest{TransactionID: "TXN-DUP"})
	require.Error(t, err)
	assert.Equal(t, KindPaymentVerification, KindOf(err))

	unpaid, err := env.store.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, unpaid.IsPaid())
}

func TestConfirmPaymentVerificationFailure(t *testing.T) {
	env := newTestEnv(t)
	policy, err := pricing.NewPolicy("0.075", "0.5", "35.00")
	require.NoError(t, err)
	env.service = NewService(env.store, env.catalog, &fakeVerifier{failWith: assert.AnError},
		env.replay, env.outbox, policy, zap.NewNop(), WithClock(env.clock.Now))
	order := env.createOrder(t)

	_, err = env.service.ConfirmPayment(context.Background(), buyer, order.ID, ConfirmPaymentRequest{TransactionID: "TXN-BAD"})
	require.Error(t, err)
	assert.Equal(t, KindPaymentVerification, KindOf(err))

	unpaid, err := env.store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, unpaid.IsPaid())
	assert.Empty(t, env.catalog.decrements)
}

func TestConfirmPaymentNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ConfirmPayment(context.Background(), buyer, "no-such-order", ConfirmPaymentRequest{TransactionID: "TXN-1"})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestPaymentNotificationsFanOutToSellers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.createOrder(t,
		RequestedItem{ProductID: "prod-1", Quantity: 1},
		RequestedItem{ProductID: "prod-2", Quantity: 1})

	_, err := env.service.ConfirmPayment(ctx, buyer, order.ID, ConfirmPaymentRequest{TransactionID: "TXN-1"})
	require.NoError(t, err)

	buyerNotes := env.outbox.byTemplate(notify.TemplatePaymentConfirmed)
	require.Len(t, buyerNotes, 1)
	assert.Equal(t, buyer.ID, buyerNotes[0].RecipientID)

	sellerNotes := env.outbox.byTemplate(notify.TemplateSellerNewSale)
	require.Len(t, sellerNotes, 2)
	recipients := []string{sellerNotes[0].RecipientID, sellerNotes[1].RecipientID}
	assert.ElementsMatch(t, []string{"seller-1", "seller-2"}, recipients)
}
