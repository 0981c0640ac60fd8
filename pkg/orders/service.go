// Package orders implements the order lifecycle manager: order creation,
// the guarded fulfilment transitions, the dispute sub-state machine, and the
// read-only aggregates. Collaborators (catalog, identity, payment verifier,
// notification outbox) are narrow interfaces injected at construction.
package orders

import (
	"context"
	"time"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/notify"
	"github.com/example/marketplace/pkg/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultCarrier = "standard-shipping"

type Service struct {
	store    Store
	catalog  Catalog
	verifier Verifier
	replay   ReplayGuard
	outbox   Outbox
	policy   pricing.Policy
	logger   *zap.Logger

	adminEmail string
	now        func() time.Time
	newID      func() string
}

type Option func(*Service)

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAdminEmail sets the address dispute-opened notices are copied to.
func WithAdminEmail(email string) Option {
	return func(s *Service) { s.adminEmail = email }
}

func NewService(store Store, catalog Catalog, verifier Verifier, replay ReplayGuard,
	outbox Outbox, policy pricing.Policy, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		catalog:  catalog,
		verifier: verifier,
		replay:   replay,
		outbox:   outbox,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrderRequest carries the client-supplied order input. Prices are
// never part of it: unit prices are resolved from the catalog.
type CreateOrderRequest struct {
	Items           []RequestedItem
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
}

type RequestedItem struct {
	ProductID string
	Quantity  int64
}

// Create validates the request, resolves each product against the catalog,
// prices the resolved items, and persists a pending order. Any product id
// that does not resolve rejects the whole order.
func (s *Service) Create(ctx context.Context, actor models.Actor, req CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, validationf("order must contain at least one item")
	}
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		return nil, validationf("unknown payment method %q", req.PaymentMethod)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, validationf("item %s: quantity must be positive", item.ProductID)
		}
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.catalog.Resolve(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	lines := make([]pricing.LineItem, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, notFoundf("product %s not found", item.ProductID)
		}
		unitPrice, err := decimal.NewFromString(product.UnitPrice)
		if err != nil {
			return nil, errf(KindInternal, "product %s has malformed price %q", product.ID, product.UnitPrice)
		}
		items = append(items, models.OrderItem{
			Name:      product.Name,
			Quantity:  item.Quantity,
			Image:     product.Image,
			UnitPrice: unitPrice.StringFixed(2),
			SellerID:  product.SellerID,
			ProductID: product.ID,
		})
		lines = append(lines, pricing.LineItem{UnitPrice: unitPrice, Quantity: item.Quantity})
	}

	amounts := s.policy.Quote(lines)
	now := s.now()

	order := &models.Order{
		ID:              s.newID(),
		BuyerID:         actor.ID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      amounts.ItemsPrice,
		TaxPrice:        amounts.TaxPrice,
		ShippingPrice:   amounts.ShippingPrice,
		ServiceFee:      amounts.ServiceFee,
		DiscountAmount:  "0.00",
		TotalPrice:      amounts.TotalPrice,
		Status:          models.OrderStatusPending,
		DisputeStatus:   models.DisputeStatusNone,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Insert(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", order.BuyerID),
		zap.String("total_price", order.TotalPrice),
		zap.Int("items", len(order.Items)))

	return order, nil
}

// enqueue records a notification intent; a failure is logged, never
// escalated, since delivery is a side channel of a committed transition.
func (s *Service) enqueue(ctx context.Context, recipientID, email, tmpl string, data map[string]string) {
	n := &notify.Notification{
		ID:          s.newID(),
		RecipientID: recipientID,
		Email:       email,
		Template:    tmpl,
		Data:        data,
		Status:      notify.StatusPending,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if err := s.outbox.Enqueue(ctx, n); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("template", tmpl),
			zap.String("recipient_id", recipientID),
			zap.Error(err))
	}
}

// notifySellers enqueues one notification per distinct seller on the order,
// skipping excludeID.
func (s *Service) notifySellers(ctx context.Context, order *models.Order, excludeID, tmpl string, data map[string]string) {
	for _, sellerID := range order.SellerIDs() {
		if sellerID == excludeID {
			continue
		}
		s.enqueue(ctx, sellerID, "", tmpl, data)
	}
}
