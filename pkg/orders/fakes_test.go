package orders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/notify"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory Store with the same conditional-update
// semantics as the mongo implementation: each guarded write checks the
// required state and applies atomically under one lock.
type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*models.Order)}
}

func clone(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PaymentResult != nil {
		r := *o.PaymentResult
		c.PaymentResult = &r
	}
	if o.Dispute != nil {
		d := *o.Dispute
		c.Dispute = &d
	}
	if o.ShippingDetails != nil {
		sd := *o.ShippingDetails
		c.ShippingDetails = &sd
	}
	return &c
}

func (s *fakeStore) Insert(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("duplicate order id %s", order.ID)
	}
	s.orders[order.ID] = clone(order)
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNoOrder
	}
	return clone(o), nil
}

func (s *fakeStore) ListByBuyer(_ context.Context, buyerID string, limit, offset int64) ([]*models.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []*models.Order
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			list = append(list, clone(o))
		}
	}
	return list, int64(len(list)), nil
}

// guarded applies mutate when guard passes, mirroring a mongo conditional
// update.
func (s *fakeStore) guarded(id string, guard func(*models.Order) bool, mutate func(*models.Order)) (*models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false, ErrNoOrder
	}
	if !guard(o) {
		return clone(o), false, nil
	}
	mutate(o)
	o.Version++
	return clone(o), true, nil
}

func (s *fakeStore) MarkPaid(_ context.Context, id string, result models.PaymentResult, at time.Time) (*models.Order, bool, error) {
	return s.guarded(id,
		func(o *models.Order) bool { return o.PaidAt == nil && o.CancelledAt == nil },
		func(o *models.Order) {
			o.PaidAt = &at
			o.Status = models.OrderStatusProcessing
			o.PaymentResult = &result
			o.UpdatedAt = at
		})
}

func (s *fakeStore) MarkShipped(_ context.Context, id string, details models.ShippingDetails) (*models.Order, bool, error) {
	return s.guarded(id,
		func(o *models.Order) bool { return o.PaidAt != nil && o.ShippedAt == nil && o.CancelledAt == nil },
		func(o *models.Order) {
			at := details.ShippedAt
			o.ShippedAt = &at
			o.Status = models.OrderStatusShipped
			o.ShippingDetails = &details
			o.UpdatedAt = at
		})
}

func (s *fakeStore) MarkDelivered(_ context.Context, id string, at time.Time, confirmedReceipt bool) (*models.Order, bool, error) {
	return s.guarded(id,
		func(o *models.Order) bool { return o.ShippedAt != nil && o.DeliveredAt == nil },
		func(o *models.Order) {
			o.DeliveredAt = &at
			o.Status = models.OrderStatusDelivered
			if confirmedReceipt {
				o.ConfirmedReceiptAt = &at
			}
			o.UpdatedAt = at
		})
}

func (s *fakeStore) MarkCancelled(_ context.Context, id string, at time.Time) (*models.Order, bool, error) {
	return s.guarded(id,
		func(o *models.Order) bool { return o.CancelledAt == nil && o.DeliveredAt == nil },
		func(o *models.Order) {
			o.CancelledAt = &at
			o.Status = models.OrderStatusCancelled
			o.UpdatedAt = at
		})
}

func (s *fakeStore) OverrideStatus(_ context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNoOrder
	}
	o.Status = status
	switch status {
	case models.OrderStatusShipped:
		o.ShippedAt = &at
	case models.OrderStatusDelivered:
		o.DeliveredAt = &at
	case models.OrderStatusCancelled:
		o.CancelledAt = &at
	}
	o.UpdatedAt = at
	o.Version++
	return clone(o), nil
}

func (s *fakeStore) OpenDispute(_ context.Context, id string, dispute models.Dispute) (*models.Order, bool, error) {
	return s.guarded(id,
		func(o *models.Order) bool { return o.DisputeStatus == models.DisputeStatusNone },
		func(o *models.Order) {
			o.DisputeStatus = models.DisputeStatusOpen
			o.Dispute = &dispute
			o.UpdatedAt = dispute.CreatedAt
		})
}

func (s *fakeStore) UpdateDispute(_ context.Context, id string, update DisputeUpdate) (*models.Order, bool, error) {
	return s.guarded(id,
		func(o *models.Order) bool {
			return o.DisputeStatus == models.DisputeStatusOpen || o.DisputeStatus == models.DisputeStatusInReview
		},
		func(o *models.Order) {
			o.DisputeStatus = update.Status
			o.Dispute.Status = update.Status
			o.Dispute.UpdatedAt = update.At
			if update.Resolution != "" {
				o.Dispute.Resolution = update.Resolution
			}
			if update.AdminNotes != "" {
				o.Dispute.AdminNotes = update.AdminNotes
			}
			if models.DisputeTerminal(update.Status) {
				at := update.At
				o.Dispute.ResolvedAt = &at
				o.Dispute.ResolvedBy = update.ResolvedBy
			}
			o.UpdatedAt = update.At
		})
}

func (s *fakeStore) CountByStatus(_ context.Context) (map[models.OrderStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.OrderStatus]int64)
	for _, o := range s.orders {
		counts[o.Status]++
	}
	return counts, nil
}

func (s *fakeStore) PaidRevenue(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, o := range s.orders {
		if o.PaidAt != nil {
			d, err := decimal.NewFromString(o.TotalPrice)
			if err != nil {
				return "", err
			}
			sum = sum.Add(d)
		}
	}
	return sum.StringFixed(2), nil
}

func (s *fakeStore) MonthlyRevenue(_ context.Context, months int) ([]MonthlyPoint, error) {
	return nil, nil
}

func (s *fakeStore) CountSellerSales(_ context.Context, sellerID string, statuses []models.OrderStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, o := range s.orders {
		if !o.ContainsSeller(sellerID) || o.CancelledAt != nil {
			continue
		}
		for _, status := range statuses {
			if o.Status == status {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *fakeStore) CountSellerDisputes(_ context.Context, sellerID string, statuses []models.DisputeStatus) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, o := range s.orders {
		if !o.ContainsSeller(sellerID) {
			continue
		}
		for _, status := range statuses {
			if o.DisputeStatus == status {
				count++
				break
			}
		}
	}
	return count, nil
}

// fakeCatalog resolves a fixed product set and counts decrements.
type fakeCatalog struct {
	mu         sync.Mutex
	products   map[string]*models.Product
	decrements map[string]int64
}

func newFakeCatalog(products ...*models.Product) *fakeCatalog {
	c := &fakeCatalog{
		products:   make(map[string]*models.Product),
		decrements: make(map[string]int64),
	}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) Resolve(_ context.Context, ids []string) (map[string]*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resolved := make(map[string]*models.Product)
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			cp := *p
			resolved[id] = &cp
		}
	}
	return resolved, nil
}

func (c *fakeCatalog) DecrementStock(_ context.Context, productID string, qty int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[productID]
	if !ok {
		return fmt.Errorf("product %s not found", productID)
	}
	p.Stock -= qty
	if p.Stock < 0 {
		p.Stock = 0
	}
	c.decrements[productID] += qty
	return nil
}

// fakeVerifier accepts any transaction id unless failWith is set.
type fakeVerifier struct {
	failWith error
	calls    int
}

func (v *fakeVerifier) Verify(_ context.Context, transactionID string) (*models.PaymentResult, error) {
	v.calls++
	if v.failWith != nil {
		return nil, v.failWith
	}
	return &models.PaymentResult{TransactionID: transactionID, Status: "COMPLETED"}, nil
}

// fakeReplay binds each transaction id to its first claimant.
type fakeReplay struct {
	mu     sync.Mutex
	claims map[string]string
}

func newFakeReplay() *fakeReplay {
	return &fakeReplay{claims: make(map[string]string)}
}

func (r *fakeReplay) Claim(_ context.Context, txnID, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	holder, ok := r.claims[txnID]
	if !ok {
		r.claims[txnID] = orderID
		return true, nil
	}
	return holder == orderID, nil
}

// fakeOutbox records enqueued notification intents.
type fakeOutbox struct {
	mu    sync.Mutex
	queue []*notify.Notification
}

func (o *fakeOutbox) Enqueue(_ context.Context, n *notify.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, n)
	return nil
}

func (o *fakeOutbox) byTemplate(tmpl string) []*notify.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*notify.Notification
	for _, n := range o.queue {
		if n.Template == tmpl {
			out = append(out, n)
		}
	}
	return out
}
