package orders

import (
	"context"
	"errors"
	"time"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/notify"
)

// ErrNoOrder is returned by Store implementations when an order id does not
// resolve to a document.
var ErrNoOrder = errors.New("order not found")

// MonthlyPoint is one bucket of the monthly revenue series.
type MonthlyPoint struct {
	Month   string `bson:"_id" json:"month"` // "2026-08"
	Orders  int64  `bson:"orders" json:"orders"`
	Revenue string `bson:"-" json:"revenue"`
}

// Store persists orders. The Mark*/OpenDispute methods are conditional
// writes: the update applies only while the document is still in the
// required state, so concurrent transitions cannot both win. Each returns
// the resulting document and whether this call applied the update; when the
// guard did not match an existing document, the current document is returned
// with applied == false.
type Store interface {
	Insert(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID string, limit, offset int64) ([]*models.Order, int64, error)

	MarkPaid(ctx context.Context, id string, result models.PaymentResult, at time.Time) (*models.Order, bool, error)
	MarkShipped(ctx context.Context, id string, details models.ShippingDetails) (*models.Order, bool, error)
	MarkDelivered(ctx context.Context, id string, at time.Time, confirmedReceipt bool) (*models.Order, bool, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) (*models.Order, bool, error)

	// OverrideStatus is the unguarded admin escape hatch: it writes the
	// target status and its matching milestone timestamp without checking
	// the ordering invariants the Mark* methods enforce.
	OverrideStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (*models.Order, error)

	OpenDispute(ctx context.Context, id string, dispute models.Dispute) (*models.Order, bool, error)
	UpdateDispute(ctx context.Context, id string, update DisputeUpdate) (*models.Order, bool, error)

	CountByStatus(ctx context.Context) (map[models.OrderStatus]int64, error)
	PaidRevenue(ctx context.Context) (string, error)
	MonthlyRevenue(ctx context.Context, months int) ([]MonthlyPoint, error)
	CountSellerSales(ctx context.Context, sellerID string, statuses []models.OrderStatus) (int64, error)
	CountSellerDisputes(ctx context.Context, sellerID string, statuses []models.DisputeStatus) (int64, error)
}

// DisputeUpdate is an admin change to an existing dispute.
type DisputeUpdate struct {
	Status     models.DisputeStatus
	Resolution string
	AdminNotes string
	ResolvedBy string
	At         time.Time
}

// Catalog resolves product ids to authoritative catalog state and adjusts
// stock. Resolve omits unknown ids from the result map.
type Catalog interface {
	Resolve(ctx context.Context, ids []string) (map[string]*models.Product, error)
	// DecrementStock lowers the product's stock by qty, floored at zero.
	DecrementStock(ctx context.Context, productID string, qty int64) error
}

// Verifier checks a gateway transaction id with the external payment
// provider.
type Verifier interface {
	Verify(ctx context.Context, transactionID string) (*models.PaymentResult, error)
}

// ReplayGuard ensures a transaction id is consumed by at most one order.
// Claim returns true when txnID is unclaimed or already held by orderID.
type ReplayGuard interface {
	Claim(ctx context.Context, transactionID, orderID string) (bool, error)
}

// Outbox records notification intents for asynchronous delivery. Enqueue
// failures never fail the transition that produced the intent.
type Outbox interface {
	Enqueue(ctx context.Context, n *notify.Notification) error
}
