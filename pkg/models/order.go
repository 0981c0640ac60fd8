package models

import (
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ValidOrderStatus reports whether s is a member of the status enumeration.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

type DisputeStatus string

const (
	DisputeStatusNone     DisputeStatus = "none"
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusInReview DisputeStatus = "in_review"
	DisputeStatusResolved DisputeStatus = "resolved"
	DisputeStatusClosed   DisputeStatus = "closed"
)

// ValidDisputeStatus reports whether s is a dispute status an admin may
// move an existing dispute to. "none" is not a reachable target.
func ValidDisputeStatus(s DisputeStatus) bool {
	switch s {
	case DisputeStatusOpen, DisputeStatusInReview, DisputeStatusResolved, DisputeStatusClosed:
		return true
	}
	return false
}

// DisputeTerminal reports whether s admits no further transitions.
func DisputeTerminal(s DisputeStatus) bool {
	return s == DisputeStatusResolved || s == DisputeStatusClosed
}

type DisputeReason string

const (
	DisputeItemNotReceived    DisputeReason = "item_not_received"
	DisputeItemNotAsDescribed DisputeReason = "item_not_as_described"
	DisputeDamagedItem        DisputeReason = "damaged_item"
	DisputeWrongItem          DisputeReason = "wrong_item"
	DisputePaymentIssue       DisputeReason = "payment_issue"
	DisputeOther              DisputeReason = "other"
)

func ValidDisputeReason(r DisputeReason) bool {
	switch r {
	case DisputeItemNotReceived, DisputeItemNotAsDescribed, DisputeDamagedItem,
		DisputeWrongItem, DisputePaymentIssue, DisputeOther:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentPayPal       PaymentMethod = "paypal"
	PaymentStripe       PaymentMethod = "stripe"
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCard         PaymentMethod = "card"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentPayPal, PaymentStripe, PaymentCash, PaymentBankTransfer, PaymentCard:
		return true
	}
	return false
}

// OrderItem is a line item snapshot taken at order creation. The unit price
// comes from the catalog at creation time, never from client input, and the
// item is immutable once the order is persisted.
type OrderItem struct {
	Name      string `bson:"name" json:"name"`
	Quantity  int64  `bson:"quantity" json:"quantity"`
	Image     string `bson:"image,omitempty" json:"image,omitempty"`
	UnitPrice string `bson:"unitPrice" json:"unitPrice"`
	SellerID  string `bson:"sellerId" json:"sellerId"`
	ProductID string `bson:"productId" json:"productId"`
}

type ShippingAddress struct {
	Street     string `bson:"street" json:"street"`
	City       string `bson:"city" json:"city"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postalCode" json:"postalCode"`
	Country    string `bson:"country" json:"country"`
	Phone      string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// PaymentResult records the outcome of an external payment verification.
type PaymentResult struct {
	TransactionID string `bson:"transactionId" json:"transactionId"`
	Status        string `bson:"status" json:"status"`
	PayerEmail    string `bson:"payerEmail,omitempty" json:"payerEmail,omitempty"`
}

type ShippingDetails struct {
	TrackingNumber string    `bson:"trackingNumber" json:"trackingNumber"`
	Carrier        string    `bson:"carrier" json:"carrier"`
	ShippedAt      time.Time `bson:"shippedAt" json:"shippedAt"`
}

// Dispute is the sub-record present while DisputeStatus != none.
type Dispute struct {
	Reason      DisputeReason `bson:"reason" json:"reason"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Type        string        `bson:"type,omitempty" json:"type,omitempty"`
	CreatedBy   string        `bson:"createdBy" json:"createdBy"`
	Status      DisputeStatus `bson:"status" json:"status"`
	Resolution  string        `bson:"resolution,omitempty" json:"resolution,omitempty"`
	AdminNotes  string        `bson:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
	ResolvedAt  *time.Time    `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	ResolvedBy  string        `bson:"resolvedBy,omitempty" json:"resolvedBy,omitempty"`
}

// Order is the aggregate root. Status is tracked by the OrderStatus enum plus
// milestone timestamps; the boolean milestone flags of the wire format are
// derived accessors so the two can never disagree.
//
// Monetary fields are fixed-precision decimal strings, two fraction digits.
type Order struct {
	ID              string          `bson:"_id" json:"id"`
	BuyerID         string          `bson:"buyerId" json:"buyerId"`
	Items           []OrderItem     `bson:"items" json:"items"`
	ShippingAddress ShippingAddress `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `bson:"paymentMethod" json:"paymentMethod"`
	PaymentResult   *PaymentResult  `bson:"paymentResult,omitempty" json:"paymentResult,omitempty"`

	ItemsPrice     string `bson:"itemsPrice" json:"itemsPrice"`
	TaxPrice       string `bson:"taxPrice" json:"taxPrice"`
	ShippingPrice  string `bson:"shippingPrice" json:"shippingPrice"`
	ServiceFee     string `bson:"serviceFee" json:"serviceFee"`
	DiscountAmount string `bson:"discountAmount" json:"discountAmount"`
	TotalPrice     string `bson:"totalPrice" json:"totalPrice"`

	Status        OrderStatus   `bson:"orderStatus" json:"orderStatus"`
	DisputeStatus DisputeStatus `bson:"disputeStatus" json:"disputeStatus"`
	Dispute       *Dispute      `bson:"dispute,omitempty" json:"dispute,omitempty"`

	ShippingDetails *ShippingDetails `bson:"shippingDetails,omitempty" json:"shippingDetails,omitempty"`

	PaidAt             *time.Time `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	ShippedAt          *time.Time `bson:"shippedAt,omitempty" json:"shippedAt,omitempty"`
	DeliveredAt        *time.Time `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	ConfirmedReceiptAt *time.Time `bson:"confirmedReceiptAt,omitempty" json:"confirmedReceiptAt,omitempty"`

	// Version guards read-modify-write updates; every write increments it.
	Version   int64     `bson:"version" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (o *Order) IsPaid() bool      { return o.PaidAt != nil }
func (o *Order) IsShipped() bool   { return o.ShippedAt != nil }
func (o *Order) IsDelivered() bool { return o.DeliveredAt != nil }
func (o *Order) IsCancelled() bool { return o.CancelledAt != nil }

// SellerIDs returns the distinct sellers referenced by the order's items,
// in first-appearance order.
func (o *Order) SellerIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	var ids []string
	for _, item := range o.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		ids = append(ids, item.SellerID)
	}
	return ids
}

// ContainsSeller reports whether any line item belongs to sellerID.
func (o *Order) ContainsSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}
