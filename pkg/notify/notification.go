package notify

import (
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Template names fired by the order lifecycle manager.
const (
	TemplatePaymentConfirmed = "payment_confirmed"
	TemplateSellerNewSale    = "seller_new_sale"
	TemplateOrderShipped     = "order_shipped"
	TemplateOrderDelivered   = "order_delivered"
	TemplateOrderCancelled   = "order_cancelled"
	TemplateDisputeOpened    = "dispute_opened"
	TemplateDisputeUpdated   = "dispute_updated"
)

// Notification is a persisted delivery intent. Either RecipientID (resolved
// to an address by the dispatcher) or Email is set at enqueue time.
type Notification struct {
	ID          string            `bson:"_id" json:"id"`
	RecipientID string            `bson:"recipientId,omitempty" json:"recipientId,omitempty"`
	Email       string            `bson:"email,omitempty" json:"email,omitempty"`
	Template    string            `bson:"template" json:"template"`
	Data        map[string]string `bson:"data" json:"data"`
	Status      Status            `bson:"status" json:"status"`
	Attempts    int               `bson:"attempts" json:"attempts"`
	LastError   string            `bson:"lastError,omitempty" json:"lastError,omitempty"`
	CreatedAt   time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time         `bson:"updatedAt" json:"updatedAt"`
}
