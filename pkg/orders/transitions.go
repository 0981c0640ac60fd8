package orders

import (
	"context"
	"errors"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/notify"
	"go.uber.org/zap"
)

// ConfirmPaymentRequest carries the gateway-provided payment outcome.
type ConfirmPaymentRequest struct {
	TransactionID string
	PayerEmail    string
}

// ConfirmPayment verifies the gateway transaction, marks the order paid and
// processing, decrements catalog stock once, and notifies the sellers.
// Confirming an already-paid order is idempotent: the order is returned
// unchanged and no side effect repeats.
func (s *Service) ConfirmPayment(ctx context.Context, actor models.Actor, orderID string, req ConfirmPaymentRequest) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsPaid() {
		return order, nil
	}
	if order.IsCancelled() {
		return nil, preconditionf("order %s is cancelled", orderID)
	}

	result, err := s.verifyPayment(ctx, order, req)
	if err != nil {
		return nil, err
	}

	updated, applied, err := s.store.MarkPaid(ctx, orderID, *result, s.now())
	if err != nil {
		return nil, mapStoreErr(err, orderID)
	}
	if !applied {
		// A concurrent confirmation won; it owns the stock decrement and
		// the notifications.
		return updated, nil
	}

	for _, item := range updated.Items {
		if err := s.catalog.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("failed to decrement stock",
				zap.String("order_id", orderID),
				zap.String("product_id", item.ProductID),
				zap.Int64("quantity", item.Quantity),
				zap.Error(err))
		}
	}

	data := map[string]string{"orderId": updated.ID, "totalPrice": updated.TotalPrice}
	s.enqueue(ctx, updated.BuyerID, "", notify.TemplatePaymentConfirmed, data)
	s.notifySellers(ctx, updated, "", notify.TemplateSellerNewSale, data)

	s.logger.Info("order paid",
		zap.String("order_id", updated.ID),
		zap.String("transaction_id", result.TransactionID))

	return updated, nil
}

// verifyPayment runs server-side verification for gateway methods that
// require it and claims the transaction id against replay. Cash and bank
// transfer confirmations are recorded as-is.
func (s *Service) verifyPayment(ctx context.Context, order *models.Order, req ConfirmPaymentRequest) (*models.PaymentResult, error) {
	switch order.PaymentMethod {
	case models.PaymentPayPal, models.PaymentStripe, models.PaymentCard:
		if req.TransactionID == "" {
			return nil, validationf("transaction id is required for %s payments", order.PaymentMethod)
		}
		result, err := s.verifier.Verify(ctx, req.TransactionID)
		if err != nil {
			return nil, paymentf("payment verification failed: %v", err)
		}
		ok, err := s.replay.Claim(ctx, req.TransactionID, order.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, paymentf("transaction %s was already used by another order", req.TransactionID)
		}
		if req.PayerEmail != "" {
			result.PayerEmail = req.PayerEmail
		}
		return result, nil
	default:
		return &models.PaymentResult{
			TransactionID: req.TransactionID,
			Status:        "recorded",
			PayerEmail:    req.PayerEmail,
		}, nil
	}
}

// ShipRequest carries carrier booking details. Carrier defaults to the
// standard-shipping label when omitted.
type ShipRequest struct {
	TrackingNumber string
	Carrier        string
}

// Ship marks a paid order shipped. Only a seller on the order or an admin
// may ship.
func (s *Service) Ship(ctx context.Context, actor models.Actor, orderID string, req ShipRequest) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !order.ContainsSeller(actor.ID) {
		return nil, authorizationf("actor %s may not ship order %s", actor.ID, orderID)
	}
	if !order.IsPaid() {
		return nil, preconditionf("order %s is not paid", orderID)
	}
	if order.IsCancelled() {
		return nil, preconditionf("order %s is cancelled", orderID)
	}
	if order.IsShipped() {
		return nil, preconditionf("order %s is already shipped", orderID)
	}

	carrier := req.Carrier
	if carrier == "" {
		carrier = defaultCarrier
	}
	details := models.ShippingDetails{
		TrackingNumber: req.TrackingNumber,
		Carrier:        carrier,
		ShippedAt:      s.now(),
	}

	updated, applied, err := s.store.MarkShipped(ctx, orderID, details)
	if err != nil {
		return nil, mapStoreErr(err, orderID)
	}
	if !applied {
		return nil, preconditionf("order %s is already shipped", orderID)
	}

	s.enqueue(ctx, updated.BuyerID, "", notify.TemplateOrderShipped, map[string]string{
		"orderId":        updated.ID,
		"carrier":        details.Carrier,
		"trackingNumber": details.TrackingNumber,
	})

	s.logger.Info("order shipped",
		zap.String("order_id", updated.ID),
		zap.String("carrier", details.Carrier))

	return updated, nil
}

// ConfirmDelivery marks a shipped order delivered. A non-admin confirmation
// additionally stamps the explicit receipt marker; an admin-forced delivery
// does not.
func (s *Service) ConfirmDelivery(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsShipped() {
		return nil, preconditionf("order %s is not shipped", orderID)
	}
	if order.IsDelivered() {
		return nil, preconditionf("order %s is already delivered", orderID)
	}

	confirmedReceipt := !actor.IsAdmin()
	updated, applied, err := s.store.MarkDelivered(ctx, orderID, s.now(), confirmedReceipt)
	if err != nil {
		return nil, mapStoreErr(err, orderID)
	}
	if !applied {
		return nil, preconditionf("order %s is already delivered", orderID)
	}

	s.notifySellers(ctx, updated, "", notify.TemplateOrderDelivered,
		map[string]string{"orderId": updated.ID})

	s.logger.Info("order delivered",
		zap.String("order_id", updated.ID),
		zap.Bool("confirmed_receipt", confirmedReceipt))

	return updated, nil
}

// Cancel cancels an order that has not completed. Only the buyer or an
// admin may cancel; an order that is both paid and delivered is final.
// Stock is not restored on cancellation.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != order.BuyerID {
		return nil, authorizationf("actor %s may not cancel order %s", actor.ID, orderID)
	}
	if order.IsPaid() && order.IsDelivered() {
		return nil, preconditionf("order %s is completed and cannot be cancelled", orderID)
	}
	if order.IsCancelled() {
		return nil, preconditionf("order %s is already cancelled", orderID)
	}

	updated, applied, err := s.store.MarkCancelled(ctx, orderID, s.now())
	if err != nil {
		return nil, mapStoreErr(err, orderID)
	}
	if !applied {
		return nil, preconditionf("order %s is already cancelled", orderID)
	}

	data := map[string]string{"orderId": updated.ID}
	s.enqueue(ctx, updated.BuyerID, "", notify.TemplateOrderCancelled, data)
	s.notifySellers(ctx, updated, "", notify.TemplateOrderCancelled, data)

	s.logger.Info("order cancelled", zap.String("order_id", updated.ID))

	return updated, nil
}

// OverrideStatus is the admin escape hatch: it writes any status from the
// enumeration along with the matching milestone timestamp, without the
// ordering guards of the dedicated transitions. It can produce states the
// normal flow never reaches (e.g. delivered with no payment history); that
// is deliberate and restricted to admins.
func (s *Service) OverrideStatus(ctx context.Context, actor models.Actor, orderID string, status models.OrderStatus) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, authorizationf("status override requires admin")
	}
	if !models.ValidOrderStatus(status) {
		return nil, validationf("unknown order status %q", status)
	}

	updated, err := s.store.OverrideStatus(ctx, orderID, status, s.now())
	if err != nil {
		return nil, mapStoreErr(err, orderID)
	}

	s.logger.Warn("order status overridden",
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
		zap.String("admin_id", actor.ID))

	return updated, nil
}

func (s *Service) getOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, mapStoreErr(err, orderID)
	}
	return order, nil
}

func mapStoreErr(err error, orderID string) error {
	if errors.Is(err, ErrNoOrder) {
		return notFoundf("order %s not found", orderID)
	}
	return err
}
