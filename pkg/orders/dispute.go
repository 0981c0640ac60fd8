package orders

import (
	"context"

	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/notify"
	"go.uber.org/zap"
)

// OpenDisputeRequest is a buyer/seller claim against an order.
type OpenDisputeRequest struct {
	Reason      models.DisputeReason
	Description string
	Type        string
}

// OpenDispute opens the order's dispute. At most one dispute exists per
// order; a second open attempt, including a concurrent one, is rejected.
// The counter-party and the marketplace admin are notified, never the
// actor themselves.
func (s *Service) OpenDispute(ctx context.Context, actor models.Actor, orderID string, req OpenDisputeRequest) (*models.Order, error) {
	if !models.ValidDisputeReason(req.Reason) {
		return nil, validationf("unknown dispute reason %q", req.Reason)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	isBuyer := actor.ID == order.BuyerID
	isSeller := order.ContainsSeller(actor.ID)
	if !isBuyer && !isSeller && !actor.IsAdmin() {
		return nil, authorizationf("actor %s is not a party to order %s", actor.ID, orderID)
	}
	if order.DisputeStatus != models.DisputeStatusNone {
		return nil, validationf("order %s already has a dispute", orderID)
	}

	now := s.now()
	dispute := models.Dispute{
		Reason:      req.Reason,
		Description: req.Description,
		Type:        req.Type,
		CreatedBy:   actor.ID,
		Status:      models.DisputeStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	updated, applied, err := s.store.OpenDispute(ctx, orderID, dispute)
	if err != nil {
		return nil, mapStoreErr(err, orderID)
	}
	if !applied {
		return nil, validationf("order %s already has a dispute", orderID)
	}

	data := map[string]string{"orderId": updated.ID, "reason": string(req.Reason)}
	if s.adminEmail != "" && s.adminEmail != actor.Email {
		s.enqueue(ctx, "", s.adminEmail, notify.TemplateDisputeOpened, data)
	}
	if isBuyer {
		s.notifySellers(ctx, updated, actor.ID, notify.TemplateDisputeOpened, data)
	} else {
		s.enqueue(ctx, updated.BuyerID, "", notify.TemplateDisputeOpened, data)
	}

	s.logger.Info("dispute opened",
		zap.String("order_id", updated.ID),
		zap.String("reason", string(req.Reason)),
		zap.String("created_by", actor.ID))

	return updated, nil
}

// UpdateDisputeRequest is an admin move of an existing dispute.
type UpdateDisputeRequest struct {
	Status     models.DisputeStatus
	Resolution string
	AdminNotes string
}

// UpdateDispute moves an existing dispute to the target status, keeping the
// top-level dispute status and the sub-record status in sync. Entering
// resolved or closed stamps the resolver; terminal disputes admit no
// further transitions.
func (s *Service) UpdateDispute(ctx context.Context, actor models.Actor, orderID string, req UpdateDisputeRequest) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, authorizationf("dispute updates require admin")
	}
	if !models.ValidDisputeStatus(req.Status) {
		return nil, validationf("unknown dispute status %q", req.Status)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.DisputeStatus == models.DisputeStatusNone {
		return nil, preconditionf("order %s has no dispute", orderID)
	}
	if models.DisputeTerminal(order.DisputeStatus) {
		return nil, preconditionf("dispute on order %s is %s and cannot change", orderID, order.DisputeStatus)
	}

	update := DisputeUpdate{
		Status:     req.Status,
		Resolution: req.Resolution,
		AdminNotes: req.AdminNotes,
		At:         s.now(),
	}
	if models.DisputeTerminal(req.Status) {
		update.ResolvedBy = actor.ID
	}

	updated, applied, err := s.store.UpdateDispute(ctx, orderID, update)
	if err != nil {
		return nil, mapStoreErr(err, orderID)
	}
	if !applied {
		return nil, preconditionf("dispute on order %s changed concurrently", orderID)
	}

	data := map[string]string{
		"orderId":    updated.ID,
		"status":     string(req.Status),
		"resolution": req.Resolution,
	}
	s.enqueue(ctx, updated.BuyerID, "", notify.TemplateDisputeUpdated, data)
	s.notifySellers(ctx, updated, actor.ID, notify.TemplateDisputeUpdated, data)

	s.logger.Info("dispute updated",
		zap.String("order_id", updated.ID),
		zap.String("status", string(req.Status)),
		zap.String("admin_id", actor.ID))

	return updated, nil
}
