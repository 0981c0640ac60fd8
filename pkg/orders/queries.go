package orders

import (
	"context"

	"github.com/example/marketplace/pkg/models"
)

// Get returns a single order. Only the buyer, a seller on the order, or an
// admin may read it.
func (s *Service) Get(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.ID != order.BuyerID && !order.ContainsSeller(actor.ID) && !actor.IsAdmin() {
		return nil, authorizationf("actor %s may not view order %s", actor.ID, orderID)
	}
	return order, nil
}

// ListMine returns the actor's own orders, newest first.
func (s *Service) ListMine(ctx context.Context, actor models.Actor, limit, offset int64) ([]*models.Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListByBuyer(ctx, actor.ID, limit, offset)
}

// AdminSummary is the storefront dashboard aggregate.
type AdminSummary struct {
	CountsByStatus map[models.OrderStatus]int64 `json:"countsByStatus"`
	PaidRevenue    string                       `json:"paidRevenue"`
	Monthly        []MonthlyPoint               `json:"monthly"`
}

// Summary computes the admin dashboard aggregates: order counts per status,
// total paid revenue, and the monthly order series.
func (s *Service) Summary(ctx context.Context, actor models.Actor, months int) (*AdminSummary, error) {
	if !actor.IsAdmin() {
		return nil, authorizationf("summary requires admin")
	}
	if months <= 0 || months > 36 {
		months = 12
	}

	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	revenue, err := s.store.PaidRevenue(ctx)
	if err != nil {
		return nil, err
	}
	monthly, err := s.store.MonthlyRevenue(ctx, months)
	if err != nil {
		return nil, err
	}

	return &AdminSummary{
		CountsByStatus: counts,
		PaidRevenue:    revenue,
		Monthly:        monthly,
	}, nil
}

// SellerBadges are the seller dashboard counters. New sales are orders
// containing one of the seller's items that are not cancelled and still in
// flight (pending, processing or shipped); open disputes are disputes not
// yet resolved or closed on such orders.
type SellerBadges struct {
	NewSales     int64 `json:"newSales"`
	OpenDisputes int64 `json:"openDisputes"`
}

func (s *Service) Badges(ctx context.Context, actor models.Actor) (*SellerBadges, error) {
	newSales, err := s.store.CountSellerSales(ctx, actor.ID, []models.OrderStatus{
		models.OrderStatusPending,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
	})
	if err != nil {
		return nil, err
	}
	openDisputes, err := s.store.CountSellerDisputes(ctx, actor.ID, []models.DisputeStatus{
		models.DisputeStatusOpen,
		models.DisputeStatusInReview,
	})
	if err != nil {
		return nil, err
	}
	return &SellerBadges{NewSales: newSales, OpenDisputes: openDisputes}, nil
}
