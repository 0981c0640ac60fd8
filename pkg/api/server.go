// Package api is the HTTP routing layer over the order lifecycle manager.
// Authentication token handling lives upstream; requests arrive with the
// authenticated user id in the X-User-ID header and the identity service
// resolves it to an actor.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/example/marketplace/pkg/config"
	"github.com/example/marketplace/pkg/identity"
	"github.com/example/marketplace/pkg/models"
	"github.com/example/marketplace/pkg/orders"
	"github.com/example/marketplace/pkg/repository"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// ActorResolver resolves an authenticated user id to a request actor.
type ActorResolver interface {
	Actor(ctx context.Context, id string) (models.Actor, error)
}

type Server struct {
	config  *config.Config
	service *orders.Service
	actors  ActorResolver
	redis   *repository.RedisRepository
	logger  *zap.Logger
	router  *gin.Engine
}

func NewServer(cfg *config.Config, service *orders.Service, actors ActorResolver,
	redis *repository.RedisRepository, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	s := &Server{
		config:  cfg,
		service: service,
		actors:  actors,
		redis:   redis,
		logger:  logger,
		router:  router,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/api/v1")
	{
		ordersGroup := v1.Group("/orders")
		{
			ordersGroup.POST("", s.createOrder)
			ordersGroup.GET("", s.listMyOrders)
			ordersGroup.GET("/:id", s.getOrder)
			ordersGroup.POST("/:id/pay", s.confirmPayment)
			ordersGroup.POST("/:id/ship", s.shipOrder)
			ordersGroup.POST("/:id/deliver", s.confirmDelivery)
			ordersGroup.POST("/:id/cancel", s.cancelOrder)
			ordersGroup.PUT("/:id/status", s.overrideStatus)
			ordersGroup.POST("/:id/dispute", s.openDispute)
			ordersGroup.PUT("/:id/dispute", s.updateDispute)
		}

		v1.GET("/admin/summary", s.adminSummary)
		v1.GET("/seller/badges", s.sellerBadges)
	}

	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info("API server starting", zap.String("address", addr))
	return s.router.Run(addr)
}

// Router exposes the handler tree, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) actor(c *gin.Context) (models.Actor, bool) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
		return models.Actor{}, false
	}

	actor, err := s.actors.Actor(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, identity.ErrNoUser) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		} else {
			s.logger.Error("failed to resolve actor", zap.String("user_id", userID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return models.Actor{}, false
	}
	return actor, true
}

func (s *Server) fail(c *gin.Context, err error) {
	kind := orders.KindOf(err)

	var status int
	switch kind {
	case orders.KindNotFound:
		status = http.StatusNotFound
	case orders.KindValidation:
		status = http.StatusBadRequest
	case orders.KindAuthorization:
		status = http.StatusForbidden
	case orders.KindPrecondition:
		status = http.StatusConflict
	case orders.KindPaymentVerification:
		status = http.StatusPaymentRequired
	default:
		s.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

type createOrderPayload struct {
	Items []struct {
		ProductID string `json:"productId" binding:"required"`
		Quantity  int64  `json:"quantity" binding:"required"`
	} `json:"items"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod"`
}

func (s *Server) createOrder(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var payload createOrderPayload
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := orders.CreateOrderRequest{
		ShippingAddress: payload.ShippingAddress,
		PaymentMethod:   payload.PaymentMethod,
	}
	for _, item := range payload.Items {
		req.Items = append(req.Items, orders.RequestedItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := s.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) listMyOrders(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	offset, _ := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)

	list, total, err := s.service.ListMine(c.Request.Context(), actor, limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "total": total})
}

func (s *Server) getOrder(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	order, err := s.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) confirmPayment(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var payload struct {
		TransactionID string `json:"transactionId"`
		PayerEmail    string `json:"payerEmail"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.service.ConfirmPayment(c.Request.Context(), actor, c.Param("id"), orders.ConfirmPaymentRequest{
		TransactionID: payload.TransactionID,
		PayerEmail:    payload.PayerEmail,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) shipOrder(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var payload struct {
		TrackingNumber string `json:"trackingNumber"`
		Carrier        string `json:"carrier"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.service.Ship(c.Request.Context(), actor, c.Param("id"), orders.ShipRequest{
		TrackingNumber: payload.TrackingNumber,
		Carrier:        payload.Carrier,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) confirmDelivery(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	order, err := s.service.ConfirmDelivery(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) cancelOrder(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	order, err := s.service.Cancel(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) overrideStatus(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var payload struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.service.OverrideStatus(c.Request.Context(), actor, c.Param("id"), payload.Status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) openDispute(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var payload struct {
		Reason      models.DisputeReason `json:"reason"`
		Description string               `json:"description"`
		Type        string               `json:"type"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.service.OpenDispute(c.Request.Context(), actor, c.Param("id"), orders.OpenDisputeRequest{
		Reason:      payload.Reason,
		Description: payload.Description,
		Type:        payload.Type,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) updateDispute(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	var payload struct {
		Status     models.DisputeStatus `json:"status"`
		Resolution string               `json:"resolution"`
		AdminNotes string               `json:"adminNotes"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.service.UpdateDispute(c.Request.Context(), actor, c.Param("id"), orders.UpdateDisputeRequest{
		Status:     payload.Status,
		Resolution: payload.Resolution,
		AdminNotes: payload.AdminNotes,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) adminSummary(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	months, _ := strconv.Atoi(c.DefaultQuery("months", "12"))
	summary, err := s.service.Summary(c.Request.Context(), actor, months)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) sellerBadges(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if cached, err := s.redis.GetBadgeCache(ctx, actor.ID); err == nil {
		c.JSON(http.StatusOK, orders.SellerBadges{
			NewSales:     cached.NewSales,
			OpenDisputes: cached.OpenDisputes,
		})
		return
	}

	badges, err := s.service.Badges(ctx, actor)
	if err != nil {
		s.fail(c, err)
		return
	}

	if err := s.redis.CacheBadges(ctx, actor.ID, &repository.BadgeCache{
		NewSales:     badges.NewSales,
		OpenDisputes: badges.OpenDisputes,
	}); err != nil {
		s.logger.Warn("failed to cache badges", zap.String("seller_id", actor.ID), zap.Error(err))
	}

	c.JSON(http.StatusOK, badges)
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
