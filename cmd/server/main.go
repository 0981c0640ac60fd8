package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/marketplace/pkg/api"
	"github.com/example/marketplace/pkg/catalog"
	"github.com/example/marketplace/pkg/config"
	"github.com/example/marketplace/pkg/discovery"
	"github.com/example/marketplace/pkg/identity"
	"github.com/example/marketplace/pkg/orders"
	"github.com/example/marketplace/pkg/payment"
	"github.com/example/marketplace/pkg/pricing"
	"github.com/example/marketplace/pkg/repository"
	"go.uber.org/zap"
)

func main() {
	// Load config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting marketplace API server",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port))

	// Storage
	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	redisRepo := repository.NewRedisRepository(&cfg.Redis)

	ctx := context.Background()
	if err := redisRepo.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully")
	}

	// Collaborators
	identitySvc, err := identity.NewService(&cfg.MySQL, redisRepo, logger.Named("identity"))
	if err != nil {
		logger.Fatal("Failed to create identity service", zap.Error(err))
	}
	catalogSvc := catalog.NewMongoCatalog(mongoRepo)
	verifier := payment.NewGatewayVerifier(&cfg.Payment, logger.Named("payment"))
	outbox := repository.NewOutboxStore(mongoRepo)

	policy, err := pricing.NewPolicy(cfg.Pricing.TaxRate, cfg.Pricing.ServiceFeeRate, cfg.Pricing.FlatShipping)
	if err != nil {
		logger.Fatal("Invalid pricing policy", zap.Error(err))
	}

	// Order lifecycle manager
	service := orders.NewService(
		repository.NewOrderStore(mongoRepo),
		catalogSvc,
		verifier,
		redisRepo,
		outbox,
		policy,
		logger.Named("orders"),
		orders.WithAdminEmail(cfg.Notify.AdminEmail),
	)

	// Register in etcd
	registry, err := discovery.NewRegistry(&cfg.Etcd)
	if err != nil {
		logger.Warn("Failed to connect to etcd, continuing without registration", zap.Error(err))
	} else {
		instance := &discovery.ServiceInstance{
			Name: cfg.Server.Name,
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		}
		if err := registry.Register(ctx, instance); err != nil {
			logger.Warn("Failed to register service", zap.Error(err))
		} else {
			logger.Info("Service registered in etcd",
				zap.String("name", cfg.Server.Name),
				zap.String("address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)))
			defer registry.Deregister(ctx, instance)
		}
		defer registry.Close()
	}

	// HTTP server
	server := api.NewServer(cfg, service, identitySvc, redisRepo, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Fatal("Server error", zap.Error(err))
	}

	if err := mongoRepo.Close(ctx); err != nil {
		logger.Error("Failed to close MongoDB connection", zap.Error(err))
	}
	redisRepo.Close()

	logger.Info("Service stopped")
}
